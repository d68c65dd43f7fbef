package foreign

import (
	"errors"
	"fmt"
)

var (
	ErrAddressNotMapped = errors.New("address not mapped")
	ErrAddressRange     = errors.New("address out of 32-bit range")
	ErrProtection       = errors.New("memory protection violation")
	ErrArgumentInvalid  = errors.New("argument invalid")
	ErrNotBound         = errors.New("address not bound")
	ErrUnsupported      = errors.New("platform unsupported")
)

type AccessError struct {
	Op   string
	Addr uint64
	Size uint64
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s %08X+%d: %v", e.Op, e.Addr, e.Size, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}
