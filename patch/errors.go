package patch

import (
	"errors"
	"fmt"
)

var (
	ErrClosed        = errors.New("patcher closed")
	ErrEmptyPatch    = errors.New("empty patch")
	ErrDoubleInstall = errors.New("address range already patched")
)

// Error ties a failed patch operation to the foreign address it targeted.
type Error struct {
	Op   string
	Addr uint64
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("patch %s %08X: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
