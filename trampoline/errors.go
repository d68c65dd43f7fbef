package trampoline

import "errors"

var (
	ErrAddressRange     = errors.New("address does not fit in 32 bits")
	ErrStubTooLong      = errors.New("stub longer than reserved region")
	ErrRegisterConflict = errors.New("register conflict")
	ErrNoFields         = errors.New("no fields to copy")
)
