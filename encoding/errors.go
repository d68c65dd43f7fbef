package encoding

import "errors"

var (
	ErrNilValue        = errors.New("nil value")
	ErrNotPointer      = errors.New("decode target is not a pointer")
	ErrUnsupportedType = errors.New("unsupported type")
)
