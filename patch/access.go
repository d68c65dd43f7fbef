package patch

import (
	"github.com/wnxd/battlecam/encoding"
	"github.com/wnxd/battlecam/foreign"
)

// Read decodes a T from foreign memory at addr. The layout of T must match
// the foreign layout; nothing checks that it does.
func Read[T any](mem foreign.Memory, addr uint64) (T, error) {
	var v T
	if err := encoding.Decode(foreign.NewStream(mem, addr), &v); err != nil {
		return v, &Error{Op: "read", Addr: addr, Err: err}
	}
	return v, nil
}

// Write encodes v into foreign memory at addr.
func Write[T any](mem foreign.Memory, addr uint64, v T) error {
	if err := encoding.Encode(foreign.NewStream(mem, addr), &v); err != nil {
		return &Error{Op: "write", Addr: addr, Err: err}
	}
	return nil
}
