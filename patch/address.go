package patch

import (
	"github.com/wnxd/battlecam/foreign"
)

const (
	// prefixRep marks the scalar SSE moves (movss) present in the patch table.
	prefixRep = 0xF3

	longLength  = 5
	shortLength = 3
)

// Address is a patch site together with the length of the instruction that
// starts there.
type Address struct {
	Addr uint64
	Len  int
}

// DetectLength sniffs the leading byte at addr: a 0xF3 prefix means a 5-byte
// instruction, anything else a 3-byte one. This only holds for the opcodes
// found in the camera write table; any other opcode gets an unverified
// length and is a precondition violation of the table, not an error.
func DetectLength(mem foreign.Memory, addr uint64) (int, error) {
	b, err := mem.MemRead(addr, 1)
	if err != nil {
		return 0, &Error{Op: "detect", Addr: addr, Err: err}
	}
	if b[0] == prefixRep {
		return longLength, nil
	}
	return shortLength, nil
}

func Resolve(mem foreign.Memory, addr uint64) (Address, error) {
	n, err := DetectLength(mem, addr)
	if err != nil {
		return Address{}, err
	}
	return Address{Addr: addr, Len: n}, nil
}
