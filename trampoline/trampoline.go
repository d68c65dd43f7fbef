// Package trampoline synthesizes the code that redirects foreign writes into
// controller-owned storage.
//
// A redirect has two halves. The stub overwrites the reserved bytes at the
// patch site and jumps into the trampoline; the trampoline copies fields into
// the destination and jumps back to the instruction following the stub's
// jump. Both halves are plain byte slices: building them touches no memory,
// so they can be checked by disassembly before anything is installed.
package trampoline

import (
	"fmt"
	"slices"

	"github.com/wnxd/battlecam/foreign"
	"github.com/wnxd/battlecam/internal/x86"
	"github.com/wnxd/battlecam/patch"
)

// fieldSize is the width of every copied field.
const fieldSize = 4

// DynamicPatch is a stub for the patch site together with the trampoline
// code it jumps to. Code is empty for plain overwrites.
type DynamicPatch struct {
	Addr     uint64
	Source   []byte
	Code     []byte
	CodeAddr uint64
	// Resume is where the trampoline hands control back.
	Resume uint64
}

// Install registers the stub with p. The trampoline must already be placed
// before the registry is enabled.
func (d *DynamicPatch) Install(p patch.Registry) error {
	_, err := p.Install(d.Addr, d.Source)
	return err
}

// Source describes where a group of fields lives at the intercepted
// instruction boundary.
type Source struct {
	// Reg holds the address of the first field.
	Reg x86.Reg
	// Stack means Reg is not live; the address is the stack slot at
	// [esp+Disp] as the foreign code sees it, loaded into Reg for the copy.
	Stack bool
	Disp  int32
}

type FieldGroup struct {
	From Source
	// Offset is the destination offset of the first field.
	Offset uint32
	Count  int
}

// CopySpec is everything a field-copy redirect depends on. The register
// choices are a precondition on the foreign code at At and are not checked
// against it.
type CopySpec struct {
	At       uint64
	Reserved int
	Dest     uint64
	Groups   []FieldGroup
	// Scratch carries each field from source to destination.
	Scratch x86.Reg
	// Link is pushed by the stub, used for both jumps and popped at Resume.
	Link x86.Reg
	// Preserve lists registers live past the intercepted instruction that
	// the trampoline clobbers.
	Preserve []x86.Reg
}

// stubResume is the offset of the stub's pop: push(1) + mov imm(5) + jmp(2).
const stubResume = x86.PushSize + x86.MovImmSize + x86.JmpRegSize

func (s CopySpec) validate() error {
	if len(s.Groups) == 0 {
		return ErrNoFields
	} else if s.Reserved < stubResume+x86.PopSize {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrStubTooLong, stubResume+x86.PopSize, s.Reserved)
	} else if s.Link == x86.ESP || s.Scratch == x86.ESP || s.Link == s.Scratch {
		return fmt.Errorf("%w: scratch %v, link %v", ErrRegisterConflict, s.Scratch, s.Link)
	}
	var fields int
	for _, g := range s.Groups {
		if g.Count <= 0 {
			return ErrNoFields
		} else if g.From.Reg == s.Scratch || g.From.Reg == x86.ESP || (g.From.Reg == s.Link && !g.From.Stack) {
			return fmt.Errorf("%w: source %v", ErrRegisterConflict, g.From.Reg)
		}
		end := uint64(g.Offset) + uint64(g.Count*fieldSize)
		fields = max(fields, int(end))
	}
	if !foreign.Fits32(s.At+uint64(s.Reserved)) || !foreign.Fits32(s.Dest+uint64(fields)) {
		return fmt.Errorf("%w: site %08X, destination %08X", ErrAddressRange, s.At, s.Dest)
	}
	return nil
}

// Body assembles the trampoline. It only depends on the spec, so the code
// size is known before the trampoline address is.
func Body(s CopySpec) ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	var a x86.Assembler
	// the stub pushed Link
	depth := int32(1)
	for _, r := range s.Preserve {
		a.Push(r)
		depth++
	}
	for _, g := range s.Groups {
		if g.From.Stack {
			a.Push(g.From.Reg)
			a.MovLoad(g.From.Reg, x86.ESP, g.From.Disp+(depth+1)*foreign.PointerSize)
		}
		for i := range g.Count {
			off := int32(i * fieldSize)
			a.MovLoad(s.Scratch, g.From.Reg, off)
			a.MovStoreAbs(uint32(s.Dest)+g.Offset+uint32(off), s.Scratch)
		}
		if g.From.Stack {
			a.Pop(g.From.Reg)
		}
	}
	for _, r := range slices.Backward(s.Preserve) {
		a.Pop(r)
	}
	a.MovImm(s.Link, uint32(s.At)+stubResume)
	a.JmpReg(s.Link)
	return a.Bytes()
}

// Stub assembles the bytes for the patch site, padded with nops to exactly
// the reserved length.
func Stub(s CopySpec, codeAddr uint64) ([]byte, error) {
	if !foreign.Fits32(codeAddr) {
		return nil, fmt.Errorf("%w: trampoline %X", ErrAddressRange, codeAddr)
	}
	var a x86.Assembler
	a.Push(s.Link)
	a.MovImm(s.Link, uint32(codeAddr))
	a.JmpReg(s.Link)
	a.Pop(s.Link)
	code, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	if len(code) > s.Reserved {
		return nil, ErrStubTooLong
	}
	return append(code, Nops(s.Reserved-len(code))...), nil
}

// Build assembles both halves for a trampoline placed at codeAddr.
func Build(s CopySpec, codeAddr uint64) (*DynamicPatch, error) {
	body, err := Body(s)
	if err != nil {
		return nil, err
	}
	stub, err := Stub(s, codeAddr)
	if err != nil {
		return nil, err
	}
	return &DynamicPatch{
		Addr:     s.At,
		Source:   stub,
		Code:     body,
		CodeAddr: codeAddr,
		Resume:   s.At + stubResume,
	}, nil
}

// Overwrite is a DynamicPatch without trampoline code.
func Overwrite(at uint64, source []byte) *DynamicPatch {
	return &DynamicPatch{Addr: at, Source: slices.Clone(source), Resume: at + uint64(len(source))}
}

func Nops(n int) []byte {
	var a x86.Assembler
	a.Nops(n)
	b, _ := a.Bytes()
	return b
}
