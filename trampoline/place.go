package trampoline

import (
	"errors"
	"fmt"

	"github.com/wnxd/battlecam/foreign"
)

const codeAlign = 16

// Block is one executable region holding placed trampolines, in the order
// their specs were given.
type Block struct {
	Region  foreign.MemRegion
	Patches []*DynamicPatch
}

// Place allocates a single executable region, writes every trampoline body
// into it and assembles the stubs against the final addresses. On error
// nothing stays allocated.
func Place(mem foreign.Memory, specs ...CopySpec) (*Block, error) {
	if len(specs) == 0 {
		return nil, ErrNoFields
	}
	bodies := make([][]byte, len(specs))
	var size uint64
	for i, s := range specs {
		body, err := Body(s)
		if err != nil {
			return nil, fmt.Errorf("trampoline %08X: %w", s.At, err)
		}
		bodies[i] = body
		size += foreign.Align(uint64(len(body)), codeAlign)
	}
	region, err := mem.MemAlloc(foreign.Align(size, mem.PageSize()), foreign.MEM_PROT_ALL)
	if err != nil {
		return nil, err
	}
	block := &Block{Region: region}
	if err = block.place(mem, specs, bodies); err != nil {
		return nil, errors.Join(err, mem.MemFree(region))
	}
	return block, nil
}

func (b *Block) place(mem foreign.Memory, specs []CopySpec, bodies [][]byte) error {
	if !foreign.Fits32(b.Region.End() - 1) {
		return fmt.Errorf("%w: region %X", ErrAddressRange, b.Region.Addr)
	}
	addr := b.Region.Addr
	for i, s := range specs {
		stub, err := Stub(s, addr)
		if err != nil {
			return fmt.Errorf("trampoline %08X: %w", s.At, err)
		}
		if err = mem.MemWrite(addr, bodies[i]); err != nil {
			return err
		}
		b.Patches = append(b.Patches, &DynamicPatch{
			Addr:     s.At,
			Source:   stub,
			Code:     bodies[i],
			CodeAddr: addr,
			Resume:   s.At + stubResume,
		})
		addr += foreign.Align(uint64(len(bodies[i])), codeAlign)
	}
	return nil
}

// Free releases the region. The stubs jumping into it must already be
// disabled.
func (b *Block) Free(mem foreign.Memory) error {
	return mem.MemFree(b.Region)
}
