package patch

import (
	"slices"
)

// Patch is a reversible overwrite of foreign code. The original bytes are
// captured once at install time and never change afterwards.
type Patch struct {
	addr        uint64
	original    []byte
	replacement []byte
	enabled     bool
}

func (p *Patch) Addr() uint64 {
	return p.addr
}

func (p *Patch) Len() int {
	return len(p.replacement)
}

func (p *Patch) Original() []byte {
	return slices.Clone(p.original)
}

func (p *Patch) Replacement() []byte {
	return slices.Clone(p.replacement)
}

func (p *Patch) Enabled() bool {
	return p.enabled
}

func (p *Patch) overlaps(addr uint64, size int) bool {
	return addr < p.addr+uint64(len(p.replacement)) && p.addr < addr+uint64(size)
}
