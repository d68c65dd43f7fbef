package foreign

import "unsafe"

// PointerSize is the width of a pointer inside the foreign process. Every
// synthesized instruction and every burned-in address is 32 bits wide.
const PointerSize = 4

type MemProt int

const (
	MEM_PROT_NONE MemProt = 0
	MEM_PROT_READ MemProt = 1 << (iota - 1)
	MEM_PROT_WRITE
	MEM_PROT_EXEC

	MEM_PROT_ALL = MEM_PROT_READ | MEM_PROT_WRITE | MEM_PROT_EXEC
)

func (p MemProt) String() string {
	b := [3]byte{'-', '-', '-'}
	if p&MEM_PROT_READ != 0 {
		b[0] = 'r'
	}
	if p&MEM_PROT_WRITE != 0 {
		b[1] = 'w'
	}
	if p&MEM_PROT_EXEC != 0 {
		b[2] = 'x'
	}
	return string(b[:])
}

type MemRegion struct {
	Addr, Size uint64
	Prot       MemProt
}

func (r MemRegion) End() uint64 {
	return r.Addr + r.Size
}

func (r MemRegion) Contains(addr uint64) bool {
	return addr >= r.Addr && addr < r.End()
}

// Memory is the only way the controller touches the foreign address space.
// Every access is unchecked against the foreign code layout: a wrong address
// is not an error here, it is corruption in the foreign process.
type Memory interface {
	PageSize() uint64
	MemRead(addr, size uint64) ([]byte, error)
	MemWrite(addr uint64, data []byte) error
	MemReadPtr(addr, size uint64, ptr unsafe.Pointer) error
	MemWritePtr(addr, size uint64, ptr unsafe.Pointer) error
	// MemProtect changes the protection of the pages covering [addr, addr+size)
	// and returns the protection that was in effect before.
	MemProtect(addr, size uint64, prot MemProt) (MemProt, error)
	MemAlloc(size uint64, prot MemProt) (MemRegion, error)
	MemFree(region MemRegion) error
	// MemBind exposes controller-owned storage to the foreign code and returns
	// the address the foreign code must use to reach it.
	MemBind(p unsafe.Pointer, size uint64) (uint64, error)
	MemUnbind(addr uint64) error
}
