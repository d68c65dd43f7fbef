package foreign

import (
	"unsafe"
)

type Pointer struct {
	mem  Memory
	addr uint64
}

func ToPointer(mem Memory, addr uint64) Pointer {
	return Pointer{mem, addr}
}

func (p Pointer) IsNil() bool {
	return p.addr == 0
}

func (p Pointer) Address() uint64 {
	return p.addr
}

func (p Pointer) Add(offset uint64) Pointer {
	return Pointer{p.mem, p.addr + offset}
}

func (p Pointer) MemRead(size uint64) ([]byte, error) {
	return p.mem.MemRead(p.addr, size)
}

func (p Pointer) MemWrite(data []byte) error {
	return p.mem.MemWrite(p.addr, data)
}

// MemReadPointer follows a 32-bit foreign pointer stored at p.
func (p Pointer) MemReadPointer() (Pointer, error) {
	var addr uint32
	err := p.mem.MemReadPtr(p.addr, PointerSize, unsafe.Pointer(&addr))
	if err != nil {
		return Pointer{}, err
	}
	return Pointer{p.mem, uint64(addr)}, nil
}

func (p Pointer) ReadAt(b []byte, off int64) (n int, err error) {
	return len(b), p.mem.MemReadPtr(p.addr+uint64(off), uint64(len(b)), unsafe.Pointer(unsafe.SliceData(b)))
}

func (p Pointer) WriteAt(b []byte, off int64) (n int, err error) {
	return len(b), p.mem.MemWritePtr(p.addr+uint64(off), uint64(len(b)), unsafe.Pointer(unsafe.SliceData(b)))
}
