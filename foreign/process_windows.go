//go:build windows

package foreign

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Process is the address space of the process this module is loaded into.
// Reads and writes are plain memory copies against live foreign memory.
type Process struct {
	pageSize uint64
}

var _ Memory = (*Process)(nil)

func Self() *Process {
	return &Process{pageSize: uint64(os.Getpagesize())}
}

func (p *Process) PageSize() uint64 {
	return p.pageSize
}

func (p *Process) MemRead(addr, size uint64) ([]byte, error) {
	data := make([]byte, size)
	if size == 0 {
		return data, nil
	}
	return data, p.MemReadPtr(addr, size, unsafe.Pointer(unsafe.SliceData(data)))
}

func (p *Process) MemWrite(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return p.MemWritePtr(addr, uint64(len(data)), unsafe.Pointer(unsafe.SliceData(data)))
}

func (p *Process) MemReadPtr(addr, size uint64, ptr unsafe.Pointer) error {
	if addr == 0 {
		return &AccessError{Op: "read", Addr: addr, Size: size, Err: ErrAddressNotMapped}
	}
	copy(unsafe.Slice((*byte)(ptr), size), unsafe.Slice((*byte)(foreignPtr(addr)), size))
	return nil
}

func (p *Process) MemWritePtr(addr, size uint64, ptr unsafe.Pointer) error {
	if addr == 0 {
		return &AccessError{Op: "write", Addr: addr, Size: size, Err: ErrAddressNotMapped}
	}
	copy(unsafe.Slice((*byte)(foreignPtr(addr)), size), unsafe.Slice((*byte)(ptr), size))
	return nil
}

func (p *Process) MemProtect(addr, size uint64, prot MemProt) (MemProt, error) {
	var old uint32
	err := windows.VirtualProtect(uintptr(addr), uintptr(size), toPageFlags(prot), &old)
	if err != nil {
		return MEM_PROT_NONE, &AccessError{Op: "protect", Addr: addr, Size: size, Err: err}
	}
	return fromPageFlags(old), nil
}

func (p *Process) MemAlloc(size uint64, prot MemProt) (MemRegion, error) {
	size = Align(size, p.pageSize)
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, toPageFlags(prot))
	if err != nil {
		return MemRegion{}, &AccessError{Op: "alloc", Size: size, Err: err}
	}
	if !Fits32(uint64(addr) + size) {
		_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
		return MemRegion{}, &AccessError{Op: "alloc", Addr: uint64(addr), Size: size, Err: ErrAddressRange}
	}
	return MemRegion{Addr: uint64(addr), Size: size, Prot: prot}, nil
}

func (p *Process) MemFree(region MemRegion) error {
	if err := windows.VirtualFree(uintptr(region.Addr), 0, windows.MEM_RELEASE); err != nil {
		return &AccessError{Op: "free", Addr: region.Addr, Size: region.Size, Err: err}
	}
	return nil
}

// MemBind hands out the host address itself: controller storage already lives
// inside the foreign process. The caller keeps the storage pinned.
func (p *Process) MemBind(ptr unsafe.Pointer, size uint64) (uint64, error) {
	addr := uint64(uintptr(ptr))
	if ptr == nil || size == 0 {
		return 0, ErrArgumentInvalid
	}
	if !Fits32(addr + size) {
		return 0, &AccessError{Op: "bind", Addr: addr, Size: size, Err: ErrAddressRange}
	}
	return addr, nil
}

func (p *Process) MemUnbind(addr uint64) error {
	return nil
}

func foreignPtr(addr uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(addr))
}

func toPageFlags(prot MemProt) uint32 {
	switch prot {
	case MEM_PROT_READ:
		return windows.PAGE_READONLY
	case MEM_PROT_READ | MEM_PROT_WRITE, MEM_PROT_WRITE:
		return windows.PAGE_READWRITE
	case MEM_PROT_EXEC:
		return windows.PAGE_EXECUTE
	case MEM_PROT_READ | MEM_PROT_EXEC:
		return windows.PAGE_EXECUTE_READ
	case MEM_PROT_ALL, MEM_PROT_WRITE | MEM_PROT_EXEC:
		return windows.PAGE_EXECUTE_READWRITE
	}
	return windows.PAGE_NOACCESS
}

func fromPageFlags(flags uint32) MemProt {
	switch flags &^ (windows.PAGE_GUARD | windows.PAGE_NOCACHE | windows.PAGE_WRITECOMBINE) {
	case windows.PAGE_READONLY:
		return MEM_PROT_READ
	case windows.PAGE_READWRITE, windows.PAGE_WRITECOPY:
		return MEM_PROT_READ | MEM_PROT_WRITE
	case windows.PAGE_EXECUTE:
		return MEM_PROT_EXEC
	case windows.PAGE_EXECUTE_READ:
		return MEM_PROT_READ | MEM_PROT_EXEC
	case windows.PAGE_EXECUTE_READWRITE, windows.PAGE_EXECUTE_WRITECOPY:
		return MEM_PROT_ALL
	}
	return MEM_PROT_NONE
}
