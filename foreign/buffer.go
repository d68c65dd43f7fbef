package foreign

import (
	"maps"
	"slices"
	"sync"
	"unsafe"
)

const (
	bufferAllocBase = 0x10000000
	bufferBindBase  = 0x20000000
)

type page struct {
	data []byte
	prot MemProt
}

type binding struct {
	ptr  unsafe.Pointer
	size uint64
}

// Buffer is a sparse, page-granular foreign address space kept in host
// memory. Nothing in it is ever executed; it backs tests and offline tools
// that need to observe exactly which bytes a patch or trampoline produces.
type Buffer struct {
	mu        sync.Mutex
	pageSize  uint64
	pages     map[uint64]*page
	binds     map[uint64]binding
	allocs    map[uint64]uint64
	allocAddr uint64
	bindAddr  uint64
}

var _ Memory = (*Buffer)(nil)

func NewBuffer(pageSize uint64) *Buffer {
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		pageSize = 0x1000
	}
	return &Buffer{
		pageSize:  pageSize,
		pages:     make(map[uint64]*page),
		binds:     make(map[uint64]binding),
		allocs:    make(map[uint64]uint64),
		allocAddr: bufferAllocBase,
		bindAddr:  bufferBindBase,
	}
}

func (b *Buffer) PageSize() uint64 {
	return b.pageSize
}

// Map backs [addr, addr+size) with zeroed pages. Already mapped pages keep
// their content and only take the new protection.
func (b *Buffer) Map(addr, size uint64, prot MemProt) error {
	if size == 0 {
		return ErrArgumentInvalid
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapLocked(addr, size, prot)
	return nil
}

func (b *Buffer) mapLocked(addr, size uint64, prot MemProt) {
	start := addr &^ (b.pageSize - 1)
	end := Align(addr+size, b.pageSize)
	for base := start; base < end; base += b.pageSize {
		if p, ok := b.pages[base]; ok {
			p.prot = prot
			continue
		}
		b.pages[base] = &page{data: make([]byte, b.pageSize), prot: prot}
	}
}

// Protection returns the protection of the page holding addr.
func (b *Buffer) Protection(addr uint64) (MemProt, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pages[addr&^(b.pageSize-1)]
	if !ok {
		return MEM_PROT_NONE, false
	}
	return p.prot, true
}

// Allocations lists the regions handed out by MemAlloc and not yet freed.
func (b *Buffer) Allocations() []MemRegion {
	b.mu.Lock()
	defer b.mu.Unlock()
	regions := make([]MemRegion, 0, len(b.allocs))
	for _, addr := range slices.Sorted(maps.Keys(b.allocs)) {
		prot := MEM_PROT_NONE
		if p, ok := b.pages[addr]; ok {
			prot = p.prot
		}
		regions = append(regions, MemRegion{Addr: addr, Size: b.allocs[addr], Prot: prot})
	}
	return regions
}

// Bindings returns the number of live MemBind windows.
func (b *Buffer) Bindings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.binds)
}

func (b *Buffer) MemRead(addr, size uint64) ([]byte, error) {
	data := make([]byte, size)
	if size == 0 {
		return data, nil
	}
	return data, b.MemReadPtr(addr, size, unsafe.Pointer(unsafe.SliceData(data)))
}

func (b *Buffer) MemWrite(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return b.MemWritePtr(addr, uint64(len(data)), unsafe.Pointer(unsafe.SliceData(data)))
}

func (b *Buffer) MemReadPtr(addr, size uint64, ptr unsafe.Pointer) error {
	if size == 0 {
		return nil
	}
	dst := unsafe.Slice((*byte)(ptr), size)
	return b.access("read", addr, size, MEM_PROT_READ, func(chunk []byte, off uint64) {
		copy(dst[off:], chunk)
	})
}

func (b *Buffer) MemWritePtr(addr, size uint64, ptr unsafe.Pointer) error {
	if size == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(ptr), size)
	return b.access("write", addr, size, MEM_PROT_WRITE, func(chunk []byte, off uint64) {
		copy(chunk, src[off:])
	})
}

func (b *Buffer) access(op string, addr, size uint64, need MemProt, fn func(chunk []byte, off uint64)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for done := uint64(0); done < size; {
		cur := addr + done
		chunk, prot, ok := b.locate(cur)
		if !ok {
			return &AccessError{Op: op, Addr: cur, Size: size - done, Err: ErrAddressNotMapped}
		}
		if prot&need == 0 {
			return &AccessError{Op: op, Addr: cur, Size: size - done, Err: ErrProtection}
		}
		n := min(uint64(len(chunk)), size-done)
		fn(chunk[:n], done)
		done += n
	}
	return nil
}

func (b *Buffer) locate(addr uint64) ([]byte, MemProt, bool) {
	base := addr &^ (b.pageSize - 1)
	if p, ok := b.pages[base]; ok {
		return p.data[addr-base:], p.prot, true
	}
	for start, bind := range b.binds {
		if addr >= start && addr < start+bind.size {
			off := addr - start
			return unsafe.Slice((*byte)(unsafe.Add(bind.ptr, off)), bind.size-off), MEM_PROT_READ | MEM_PROT_WRITE, true
		}
	}
	return nil, MEM_PROT_NONE, false
}

func (b *Buffer) MemProtect(addr, size uint64, prot MemProt) (MemProt, error) {
	if size == 0 {
		return MEM_PROT_NONE, ErrArgumentInvalid
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	start := addr &^ (b.pageSize - 1)
	end := Align(addr+size, b.pageSize)
	for base := start; base < end; base += b.pageSize {
		if _, ok := b.pages[base]; !ok {
			return MEM_PROT_NONE, &AccessError{Op: "protect", Addr: base, Size: size, Err: ErrAddressNotMapped}
		}
	}
	old := b.pages[start].prot
	for base := start; base < end; base += b.pageSize {
		b.pages[base].prot = prot
	}
	return old, nil
}

func (b *Buffer) MemAlloc(size uint64, prot MemProt) (MemRegion, error) {
	if size == 0 {
		return MemRegion{}, ErrArgumentInvalid
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	size = Align(size, b.pageSize)
	addr := b.allocAddr
	b.allocAddr += size
	b.mapLocked(addr, size, prot)
	b.allocs[addr] = size
	return MemRegion{Addr: addr, Size: size, Prot: prot}, nil
}

func (b *Buffer) MemFree(region MemRegion) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	size, ok := b.allocs[region.Addr]
	if !ok {
		return &AccessError{Op: "free", Addr: region.Addr, Size: region.Size, Err: ErrArgumentInvalid}
	}
	delete(b.allocs, region.Addr)
	for base := region.Addr; base < region.Addr+size; base += b.pageSize {
		delete(b.pages, base)
	}
	return nil
}

func (b *Buffer) MemBind(p unsafe.Pointer, size uint64) (uint64, error) {
	if p == nil || size == 0 {
		return 0, ErrArgumentInvalid
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	addr := b.bindAddr
	b.bindAddr += Align(size, 16)
	b.binds[addr] = binding{ptr: p, size: size}
	return addr, nil
}

func (b *Buffer) MemUnbind(addr uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.binds[addr]; !ok {
		return &AccessError{Op: "unbind", Addr: addr, Err: ErrNotBound}
	}
	delete(b.binds, addr)
	return nil
}
