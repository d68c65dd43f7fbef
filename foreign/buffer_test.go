package foreign

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/retroenv/retrogolib/assert"
)

func TestBufferReadWrite(t *testing.T) {
	buf := NewBuffer(0x1000)
	assert.NoError(t, buf.Map(0x400FF0, 0x20, MEM_PROT_READ|MEM_PROT_WRITE))

	// spans two pages
	assert.NoError(t, buf.MemWrite(0x400FFC, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	data, err := buf.MemRead(0x400FFC, 8)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data)

	_, err = buf.MemRead(0x500000, 4)
	assert.True(t, errors.Is(err, ErrAddressNotMapped))
}

func TestBufferProtection(t *testing.T) {
	buf := NewBuffer(0x1000)
	assert.NoError(t, buf.Map(0x401000, 0x10, MEM_PROT_READ|MEM_PROT_EXEC))

	err := buf.MemWrite(0x401000, []byte{0x90})
	assert.True(t, errors.Is(err, ErrProtection))
	var accessErr *AccessError
	assert.True(t, errors.As(err, &accessErr))
	assert.Equal(t, uint64(0x401000), accessErr.Addr)

	old, err := buf.MemProtect(0x401000, 1, MEM_PROT_ALL)
	assert.NoError(t, err)
	assert.Equal(t, MEM_PROT_READ|MEM_PROT_EXEC, old)
	assert.NoError(t, buf.MemWrite(0x401000, []byte{0x90}))

	prot, ok := buf.Protection(0x401000)
	assert.True(t, ok)
	assert.Equal(t, "rwx", prot.String())
}

func TestBufferAlloc(t *testing.T) {
	buf := NewBuffer(0x1000)
	region, err := buf.MemAlloc(0x10, MEM_PROT_ALL)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x1000), region.Size)
	assert.True(t, Fits32(region.Addr))
	assert.Len(t, buf.Allocations(), 1)

	assert.NoError(t, buf.MemFree(region))
	assert.Empty(t, buf.Allocations())
	assert.Error(t, buf.MemFree(region))
}

func TestBufferBind(t *testing.T) {
	buf := NewBuffer(0x1000)
	var cell [2]uint32
	addr, err := buf.MemBind(unsafe.Pointer(&cell), uint64(unsafe.Sizeof(cell)))
	assert.NoError(t, err)
	assert.True(t, Fits32(addr))

	assert.NoError(t, buf.MemWrite(addr+4, []byte{0x78, 0x56, 0x34, 0x12}))
	assert.Equal(t, uint32(0x12345678), cell[1])

	assert.NoError(t, buf.MemUnbind(addr))
	assert.Equal(t, 0, buf.Bindings())
	err = buf.MemUnbind(addr)
	assert.True(t, errors.Is(err, ErrNotBound))
}

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(0x1000), Align(uint64(1), 0x1000))
	assert.Equal(t, uint64(0x1000), Align(uint64(0x1000), 0x1000))
	assert.Equal(t, 16, Align(9, 8))
}
