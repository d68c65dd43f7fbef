package foreign

import (
	"unsafe"

	"github.com/wnxd/battlecam/encoding"
)

type pointerStream struct {
	ptr  Pointer
	size int
}

// NewStream returns an encoding stream that reads and writes the foreign
// address space sequentially, starting at addr.
func NewStream(mem Memory, addr uint64) encoding.Stream {
	return &pointerStream{ToPointer(mem, addr), PointerSize}
}

func (ps *pointerStream) BlockSize() int {
	return ps.size
}

func (ps *pointerStream) Offset() uint64 {
	return ps.ptr.Address()
}

func (ps *pointerStream) Skip(n int) error {
	ps.ptr = ps.ptr.Add(uint64(n))
	return nil
}

func (ps *pointerStream) Read(b []byte) (int, error) {
	n, err := ps.ptr.ReadAt(b, 0)
	if err == nil {
		ps.Skip(n)
	}
	return n, err
}

func (ps *pointerStream) ReadFloat() (float32, error) {
	var f float32
	_, err := ps.Read(toPtrRaw(&f))
	return f, err
}

func (ps *pointerStream) Write(b []byte) (int, error) {
	n, err := ps.ptr.WriteAt(b, 0)
	if err == nil {
		ps.Skip(n)
	}
	return n, err
}

func (ps *pointerStream) WriteFloat(f float32) error {
	_, err := ps.Write(toPtrRaw(&f))
	return err
}

func toPtrRaw[S any](ptr *S) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), unsafe.Sizeof(*ptr))
}
