package encoding

// Stream is a sequential view over a foreign address space. BlockSize is the
// foreign pointer width used for platform-sized integers.
type Stream interface {
	BlockSize() int
	Offset() uint64
	Skip(int) error
	Read([]byte) (int, error)
	ReadFloat() (float32, error)
	Write([]byte) (int, error)
	WriteFloat(float32) error
}
