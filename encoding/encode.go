package encoding

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/modern-go/reflect2"
)

type handler = func(Stream, unsafe.Pointer) error

type handlerData struct {
	handler handler
	size    int
}

var (
	encodeProcess sync.Map
	padNull       [8]byte
)

// Size returns the number of foreign bytes val occupies. Pointers are
// measured by their element.
func Size(blockSize int, val any) int {
	typ := reflect2.TypeOf(val)
	if typ == nil {
		return blockSize
	}
	if typ.Kind() == reflect.Pointer {
		typ = reflect2.Type2(typ.Type1().Elem())
	}
	return getMarshalData(typ, blockSize).size
}

// Encode writes val, or the value val points to, to stream using the
// foreign layout.
func Encode(stream Stream, val any) error {
	typ := reflect2.TypeOf(val)
	if typ == nil {
		return ErrNilValue
	}
	ptr := reflect2.PtrOf(val)
	if typ.Kind() == reflect.Pointer {
		if ptr == nil {
			return ErrNilValue
		}
		typ = reflect2.Type2(typ.Type1().Elem())
	}
	return getMarshalData(typ, stream.BlockSize()).handler(stream, ptr)
}

func getMarshalData(typ reflect2.Type, bs int) *handlerData {
	key := [2]uintptr{uintptr(bs), typ.RType()}
	if v, ok := encodeProcess.Load(key); ok {
		return v.(*handlerData)
	}
	marshal, size := encode(typ, bs)
	data := &handlerData{marshal, size.Size()}
	encodeProcess.Store(key, data)
	return data
}

func encode(typ reflect2.Type, bs int) (handler, structSize) {
	switch typ.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Float64:
		size := int(typ.Type1().Size())
		return func(stream Stream, ptr unsafe.Pointer) error {
			_, err := stream.Write(unsafe.Slice((*byte)(ptr), size))
			return err
		}, structSize{size}
	case reflect.Float32:
		return func(stream Stream, ptr unsafe.Pointer) error {
			return stream.WriteFloat(*(*float32)(ptr))
		}, structSize{4}
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		size := int(typ.Type1().Size())
		var pad int
		if size > bs {
			size = bs
		} else if size < bs {
			pad = bs - size
		}
		return func(stream Stream, ptr unsafe.Pointer) error {
			_, err := stream.Write(unsafe.Slice((*byte)(ptr), size))
			if err != nil {
				return err
			} else if pad > 0 {
				_, err = stream.Write(padNull[:pad])
			}
			return err
		}, structSize{bs}
	case reflect.Array:
		return encodeArray(typ, bs)
	case reflect.Struct:
		return encodeStruct(typ, bs)
	}
	return unsupported, structSize{0}
}

func unsupported(Stream, unsafe.Pointer) error {
	return ErrUnsupportedType
}
