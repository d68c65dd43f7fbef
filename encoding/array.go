package encoding

import (
	"unsafe"

	"github.com/modern-go/reflect2"
)

func encodeArray(typ reflect2.Type, bs int) (handler, structSize) {
	return codecArray(typ, bs, encode, func(stream Stream, ptr unsafe.Pointer, size int) error {
		_, err := stream.Write(unsafe.Slice((*byte)(ptr), size))
		return err
	})
}

func decodeArray(typ reflect2.Type, bs int) (handler, structSize) {
	return codecArray(typ, bs, decode, func(stream Stream, ptr unsafe.Pointer, size int) error {
		_, err := stream.Read(unsafe.Slice((*byte)(ptr), size))
		return err
	})
}

func codecArray(typ reflect2.Type, bs int, codec fieldCodec, raw func(Stream, unsafe.Pointer, int) error) (handler, structSize) {
	t := typ.Type1()
	count := t.Len()
	elemType := t.Elem()
	if !checkCustom(elemType, bs) {
		size := make(structSize, count)
		elemSize := int(elemType.Size())
		for i := range size {
			size[i] = elemSize
		}
		totalSize := size.Size()
		return func(stream Stream, ptr unsafe.Pointer) error {
			return raw(stream, ptr, totalSize)
		}, size
	}
	marshal, elemSize := codec(reflect2.Type2(elemType), bs)
	size := make(structSize, 0, count*len(elemSize))
	for i := 0; i < count; i++ {
		size = size.Add(elemSize)
	}
	hostSize := elemType.Size()
	return func(stream Stream, ptr unsafe.Pointer) error {
		for i := 0; i < count; i++ {
			err := marshal(stream, ptr)
			if err != nil {
				return err
			}
			ptr = unsafe.Add(ptr, hostSize)
		}
		return nil
	}, size
}
