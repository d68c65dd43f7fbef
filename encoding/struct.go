package encoding

import (
	"iter"
	"reflect"
	"unsafe"

	"github.com/modern-go/reflect2"
)

type structData struct {
	handler handler
	offset  int
}

type fieldCodec = func(reflect2.Type, int) (handler, structSize)

func encodeStruct(typ reflect2.Type, bs int) (handler, structSize) {
	return codecStruct(typ, bs, encode, func(stream Stream, ptr unsafe.Pointer, size int) error {
		_, err := stream.Write(unsafe.Slice((*byte)(ptr), size))
		return err
	})
}

func decodeStruct(typ reflect2.Type, bs int) (handler, structSize) {
	return codecStruct(typ, bs, decode, func(stream Stream, ptr unsafe.Pointer, size int) error {
		_, err := stream.Read(unsafe.Slice((*byte)(ptr), size))
		return err
	})
}

// codecStruct copies a struct in one block when its Go layout already equals
// the foreign layout, and falls back to field-by-field handling otherwise.
func codecStruct(typ reflect2.Type, bs int, codec fieldCodec, raw func(Stream, unsafe.Pointer, int) error) (handler, structSize) {
	t := typ.Type1()
	size := make(structSize, 0, t.NumField())
	var (
		offset     uintptr
		needCustom bool
	)
	for field := range rangeField(t) {
		if field.Tag.Get("encoding") == "ignore" {
			needCustom = true
			break
		}
		if needCustom = checkCustom(field.Type, bs); needCustom {
			break
		} else if s := field.Offset - offset; s != 0 {
			size = append(size, int(s))
		}
		offset = field.Offset
	}
	if !needCustom {
		size = append(size, int(t.Size()-offset))
		totalSize := size.Size()
		return func(stream Stream, ptr unsafe.Pointer) error {
			return raw(stream, ptr, totalSize)
		}, size
	}
	size = size[:0]
	fields := make([]*structData, 0, t.NumField())
	for field := range rangeField(t) {
		if field.Tag.Get("encoding") == "ignore" {
			continue
		}
		marshal, fieldSize := codecFieldAlign(reflect2.Type2(field.Type), bs, size.Size(), codec)
		size = size.Add(fieldSize)
		fields = append(fields, &structData{marshal, int(field.Offset)})
	}
	var maxSize int
	for _, s := range size {
		maxSize = max(maxSize, s)
	}
	totalSize := size.Size()
	pad := align(totalSize, maxSize) - totalSize
	if pad > 0 {
		size = append(size, pad)
	}
	return func(stream Stream, ptr unsafe.Pointer) error {
		for _, data := range fields {
			err := data.handler(stream, unsafe.Add(ptr, data.offset))
			if err != nil {
				return err
			}
		}
		if pad > 0 {
			return stream.Skip(pad)
		}
		return nil
	}, size
}

func codecFieldAlign(typ reflect2.Type, bs, offset int, codec fieldCodec) (handler, structSize) {
	marshal, size := codec(typ, bs)
	if len(size) == 0 {
		return marshal, size
	}
	addr := align(offset, size[0])
	if addr == offset {
		return marshal, size
	}
	pad := addr - offset
	return func(stream Stream, ptr unsafe.Pointer) error {
		err := stream.Skip(pad)
		if err != nil {
			return err
		}
		return marshal(stream, ptr)
	}, append(structSize{pad}, size...)
}

func rangeField(typ reflect.Type) iter.Seq[reflect.StructField] {
	return func(yield func(reflect.StructField) bool) {
		count := typ.NumField()
		for i := 0; i < count; i++ {
			if !yield(typ.Field(i)) {
				break
			}
		}
	}
}

func checkCustom(typ reflect.Type, bs int) bool {
	switch typ.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Float32, reflect.Float64:
		return false
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return int(typ.Size()) != bs
	case reflect.Array:
		return checkCustom(typ.Elem(), bs)
	case reflect.Struct:
		for field := range rangeField(typ) {
			if field.Tag.Get("encoding") == "ignore" || checkCustom(field.Type, bs) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
