package edict

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	"github.com/vmihailenco/msgpack/v5"
)

// codec maps one concrete Go type to and from the wire. All three functions
// receive a *T boxed into any.
type codec struct {
	write func(w *Writer, ptr any)
	read  func(n *Node, ptr any) error
	text  func(buf *strings.Builder, ptr any)
}

func codecOf[T any](write func(*Writer, *T), read func(*Node, *T) error, text func(*strings.Builder, *T)) codec {
	return codec{
		write: func(w *Writer, ptr any) { write(w, ptr.(*T)) },
		read:  func(n *Node, ptr any) error { return read(n, ptr.(*T)) },
		text:  func(buf *strings.Builder, ptr any) { text(buf, ptr.(*T)) },
	}
}

type signedInt interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type unsignedInt interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// codecFor picks the codec of T. Known types come first, then the msgpack
// custom codec interfaces, then the reflect kind of named scalar types.
func codecFor[T any]() codec {
	var zero *T
	switch any(zero).(type) {
	case *bool:
		return codecOf(writeBool, readBool, textBool)
	case *int:
		return intCodec[int]()
	case *int8:
		return intCodec[int8]()
	case *int16:
		return intCodec[int16]()
	case *int32:
		return intCodec[int32]()
	case *int64:
		return intCodec[int64]()
	case *uint:
		return uintCodec[uint]()
	case *uint8:
		return uintCodec[uint8]()
	case *uint16:
		return uintCodec[uint16]()
	case *uint32:
		return uintCodec[uint32]()
	case *uint64:
		return uintCodec[uint64]()
	case *float32:
		return codecOf(writeFloat32, readFloat32, textFloat32)
	case *float64:
		return codecOf(writeFloat64, readFloat64, textFloat64)
	case *string:
		return codecOf(writeString, readString, textString)
	}
	if c, ok := tensorCodecFor[T](); ok {
		return c
	}
	if c, ok := customCodecFor[T](); ok {
		return c
	}
	return kindCodecFor(reflect.TypeFor[T]())
}

func writeBool(w *Writer, v *bool) {
	w.WriteBool(*v)
}

func readBool(n *Node, v *bool) error {
	if n.Type() != NodeBool {
		return typeErrf("bool", n.Type().String(), "expecting bool")
	}
	*v = n.Bool()
	return nil
}

func textBool(buf *strings.Builder, v *bool) {
	buf.WriteString(strconv.FormatBool(*v))
}

func intCodec[T signedInt]() codec {
	bits := int(unsafe.Sizeof(T(0))) * 8
	name := reflect.TypeFor[T]().String()
	return codecOf(
		func(w *Writer, v *T) { w.WriteInt(int64(*v)) },
		func(n *Node, v *T) error {
			x, err := readInt(n, bits, name)
			if err != nil {
				return err
			}
			*v = T(x)
			return nil
		},
		func(buf *strings.Builder, v *T) { buf.WriteString(strconv.FormatInt(int64(*v), 10)) },
	)
}

func uintCodec[T unsignedInt]() codec {
	bits := int(unsafe.Sizeof(T(0))) * 8
	name := reflect.TypeFor[T]().String()
	return codecOf(
		func(w *Writer, v *T) { w.WriteUint(uint64(*v)) },
		func(n *Node, v *T) error {
			x, err := readUint(n, bits, name)
			if err != nil {
				return err
			}
			*v = T(x)
			return nil
		},
		func(buf *strings.Builder, v *T) { buf.WriteString(strconv.FormatUint(uint64(*v), 10)) },
	)
}

// readInt reads a wire integer that must fit into a signed integer of the
// given width.
func readInt(n *Node, bits int, name string) (int64, error) {
	switch n.Type() {
	case NodeInt:
		x := n.Int()
		if bits < 64 && (x < -(1<<(bits-1)) || x >= 1<<(bits-1)) {
			return 0, typeErrf(name, "int", "value %d overflows %s", x, name)
		}
		return x, nil
	case NodeUint:
		x := n.Uint()
		if x > uint64(1)<<(bits-1)-1 {
			return 0, typeErrf(name, "uint", "value %d overflows %s", x, name)
		}
		return int64(x), nil
	default:
		return 0, typeErrf(name, n.Type().String(), "expecting %s", name)
	}
}

// readUint reads a wire integer that must fit into an unsigned integer of the
// given width.
func readUint(n *Node, bits int, name string) (uint64, error) {
	switch n.Type() {
	case NodeUint:
		x := n.Uint()
		if bits < 64 && x >= uint64(1)<<bits {
			return 0, typeErrf(name, "uint", "value %d overflows %s", x, name)
		}
		return x, nil
	case NodeInt:
		x := n.Int()
		if x < 0 || (bits < 64 && uint64(x) >= uint64(1)<<bits) {
			return 0, typeErrf(name, "int", "value %d overflows %s", x, name)
		}
		return uint64(x), nil
	default:
		return 0, typeErrf(name, n.Type().String(), "expecting %s", name)
	}
}

// readNumber accepts any numeric wire value.
func readNumber(n *Node, name string) (float64, error) {
	if !n.Type().IsNumber() {
		return 0, typeErrf(name, n.Type().String(), "expecting %s", name)
	}
	return n.Float(), nil
}

func writeFloat32(w *Writer, v *float32) {
	w.WriteFloat32(*v)
}

func readFloat32(n *Node, v *float32) error {
	x, err := readNumber(n, "float32")
	if err != nil {
		return err
	}
	*v = float32(x)
	return nil
}

func textFloat32(buf *strings.Builder, v *float32) {
	buf.WriteString(formatFloat(float64(*v), 32))
}

func writeFloat64(w *Writer, v *float64) {
	w.WriteFloat64(*v)
}

func readFloat64(n *Node, v *float64) error {
	x, err := readNumber(n, "float64")
	if err != nil {
		return err
	}
	*v = x
	return nil
}

func textFloat64(buf *strings.Builder, v *float64) {
	buf.WriteString(formatFloat(*v, 64))
}

// formatFloat renders NaN and infinities the way JavaScript literals do,
// everything else in the shortest decimal form.
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return strconv.FormatFloat(f, 'g', -1, bitSize)
	}
}

func writeString(w *Writer, v *string) {
	w.WriteString(*v)
}

func readString(n *Node, v *string) error {
	if n.Type() != NodeStr {
		return typeErrf("string", n.Type().String(), "expecting string")
	}
	*v = n.Str()
	return nil
}

func textString(buf *strings.Builder, v *string) {
	quote(buf, *v)
}

// customCodecFor handles types that know how to encode themselves.
func customCodecFor[T any]() (codec, bool) {
	var zero *T
	_, enc := any(zero).(msgpack.CustomEncoder)
	if !enc {
		_, enc = any(zero).(msgpack.Marshaler)
	}
	_, dec := any(zero).(msgpack.CustomDecoder)
	if !dec {
		_, dec = any(zero).(msgpack.Unmarshaler)
	}
	if !enc && !dec {
		return codec{}, false
	}
	name := reflect.TypeFor[T]().String()
	c := unknownCodec(name)
	if enc {
		c.write = func(w *Writer, ptr any) { w.Encode(ptr) }
	}
	if dec {
		c.read = func(n *Node, ptr any) error {
			if err := msgpack.Unmarshal(n.Raw(), ptr); err != nil {
				return &TypeError{Expected: name, Actual: n.Type().String(), Msg: "cannot decode " + name, Err: err}
			}
			return nil
		}
	}
	if _, ok := any(zero).(json.Marshaler); ok {
		c.text = textJSON
	}
	return c, true
}

func textJSON(buf *strings.Builder, ptr any) {
	raw, err := json.Marshal(ptr)
	if err != nil {
		quote(buf, "<error:"+err.Error()+">")
		return
	}
	buf.Write(raw)
}

// kindCodecFor covers named types whose underlying type is a scalar, e.g.
// type Meters float64. Anything else gets the type token codec.
func kindCodecFor(rt reflect.Type) codec {
	name := rt.String()
	bits := rt.Bits
	switch rt.Kind() {
	case reflect.Bool:
		return codec{
			write: func(w *Writer, ptr any) { w.WriteBool(elem(ptr).Bool()) },
			read: func(n *Node, ptr any) error {
				var b bool
				if err := readBool(n, &b); err != nil {
					return err
				}
				elem(ptr).SetBool(b)
				return nil
			},
			text: func(buf *strings.Builder, ptr any) { buf.WriteString(strconv.FormatBool(elem(ptr).Bool())) },
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return codec{
			write: func(w *Writer, ptr any) { w.WriteInt(elem(ptr).Int()) },
			read: func(n *Node, ptr any) error {
				x, err := readInt(n, bits(), name)
				if err != nil {
					return err
				}
				elem(ptr).SetInt(x)
				return nil
			},
			text: func(buf *strings.Builder, ptr any) { buf.WriteString(strconv.FormatInt(elem(ptr).Int(), 10)) },
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return codec{
			write: func(w *Writer, ptr any) { w.WriteUint(elem(ptr).Uint()) },
			read: func(n *Node, ptr any) error {
				x, err := readUint(n, bits(), name)
				if err != nil {
					return err
				}
				elem(ptr).SetUint(x)
				return nil
			},
			text: func(buf *strings.Builder, ptr any) { buf.WriteString(strconv.FormatUint(elem(ptr).Uint(), 10)) },
		}
	case reflect.Float32, reflect.Float64:
		is32 := rt.Kind() == reflect.Float32
		return codec{
			write: func(w *Writer, ptr any) {
				if is32 {
					w.WriteFloat32(float32(elem(ptr).Float()))
				} else {
					w.WriteFloat64(elem(ptr).Float())
				}
			},
			read: func(n *Node, ptr any) error {
				x, err := readNumber(n, name)
				if err != nil {
					return err
				}
				elem(ptr).SetFloat(x)
				return nil
			},
			text: func(buf *strings.Builder, ptr any) { buf.WriteString(formatFloat(elem(ptr).Float(), bits())) },
		}
	case reflect.String:
		return codec{
			write: func(w *Writer, ptr any) { w.WriteString(elem(ptr).String()) },
			read: func(n *Node, ptr any) error {
				var s string
				if err := readString(n, &s); err != nil {
					return err
				}
				elem(ptr).SetString(s)
				return nil
			},
			text: func(buf *strings.Builder, ptr any) { quote(buf, elem(ptr).String()) },
		}
	default:
		c := unknownCodec(name)
		if reflect.PointerTo(rt).Implements(jsonMarshalerType) {
			c.text = textJSON
		}
		return c
	}
}

var jsonMarshalerType = reflect.TypeFor[json.Marshaler]()

func elem(ptr any) reflect.Value {
	return reflect.ValueOf(ptr).Elem()
}

// typeToken is what values of types without a known wire form serialize to.
func typeToken(name string) string {
	return "<typeid:" + name + ">"
}

func unknownCodec(name string) codec {
	token := typeToken(name)
	return codec{
		write: func(w *Writer, ptr any) { w.WriteString(token) },
		read: func(n *Node, ptr any) error {
			return typeErrf(name, n.Type().String(), "no known deserialization for %s", name)
		},
		text: func(buf *strings.Builder, ptr any) { quote(buf, token) },
	}
}
