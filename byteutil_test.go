package edict

import (
	"reflect"
	"testing"
)

func TestBytesBuilder_Basics(t *testing.T) {
	var bb bytesBuilder
	bb.Reset(make([]byte, 0, 4))

	off := bb.Grow(3)
	copy(bb.Buf[off:], []byte{1, 2, 3})
	_ = bb.WriteByte(4)
	_, _ = bb.Write([]byte{5, 6})
	_, _ = bb.WriteString("\x07")

	if !reflect.DeepEqual(bb.Buf, []byte{1, 2, 3, 4, 5, 6, 7}) {
		t.Fatalf("bb.Buf = %x, wanted 01020304050607", bb.Buf)
	}
	eq(t, bb.Len(), 7)
	if cap(bb.Buf) != 16 {
		t.Fatalf("cap(bb.Buf) = %d, wanted 16", cap(bb.Buf))
	}
}

func TestEnsureCapacity_doubles(t *testing.T) {
	buf := make([]byte, 3, 32)
	buf[0] = 0xAA
	buf = ensureCapacity(buf, 33)
	eq(t, cap(buf), 64)
	eq(t, len(buf), 3)
	eq(t, buf[0], byte(0xAA))

	buf = ensureCapacity(buf, 300)
	eq(t, cap(buf), 512)

	same := ensureCapacity(buf, 10)
	eq(t, &same[0], &buf[0])
}

func TestByteUtil_AppendRaw(t *testing.T) {
	src := []byte{0xAA, 0xBB, 0xCC}
	buf := appendRaw(nil, src)
	if !reflect.DeepEqual(buf, src) {
		t.Fatalf("appendRaw = %x, wanted %x", buf, src)
	}
	buf = appendRaw(buf, src)
	eq(t, len(buf), 6)
}
