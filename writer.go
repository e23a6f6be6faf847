package edict

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var errWriterFinished = errors.New("edict: write after Finish")

// Writer emits MessagePack into a growable byte buffer.
//
// Errors are sticky: the first failure is remembered, later writes are
// ignored, and Finish reports it. Containers must be balanced: every StartMap
// and StartArray is followed by exactly the announced number of elements and a
// matching FinishMap or FinishArray.
type Writer struct {
	bb    bytesBuilder
	enc   *msgpack.Encoder
	stack []openContainer
	err   error
}

type openContainer struct {
	isMap bool
	left  int
}

// NewWriter returns a writer that reuses the storage of buf. The buffer is
// grown (at least doubled) whenever the message does not fit.
func NewWriter(buf []byte) *Writer {
	w := &Writer{}
	w.Reset(buf)
	return w
}

// Reset prepares w to write a new message into buf.
func (w *Writer) Reset(buf []byte) {
	if cap(buf) == 0 {
		buf = make([]byte, 0, initialBufferSize)
	}
	w.bb.Reset(buf)
	if w.enc == nil {
		w.enc = msgpack.GetEncoder()
	}
	w.enc.ResetDict(&w.bb, nil)
	w.stack = w.stack[:0]
	w.err = nil
}

// Err returns the first error encountered so far.
func (w *Writer) Err() error {
	return w.err
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.bb.Len()
}

func (w *Writer) fail(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// element accounts for one value written into the innermost open container.
func (w *Writer) element() bool {
	if w.err != nil {
		return false
	}
	if w.enc == nil {
		w.fail(errWriterFinished)
		return false
	}
	if n := len(w.stack); n > 0 {
		top := &w.stack[n-1]
		if top.left == 0 {
			if top.isMap {
				w.fail(fmt.Errorf("edict: too many elements written into map"))
			} else {
				w.fail(fmt.Errorf("edict: too many elements written into array"))
			}
			return false
		}
		top.left--
	}
	return true
}

func (w *Writer) WriteNil() {
	if w.element() {
		w.fail(w.enc.EncodeNil())
	}
}

func (w *Writer) WriteBool(v bool) {
	if w.element() {
		w.fail(w.enc.EncodeBool(v))
	}
}

// WriteInt writes v using the smallest encoding that holds it.
func (w *Writer) WriteInt(v int64) {
	if w.element() {
		w.fail(w.enc.EncodeInt(v))
	}
}

// WriteUint writes v using the smallest encoding that holds it.
func (w *Writer) WriteUint(v uint64) {
	if w.element() {
		w.fail(w.enc.EncodeUint(v))
	}
}

func (w *Writer) WriteFloat32(v float32) {
	if w.element() {
		w.fail(w.enc.EncodeFloat32(v))
	}
}

func (w *Writer) WriteFloat64(v float64) {
	if w.element() {
		w.fail(w.enc.EncodeFloat64(v))
	}
}

func (w *Writer) WriteString(v string) {
	if w.element() {
		w.fail(w.enc.EncodeString(v))
	}
}

func (w *Writer) WriteBytes(v []byte) {
	if w.element() {
		w.fail(w.enc.EncodeBytes(v))
	}
}

// WriteFloats writes v as an array of doubles.
func (w *Writer) WriteFloats(v []float64) {
	w.StartArray(len(v))
	for _, f := range v {
		w.WriteFloat64(f)
	}
	w.FinishArray()
}

// WriteStrings writes v as an array of strings.
func (w *Writer) WriteStrings(v []string) {
	w.StartArray(len(v))
	for _, s := range v {
		w.WriteString(s)
	}
	w.FinishArray()
}

// Encode writes v using msgpack's reflection-based encoder. This is how types
// implementing msgpack.CustomEncoder end up on the wire.
func (w *Writer) Encode(v any) {
	if w.element() {
		w.fail(w.enc.Encode(v))
	}
}

func (w *Writer) StartArray(n int) {
	if w.element() {
		w.fail(w.enc.EncodeArrayLen(n))
		w.stack = append(w.stack, openContainer{false, n})
	}
}

func (w *Writer) FinishArray() {
	w.finishContainer(false)
}

// StartMap opens a map of n entries. The map must then receive 2*n elements,
// alternating keys and values.
func (w *Writer) StartMap(n int) {
	if w.element() {
		w.fail(w.enc.EncodeMapLen(n))
		w.stack = append(w.stack, openContainer{true, 2 * n})
	}
}

func (w *Writer) FinishMap() {
	w.finishContainer(true)
}

func (w *Writer) finishContainer(isMap bool) {
	if w.err != nil {
		return
	}
	n := len(w.stack)
	if n == 0 || w.stack[n-1].isMap != isMap {
		w.fail(fmt.Errorf("edict: unbalanced finish of %s", containerName(isMap)))
		return
	}
	if left := w.stack[n-1].left; left != 0 {
		w.fail(fmt.Errorf("edict: %s finished with %d elements missing", containerName(isMap), left))
		return
	}
	w.stack = w.stack[:n-1]
}

func containerName(isMap bool) string {
	if isMap {
		return "map"
	}
	return "array"
}

// Finish completes the message and returns its size in bytes. The size is
// the exact length of the meaningful data, which is usually smaller than the
// capacity of the underlying buffer. No data can be written afterwards.
func (w *Writer) Finish() (int, error) {
	if w.err == nil && len(w.stack) > 0 {
		w.fail(fmt.Errorf("edict: %d containers left open", len(w.stack)))
	}
	if w.enc != nil {
		msgpack.PutEncoder(w.enc)
		w.enc = nil
	}
	if w.err != nil {
		return 0, w.err
	}
	return w.bb.Len(), nil
}

// Bytes returns the data written so far. The slice aliases the writer's
// buffer.
func (w *Writer) Bytes() []byte {
	return w.bb.Buf
}
