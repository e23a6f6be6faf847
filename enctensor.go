package edict

import (
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Tensors travel as flat arrays of doubles. Quaternions are ordered w, x, y,
// z; matrices are flattened row by row.

func tensorCodecFor[T any]() (codec, bool) {
	var zero *T
	switch any(zero).(type) {
	case *r2.Vec:
		return codecOf(writeVec2, readVec2, textVec2), true
	case *r3.Vec:
		return codecOf(writeVec3, readVec3, textVec3), true
	case *quat.Number:
		return codecOf(writeQuat, readQuat, textQuat), true
	case *mat.Dense:
		return codecOf(writeDense, readDense, textDense), true
	case *mat.VecDense:
		return codecOf(writeVecDense, readVecDense, textVecDense), true
	case *[]float64:
		return codecOf(writeFloats, readFloats, textFloats), true
	case *[]string:
		return codecOf(writeStrings, readStrings, textStrings), true
	case *[]mat.VecDense:
		return codecOf(writeVecDenses, readVecDenses, textVecDenses), true
	case *[][]float64:
		return codecOf(writeFloatss, readFloatss, textFloatss), true
	default:
		return codec{}, false
	}
}

// checkNumericArray verifies that n is an array of numbers. A negative length
// accepts any length.
func checkNumericArray(n *Node, name string, length int) error {
	if n.Type() != NodeArray {
		return typeErrf(name, n.Type().String(), "expecting array")
	}
	if length >= 0 && n.Len() != length {
		return typeErrf(name, "array", "expecting %d elements, got %d", length, n.Len())
	}
	for i := range n.Len() {
		if el := n.At(i); !el.Type().IsNumber() {
			return typeErrf(name, el.Type().String(), "element %d is not a number", i)
		}
	}
	return nil
}

func writeComponents(w *Writer, comps ...float64) {
	w.WriteFloats(comps)
}

func textComponents(buf *strings.Builder, comps ...float64) {
	buf.WriteByte('[')
	for i, f := range comps {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(formatFloat(f, 64))
	}
	buf.WriteByte(']')
}

func writeVec2(w *Writer, v *r2.Vec) {
	writeComponents(w, v.X, v.Y)
}

func readVec2(n *Node, v *r2.Vec) error {
	if err := checkNumericArray(n, "r2.Vec", 2); err != nil {
		return err
	}
	*v = r2.Vec{X: n.At(0).Float(), Y: n.At(1).Float()}
	return nil
}

func textVec2(buf *strings.Builder, v *r2.Vec) {
	textComponents(buf, v.X, v.Y)
}

func writeVec3(w *Writer, v *r3.Vec) {
	writeComponents(w, v.X, v.Y, v.Z)
}

func readVec3(n *Node, v *r3.Vec) error {
	if err := checkNumericArray(n, "r3.Vec", 3); err != nil {
		return err
	}
	*v = r3.Vec{X: n.At(0).Float(), Y: n.At(1).Float(), Z: n.At(2).Float()}
	return nil
}

func textVec3(buf *strings.Builder, v *r3.Vec) {
	textComponents(buf, v.X, v.Y, v.Z)
}

func writeQuat(w *Writer, q *quat.Number) {
	writeComponents(w, q.Real, q.Imag, q.Jmag, q.Kmag)
}

func readQuat(n *Node, q *quat.Number) error {
	if err := checkNumericArray(n, "quat.Number", 4); err != nil {
		return err
	}
	*q = quat.Number{Real: n.At(0).Float(), Imag: n.At(1).Float(), Jmag: n.At(2).Float(), Kmag: n.At(3).Float()}
	return nil
}

func textQuat(buf *strings.Builder, q *quat.Number) {
	textComponents(buf, q.Real, q.Imag, q.Jmag, q.Kmag)
}

// matrixSide is the dimension of the square matrices inferred from the wire.
const matrixSide = 3

func writeDense(w *Writer, m *mat.Dense) {
	if m.IsEmpty() {
		w.StartArray(0)
		w.FinishArray()
		return
	}
	r, c := m.Dims()
	w.StartArray(r * c)
	for i := range r {
		for j := range c {
			w.WriteFloat64(m.At(i, j))
		}
	}
	w.FinishArray()
}

// readDense fills an already shaped matrix, or shapes an empty one as 3x3.
func readDense(n *Node, m *mat.Dense) error {
	r, c := matrixSide, matrixSide
	if !m.IsEmpty() {
		r, c = m.Dims()
	}
	if err := checkNumericArray(n, "mat.Dense", r*c); err != nil {
		return err
	}
	if m.IsEmpty() {
		m.ReuseAs(r, c)
	}
	for i := range r {
		for j := range c {
			m.Set(i, j, n.At(i*c+j).Float())
		}
	}
	return nil
}

func textDense(buf *strings.Builder, m *mat.Dense) {
	buf.WriteByte('[')
	if !m.IsEmpty() {
		r, _ := m.Dims()
		for i := range r {
			if i > 0 {
				buf.WriteString(", ")
			}
			textComponents(buf, m.RawRowView(i)...)
		}
	}
	buf.WriteByte(']')
}

func vecComponents(v *mat.VecDense) []float64 {
	if v.IsEmpty() {
		return nil
	}
	comps := make([]float64, v.Len())
	for i := range comps {
		comps[i] = v.AtVec(i)
	}
	return comps
}

func writeVecDense(w *Writer, v *mat.VecDense) {
	if v.IsEmpty() {
		w.StartArray(0)
		w.FinishArray()
		return
	}
	w.StartArray(v.Len())
	for i := range v.Len() {
		w.WriteFloat64(v.AtVec(i))
	}
	w.FinishArray()
}

// readVecDense adopts the length of the wire array.
func readVecDense(n *Node, v *mat.VecDense) error {
	if err := checkNumericArray(n, "mat.VecDense", -1); err != nil {
		return err
	}
	size := n.Len()
	if v.IsEmpty() || v.Len() != size {
		v.Reset()
		if size == 0 {
			return nil
		}
		v.ReuseAsVec(size)
	}
	for i := range size {
		v.SetVec(i, n.At(i).Float())
	}
	return nil
}

func textVecDense(buf *strings.Builder, v *mat.VecDense) {
	textComponents(buf, vecComponents(v)...)
}

func writeFloats(w *Writer, v *[]float64) {
	w.WriteFloats(*v)
}

func readFloats(n *Node, v *[]float64) error {
	if err := checkNumericArray(n, "[]float64", -1); err != nil {
		return err
	}
	s := (*v)[:0]
	for i := range n.Len() {
		s = append(s, n.At(i).Float())
	}
	*v = s
	return nil
}

func textFloats(buf *strings.Builder, v *[]float64) {
	textComponents(buf, *v...)
}

func writeStrings(w *Writer, v *[]string) {
	w.WriteStrings(*v)
}

func readStrings(n *Node, v *[]string) error {
	if n.Type() != NodeArray {
		return typeErrf("[]string", n.Type().String(), "expecting array")
	}
	for i := range n.Len() {
		if el := n.At(i); el.Type() != NodeStr {
			return typeErrf("[]string", el.Type().String(), "element %d is not a string", i)
		}
	}
	s := (*v)[:0]
	for i := range n.Len() {
		s = append(s, n.At(i).Str())
	}
	*v = s
	return nil
}

func textStrings(buf *strings.Builder, v *[]string) {
	buf.WriteByte('[')
	for i, s := range *v {
		if i > 0 {
			buf.WriteString(", ")
		}
		textString(buf, &s)
	}
	buf.WriteByte(']')
}

func writeVecDenses(w *Writer, v *[]mat.VecDense) {
	w.StartArray(len(*v))
	for i := range *v {
		writeVecDense(w, &(*v)[i])
	}
	w.FinishArray()
}

func readVecDenses(n *Node, v *[]mat.VecDense) error {
	if n.Type() != NodeArray {
		return typeErrf("[]mat.VecDense", n.Type().String(), "expecting array")
	}
	s := make([]mat.VecDense, n.Len())
	for i := range s {
		if err := readVecDense(n.At(i), &s[i]); err != nil {
			return err
		}
	}
	*v = s
	return nil
}

func textVecDenses(buf *strings.Builder, v *[]mat.VecDense) {
	buf.WriteByte('[')
	for i := range *v {
		if i > 0 {
			buf.WriteString(", ")
		}
		textVecDense(buf, &(*v)[i])
	}
	buf.WriteByte(']')
}

func writeFloatss(w *Writer, v *[][]float64) {
	w.StartArray(len(*v))
	for _, row := range *v {
		w.WriteFloats(row)
	}
	w.FinishArray()
}

func readFloatss(n *Node, v *[][]float64) error {
	if n.Type() != NodeArray {
		return typeErrf("[][]float64", n.Type().String(), "expecting array")
	}
	s := make([][]float64, n.Len())
	for i := range s {
		if err := readFloats(n.At(i), &s[i]); err != nil {
			return err
		}
	}
	*v = s
	return nil
}

func textFloatss(buf *strings.Builder, v *[][]float64) {
	buf.WriteByte('[')
	for i, row := range *v {
		if i > 0 {
			buf.WriteString(", ")
		}
		textComponents(buf, row...)
	}
	buf.WriteByte(']')
}
