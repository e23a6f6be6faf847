package edict

import (
	"io"
	"reflect"
	"strings"
	"sync"
)

// valueType is the descriptor shared by all cells holding a given Go type.
type valueType struct {
	typ   reflect.Type
	name  string
	size  uintptr
	align uintptr
	codec
	closer bool
}

var valueTypeCache sync.Map // reflect.Type -> *valueType

func typeOf[T any]() *valueType {
	rt := reflect.TypeFor[T]()
	if v, ok := valueTypeCache.Load(rt); ok {
		return v.(*valueType)
	}
	vt := newValueType[T](rt)
	actual, _ := valueTypeCache.LoadOrStore(rt, vt)
	return actual.(*valueType)
}

func newValueType[T any](rt reflect.Type) *valueType {
	var zero *T
	_, closer := any(zero).(io.Closer)
	return &valueType{
		typ:    rt,
		name:   rt.String(),
		size:   rt.Size(),
		align:  uintptr(rt.Align()),
		codec:  codecFor[T](),
		closer: closer,
	}
}

// TypeInfo describes the type stored in a value node.
type TypeInfo struct {
	Name    string
	Type    reflect.Type
	Size    uintptr
	Align   uintptr
	Aliases []reflect.Type
}

// cell holds exactly one value. The type is fixed for the lifetime of the
// cell.
type cell struct {
	vt      *valueType
	ptr     any // *T
	aliases []alias
}

// alias lets a cell be fetched as a type other than its own.
type alias struct {
	typ reflect.Type
	ptr any // *A
}

// allocate returns zeroed storage for one T. The Go allocator aligns it for
// T.
func allocate[T any]() *T {
	return new(T)
}

func bind[T any](ptr *T) *cell {
	return &cell{vt: typeOf[T](), ptr: ptr}
}

// get is the checked cast of the stored value to *T.
func get[T any](c *cell) (*T, error) {
	if p, ok := c.ptr.(*T); ok {
		return p, nil
	}
	if len(c.aliases) > 0 {
		rt := reflect.TypeFor[T]()
		for _, a := range c.aliases {
			if a.typ == rt {
				return a.ptr.(*T), nil
			}
		}
	}
	return nil, typeErrf(reflect.TypeFor[T]().String(), c.vt.name, "stored type mismatch")
}

// AliasOf returns the type identity to pass to InsertAliased.
func AliasOf[A any]() reflect.Type {
	return reflect.TypeFor[A]()
}

// addAlias registers at as an additional identity of the cell. at must be
// either a struct type embedded (possibly indirectly) into the stored type,
// or an interface implemented by a pointer to the stored type.
func (c *cell) addAlias(at reflect.Type) error {
	rt := c.vt.typ
	if at == rt {
		return nil
	}
	v := reflect.ValueOf(c.ptr)
	switch {
	case at.Kind() == reflect.Interface:
		if !v.Type().Implements(at) {
			return typeErrf(at.String(), c.vt.name, "*%s does not implement %v", c.vt.name, at)
		}
		ip := reflect.New(at)
		ip.Elem().Set(v)
		c.aliases = append(c.aliases, alias{at, ip.Interface()})
		return nil

	case at.Kind() == reflect.Struct && rt.Kind() == reflect.Struct:
		index := findEmbedded(rt, at)
		if index == nil {
			return typeErrf(at.String(), c.vt.name, "%v is not embedded in %s", at, c.vt.name)
		}
		field := v.Elem().FieldByIndex(index)
		c.aliases = append(c.aliases, alias{at, field.Addr().Interface()})
		return nil

	default:
		return typeErrf(at.String(), c.vt.name, "alias must be an embedded struct or an interface")
	}
}

// findEmbedded returns the field index path of the embedded struct of type
// target, searching through embedded non-pointer structs.
func findEmbedded(st, target reflect.Type) []int {
	for i := range st.NumField() {
		f := st.Field(i)
		if !f.Anonymous || f.Type.Kind() != reflect.Struct {
			continue
		}
		if f.Type == target {
			return []int{i}
		}
		if sub := findEmbedded(f.Type, target); sub != nil {
			return append([]int{i}, sub...)
		}
	}
	return nil
}

func (c *cell) info() TypeInfo {
	ti := TypeInfo{
		Name:  c.vt.name,
		Type:  c.vt.typ,
		Size:  c.vt.size,
		Align: c.vt.align,
	}
	for _, a := range c.aliases {
		ti.Aliases = append(ti.Aliases, a.typ)
	}
	return ti
}

func (c *cell) write(w *Writer) {
	c.vt.write(w, c.ptr)
}

func (c *cell) read(n *Node) error {
	return c.vt.read(n, c.ptr)
}

func (c *cell) text(buf *strings.Builder) {
	c.vt.text(buf, c.ptr)
}

// close closes the value if it is an io.Closer. Failures are reported, never
// returned.
func (c *cell) close(e *env, key string) {
	if c.vt.closer {
		if err := c.ptr.(io.Closer).Close(); err != nil {
			e.report(Event{Kind: EventCloseFailed, Key: key, Type: c.vt.name, Err: err})
		}
	}
}

// destroy closes the value and drops the storage.
func (c *cell) destroy(e *env, key string) {
	c.close(e, key)
	c.ptr = nil
	c.aliases = nil
}

