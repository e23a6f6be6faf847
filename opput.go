package edict

import (
	"reflect"
)

// Insert stores a copy of v at key and returns a pointer to the stored value.
//
// If key already holds a value, Insert keeps it, reports
// EventInsertConflict and returns the existing value; it panics with
// *TypeError if that value is not a T, or if d itself holds a value.
func Insert[T any](d *Dictionary, key string, v T) *T {
	return must(TryInsert(d, key, v))
}

func TryInsert[T any](d *Dictionary, key string, v T) (*T, error) {
	return insert(d, key, func(p *T) { *p = v }, nil)
}

// InsertNew is Insert for values that must be initialized in place: init
// receives the zeroed storage. init is not called on conflict.
func InsertNew[T any](d *Dictionary, key string, init func(*T)) *T {
	return must(TryInsertNew(d, key, init))
}

func TryInsertNew[T any](d *Dictionary, key string, init func(*T)) (*T, error) {
	return insert(d, key, init, nil)
}

// InsertAliased is TryInsert for a value that can also be fetched as each of
// the alias types. An alias is either a struct type embedded in T, fetched as
// a pointer to the embedded field, or an interface implemented by *T, fetched
// as a pointer to an interface value holding the stored *T. Use AliasOf to
// name alias types.
func InsertAliased[T any](d *Dictionary, key string, v T, aliases ...reflect.Type) (*T, error) {
	return insert(d, key, func(p *T) { *p = v }, aliases)
}

func insert[T any](d *Dictionary, key string, init func(*T), aliases []reflect.Type) (*T, error) {
	if d.value != nil {
		return nil, typeErrf("map", d.value.vt.name, "cannot insert key %q into a value", key)
	}
	if ch := d.children[key]; ch != nil && !ch.IsEmpty() {
		d.environment().report(Event{Kind: EventInsertConflict, Key: key, Type: ch.kindName()})
		p, err := TryAs[T](ch)
		if err != nil {
			return nil, atKey(err, key)
		}
		return p, nil
	}

	p := allocate[T]()
	if init != nil {
		init(p)
	}
	c := bind(p)
	for _, at := range aliases {
		if err := c.addAlias(at); err != nil {
			return nil, atKey(err, key)
		}
	}
	d.ensureChild(key).value = c
	return p, nil
}

// Assign stores v in d itself. A map node drops its children first; a value
// node must already hold a T and is overwritten in place. An io.Closer value
// being replaced is closed first, unless it is only overwritten through an
// alias.
func Assign[T any](d *Dictionary, v T) (*T, error) {
	return assign(d, "", v)
}

func assign[T any](d *Dictionary, key string, v T) (*T, error) {
	if c := d.value; c != nil {
		p, err := get[T](c)
		if err != nil {
			return nil, err
		}
		if p == c.ptr {
			c.close(d.environment(), key)
		}
		*p = v
		return p, nil
	}
	if len(d.children) > 0 {
		d.Clear()
	}
	p := allocate[T]()
	*p = v
	d.value = bind(p)
	return p, nil
}

// Set assigns v to the child at key, creating it if needed.
func Set[T any](d *Dictionary, key string, v T) (*T, error) {
	ch, err := d.TryChild(key)
	if err != nil {
		return nil, err
	}
	p, err := assign(ch, key, v)
	if err != nil {
		return nil, atKey(err, key)
	}
	return p, nil
}
