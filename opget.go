package edict

import (
	"reflect"
)

// Child returns the child at key, creating an empty one if needed. Panics
// with *TypeError if d holds a value.
func (d *Dictionary) Child(key string) *Dictionary {
	return must(d.TryChild(key))
}

func (d *Dictionary) TryChild(key string) (*Dictionary, error) {
	if d.value != nil {
		return nil, typeErrf("map", d.value.vt.name, "cannot look up key %q in a value", key)
	}
	return d.ensureChild(key), nil
}

// ChildPath is Child applied to each key in turn.
func (d *Dictionary) ChildPath(keys ...string) *Dictionary {
	for _, key := range keys {
		d = d.Child(key)
	}
	return d
}

// Lookup returns the existing child at key without creating it.
func (d *Dictionary) Lookup(key string) (*Dictionary, error) {
	if d.value != nil {
		return nil, typeErrf("map", d.value.vt.name, "cannot look up key %q in a value", key)
	}
	ch := d.children[key]
	if ch == nil {
		return nil, keyErrf(key, "")
	}
	return ch, nil
}

// LookupPath is Lookup applied to each key in turn. Errors carry the path
// walked so far.
func (d *Dictionary) LookupPath(keys ...string) (*Dictionary, error) {
	for i, key := range keys {
		ch, err := d.Lookup(key)
		if err != nil {
			for j := i - 1; j >= 0; j-- {
				err = atKey(err, keys[j])
			}
			return nil, err
		}
		d = ch
	}
	return d, nil
}

// Get returns the value stored at key. Panics with *KeyError if key is absent
// and with *TypeError if it does not hold a T.
//
// The returned pointer refers to the stored value; writes through it are
// visible to Serialize.
func Get[T any](d *Dictionary, key string) *T {
	return must(TryGet[T](d, key))
}

func TryGet[T any](d *Dictionary, key string) (*T, error) {
	ch, err := d.Lookup(key)
	if err != nil {
		return nil, err
	}
	p, err := TryAs[T](ch)
	if err != nil {
		return nil, atKey(err, key)
	}
	return p, nil
}

// GetOr returns a copy of the value at key, or def if key is absent. Panics
// with *TypeError if the key holds something other than a T.
func GetOr[T any](d *Dictionary, key string, def T) T {
	return must(TryGetOr(d, key, def))
}

func TryGetOr[T any](d *Dictionary, key string, def T) (T, error) {
	if d.value != nil {
		return def, typeErrf("map", d.value.vt.name, "cannot look up key %q in a value", key)
	}
	ch := d.children[key]
	if ch == nil || ch.IsEmpty() {
		return def, nil
	}
	p, err := TryAs[T](ch)
	if err != nil {
		return def, atKey(err, key)
	}
	return *p, nil
}

// As returns the value held by d itself. Panics with *TypeError if d is not a
// value node or holds a different type.
func As[T any](d *Dictionary) *T {
	return must(TryAs[T](d))
}

func TryAs[T any](d *Dictionary) (*T, error) {
	if d.value == nil {
		return nil, typeErrf(reflect.TypeFor[T]().String(), d.kindName(), "not a value")
	}
	return get[T](d.value)
}
