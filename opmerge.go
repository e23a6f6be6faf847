package edict

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// UpdateNode writes the values of a parsed message into existing nodes. It
// never creates keys and never changes the kind of a node: value nodes are
// decoded in place after a type check, map nodes recurse into the keys they
// already have and skip the rest.
//
// Updating an empty dictionary does nothing and reports EventUpdateEmpty.
// Errors are *TypeError values whose Path names the failing key.
func (d *Dictionary) UpdateNode(n *Node) error {
	if d.value != nil {
		return d.value.read(n)
	}
	if len(d.children) == 0 {
		d.environment().report(Event{Kind: EventUpdateEmpty})
		return nil
	}
	if n.Type() != NodeMap {
		return typeErrf("map", n.Type().String(), "expecting map")
	}
	for i := range n.Len() {
		key, err := mapKey(n, i)
		if err != nil {
			return err
		}
		ch := d.children[key]
		if ch == nil {
			continue
		}
		if err := ch.UpdateNode(n.ValueAt(i)); err != nil {
			return atKey(err, key)
		}
	}
	return nil
}

// ExtendNode adds the keys of a parsed message that d does not have yet,
// inferring the type of each new value from the wire:
//
//	bool                       bool
//	negative int               int64
//	non-negative int           uint64
//	float32                    float32
//	float64                    float64
//	str                        string
//	array of str               []string
//	array of arrays            []mat.VecDense
//	array of 2 numbers         r2.Vec
//	array of 3 numbers         r3.Vec
//	array of 4 numbers         quat.Number (w, x, y, z)
//	array of 9 numbers         mat.Dense (3x3, row-major)
//	other arrays of numbers    mat.VecDense
//	map                        nested dictionary, extended recursively
//
// Keys that already hold a value are kept and reported as
// EventExtendConflict. Nil, binary and extension values fail with
// *TypeError.
func (d *Dictionary) ExtendNode(n *Node) error {
	if d.value != nil {
		return typeErrf("map", d.value.vt.name, "cannot extend a value")
	}
	if n.Type() != NodeMap {
		return typeErrf("map", n.Type().String(), "expecting map")
	}
	for i := range n.Len() {
		key, err := mapKey(n, i)
		if err != nil {
			return err
		}
		v := n.ValueAt(i)
		ch := d.children[key]

		if v.Type() == NodeMap && (ch == nil || ch.value == nil) {
			if err := d.ensureChild(key).ExtendNode(v); err != nil {
				return atKey(err, key)
			}
			continue
		}
		if ch != nil && !ch.IsEmpty() {
			d.environment().report(Event{Kind: EventExtendConflict, Key: key, Type: ch.kindName()})
			continue
		}
		if err := d.extendValue(key, v); err != nil {
			return atKey(err, key)
		}
	}
	return nil
}

func mapKey(n *Node, i int) (string, error) {
	k := n.KeyAt(i)
	if k.Type() != NodeStr {
		return "", typeErrf("str", k.Type().String(), "map key must be a string")
	}
	return k.Str(), nil
}

func (d *Dictionary) extendValue(key string, n *Node) error {
	switch n.Type() {
	case NodeBool:
		return extendAs[bool](d, key, n)
	case NodeInt:
		return extendAs[int64](d, key, n)
	case NodeUint:
		return extendAs[uint64](d, key, n)
	case NodeFloat:
		return extendAs[float32](d, key, n)
	case NodeDouble:
		return extendAs[float64](d, key, n)
	case NodeStr:
		return extendAs[string](d, key, n)
	case NodeArray:
		return d.extendArray(key, n)
	default:
		return typeErrf("", n.Type().String(), "cannot insert values of type %v", n.Type())
	}
}

func (d *Dictionary) extendArray(key string, n *Node) error {
	if n.Len() > 0 {
		switch n.At(0).Type() {
		case NodeStr:
			return extendAs[[]string](d, key, n)
		case NodeArray:
			return extendAs[[]mat.VecDense](d, key, n)
		}
	}
	switch n.Len() {
	case 2:
		return extendAs[r2.Vec](d, key, n)
	case 3:
		return extendAs[r3.Vec](d, key, n)
	case 4:
		return extendAs[quat.Number](d, key, n)
	case matrixSide * matrixSide:
		return extendAs[mat.Dense](d, key, n)
	default:
		return extendAs[mat.VecDense](d, key, n)
	}
}

// extendAs decodes n into a fresh T and stores it at key. Nothing is stored
// if decoding fails.
func extendAs[T any](d *Dictionary, key string, n *Node) error {
	p := allocate[T]()
	c := bind(p)
	if err := c.read(n); err != nil {
		return err
	}
	d.ensureChild(key).value = c
	return nil
}
