package edict

import (
	"iter"
	"maps"
	"slices"
)

// Dictionary is a node of a tree of typed values. A node is empty, holds a
// single value, or maps string keys to child dictionaries which it owns.
//
// The zero Dictionary is an empty root that logs through slog.Default().
// Dictionaries are not safe for concurrent mutation.
type Dictionary struct {
	env      *env
	value    *cell
	children map[string]*Dictionary
}

// New returns an empty root dictionary.
func New(opt Options) *Dictionary {
	return &Dictionary{env: newEnv(opt)}
}

func (d *Dictionary) environment() *env {
	if d.env == nil {
		return defaultEnv
	}
	return d.env
}

func (d *Dictionary) newChild() *Dictionary {
	return &Dictionary{env: d.env}
}

// IsEmpty is true for a node that has neither a value nor children.
func (d *Dictionary) IsEmpty() bool {
	return d.value == nil && len(d.children) == 0
}

// IsValue is true for a node holding a value.
func (d *Dictionary) IsValue() bool {
	return d.value != nil
}

// IsMap is true for a node that can have children, i.e. one that does not
// hold a value. Empty nodes are maps too.
func (d *Dictionary) IsMap() bool {
	return d.value == nil
}

// Len returns the number of children.
func (d *Dictionary) Len() int {
	return len(d.children)
}

// Has returns whether key is present. Always false for empty and value nodes.
func (d *Dictionary) Has(key string) bool {
	_, ok := d.children[key]
	return ok
}

// Keys returns the keys of the children in sorted order.
func (d *Dictionary) Keys() []string {
	return slices.Sorted(maps.Keys(d.children))
}

// KeySeq iterates over the keys of the children in no particular order.
func (d *Dictionary) KeySeq() iter.Seq[string] {
	return maps.Keys(d.children)
}

// All iterates over the children in no particular order.
func (d *Dictionary) All() iter.Seq2[string, *Dictionary] {
	return maps.All(d.children)
}

// TypeInfo describes the stored value, if d is a value node.
func (d *Dictionary) TypeInfo() (TypeInfo, bool) {
	if d.value == nil {
		return TypeInfo{}, false
	}
	return d.value.info(), true
}

// kindName describes the node for error messages.
func (d *Dictionary) kindName() string {
	switch {
	case d.value != nil:
		return d.value.vt.name
	case len(d.children) == 0:
		return "empty"
	default:
		return "map"
	}
}

func (d *Dictionary) ensureChild(key string) *Dictionary {
	if ch := d.children[key]; ch != nil {
		return ch
	}
	if d.children == nil {
		d.children = make(map[string]*Dictionary)
	}
	ch := d.newChild()
	d.children[key] = ch
	return ch
}
