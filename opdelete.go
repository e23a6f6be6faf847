package edict

import (
	"context"
	"log/slog"
)

// Remove deletes the child at key along with its subtree. Removing an absent
// key is not an error; it is reported as EventRemoveMissing.
func (d *Dictionary) Remove(key string) {
	ch := d.children[key]
	if ch == nil {
		d.environment().report(Event{Kind: EventRemoveMissing, Key: key})
		return
	}
	delete(d.children, key)
	ch.release(key)
}

// Clear removes all children. Calling Clear on a value node does nothing and
// logs an error.
func (d *Dictionary) Clear() {
	if d.value != nil {
		d.environment().log().LogAttrs(context.Background(), slog.LevelError, "edict: Clear called on a value",
			slog.String("type", d.value.vt.name))
		return
	}
	children := d.children
	d.children = nil
	for key, ch := range children {
		ch.release(key)
	}
}

// release destroys the value and all descendants of d.
func (d *Dictionary) release(key string) {
	if d.value != nil {
		d.value.destroy(d.environment(), key)
		d.value = nil
	}
	for k, ch := range d.children {
		ch.release(k)
	}
	d.children = nil
}
