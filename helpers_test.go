package edict

import (
	"encoding/hex"
	"reflect"
	"strings"
	"testing"
)

func eq[T comparable](t testing.TB, a, e T) bool {
	if a != e {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func x(data string) []byte {
	data = strings.ReplaceAll(data, " ", "")
	return must(hex.DecodeString(data))
}

// recordEvents returns options that collect every event into the returned
// slice.
func recordEvents() (Options, *[]Event) {
	var events []Event
	return Options{OnEvent: func(ev Event) { events = append(events, ev) }}, &events
}

func eventKinds(events []Event) []EventKind {
	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func serialize(t testing.TB, d *Dictionary) []byte {
	t.Helper()
	data, err := d.Serialize(nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return data
}

func expectPanic[E error](t testing.TB, f func()) (result E) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("** no panic, wanted %T", result)
			return
		}
		err, ok := r.(E)
		if !ok {
			t.Errorf("** panicked with %T %v, wanted %T", r, r, result)
			return
		}
		result = err
	}()
	f()
	return
}
