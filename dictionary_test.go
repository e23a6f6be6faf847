package edict

import (
	"errors"
	"fmt"
	"testing"
)

func TestDictionary_states(t *testing.T) {
	d := New(Options{})
	eq(t, d.IsEmpty(), true)
	eq(t, d.IsMap(), true)
	eq(t, d.IsValue(), false)
	eq(t, d.String(), "{}")

	Insert(d, "a", int32(1))
	eq(t, d.IsEmpty(), false)
	eq(t, d.IsMap(), true)
	eq(t, d.Len(), 1)

	a := d.Child("a")
	eq(t, a.IsValue(), true)
	eq(t, a.IsMap(), false)
	eq(t, a.String(), "1")
}

func TestDictionary_zeroValue(t *testing.T) {
	var d Dictionary
	Insert(&d, "k", "v")
	d.Remove("missing")
	eq(t, d.String(), `{"k": "v"}`)
}

func TestDictionary_autoVivification(t *testing.T) {
	d := New(Options{})
	Insert(d.ChildPath("a", "b", "c"), "x", 1.5)
	eq(t, d.String(), `{"a": {"b": {"c": {"x": 1.5}}}}`)
	eq(t, d.Has("a"), true)

	// Child creates empty nodes that serialize as empty maps.
	d.Child("e")
	eq(t, d.String(), `{"a": {"b": {"c": {"x": 1.5}}}, "e": {}}`)
	deepEqual(t, d.Keys(), []string{"a", "e"})
}

func TestDictionary_getReturnsStoredValue(t *testing.T) {
	d := New(Options{})
	p := Insert(d, "n", int64(5))
	*Get[int64](d, "n") += 10
	eq(t, *p, int64(15))
	eq(t, d.String(), `{"n": 15}`)
}

func TestDictionary_typeImmutable(t *testing.T) {
	d := New(Options{})
	Insert(d, "n", int64(5))

	_, err := TryGet[int32](d, "n")
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("** TryGet[int32] = %v, wanted *TypeError", err)
	}
	eq(t, te.Expected, "int32")
	eq(t, te.Actual, "int64")
	deepEqual(t, te.Path, []string{"n"})

	expectPanic[*TypeError](t, func() { Get[string](d, "n") })
}

func TestDictionary_insertConflict(t *testing.T) {
	opt, events := recordEvents()
	d := New(opt)
	p1 := Insert(d, "a", int64(1))
	p2 := Insert(d, "a", int64(2))
	eq(t, p1, p2)
	eq(t, *p2, int64(1))
	deepEqual(t, eventKinds(*events), []EventKind{EventInsertConflict})
	eq(t, (*events)[0].Key, "a")
	eq(t, (*events)[0].Type, "int64")

	_, err := TryInsert(d, "a", "str")
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("** conflicting insert of another type = %v, wanted *TypeError", err)
	}
}

func TestDictionary_insertIntoEmptyChild(t *testing.T) {
	opt, events := recordEvents()
	d := New(opt)
	d.Child("a")
	Insert(d, "a", true)
	eq(t, d.String(), `{"a": true}`)
	eq(t, len(*events), 0)
}

func TestDictionary_insertIntoValue(t *testing.T) {
	d := New(Options{})
	Insert(d, "v", int64(1))
	_, err := TryInsert(d.Child("v"), "x", 1)
	if err == nil {
		t.Fatalf("** inserting into a value node succeeded")
	}
	expectPanic[*TypeError](t, func() { d.Child("v").Child("x") })
}

func TestDictionary_insertNew(t *testing.T) {
	d := New(Options{})
	called := 0
	InsertNew(d, "s", func(s *[]string) {
		called++
		*s = append(*s, "a", "b")
	})
	InsertNew(d, "s", func(s *[]string) { called++ })
	eq(t, called, 1)
	eq(t, d.String(), `{"s": ["a", "b"]}`)
}

func TestDictionary_lookup(t *testing.T) {
	d := New(Options{})
	Insert(d.Child("a"), "b", uint8(7))

	ch, err := d.LookupPath("a", "b")
	ensure(err)
	eq(t, *As[uint8](ch), uint8(7))

	_, err = d.LookupPath("a", "zz")
	var ke *KeyError
	if !errors.As(err, &ke) || ke.Key != "zz" {
		t.Fatalf("** LookupPath = %v, wanted KeyError for zz", err)
	}
	deepEqual(t, ke.Path, []string{"a"})
	eq(t, err.Error(), `at "a": key "zz" not found`)
	var te *TypeError
	if errors.As(err, &te) {
		t.Errorf("** LookupPath of a missing key = %v, wanted no *TypeError", err)
	}

	_, err = d.Lookup("nope")
	if !errors.As(err, &ke) {
		t.Fatalf("** Lookup = %v, wanted KeyError", err)
	}
	eq(t, d.Has("nope"), false)

	_, err = TryGet[int](d, "nope")
	if !errors.As(err, &ke) {
		t.Fatalf("** TryGet = %v, wanted KeyError", err)
	}
	expectPanic[*KeyError](t, func() { Get[int](d, "nope") })
}

func TestDictionary_getOr(t *testing.T) {
	d := New(Options{})
	Insert(d, "n", 3.5)
	d.Child("empty")

	eq(t, GetOr(d, "n", 1.0), 3.5)
	eq(t, GetOr(d, "missing", 1.0), 1.0)
	eq(t, GetOr(d, "empty", 1.0), 1.0)
	eq(t, d.Has("missing"), false)

	_, err := TryGetOr(d, "n", "x")
	if err == nil {
		t.Fatalf("** TryGetOr with the wrong type succeeded")
	}
}

func TestDictionary_assignAndSet(t *testing.T) {
	d := New(Options{})
	Insert(d.Child("m"), "a", 1)
	Insert(d.Child("m"), "b", 2)

	p := must(Set(d, "m", "replaced"))
	eq(t, *p, "replaced")
	eq(t, d.String(), `{"m": "replaced"}`)

	must(Set(d, "m", "again"))
	eq(t, d.String(), `{"m": "again"}`)

	_, err := Set(d, "m", 42)
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("** Set of another type = %v, wanted *TypeError", err)
	}
	deepEqual(t, te.Path, []string{"m"})
}

func TestDictionary_removeAndClear(t *testing.T) {
	opt, events := recordEvents()
	d := New(opt)
	Insert(d, "a", 1)
	Insert(d.Child("m"), "b", 2)

	d.Remove("a")
	d.Remove("a")
	eq(t, d.String(), `{"m": {"b": 2}}`)
	deepEqual(t, eventKinds(*events), []EventKind{EventRemoveMissing})

	d.Clear()
	eq(t, d.IsEmpty(), true)
	eq(t, d.String(), "{}")

	Insert(d, "v", 1)
	d.Child("v").Clear()
	eq(t, d.String(), `{"v": 1}`)
}

type closable struct {
	name   string
	closed *[]string
	err    error
}

func (c *closable) Close() error {
	*c.closed = append(*c.closed, c.name)
	return c.err
}

func TestDictionary_closesValuesOnRelease(t *testing.T) {
	opt, events := recordEvents()
	d := New(opt)
	var closed []string
	Insert(d, "a", closable{name: "a", closed: &closed})
	Insert(d.Child("m"), "b", closable{name: "b", closed: &closed, err: fmt.Errorf("boom")})
	Insert(d.Child("m"), "c", closable{name: "c", closed: &closed})

	d.Remove("a")
	deepEqual(t, closed, []string{"a"})

	d.Clear()
	eq(t, len(closed), 3)
	deepEqual(t, eventKinds(*events), []EventKind{EventCloseFailed})
	eq(t, (*events)[0].Key, "b")
}

func TestDictionary_closesOverwrittenValues(t *testing.T) {
	opt, events := recordEvents()
	d := New(opt)
	var closed []string
	Insert(d, "a", closable{name: "a1", closed: &closed, err: fmt.Errorf("boom")})

	p := must(Set(d, "a", closable{name: "a2", closed: &closed}))
	deepEqual(t, closed, []string{"a1"})
	eq(t, p.name, "a2")
	deepEqual(t, eventKinds(*events), []EventKind{EventCloseFailed})
	eq(t, (*events)[0].Key, "a")

	must(Assign(d.Child("a"), closable{name: "a3", closed: &closed}))
	deepEqual(t, closed, []string{"a1", "a2"})

	d.Remove("a")
	deepEqual(t, closed, []string{"a1", "a2", "a3"})
}

type base struct {
	ID int
}

type named interface {
	Name() string
}

type widget struct {
	base
	Title string
}

func (w *widget) Name() string { return w.Title }

func TestDictionary_aliases(t *testing.T) {
	d := New(Options{})
	w := must(InsertAliased(d, "w", widget{base{7}, "knob"}, AliasOf[base](), AliasOf[named]()))

	b := Get[base](d, "w")
	eq(t, b.ID, 7)
	b.ID = 8
	eq(t, w.ID, 8)

	n := Get[named](d, "w")
	eq(t, (*n).Name(), "knob")
	eq(t, Get[widget](d, "w"), w)

	info, ok := d.Child("w").TypeInfo()
	eq(t, ok, true)
	eq(t, info.Name, "edict.widget")
	eq(t, len(info.Aliases), 2)

	_, err := InsertAliased(d, "x", base{1}, AliasOf[widget]())
	if err == nil {
		t.Fatalf("** aliasing a non-embedded struct succeeded")
	}
	eq(t, d.Has("x"), false)
}

func TestDictionary_iteration(t *testing.T) {
	d := New(Options{})
	Insert(d, "b", 2)
	Insert(d, "a", 1)

	seen := make(map[string]int)
	for k, ch := range d.All() {
		seen[k] = *As[int](ch)
	}
	deepEqual(t, seen, map[string]int{"a": 1, "b": 2})

	var n int
	for range d.KeySeq() {
		n++
	}
	eq(t, n, 2)
}
