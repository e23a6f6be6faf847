package store

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/andreyvit/edict"
)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func eachBackend(t *testing.T, opt Options, f func(t *testing.T, s *Store)) {
	if opt.Now == nil {
		opt.Now = func() time.Time { return testNow }
	}
	t.Run("bolt", func(t *testing.T) {
		opt := opt
		opt.IsTesting = true
		s, err := Open(filepath.Join(t.TempDir(), "test.db"), opt)
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()
		f(t, s)
	})
	t.Run("mem", func(t *testing.T) {
		s := OpenMemory(opt)
		defer s.Close()
		f(t, s)
	})
}

func sample() *edict.Dictionary {
	d := edict.New(edict.Options{})
	edict.Insert(d, "id", uint64(12))
	edict.Insert(d.Child("pose"), "name", "origin")
	edict.Insert(d.Child("pose"), "scale", 1.5)
	return d
}

func TestStore_saveLoad(t *testing.T) {
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		info := must(s.Save("a", sample()))
		eq(t, info.Version, uint64(1))
		eq(t, info.SavedAt.Unix(), testNow.Unix())

		d := must(s.Load("a"))
		eq(t, d.String(), `{"id": 12, "pose": {"name": "origin", "scale": 1.5}}`)
		eq(t, *edict.Get[uint64](d, "id"), uint64(12))
	})
}

func TestStore_versionIncrements(t *testing.T) {
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		must(s.Save("a", sample()))
		must(s.Save("a", sample()))
		info := must(s.Save("a", sample()))
		eq(t, info.Version, uint64(3))

		got := must(s.Info("a"))
		eq(t, got.Version, uint64(3))
		eq(t, got.Size, info.Size)
		eq(t, got.Compressed, false)
	})
}

func TestStore_compressed(t *testing.T) {
	eachBackend(t, Options{Compress: true}, func(t *testing.T, s *Store) {
		d := edict.New(edict.Options{})
		for _, k := range []string{"alpha", "beta", "gamma", "delta"} {
			edict.Insert(d, k, "the same fairly long string repeated in every key")
		}
		info := must(s.Save("c", d))
		eq(t, info.Compressed, true)
		eq(t, must(s.Info("c")).Compressed, true)

		loaded := must(s.Load("c"))
		eq(t, loaded.String(), d.String())
	})
}

func TestStore_refreshOnlyUpdatesExisting(t *testing.T) {
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		must(s.Save("a", sample()))

		d := edict.New(edict.Options{})
		edict.Insert(d, "id", int64(0))
		ensure(s.Refresh("a", d))
		eq(t, d.String(), `{"id": 12}`)
	})
}

func TestStore_mergeKeepsExisting(t *testing.T) {
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		must(s.Save("a", sample()))

		var events []edict.EventKind
		d := edict.New(edict.Options{OnEvent: func(ev edict.Event) { events = append(events, ev.Kind) }})
		edict.Insert(d, "id", uint64(42))
		ensure(s.Merge("a", d))
		eq(t, *edict.Get[uint64](d, "id"), uint64(42))
		eq(t, *edict.Get[string](d.Child("pose"), "name"), "origin")
		deepEq(t, events, []edict.EventKind{edict.EventExtendConflict})
	})
}

func TestStore_notFound(t *testing.T) {
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		if _, err := s.Load("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("** Load = %v, wanted ErrNotFound", err)
		}
		if _, err := s.Info("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("** Info = %v, wanted ErrNotFound", err)
		}
		eq(t, must(s.Delete("nope")), false)
	})
}

func TestStore_deleteAndNames(t *testing.T) {
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		for _, name := range []string{"run/2", "cfg", "run/1", "runner"} {
			must(s.Save(name, sample()))
		}
		deepEq(t, must(s.Names("")), []string{"cfg", "run/1", "run/2", "runner"})
		deepEq(t, must(s.Names("run/")), []string{"run/1", "run/2"})
		eq(t, must(s.Count()), 4)

		eq(t, must(s.Delete("run/1")), true)
		deepEq(t, must(s.Names("run")), []string{"run/2", "runner"})

		infos := must(s.List("run/"))
		eq(t, len(infos), 1)
		eq(t, infos[0].Name, "run/2")
	})
}

func TestStore_modify(t *testing.T) {
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		info := must(s.Modify("m", func(d *edict.Dictionary) error {
			edict.Insert(d, "n", uint64(1))
			return nil
		}))
		eq(t, info.Version, uint64(1))

		info = must(s.Modify("m", func(d *edict.Dictionary) error {
			p := edict.Get[uint64](d, "n")
			*p++
			return nil
		}))
		eq(t, info.Version, uint64(2))
		eq(t, must(s.Load("m")).String(), `{"n": 2}`)

		stop := errors.New("stop")
		_, err := s.Modify("m", func(d *edict.Dictionary) error {
			edict.Insert(d, "x", true)
			return stop
		})
		eq(t, err, stop)
		eq(t, must(s.Load("m")).String(), `{"n": 2}`)
	})
}

func TestStore_emptyStore(t *testing.T) {
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		deepEq(t, must(s.Names("")), []string(nil))
		eq(t, must(s.Count()), 0)
	})
}

func TestStore_stats(t *testing.T) {
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		eq(t, must(s.Stats()), Stats{})

		a := must(s.Save("a", sample()))
		b := must(s.Save("b", edict.New(edict.Options{})))
		st := must(s.Stats())
		eq(t, st.Snapshots, 2)
		eq(t, st.Compressed, 0)
		eq(t, st.Invalid, 0)
		eq(t, st.ValueSize, a.Size+b.Size)
		if st.DataSize < st.ValueSize {
			t.Errorf("** DataSize %d is below ValueSize %d", st.DataSize, st.ValueSize)
		}
	})
}

func TestStore_reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s := must(Open(path, Options{IsTesting: true}))
	must(s.Save("a", sample()))
	ensure(s.Close())

	s = must(Open(path, Options{IsTesting: true}))
	defer s.Close()
	eq(t, must(s.Load("a")).String(), `{"id": 12, "pose": {"name": "origin", "scale": 1.5}}`)
}

func TestStore_invalidSnapshotLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	eachBackend(t, Options{Logger: logger}, func(t *testing.T, s *Store) {
		logs.Reset()
		ensure(s.write(func(b storageBucket) error {
			return b.Put([]byte("bad"), []byte{0x03})
		}))
		must(s.Save("good", sample()))

		infos := must(s.List(""))
		eq(t, len(infos), 1)
		eq(t, infos[0].Name, "good")

		info := must(s.Save("bad", sample()))
		eq(t, info.Version, uint64(1))

		out := logs.String()
		for _, want := range []string{
			`msg="store: skipping invalid snapshot" name=bad err=`,
			`msg="store: overwriting invalid snapshot" name=bad err=`,
			`msg="store: saved" name=bad version=1 size=`,
		} {
			if !strings.Contains(out, want) {
				t.Errorf("** log lacks %q:\n%s", want, out)
			}
		}
	})
}

func TestValue_corrupted(t *testing.T) {
	var vle value
	raw := vle.encode(nil, []byte{0x80}, false)
	ensure(vle.decode(raw))

	for _, bad := range [][]byte{
		raw[:2],
		append(raw[:len(raw):len(raw)], 0),
		append([]byte{0x03}, raw[1:]...),
	} {
		if err := vle.decode(bad); err == nil {
			t.Errorf("** decode(%x) succeeded, wanted error", bad)
		}
	}
}

func eq[T comparable](t testing.TB, a, e T) bool {
	if a != e {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}

func deepEq[T any](t testing.TB, a, e T) bool {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
