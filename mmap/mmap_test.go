package mmap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOptionsHas(t *testing.T) {
	o := SequentialAccess | Prefault
	if !o.Has(SequentialAccess) || !o.Has(Prefault) || o.Has(RandomAccess) {
		t.Errorf("** Options.Has returned unexpected results for %b", o)
	}
}

func TestOpen(t *testing.T) {
	for _, opt := range []Options{0, SequentialAccess, RandomAccess | Prefault} {
		path := writeTemp(t, []byte("hello"))
		m, err := Open(path, opt)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if a, e := string(m.Data), "hello"; a != e {
			t.Errorf("** Data = %q, wanted %q", a, e)
		}
		if err := m.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if m.Data != nil {
			t.Errorf("** Data not cleared by Close")
		}
	}
}

func TestOpen_empty(t *testing.T) {
	m, err := Open(writeTemp(t, nil), SequentialAccess)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(m.Data) != 0 {
		t.Errorf("** len(Data) = %d, wanted 0", len(m.Data))
	}
	if err := m.Close(); err != nil {
		t.Errorf("** Close: %v", err)
	}
}

func TestOpen_missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"), 0)
	if !os.IsNotExist(err) {
		t.Errorf("** got %v, wanted a not-exist error", err)
	}
}

func TestFdatasync(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := Fdatasync(f); err != nil {
		t.Errorf("** Fdatasync: %v", err)
	}
}

func writeTemp(t *testing.T, data []byte) string {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
