package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andreyvit/edict"
)

func writeSample(t *testing.T, dir, name string, id uint64) string {
	d := edict.New(edict.Options{})
	edict.Insert(d, "id", id)
	edict.Insert(d.Child("pose"), "name", "origin")
	path := filepath.Join(dir, name)
	if err := d.WriteFile(path, edict.WriteFileOptions{}); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	e := newEdictCli(&stdout, &stderr)
	if err := e.run(append([]string{"edict"}, args...)); err != nil {
		t.Fatalf("edict %s: %v\nstderr: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String()
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, "a.msgpack", 12)
	eq(t, run(t, "dump", path), `{"id": 12, "pose": {"name": "origin"}}`+"\n")
}

func TestKeysAndGet(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, "a.msgpack", 12)
	eq(t, run(t, "keys", path), "id\npose\n")
	eq(t, run(t, "keys", path, "pose"), "name\n")
	eq(t, run(t, "get", path, "pose", "name"), `"origin"`+"\n")
}

func TestGet_missingKey(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, "a.msgpack", 12)
	var stdout, stderr bytes.Buffer
	err := newEdictCli(&stdout, &stderr).run([]string{"edict", "get", path, "pose", "nope"})
	if err == nil {
		t.Fatalf("** get of a missing key succeeded with %q", stdout.String())
	}
	var ke *edict.KeyError
	if !errors.As(err, &ke) {
		t.Errorf("** got %T %v, wanted *edict.KeyError", err, err)
	}
}

func TestRecordReplay(t *testing.T) {
	dir := t.TempDir()
	a := writeSample(t, dir, "a.msgpack", 1)
	b := writeSample(t, dir, "b.msgpack", 2)
	jdir := filepath.Join(dir, "journal")

	run(t, "record", "--compress", jdir, a, b)
	out := run(t, "replay", jdir)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("** got %d lines, wanted 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "#1 ") || !strings.HasSuffix(lines[0], `{"id": 1, "pose": {"name": "origin"}}`) {
		t.Errorf("** line 1 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "#2 ") || !strings.HasSuffix(lines[1], `{"id": 2, "pose": {"name": "origin"}}`) {
		t.Errorf("** line 2 = %q", lines[1])
	}
}

func TestStoreCommands(t *testing.T) {
	dir := t.TempDir()
	a := writeSample(t, dir, "a.msgpack", 7)
	db := filepath.Join(dir, "snap.db")

	run(t, "save", db, "first", a)
	run(t, "save", db, "first", a)
	eq(t, run(t, "load", db, "first"), `{"id": 7, "pose": {"name": "origin"}}`+"\n")

	ls := run(t, "ls", db)
	if !strings.HasPrefix(ls, "first\tv2\t") {
		t.Errorf("** ls = %q", ls)
	}

	out := filepath.Join(dir, "out.msgpack")
	run(t, "load", db, "first", out)
	raw := run(t, "dump", "--raw", out)
	if !strings.Contains(raw, `"id": 7`) || !strings.Contains(raw, `"pose": {"name": "origin"}`) {
		t.Errorf("** dump --raw = %q", raw)
	}

	stats := run(t, "stats", db)
	if !strings.HasPrefix(stats, "snapshots\t1\ncompressed\t0\ninvalid\t0\n") {
		t.Errorf("** stats = %q", stats)
	}

	run(t, "rm", db, "first")
	eq(t, run(t, "ls", db), "")
}

func eq[T comparable](t testing.TB, a, e T) bool {
	if a != e {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}
