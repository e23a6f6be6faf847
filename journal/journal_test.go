package journal_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/andreyvit/edict/journal"
	"github.com/andreyvit/edict/journal/journaltest"
)

var bytesEq = journaltest.BytesEq

const magic = "'JOURNLAT"
const header1 = "0/ver 0/pad 0_0/flags 0../pad"
const header2 = "0*32/journal_inv 0*32/seg_inv 0...*3/reserved"

const start = 1704067200 // journaltest.Start

func TestJournal_trivial(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.WriteRecord(0, []byte("hello")))
	ensure(j.WriteRecord(0, []byte("w")))
	j.Advance(1000 * time.Second)
	ensure(j.WriteRecord(0, []byte("orld")))
	ensure(j.Commit())
	ensure(j.FinishWriting())

	files := j.FileNames()
	deepEq(t, files, []string{"j000000000001-20240101T000000-0000000000000001.wal"})

	j.Eq(files[0], shdr("1.. 80_00_92_65 0...", "e984dc85563d5731"),
		"#20 #0 'hello",
		"#4 #0 'w",
		"#16 #1000 'orld",
		"6d_e8_85_5e_52_55_7b_cb",
	)
}

func TestJournal_read(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.WriteRecord(0, []byte("a")))
	ensure(j.WriteRecord(0, []byte("b")))
	ensure(j.Commit())
	j.Advance(5 * time.Second)
	ensure(j.WriteRecord(0, []byte("c")))
	ensure(j.Commit())

	deepEq(t, j.Records(), []string{
		fmt.Sprintf("1@%d:a", start),
		fmt.Sprintf("2@%d:b", start),
		fmt.Sprintf("3@%d:c", start+5),
	})
}

func TestJournal_uncommittedInvisible(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.WriteRecord(0, []byte("a")))
	ensure(j.Commit())
	ensure(j.WriteRecord(0, []byte("b")))

	deepEq(t, j.Records(), []string{fmt.Sprintf("1@%d:a", start)})
}

func TestJournal_emptyRecordIgnored(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.WriteRecord(0, nil))
	ensure(j.Commit())
	deepEq(t, j.FileNames(), []string(nil))
}

func TestJournal_corruptedTail(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.WriteRecord(0, []byte("a")))
	ensure(j.Commit())
	ensure(j.WriteRecord(0, []byte("b")))
	ensure(j.Commit())
	ensure(j.FinishWriting())

	name := j.FileNames()[0]
	j.Append(name, []byte{0x00, 0xff})

	deepEq(t, j.Records(), []string{
		fmt.Sprintf("1@%d:a", start),
		fmt.Sprintf("2@%d:b", start),
	})

	j.Reopen(journal.Options{})
	ensure(j.WriteRecord(0, []byte("c")))
	ensure(j.Commit())

	deepEq(t, j.FileNames(), []string{
		"j000000000001-20240101T000000-0000000000000001.wal",
		"j000000000002-20240101T000000-0000000000000003.wal",
	})
	deepEq(t, j.Records(), []string{
		fmt.Sprintf("1@%d:a", start),
		fmt.Sprintf("2@%d:b", start),
		fmt.Sprintf("3@%d:c", start),
	})

	if data := j.Data(name); bytes.HasSuffix(data, []byte{0x00, 0xff}) {
		t.Errorf("** garbage not trimmed: %x", data[len(data)-16:])
	}
}

func TestJournal_corruptedChecksum(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.WriteRecord(0, []byte("first")))
	ensure(j.Commit())
	ensure(j.WriteRecord(0, []byte("second")))
	ensure(j.Commit())
	ensure(j.FinishWriting())

	name := j.FileNames()[0]
	path := filepath.Join(j.Dir, name)
	data := j.Data(name)
	i := bytes.Index(data, []byte("second"))
	data[i] = 'S'
	ensure(os.WriteFile(path, data, 0o644))

	deepEq(t, j.Records(), []string{fmt.Sprintf("1@%d:first", start)})
}

func TestJournal_corruptedHeaderDeleted(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.WriteRecord(0, []byte("a")))
	ensure(j.Commit())
	ensure(j.FinishWriting())

	j.Put("j000000000002-20240101T000000-0000000000000002.wal", "'garbage")

	deepEq(t, j.Records(), []string{fmt.Sprintf("1@%d:a", start)})

	j.Reopen(journal.Options{})
	ensure(j.WriteRecord(0, []byte("b")))
	ensure(j.Commit())
	deepEq(t, j.FileNames(), []string{
		"j000000000001-20240101T000000-0000000000000001.wal",
		"j000000000002-20240101T000000-0000000000000002.wal",
	})
	deepEq(t, j.Records(), []string{
		fmt.Sprintf("1@%d:a", start),
		fmt.Sprintf("2@%d:b", start),
	})
}

func TestJournal_compressed(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 1000)

	j := journaltest.Writable(t, journal.Options{Compress: true})
	ensure(j.WriteRecord(0, payload))
	ensure(j.WriteRecord(0, []byte("x")))
	ensure(j.Commit())
	ensure(j.FinishWriting())

	if n := len(j.Data(j.FileNames()[0])); n >= len(payload)/2 {
		t.Errorf("** segment size %d, wanted compressed well below %d", n, len(payload))
	}

	var got [][]byte
	ensure(j.Read(func(rec *journal.Record) error {
		got = append(got, bytes.Clone(rec.Data))
		return nil
	}))
	if len(got) != 2 {
		t.Fatalf("** got %d records, wanted 2", len(got))
	}
	bytesEq(t, got[0], payload)
	bytesEq(t, got[1], []byte("x"))
}

func TestJournal_rotation(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{MaxFileSize: 200})
	var expected []string
	for i := range 10 {
		rec := fmt.Sprintf("record %02d", i)
		ensure(j.WriteRecord(0, []byte(rec)))
		ensure(j.Commit())
		expected = append(expected, fmt.Sprintf("%d@%d:%s", i+1, start, rec))
	}

	deepEq(t, j.FileNames(), []string{
		"j000000000001-20240101T000000-0000000000000001.wal",
		"j000000000002-20240101T000000-0000000000000005.wal",
		"j000000000003-20240101T000000-0000000000000009.wal",
	})
	deepEq(t, j.Records(), expected)
}

func TestJournal_rotateInsideTransaction(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.WriteRecord(0, []byte("a")))
	if err := j.Rotate(); !errors.Is(err, journal.ErrUncommitted) {
		t.Fatalf("** Rotate() = %v, wanted ErrUncommitted", err)
	}
	ensure(j.Commit())
	ensure(j.Rotate())
	ensure(j.WriteRecord(0, []byte("b")))
	ensure(j.Commit())
	deepEq(t, len(j.FileNames()), 2)
}

func TestJournal_readStopsOnCallbackError(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.WriteRecord(0, []byte("a")))
	ensure(j.WriteRecord(0, []byte("b")))
	ensure(j.Commit())

	stop := errors.New("stop")
	var n int
	err := j.Read(func(rec *journal.Record) error {
		n++
		return stop
	})
	if err != stop || n != 1 {
		t.Fatalf("** Read = %v after %d records, wanted stop after 1", err, n)
	}
}

func TestJournal_writeAfterFinish(t *testing.T) {
	j := journaltest.Writable(t, journal.Options{})
	ensure(j.FinishWriting())
	if err := j.WriteRecord(0, []byte("a")); err != journal.ErrReadOnly {
		t.Fatalf("** WriteRecord after FinishWriting = %v, wanted ErrReadOnly", err)
	}
}

func shdr(inside, check string) string {
	return magic + " " + header1 + " " +
		inside + " " + header2 + " " + check
}

func deepEq[T any](t testing.TB, a, e T) bool {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
