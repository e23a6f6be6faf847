// Package journal implements append-only journal files holding a sequence of
// opaque records, typically serialized dictionary snapshots.
//
// Features:
//
//  1. Records of any size. Several records can be grouped into one
//     transaction; readers only see records of committed transactions.
//
//  2. Crash-resistant (if committed with Options.Sync). Every commit carries an
//     xxhash64 checksum of everything written to the segment so far, and
//     readers stop at the first corrupted or uncommitted record. When writing
//     resumes, the last segment is trimmed after its last valid commit.
//
//  3. Optional snappy compression of individual records.
//
//  4. Rotates segment files when they reach Options.MaxFileSize (at commit
//     boundaries), or on demand via Rotate.
//
// # File format
//
//   - file = segmentHeader (record* commit)*
//   - segmentHeader = magic:64 version:8 pad:8 flags:16 pad:32 segmentNumber:32 timestamp:32 prevChecksum:64 journalInvariant:256 segmentInvariant:256 reserved:64*3 checksum:64
//   - record = sizeAndFlags:uvarint timestampDelta:uvarint bytes*
//   - commit = checksum:64 with the lowest bit set
//
// The lowest bit of the first byte tells commits (1) from records (0), since
// record flags are stored in the low bits of sizeAndFlags.
//
// Segment files are named PREFIX<segment>-<timestamp>-<first record id>SUFFIX,
// where PREFIX and SUFFIX come from Options.FileName.
package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"

	"github.com/andreyvit/edict/mmap"
)

var (
	ErrIncompatible       = fmt.Errorf("incompatible journal")
	ErrUnsupportedVersion = fmt.Errorf("unsupported journal version")
	ErrReadOnly           = fmt.Errorf("journal is not open for writing")
	ErrUncommitted        = fmt.Errorf("journal has uncommitted records")
	errCorruptedFile      = fmt.Errorf("corrupted journal segment file")
)

type Options struct {
	Context          context.Context
	FileName         string // e.g. "snapshots-*.bin"
	MaxFileSize      int64  // new segment after this size
	DebugName        string
	Now              func() time.Time
	JournalInvariant [32]byte
	SegmentInvariant [32]byte

	// Compress stores records snappy-compressed when that makes them smaller.
	Compress bool

	// Sync makes every commit durable with fdatasync.
	Sync bool

	Logger  *slog.Logger
	Verbose bool
}

const DefaultMaxFileSize = 4 * 1024 * 1024

const (
	magic          = 0x54414c4e52554f4a // "JOURNLAT" as little-endian uint64
	version0 uint8 = 0
)

const segmentHeaderSize = 16 * 8

type segmentHeader struct {
	Magic            uint64
	Version          uint8
	_                uint8
	Flags            uint16
	_                uint32
	SegmentOrdinal   uint32
	Timestamp        uint32
	PrevChecksum     uint64
	JournalInvariant [32]byte
	SegmentInvariant [32]byte
	_                [3]uint64
	Checksum         uint64
}

const (
	segFlagAligned uint16 = 1 << 0
)

const (
	recordFlagCommit     byte = 1
	recordFlagCompressed      = 1 << 1
	recordFlagShift           = 2
	timestampFmt              = "20060102T150405"
)

const commitSize = 8

// Journal is a directory of segment files.
type Journal struct {
	context          context.Context
	maxFileSize      int64
	fileNamePrefix   string
	fileNameSuffix   string
	debugName        string
	dir              string
	now              func() time.Time
	logger           *slog.Logger
	aligned          bool
	compress         bool
	sync             bool
	verbose          bool
	writable         bool
	journalInvariant [32]byte
	segmentInvariant [32]byte

	writeLock    sync.Mutex
	writeErr     error
	writeSeg     uint32
	writeRec     uint64
	lastChecksum uint64
	segWriter    *segmentWriter
	compBuf      []byte
}

func New(dir string, o Options) *Journal {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.FileName == "" {
		o.FileName = "*"
	}
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	if o.DebugName == "" {
		o.DebugName = "journal"
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Journal{
		context:          o.Context,
		maxFileSize:      o.MaxFileSize,
		fileNamePrefix:   prefix,
		fileNameSuffix:   suffix,
		debugName:        o.DebugName,
		dir:              dir,
		now:              o.Now,
		aligned:          false,
		compress:         o.Compress,
		sync:             o.Sync,
		verbose:          o.Verbose,
		journalInvariant: o.JournalInvariant,
		segmentInvariant: o.SegmentInvariant,
		logger:           o.Logger,
	}
}

func (j *Journal) Now() uint32 {
	v := j.now().Unix()
	if v < 0 {
		panic("time travel disallowed")
	}
	u := uint64(v)
	if u&0xFFFF_FFFF_0000_0000 != 0 {
		panic("time travel disallowed both ways")
	}
	return uint32(u)
}

func (j *Journal) String() string {
	return j.debugName
}

// StartWriting opens the journal for writing. Recovery of the last segment
// happens in the background; writes wait for it to finish.
func (j *Journal) StartWriting() {
	j.writeLock.Lock()
	if j.writable || j.writeErr != nil {
		j.writeLock.Unlock()
		return
	}
	j.writable = true

	go func() {
		defer j.writeLock.Unlock()
		j.fail(j.prepareToWrite_locked())
	}()
}

// prepareToWrite_locked finds where the previous writer stopped: corrupted
// trailing segments are deleted and the last one is trimmed after its last
// valid commit.
func (j *Journal) prepareToWrite_locked() error {
	st, err := os.Stat(j.dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%v: not a directory", j.debugName)
	}

	for {
		names, err := j.segmentNames()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}
		lastName := names[len(names)-1]

		seq, _, firstID, err := j.parseFileName(lastName)
		if err != nil {
			return err
		}

		res, err := j.scanFile(lastName, seq, firstID, nil)
		if err == errCorruptedFile && res.end == 0 {
			j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: deleting corrupted file", slog.String("jrnl", j.debugName), slog.String("file", lastName))
			if err := os.Remove(filepath.Join(j.dir, lastName)); err != nil {
				return fmt.Errorf("journal: failed to delete corrupted file: %w", err)
			}
			continue
		} else if err != nil && err != errCorruptedFile {
			return err
		}

		if res.end < res.size {
			j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: trimming segment", slog.String("jrnl", j.debugName), slog.String("file", lastName), slog.Int("size", res.size), slog.Int("valid", res.end))
			if err := os.Truncate(filepath.Join(j.dir, lastName), int64(res.end)); err != nil {
				return err
			}
		}
		j.writeSeg = seq
		j.writeRec = firstID + uint64(res.count) - 1
		j.lastChecksum = res.checksum
		return nil
	}
}

// FinishWriting closes the current segment. Uncommitted records are lost.
func (j *Journal) FinishWriting() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	err := j.finishWriting_locked()
	if j.writeErr != nil {
		return j.writeErr
	}
	return err
}

func (j *Journal) finishWriting_locked() error {
	j.writable = false
	if j.segWriter != nil {
		err := j.segWriter.close()
		j.segWriter = nil
		return err
	}
	return nil
}

func (j *Journal) fail(err error) error {
	if err == nil {
		return nil
	}

	j.logger.LogAttrs(j.context, slog.LevelError, "journal: failed", slog.String("jrnl", j.debugName), slog.Any("err", err))

	j.finishWriting_locked()

	if j.writeErr == nil {
		j.writeErr = err
	}
	return err
}

func (j *Journal) openFile(name string, writable bool) (*os.File, error) {
	fn := filepath.Join(j.dir, name)
	if writable {
		return os.OpenFile(fn, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	} else {
		return os.Open(fn)
	}
}

// segmentNames lists segment files in order.
func (j *Journal) segmentNames() ([]string, error) {
	ents, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range ents {
		if err := j.context.Err(); err != nil {
			return nil, err
		}
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		if !strings.HasPrefix(name, j.fileNamePrefix) {
			continue
		}
		if !strings.HasSuffix(name, j.fileNameSuffix) {
			continue
		}
		if len(name) < len(j.fileNamePrefix)+len(j.fileNameSuffix) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// SegmentNames returns the names of the segment files, oldest first.
func (j *Journal) SegmentNames() ([]string, error) {
	return j.segmentNames()
}

func (j *Journal) parseFileName(name string) (seq, ts uint32, id uint64, err error) {
	core := strings.TrimSuffix(strings.TrimPrefix(name, j.fileNamePrefix), j.fileNameSuffix)
	return parseSegmentName(core)
}

// WriteRecord appends a record to the current transaction. A zero timestamp
// means now.
func (j *Journal) WriteRecord(timestamp uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	if j.writeErr != nil {
		return j.writeErr
	}
	if !j.writable {
		return ErrReadOnly
	}

	if timestamp == 0 {
		timestamp = j.Now()
	}

	if sw := j.segWriter; sw != nil && !sw.uncommitted && sw.size >= j.maxFileSize {
		if err := j.rotate_locked(); err != nil {
			return j.fail(err)
		}
	}

	j.writeRec++

	if j.segWriter == nil {
		j.writeSeg++

		sw, err := startSegment(j, j.writeSeg, timestamp, j.writeRec)
		if err != nil {
			return j.fail(err)
		}
		j.segWriter = sw
		if j.verbose {
			j.logger.LogAttrs(j.context, slog.LevelDebug, "journal: started segment", slog.String("jrnl", j.debugName), slog.String("file", sw.f.Name()))
		}
	}

	payload, flags := data, byte(0)
	if j.compress {
		j.compBuf = snappy.Encode(j.compBuf[:cap(j.compBuf)], data)
		if len(j.compBuf) < len(data) {
			payload, flags = j.compBuf, recordFlagCompressed
		}
	}

	return j.fail(j.segWriter.writeRecord(timestamp, flags, payload))
}

// Commit ends the current transaction, making its records visible to
// readers.
func (j *Journal) Commit() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	if j.segWriter == nil {
		return nil
	}
	sum, err := j.segWriter.commit()
	if err != nil {
		return j.fail(err)
	}
	j.lastChecksum = sum
	if j.sync {
		if err := mmap.Fdatasync(j.segWriter.f); err != nil {
			return j.fail(err)
		}
	}
	return nil
}

// Rotate closes the current segment so that the next record starts a new
// one. Fails with ErrUncommitted inside a transaction.
func (j *Journal) Rotate() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	if j.segWriter != nil && j.segWriter.uncommitted {
		return ErrUncommitted
	}
	return j.fail(j.rotate_locked())
}

func (j *Journal) rotate_locked() error {
	if j.segWriter == nil {
		return nil
	}
	err := j.segWriter.close()
	j.segWriter = nil
	return err
}

func decodeHeader(buf []byte, h *segmentHeader) error {
	if len(buf) < segmentHeaderSize {
		return errCorruptedFile
	}
	n, err := binary.Decode(buf[:segmentHeaderSize], binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != segmentHeaderSize {
		panic("internal size mismatch")
	}
	if h.Magic != magic {
		return errCorruptedFile
	}
	if xxhash.Sum64(buf[:segmentHeaderSize-8]) != h.Checksum {
		return errCorruptedFile
	}
	return nil
}

func (j *Journal) checkHeader(h *segmentHeader, expectedSeq uint32) error {
	if expectedSeq != h.SegmentOrdinal {
		return errCorruptedFile
	}
	if h.Version > version0 {
		return ErrUnsupportedVersion
	}
	if h.JournalInvariant != j.journalInvariant {
		return ErrIncompatible
	}
	if ((h.Flags & segFlagAligned) != 0) != j.aligned {
		return ErrIncompatible
	}
	return nil
}

type segmentWriter struct {
	f           *os.File
	seg         uint32
	ts          uint32
	size        int64
	hash        xxhash.Digest
	uncommitted bool
}

func startSegment(j *Journal, seg, ts uint32, rec uint64) (*segmentWriter, error) {
	name := formatSegmentName(j.fileNamePrefix, j.fileNameSuffix, seg, ts, rec)

	f, err := j.openFile(name, true)
	if err != nil {
		return nil, err
	}

	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	sw := &segmentWriter{
		f:    f,
		seg:  seg,
		ts:   ts,
		size: segmentHeaderSize,
	}
	sw.hash.Reset()

	var hbuf [segmentHeaderSize]byte
	fillSegmentHeader(hbuf[:], j, seg, ts, &sw.hash)

	_, err = f.Write(hbuf[:])
	if err != nil {
		return nil, err
	}

	ok = true
	return sw, nil
}

const maxRecHeaderLen = binary.MaxVarintLen64 + binary.MaxVarintLen32

func (sw *segmentWriter) writeRecord(ts uint32, flags byte, data []byte) error {
	var tsDelta uint32
	if ts > sw.ts {
		tsDelta = ts - sw.ts
		sw.ts = ts
	}
	sw.uncommitted = true

	var hbuf [maxRecHeaderLen]byte
	h := appendRecordHeader(hbuf[:0], len(data), flags, tsDelta)

	sw.hash.Write(h)
	_, err := sw.f.Write(h)
	if err != nil {
		return err
	}

	sw.hash.Write(data)
	_, err = sw.f.Write(data)
	if err != nil {
		return err
	}

	sw.size += int64(len(h) + len(data))
	return nil
}

func (sw *segmentWriter) commit() (uint64, error) {
	if !sw.uncommitted {
		return 0, nil
	}
	sw.uncommitted = false

	var buf [commitSize]byte
	binary.LittleEndian.PutUint64(buf[:], sw.hash.Sum64())
	buf[0] |= recordFlagCommit

	sw.hash.Write(buf[:])
	_, err := sw.f.Write(buf[:])
	if err != nil {
		return 0, err
	}
	sw.size += commitSize

	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (sw *segmentWriter) close() error {
	if sw.f == nil {
		return nil
	}
	err := sw.f.Close()
	sw.f = nil
	return err
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

func fillSegmentHeader(buf []byte, j *Journal, seg, ts uint32, hash *xxhash.Digest) {
	h := segmentHeader{
		Magic:            magic,
		Version:          version0,
		SegmentOrdinal:   seg,
		Timestamp:        ts,
		PrevChecksum:     j.lastChecksum,
		JournalInvariant: j.journalInvariant,
		SegmentInvariant: j.segmentInvariant,
	}
	if j.aligned {
		h.Flags |= segFlagAligned
	}

	n, err := binary.Encode(buf[:], binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}

	hash.Write(buf[:segmentHeaderSize-8])
	binary.LittleEndian.PutUint64(buf[segmentHeaderSize-8:], hash.Sum64())
	hash.Write(buf[segmentHeaderSize-8 : segmentHeaderSize])
}

func appendRecordHeader(b []byte, size int, flags byte, tsDelta uint32) []byte {
	b = binary.AppendUvarint(b, uint64(size)<<recordFlagShift|uint64(flags))
	b = binary.AppendUvarint(b, uint64(tsDelta))
	return b
}

func formatSegmentName(prefix, suffix string, seq, ts uint32, id uint64) string {
	t := time.Unix(int64(uint64(ts)), 0).UTC()
	return fmt.Sprintf("%s%012d-%s-%016x%s", prefix, seq, t.Format(timestampFmt), id, suffix)
}

func parseSegmentName(name string) (seq, ts uint32, id uint64, err error) {
	seqStr, rem, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	v, err := strconv.ParseUint(seqStr, 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q (invalid segment number)", name)
	}
	seq = uint32(v)

	tsStr, idStr, ok := strings.Cut(rem, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	t, err := time.ParseInLocation(timestampFmt, tsStr, time.UTC)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid timestamp)", name)
	}
	ts = uint32(t.Unix())

	id, err = strconv.ParseUint(idStr, 16, 64)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid record identifier)", name)
	}
	return
}
