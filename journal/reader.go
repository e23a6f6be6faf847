package journal

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"

	"github.com/andreyvit/edict/mmap"
)

// Record is one committed record.
type Record struct {
	ID        uint64
	Segment   uint32
	Timestamp uint32

	// Data is only valid during the callback that receives the record.
	Data []byte
}

func (r *Record) Time() time.Time {
	return time.Unix(int64(r.Timestamp), 0).UTC()
}

type scanResult struct {
	size     int    // file size
	end      int    // offset just past the last valid commit, 0 if the header is invalid
	count    int    // committed records
	checksum uint64 // last commit checksum
}

type pendingRecord struct {
	off, size int
	flags     byte
	ts        uint32
}

// Read calls fn for every committed record, oldest first. A corrupted or
// uncommitted tail of a segment is logged and skipped. An error returned by
// fn stops the iteration and is returned.
func (j *Journal) Read(fn func(rec *Record) error) error {
	j.waitPrepared()
	names, err := j.segmentNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := j.context.Err(); err != nil {
			return err
		}
		seq, _, firstID, err := j.parseFileName(name)
		if err != nil {
			j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: skipping file", slog.String("jrnl", j.debugName), slog.String("file", name), slog.Any("err", err))
			continue
		}
		res, err := j.scanFile(name, seq, firstID, fn)
		if err == errCorruptedFile {
			j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: corrupted segment tail", slog.String("jrnl", j.debugName), slog.String("file", name), slog.Int("size", res.size), slog.Int("valid", res.end), slog.Int("records", res.count))
			continue
		} else if err != nil {
			return err
		}
	}
	return nil
}

// waitPrepared blocks while StartWriting is still recovering the last
// segment, which may truncate it.
func (j *Journal) waitPrepared() {
	j.writeLock.Lock()
	j.writeLock.Unlock()
}

func (j *Journal) scanFile(name string, seq uint32, firstID uint64, fn func(rec *Record) error) (scanResult, error) {
	m, err := mmap.Open(filepath.Join(j.dir, name), mmap.SequentialAccess)
	if err != nil {
		return scanResult{}, err
	}
	defer m.Close()
	return j.scanSegment(m.Data, seq, firstID, fn)
}

// scanSegment walks the transactions of one segment, delivering the records
// of each one after verifying its commit checksum.
func (j *Journal) scanSegment(data []byte, seq uint32, firstID uint64, fn func(rec *Record) error) (scanResult, error) {
	res := scanResult{size: len(data)}

	var h segmentHeader
	if err := decodeHeader(data, &h); err != nil {
		return res, err
	}
	if err := j.checkHeader(&h, seq); err != nil {
		return res, err
	}
	res.end = segmentHeaderSize

	var hash xxhash.Digest
	hash.Reset()
	hash.Write(data[:segmentHeaderSize])

	ts := h.Timestamp
	var pending []pendingRecord
	var rec Record
	var decompBuf []byte
	off := segmentHeaderSize
	for off < len(data) {
		if data[off]&recordFlagCommit != 0 {
			if len(data)-off < commitSize {
				return res, errCorruptedFile
			}
			stored := binary.LittleEndian.Uint64(data[off:])
			if stored != hash.Sum64()|uint64(recordFlagCommit) {
				return res, errCorruptedFile
			}
			hash.Write(data[off : off+commitSize])
			off += commitSize

			for _, p := range pending {
				if fn != nil {
					payload := data[p.off : p.off+p.size]
					if p.flags&recordFlagCompressed != 0 {
						var err error
						decompBuf, err = snappy.Decode(decompBuf[:cap(decompBuf)], payload)
						if err != nil {
							return res, fmt.Errorf("%v: segment %d record %d: %w", j.debugName, seq, firstID+uint64(res.count), err)
						}
						payload = decompBuf
					}
					rec = Record{
						ID:        firstID + uint64(res.count),
						Segment:   seq,
						Timestamp: p.ts,
						Data:      payload,
					}
					if err := fn(&rec); err != nil {
						return res, err
					}
				}
				res.count++
			}
			pending = pending[:0]
			res.end = off
			res.checksum = stored
			continue
		}

		sizeAndFlags, n1 := binary.Uvarint(data[off:])
		if n1 <= 0 {
			return res, errCorruptedFile
		}
		tsDelta, n2 := binary.Uvarint(data[off+n1:])
		if n2 <= 0 || tsDelta > math.MaxUint32 {
			return res, errCorruptedFile
		}
		start := off + n1 + n2
		size := sizeAndFlags >> recordFlagShift
		if size > uint64(len(data)-start) {
			return res, errCorruptedFile
		}
		hash.Write(data[off : start+int(size)])
		ts += uint32(tsDelta)
		pending = append(pending, pendingRecord{
			off:   start,
			size:  int(size),
			flags: byte(sizeAndFlags) & (1<<recordFlagShift - 1),
			ts:    ts,
		})
		off = start + int(size)
	}
	if len(pending) > 0 {
		return res, errCorruptedFile
	}
	return res, nil
}
