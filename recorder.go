package edict

import (
	"os"
	"sync"

	"github.com/andreyvit/edict/journal"
)

// Recorder appends dictionary snapshots to a journal, one committed record
// per snapshot.
type Recorder struct {
	j   *journal.Journal
	mut sync.Mutex
	buf []byte
}

// NewRecorder opens the journal in dir for writing, creating dir if needed.
func NewRecorder(dir string, opt journal.Options) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if opt.DebugName == "" {
		opt.DebugName = "recorder"
	}
	j := journal.New(dir, opt)
	j.StartWriting()
	return &Recorder{j: j}, nil
}

func (r *Recorder) Journal() *journal.Journal {
	return r.j
}

// Record serializes d and appends it as a committed record. A zero timestamp
// means now.
func (r *Recorder) Record(d *Dictionary, timestamp uint32) error {
	r.mut.Lock()
	defer r.mut.Unlock()

	data, err := d.Serialize(r.buf)
	if err != nil {
		return err
	}
	r.buf = data[:0]
	if err := r.j.WriteRecord(timestamp, data); err != nil {
		return err
	}
	return r.j.Commit()
}

func (r *Recorder) Close() error {
	return r.j.FinishWriting()
}

// Replay reads every snapshot in the journal in order, extending a fresh
// dictionary from each one. Malformed snapshots produce empty dictionaries
// and EventParseError.
func Replay(j *journal.Journal, opt Options, fn func(rec *journal.Record, d *Dictionary) error) error {
	return j.Read(func(rec *journal.Record) error {
		d := New(opt)
		if err := d.Extend(rec.Data); err != nil {
			return err
		}
		return fn(rec, d)
	})
}
