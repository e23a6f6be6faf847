package edict

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/andreyvit/edict/mmap"
)

type WriteFileOptions struct {
	// Perm defaults to 0644.
	Perm os.FileMode

	// Sync flushes the data to stable storage before returning.
	Sync bool

	// Atomic writes into a temporary file next to path and renames it over
	// path, so readers never observe a partial message.
	Atomic bool
}

// WriteFile serializes d into the file at path.
func (d *Dictionary) WriteFile(path string, opt WriteFileOptions) error {
	if opt.Perm == 0 {
		opt.Perm = 0o644
	}
	bp := fileBytesPool.Get().(*[]byte)
	data, err := d.Serialize(*bp)
	if err != nil {
		fileBytesPool.Put(bp)
		return fmt.Errorf("%s: %w", path, err)
	}
	defer func() {
		*bp = data[:0]
		fileBytesPool.Put(bp)
	}()

	target := path
	if opt.Atomic {
		target = filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, opt.Perm)
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		if !ok {
			f.Close()
			if opt.Atomic {
				os.Remove(target)
			}
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if opt.Sync {
		if err := mmap.Fdatasync(f); err != nil {
			return fmt.Errorf("%s: fdatasync: %w", target, err)
		}
	}
	ok = true
	if err := f.Close(); err != nil {
		return err
	}
	if opt.Atomic {
		if err := os.Rename(target, path); err != nil {
			os.Remove(target)
			return err
		}
	}
	return nil
}

// ReadFile extends d with the message stored in the file at path. The file is
// memory-mapped for the duration of the call. Unlike Extend, malformed data
// is returned as an error (and still reported as EventParseError).
func (d *Dictionary) ReadFile(path string) error {
	m, err := mmap.Open(path, mmap.SequentialAccess)
	if err != nil {
		return err
	}
	defer m.Close()

	n, err := Parse(m.Data)
	if err != nil {
		d.environment().report(Event{Kind: EventParseError, Err: err})
		return fmt.Errorf("%s: %w", path, err)
	}
	return d.ExtendNode(n)
}

// Load reads a dictionary from a file written by WriteFile.
func Load(path string, opt Options) (*Dictionary, error) {
	d := New(opt)
	if err := d.ReadFile(path); err != nil {
		return nil, err
	}
	return d, nil
}
