// Package mmap maps whole files into memory for reading.
package mmap

import "os"

// Options are access hints passed to Open.
type Options uint

const (
	// SequentialAccess requests aggressive read-ahead (MADV_SEQUENTIAL).
	// Incompatible with RandomAccess.
	SequentialAccess Options = 1 << iota

	// RandomAccess disables most read-ahead (MADV_RANDOM).
	RandomAccess

	// Prefault loads the whole file up front (MAP_POPULATE on Linux).
	Prefault
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// MaxSize is the largest file Open will map. Dictionary messages and journal
// segments stay far below it.
const MaxSize = 1<<31 - 1

// Fdatasync flushes the data written to f to stable storage, skipping
// metadata that durability does not depend on.
//
// A failed fdatasync cannot be retried: the kernel may already have marked
// the dirty pages clean. Callers should treat the file as corrupted.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}
