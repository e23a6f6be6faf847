package mmap

import (
	"errors"
	"fmt"
	"os"
)

// File is a whole file mapped into memory for reading.
type File struct {
	f    *os.File
	Data []byte
}

// Open maps the file at path read-only. An empty file yields an empty Data
// without creating a mapping.
func Open(path string, opt Options) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := st.Size()
	if size > MaxSize {
		f.Close()
		return nil, fmt.Errorf("%s: file too large to map (%d bytes)", path, size)
	}
	m := &File{f: f}
	if size > 0 {
		m.Data, err = mmap(f, int(size), opt)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: mmap: %w", path, err)
		}
	}
	return m, nil
}

// Close unmaps the data and closes the file. Data must not be used
// afterwards.
func (m *File) Close() error {
	var err error
	if m.Data != nil {
		err = munmap(m.Data)
		m.Data = nil
	}
	if m.f != nil {
		err = errors.Join(err, m.f.Close())
		m.f = nil
	}
	return err
}
