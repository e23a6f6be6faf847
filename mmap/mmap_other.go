//go:build !unix

package mmap

import (
	"io"
	"os"
)

// mmap reads the file into memory where mapping is not implemented.
func mmap(f *os.File, size int, _ Options) ([]byte, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, err
	}
	return b, nil
}

func munmap([]byte) error {
	return nil
}
