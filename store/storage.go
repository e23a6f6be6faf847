package store

// storage is a key-value backend: Bolt on disk, or an in-memory map for
// tests.
type storage interface {
	// BeginTx starts a new transaction.
	BeginTx(writable bool) (storageTx, error)
	// Close closes the storage.
	Close() error
}

type storageTx interface {
	Writable() bool

	// Bucket returns nil if the bucket doesn't exist.
	Bucket(name string) storageBucket

	// CreateBucket creates a bucket if it doesn't exist.
	CreateBucket(name string) (storageBucket, error)

	Commit() error

	// Rollback aborts the transaction. It is safe to call after Commit.
	Rollback() error
}

// storageBucket is a sorted key-value collection. Slices returned by Get and
// cursors are only valid until the transaction ends.
type storageBucket interface {
	// Get returns nil if key is not found.
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error
	Cursor() storageCursor
	Stats() bucketStats
}

type bucketStats struct {
	Keys int
	// InUse is the number of bytes occupied by keys, values and page headers.
	InUse int
	// Alloc is the number of bytes allocated to the bucket's pages.
	Alloc int
}

type storageCursor interface {
	First() (key, value []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
}
