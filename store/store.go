// Package store keeps named dictionary snapshots in a Bolt database.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/andreyvit/edict"
)

var ErrNotFound = errors.New("snapshot not found")

const DefaultBucket = "snapshots"

type Options struct {
	// Bucket holds the snapshots. Defaults to DefaultBucket.
	Bucket string

	// Dict configures the dictionaries returned by Load.
	Dict edict.Options

	// Logger defaults to Dict.Logger, then slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// Compress stores snapshots snappy-compressed.
	Compress bool

	// IsTesting disables fsync for speed.
	IsTesting bool

	// MmapSize is the initial Bolt mmap size.
	MmapSize int
}

// Info describes a stored snapshot.
type Info struct {
	Name    string
	SavedAt time.Time
	// Version starts at 1 and increments on every save under the same name.
	Version    uint64
	Size       int
	Compressed bool
}

type Store struct {
	st     storage
	bucket string
	opt    Options
	logger *slog.Logger
	buf    []byte
}

// Open opens or creates a Bolt-backed store at path.
func Open(path string, opt Options) (*Store, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return newStore(newBoltStorage(bdb), opt), nil
}

// OpenMemory returns a transient store kept in memory.
func OpenMemory(opt Options) *Store {
	return newStore(newMemStorage(), opt)
}

func newStore(st storage, opt Options) *Store {
	if opt.Bucket == "" {
		opt.Bucket = DefaultBucket
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	logger := opt.Logger
	if logger == nil {
		logger = opt.Dict.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		st:     st,
		bucket: opt.Bucket,
		opt:    opt,
		logger: logger,
	}
}

func (s *Store) Close() error {
	return s.st.Close()
}

func (s *Store) read(f func(b storageBucket) error) error {
	tx, err := s.st.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx.Bucket(s.bucket))
}

func (s *Store) write(f func(b storageBucket) error) error {
	tx, err := s.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	b, err := tx.CreateBucket(s.bucket)
	if err != nil {
		return err
	}
	if err := f(b); err != nil {
		return err
	}
	return tx.Commit()
}

// Save serializes d under name, replacing the previous snapshot.
func (s *Store) Save(name string, d *edict.Dictionary) (Info, error) {
	var info Info
	err := s.write(func(b storageBucket) error {
		var err error
		info, err = s.put(b, name, d)
		return err
	})
	return info, err
}

// put runs inside the write transaction, which serializes access to s.buf.
func (s *Store) put(b storageBucket, name string, d *edict.Dictionary) (Info, error) {
	msg, err := d.Serialize(s.buf)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", name, err)
	}
	s.buf = msg[:0]

	key := unsafeBytesFromString(name)
	vle := value{Version: 1}
	if old := b.Get(key); old != nil {
		var prev value
		if err := prev.decode(old); err != nil {
			s.logger.LogAttrs(context.Background(), slog.LevelWarn, "store: overwriting invalid snapshot", slog.String("name", name), slog.Any("err", err))
		} else {
			vle.Version = prev.Version + 1
		}
	}
	now := s.opt.Now()
	vle.SavedAt = uint64(now.Unix())

	raw := vle.encode(nil, msg, s.opt.Compress)
	if err := b.Put(key, raw); err != nil {
		return Info{}, err
	}
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: saved", slog.String("name", name), slog.Uint64("version", vle.Version), slog.Int("size", len(raw)))
	return Info{
		Name:       name,
		SavedAt:    time.Unix(now.Unix(), 0),
		Version:    vle.Version,
		Size:       len(raw),
		Compressed: s.opt.Compress,
	}, nil
}

// Load returns a new dictionary extended from the snapshot stored under name.
// Corrupted snapshots are returned as errors.
func (s *Store) Load(name string) (*edict.Dictionary, error) {
	d := edict.New(s.opt.Dict)
	if err := s.apply(name, d.ExtendNode); err != nil {
		return nil, err
	}
	return d, nil
}

// Merge extends d with the snapshot stored under name, keeping its existing
// keys.
func (s *Store) Merge(name string, d *edict.Dictionary) error {
	return s.apply(name, d.ExtendNode)
}

// Refresh updates the values already present in d from the snapshot stored
// under name. Keys absent from d are ignored.
func (s *Store) Refresh(name string, d *edict.Dictionary) error {
	return s.apply(name, d.UpdateNode)
}

func (s *Store) apply(name string, f func(n *edict.Node) error) error {
	return s.read(func(b storageBucket) error {
		n, err := s.get(b, name)
		if err != nil {
			return err
		}
		return f(n)
	})
}

func (s *Store) get(b storageBucket, name string) (*edict.Node, error) {
	var raw []byte
	if b != nil {
		raw = b.Get(unsafeBytesFromString(name))
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	var vle value
	if err := vle.decode(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	msg, err := vle.message()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	n, err := edict.Parse(msg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// Modify loads the snapshot stored under name (or starts from an empty
// dictionary if there is none), calls f and saves the result, all within one
// write transaction.
func (s *Store) Modify(name string, f func(d *edict.Dictionary) error) (Info, error) {
	var info Info
	err := s.write(func(b storageBucket) error {
		d := edict.New(s.opt.Dict)
		n, err := s.get(b, name)
		if err == nil {
			err = d.ExtendNode(n)
		} else if errors.Is(err, ErrNotFound) {
			err = nil
		}
		if err != nil {
			return err
		}
		if err := f(d); err != nil {
			return err
		}
		info, err = s.put(b, name, d)
		return err
	})
	return info, err
}

// Delete removes the snapshot stored under name, returning whether it
// existed.
func (s *Store) Delete(name string) (bool, error) {
	var found bool
	err := s.write(func(b storageBucket) error {
		key := unsafeBytesFromString(name)
		found = b.Get(key) != nil
		if !found {
			return nil
		}
		return b.Delete(key)
	})
	return found, err
}

// Info describes the snapshot stored under name.
func (s *Store) Info(name string) (Info, error) {
	var info Info
	err := s.read(func(b storageBucket) error {
		var raw []byte
		if b != nil {
			raw = b.Get(unsafeBytesFromString(name))
		}
		if raw == nil {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		var err error
		info, err = describe(name, raw)
		return err
	})
	return info, err
}

// List describes all snapshots whose names start with prefix, sorted by
// name.
func (s *Store) List(prefix string) ([]Info, error) {
	var result []Info
	err := s.scan(prefix, func(name string, raw []byte) error {
		info, err := describe(name, raw)
		if err != nil {
			s.logger.LogAttrs(context.Background(), slog.LevelWarn, "store: skipping invalid snapshot", slog.String("name", name), slog.Any("err", err))
			return nil
		}
		result = append(result, info)
		return nil
	})
	return result, err
}

// Names returns the sorted names of all snapshots that start with prefix.
func (s *Store) Names(prefix string) ([]string, error) {
	var result []string
	err := s.scan(prefix, func(name string, raw []byte) error {
		result = append(result, name)
		return nil
	})
	return result, err
}

// Count returns the number of stored snapshots.
func (s *Store) Count() (int, error) {
	var n int
	err := s.read(func(b storageBucket) error {
		if b != nil {
			n = b.Stats().Keys
		}
		return nil
	})
	return n, err
}

// Stats summarizes the contents of the store.
type Stats struct {
	Snapshots  int
	Compressed int
	Invalid    int

	// ValueSize is the total size of all stored snapshots.
	ValueSize int
	// DataSize and DataAlloc are the bytes used and allocated by the backend.
	DataSize  int
	DataAlloc int
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.read(func(b storageBucket) error {
		if b == nil {
			return nil
		}
		bs := b.Stats()
		st.DataSize = bs.InUse
		st.DataAlloc = bs.Alloc

		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			st.Snapshots++
			st.ValueSize += len(v)
			var vle value
			if err := vle.decode(v); err != nil {
				st.Invalid++
			} else if vle.compressed() {
				st.Compressed++
			}
		}
		return nil
	})
	return st, err
}

func (s *Store) scan(prefix string, f func(name string, raw []byte) error) error {
	return s.read(func(b storageBucket) error {
		if b == nil {
			return nil
		}
		p := unsafeBytesFromString(prefix)
		c := b.Cursor()
		var k, v []byte
		if prefix == "" {
			k, v = c.First()
		} else {
			k, v = c.Seek(p)
		}
		for ; k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := f(string(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func describe(name string, raw []byte) (Info, error) {
	var vle value
	if err := vle.decode(raw); err != nil {
		return Info{}, fmt.Errorf("%s: %w", name, err)
	}
	return Info{
		Name:       name,
		SavedAt:    time.Unix(int64(vle.SavedAt), 0),
		Version:    vle.Version,
		Size:       len(raw),
		Compressed: vle.compressed(),
	}, nil
}
