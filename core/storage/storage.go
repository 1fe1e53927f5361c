package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = errors.New("storage: key not found")

// Backend abstracts the persistent key-value store under the ledger.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	// WriteBatch commits all entries atomically or none of them.
	WriteBatch(entries map[string][]byte) error
	// Iterate calls fn for every key with the prefix, in key order.
	Iterate(prefix string, fn func(key string, value []byte) error) error
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindLevelDB = "leveldb"
	KindBadger  = "badger"
	KindMemory  = "memory"
)

// Open returns the backend of the given kind rooted at path.
func Open(kind, path string) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", KindLevelDB:
		return NewLevelDB(path)
	case KindBadger:
		return NewBadger(path)
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// LevelDB is the default on-disk backend.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Get retrieves a value by key from LevelDB.
func (s *LevelDB) Get(key string) ([]byte, error) {
	v, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return v, err
}

// Put stores a key-value pair in LevelDB.
func (s *LevelDB) Put(key string, value []byte) error {
	return s.db.Put([]byte(key), value, nil)
}

func (s *LevelDB) WriteBatch(entries map[string][]byte) error {
	batch := new(leveldb.Batch)
	for k, v := range entries {
		batch.Put([]byte(k), v)
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDB) Iterate(prefix string, fn func(key string, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		value := append([]byte{}, iter.Value()...)
		if err := fn(string(iter.Key()), value); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}
