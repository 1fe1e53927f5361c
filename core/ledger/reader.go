package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ehrchain/core/block"
	"ehrchain/core/storage"
)

// Reader reads committed blocks straight from a backend without checking genesis or caching.
// It is meant for offline tools that must look at stores Open would refuse.
type Reader struct {
	backend storage.Backend
	length  uint64
}

// NewReader returns a reader over the blocks committed in backend. An empty backend has length 0.
func NewReader(backend storage.Backend) (*Reader, error) {
	tip, err := readTip(backend)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return &Reader{backend: backend}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Reader{backend: backend, length: tip + 1}, nil
}

func (r *Reader) Len() uint64 {
	return r.length
}

func (r *Reader) Get(index uint64) (*block.Block, error) {
	if index >= r.length {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return loadBlock(r.backend, index)
}

// Orphans returns the indices of stored blocks at or past Len. A committed store has none;
// they appear when blocks are written around the ledger.
func (r *Reader) Orphans() ([]uint64, error) {
	var out []uint64
	err := r.backend.Iterate(blockPrefix, func(key string, _ []byte) error {
		index, err := strconv.ParseUint(strings.TrimPrefix(key, blockPrefix), 10, 64)
		if err != nil {
			return fmt.Errorf("malformed block key %q", key)
		}
		if index >= r.length {
			out = append(out, index)
		}
		return nil
	})
	return out, err
}

// Overwrite replaces the stored bytes of the block at index. It bypasses every chain check and
// exists for tamper drills and tests.
func Overwrite(backend storage.Backend, b *block.Block) error {
	data, err := b.Serialize()
	if err != nil {
		return err
	}
	return backend.Put(blockKey(b.Index), data)
}
