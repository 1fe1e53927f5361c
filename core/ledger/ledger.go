package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"ehrchain/core/block"
	"ehrchain/core/storage"
)

const (
	blockPrefix = "block:"
	hashPrefix  = "hash:"
	tipKey      = "meta:tip"

	defaultCacheSize = 1024
)

func blockKey(index uint64) string {
	return fmt.Sprintf("%s%020d", blockPrefix, index)
}

func hashKey(hash string) string {
	return hashPrefix + hash
}

// Options configures a Ledger.
type Options struct {
	Genesis   *block.Block
	CacheSize int
	Logger    zerolog.Logger
}

// Ledger is the append-only block store. Append is serialized by a mutex; reads only load the
// atomically published tail and never take the append lock.
type Ledger struct {
	backend storage.Backend
	cache   *lru.Cache
	log     zerolog.Logger

	mu   sync.Mutex
	tail atomic.Pointer[block.Block]
}

// Open loads the ledger from backend, committing opts.Genesis if the backend is empty.
func Open(backend storage.Backend, opts Options) (*Ledger, error) {
	if opts.Genesis == nil {
		return nil, errors.New("ledger: genesis block is required")
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create block cache: %w", err)
	}
	l := &Ledger{
		backend: backend,
		cache:   cache,
		log:     opts.Logger.With().Str("component", "ledger").Logger(),
	}

	tip, err := readTip(backend)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		if err := l.commit(opts.Genesis); err != nil {
			return nil, fmt.Errorf("commit genesis: %w", err)
		}
		l.log.Info().Str("hash", opts.Genesis.BlockHash).Msg("genesis committed")
		return l, nil
	case err != nil:
		return nil, err
	}

	stored, err := l.load(0)
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	if stored.BlockHash != opts.Genesis.BlockHash {
		return nil, fmt.Errorf("%w: stored %s, configured %s", ErrGenesisMismatch, stored.BlockHash, opts.Genesis.BlockHash)
	}
	tail, err := l.load(tip)
	if err != nil {
		return nil, fmt.Errorf("load tail %d: %w", tip, err)
	}
	l.tail.Store(tail)
	l.log.Info().Uint64("height", tip).Str("tail", tail.BlockHash).Msg("ledger opened")
	return l, nil
}

// Append commits b as the new tail and returns its index.
func (l *Ledger) Append(b *block.Block) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tail := l.tail.Load()
	if b.Index != tail.Index+1 {
		return 0, fmt.Errorf("%w: index %d, expected %d", ErrChainViolation, b.Index, tail.Index+1)
	}
	if b.PrevHash != tail.BlockHash {
		return 0, fmt.Errorf("%w: prevHash %s does not match tail %s", ErrChainViolation, b.PrevHash, tail.BlockHash)
	}
	if err := b.CheckHashes(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrChainViolation, err)
	}
	if err := l.commit(b); err != nil {
		return 0, err
	}
	l.log.Debug().Uint64("index", b.Index).Str("kind", string(b.Kind)).Str("signer", b.Signer).Msg("block appended")
	return b.Index, nil
}

// commit writes b with its index keys in one batch and then publishes it as the tail.
func (l *Ledger) commit(b *block.Block) error {
	b = clone(b)
	data, err := b.Serialize()
	if err != nil {
		return fmt.Errorf("serialize block %d: %w", b.Index, err)
	}
	idx := []byte(strconv.FormatUint(b.Index, 10))
	if err := l.backend.WriteBatch(map[string][]byte{
		blockKey(b.Index):    data,
		hashKey(b.BlockHash): idx,
		tipKey:               idx,
	}); err != nil {
		return fmt.Errorf("write block %d: %w", b.Index, err)
	}
	l.cache.Add(b.Index, b)
	l.tail.Store(b)
	return nil
}

// Get returns the block at index.
func (l *Ledger) Get(index uint64) (*block.Block, error) {
	if index >= l.Len() {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	if v, ok := l.cache.Get(index); ok {
		return clone(v.(*block.Block)), nil
	}
	b, err := l.load(index)
	if err != nil {
		return nil, err
	}
	l.cache.Add(index, b)
	return clone(b), nil
}

// GetByHash returns the block whose hash is hash.
func (l *Ledger) GetByHash(hash string) (*block.Block, error) {
	raw, err := l.backend.Get(hashKey(hash))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: hash %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	index, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt hash index for %s: %w", hash, err)
	}
	return l.Get(index)
}

// Range returns blocks in [from, to). to is clamped to Len.
func (l *Ledger) Range(from, to uint64) ([]*block.Block, error) {
	if n := l.Len(); to > n {
		to = n
	}
	if from >= to {
		return nil, nil
	}
	out := make([]*block.Block, 0, to-from)
	for i := from; i < to; i++ {
		b, err := l.Get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Len is the number of committed blocks, genesis included.
func (l *Ledger) Len() uint64 {
	return l.tail.Load().Index + 1
}

// Tail returns the last committed block.
func (l *Ledger) Tail() *block.Block {
	return clone(l.tail.Load())
}

// Stored returns a reader over the committed blocks that bypasses the cache, so integrity checks
// see what is on disk.
func (l *Ledger) Stored() *Reader {
	return &Reader{backend: l.backend, length: l.Len()}
}

// StoredTail reloads the tail from the backend and checks it against the published tail.
func (l *Ledger) StoredTail() (*block.Block, error) {
	tail := l.tail.Load()
	stored, err := l.load(tail.Index)
	if err != nil {
		return nil, err
	}
	if err := stored.CheckHashes(); err != nil {
		return stored, err
	}
	if stored.BlockHash != tail.BlockHash {
		return stored, fmt.Errorf("stored tail %s does not match %s", stored.BlockHash, tail.BlockHash)
	}
	return stored, nil
}

// Close releases the backend.
func (l *Ledger) Close() error {
	return l.backend.Close()
}

func (l *Ledger) load(index uint64) (*block.Block, error) {
	return loadBlock(l.backend, index)
}

func loadBlock(backend storage.Backend, index uint64) (*block.Block, error) {
	data, err := backend.Get(blockKey(index))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	if err != nil {
		return nil, err
	}
	b, err := block.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("decode block %d: %w", index, err)
	}
	return b, nil
}

func readTip(backend storage.Backend) (uint64, error) {
	raw, err := backend.Get(tipKey)
	if err != nil {
		return 0, err
	}
	tip, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt tip %q: %w", raw, err)
	}
	return tip, nil
}

func clone(b *block.Block) *block.Block {
	c := *b
	c.Payload = append([]byte(nil), b.Payload...)
	c.Signature = append([]byte(nil), b.Signature...)
	return &c
}
