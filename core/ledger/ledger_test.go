package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ehrchain/core/block"
	"ehrchain/core/genesis"
	"ehrchain/core/storage"
)

func newTestLedger(t *testing.T, backend storage.Backend) *Ledger {
	t.Helper()
	g, err := genesis.Block(genesis.Config{})
	require.NoError(t, err)
	l, err := Open(backend, Options{Genesis: g, CacheSize: 8, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return l
}

func next(l *Ledger, payload string) *block.Block {
	return block.New(l.Tail(), time.Now(), block.KindRecord, []byte(payload))
}

func TestOpenCommitsGenesis(t *testing.T) {
	l := newTestLedger(t, storage.NewMemory())
	require.Equal(t, uint64(1), l.Len())

	g, err := l.Get(0)
	require.NoError(t, err)
	assert.Equal(t, block.GenesisPrevHash, g.PrevHash)
	assert.Equal(t, block.KindGenesis, g.Kind)
}

func TestAppendAndGet(t *testing.T) {
	l := newTestLedger(t, storage.NewMemory())
	b := next(l, "first")
	idx, err := l.Append(b)
	require.NoError(t, err)
	require.Equal(t, uint64(1), idx)
	require.Equal(t, uint64(2), l.Len())

	got, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, b.BlockHash, got.BlockHash)
	assert.Equal(t, []byte("first"), got.Payload)

	byHash, err := l.GetByHash(b.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), byHash.Index)
}

func TestAppendRejectsWrongPrevHash(t *testing.T) {
	l := newTestLedger(t, storage.NewMemory())
	b := next(l, "x")
	b.PrevHash = block.HashPayload([]byte("not the tail"))
	b.BlockHash = b.ComputeHash()

	_, err := l.Append(b)
	require.ErrorIs(t, err, ErrChainViolation)
	require.Equal(t, uint64(1), l.Len())
}

func TestAppendRejectsWrongIndex(t *testing.T) {
	l := newTestLedger(t, storage.NewMemory())
	b := next(l, "x")
	b.Index = 5
	b.BlockHash = b.ComputeHash()

	_, err := l.Append(b)
	require.ErrorIs(t, err, ErrChainViolation)
	require.Equal(t, uint64(1), l.Len())
}

func TestAppendRejectsStaleHashes(t *testing.T) {
	l := newTestLedger(t, storage.NewMemory())
	b := next(l, "x")
	b.Payload = []byte("y")

	_, err := l.Append(b)
	require.ErrorIs(t, err, ErrChainViolation)
	require.Equal(t, uint64(1), l.Len())
}

func TestGetOutOfRange(t *testing.T) {
	l := newTestLedger(t, storage.NewMemory())
	_, err := l.Get(1)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = l.GetByHash("deadbeef")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRangeClampsToLength(t *testing.T) {
	l := newTestLedger(t, storage.NewMemory())
	for _, p := range []string{"a", "b", "c"} {
		_, err := l.Append(next(l, p))
		require.NoError(t, err)
	}
	blocks, err := l.Range(1, 100)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, uint64(3), blocks[2].Index)

	empty, err := l.Range(3, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReopenRestoresTail(t *testing.T) {
	backend := storage.NewMemory()
	l := newTestLedger(t, backend)
	b := next(l, "persisted")
	_, err := l.Append(b)
	require.NoError(t, err)

	reopened := newTestLedger(t, backend)
	require.Equal(t, uint64(2), reopened.Len())
	require.Equal(t, b.BlockHash, reopened.Tail().BlockHash)
}

func TestOpenRejectsForeignGenesis(t *testing.T) {
	backend := storage.NewMemory()
	newTestLedger(t, backend)

	other, err := genesis.Block(genesis.Config{ChainID: "other"})
	require.NoError(t, err)
	_, err = Open(backend, Options{Genesis: other, Logger: zerolog.Nop()})
	require.ErrorIs(t, err, ErrGenesisMismatch)
}

func TestConcurrentAppendsAgainstSameTail(t *testing.T) {
	l := newTestLedger(t, storage.NewMemory())
	tail := l.Tail()
	candidates := []*block.Block{
		block.New(tail, time.Now(), block.KindRecord, []byte("from doctor a")),
		block.New(tail, time.Now(), block.KindRecord, []byte("from doctor b")),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(candidates))
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c *block.Block) {
			defer wg.Done()
			_, errs[i] = l.Append(c)
		}(i, c)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrChainViolation)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, uint64(2), l.Len())
}

func TestReaderSeesCommittedBlocks(t *testing.T) {
	backend := storage.NewMemory()
	l := newTestLedger(t, backend)
	_, err := l.Append(next(l, "a"))
	require.NoError(t, err)

	r, err := NewReader(backend)
	require.NoError(t, err)
	require.Equal(t, uint64(2), r.Len())
	b, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), b.Payload)

	_, err = r.Get(2)
	require.ErrorIs(t, err, ErrNotFound)

	empty, err := NewReader(storage.NewMemory())
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestStoredReadsBypassCache(t *testing.T) {
	backend := storage.NewMemory()
	l := newTestLedger(t, backend)
	_, err := l.Append(next(l, "original"))
	require.NoError(t, err)
	_, err = l.StoredTail()
	require.NoError(t, err)

	b, err := l.Get(1)
	require.NoError(t, err)
	b.Payload = []byte("tampered")
	require.NoError(t, Overwrite(backend, b))

	cached, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), cached.Payload)

	stored, err := l.Stored().Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("tampered"), stored.Payload)
	assert.Equal(t, uint64(2), l.Stored().Len())

	_, err = l.StoredTail()
	require.Error(t, err)
}

func TestReaderFindsOrphans(t *testing.T) {
	backend := storage.NewMemory()
	l := newTestLedger(t, backend)
	b := next(l, "a")
	_, err := l.Append(b)
	require.NoError(t, err)

	r, err := NewReader(backend)
	require.NoError(t, err)
	orphans, err := r.Orphans()
	require.NoError(t, err)
	assert.Empty(t, orphans)

	stray := block.New(b, time.Now(), block.KindRecord, []byte("b"))
	require.NoError(t, Overwrite(backend, stray))
	orphans, err = r.Orphans()
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, orphans)
}
