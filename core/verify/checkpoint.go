package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ehrchain/core/block"
)

// ErrEmptyRange is returned for a checkpoint over no blocks.
var ErrEmptyRange = errors.New("empty checkpoint range")

// Checkpoint commits to a span of the chain with one hash that can be published elsewhere.
// Anyone holding the same blocks can recompute Root and detect rewritten history.
type Checkpoint struct {
	From     uint64 `json:"from"`
	To       uint64 `json:"to"`
	Root     string `json:"root"`
	LastHash string `json:"lastHash"`
}

// MakeCheckpoint computes the Merkle root of block hashes in [from, to). to == 0 or past the end
// means Len. It does not verify the blocks; run Verify first when that matters.
func MakeCheckpoint(ctx context.Context, src Source, from, to uint64) (Checkpoint, error) {
	n := src.Len()
	if to == 0 || to > n {
		to = n
	}
	if from >= to {
		return Checkpoint{}, fmt.Errorf("%w [%d, %d)", ErrEmptyRange, from, to)
	}
	hashes := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		if err := ctx.Err(); err != nil {
			return Checkpoint{}, err
		}
		b, err := src.Get(i)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("block %d: %w", i, err)
		}
		hashes = append(hashes, b.BlockHash)
	}
	return Checkpoint{
		From:     from,
		To:       to,
		Root:     block.MerkleRoot(hashes),
		LastHash: hashes[len(hashes)-1],
	}, nil
}

// MatchCheckpoint recomputes cp against src and reports whether the roots agree.
func MatchCheckpoint(ctx context.Context, src Source, cp Checkpoint) (bool, error) {
	if cp.To > src.Len() {
		return false, nil
	}
	got, err := MakeCheckpoint(ctx, src, cp.From, cp.To)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(got.Root, cp.Root), nil
}
