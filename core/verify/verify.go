package verify

import (
	"context"
	"fmt"

	"ehrchain/core/block"
	"ehrchain/core/record"
)

// Source is the read side of a ledger.
type Source interface {
	Len() uint64
	Get(index uint64) (*block.Block, error)
}

// Result is the outcome of a verification run.
type Result struct {
	Valid             bool    `json:"valid"`
	FirstInvalidIndex *uint64 `json:"firstInvalidIndex"`
	Reason            string  `json:"reason"`
	Checked           int     `json:"checked"`
}

func invalid(index uint64, checked int, format string, args ...interface{}) Result {
	return Result{FirstInvalidIndex: &index, Reason: fmt.Sprintf(format, args...), Checked: checked}
}

// Verifier checks hash links, block hashes and signatures.
type Verifier struct {
	// GenesisHash, when set, pins block 0 to a known hash.
	GenesisHash string
}

// Verify checks blocks in [from, to) with a zero Verifier. to == 0 or past the end means Len.
func Verify(ctx context.Context, src Source, from, to uint64) Result {
	return Verifier{}.Verify(ctx, src, from, to)
}

// Verify stops at the first bad block and reports it. Blocks before from are read for their
// keys and linkage but not counted.
func (v Verifier) Verify(ctx context.Context, src Source, from, to uint64) Result {
	n := src.Len()
	if to == 0 || to > n {
		to = n
	}
	if from > to {
		from = to
	}
	keys := make(keyring)
	var prev *block.Block
	checked := 0
	for i := uint64(0); i < to; i++ {
		if err := ctx.Err(); err != nil {
			return Result{Reason: err.Error(), Checked: checked}
		}
		b, err := src.Get(i)
		if err != nil {
			return invalid(i, checked, "read block: %v", err)
		}
		if i >= from {
			if reason := v.checkBlock(keys, prev, b, i); reason != "" {
				return invalid(i, checked, "%s", reason)
			}
			checked++
		}
		if err := keys.observe(b); err != nil && i >= from {
			return invalid(i, checked-1, "actor event: %v", err)
		}
		prev = b
	}
	return Result{Valid: true, Checked: checked}
}

// checkBlock returns why b is invalid, or "".
func (v Verifier) checkBlock(keys keyring, prev, b *block.Block, i uint64) string {
	if b.Index != i {
		return fmt.Sprintf("index %d stored at position %d", b.Index, i)
	}
	if got := block.HashPayload(b.Payload); got != b.PayloadHash {
		return "payload hash mismatch"
	}
	if got := b.ComputeHash(); got != b.BlockHash {
		return "block hash mismatch"
	}
	env, err := record.DecodeEnvelope(b.Payload)
	if err != nil {
		return err.Error()
	}
	if env.Kind != b.Kind {
		return fmt.Sprintf("header kind %q does not match payload kind %q", b.Kind, env.Kind)
	}
	if i == 0 {
		if b.PrevHash != block.GenesisPrevHash {
			return "genesis prevHash is not the sentinel"
		}
		if b.Kind != block.KindGenesis || b.Signer != "" || len(b.Signature) != 0 {
			return "malformed genesis block"
		}
		if v.GenesisHash != "" && b.BlockHash != v.GenesisHash {
			return "genesis does not match configuration"
		}
		return ""
	}
	if b.Kind == block.KindGenesis {
		return "genesis kind after block 0"
	}
	if prev != nil && b.PrevHash != prev.BlockHash {
		return "prevHash does not match previous block"
	}
	if err := keys.checkSignature(b); err != nil {
		return err.Error()
	}
	return ""
}
