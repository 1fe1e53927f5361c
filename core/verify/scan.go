package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ehrchain/core/block"
	"ehrchain/core/ledger"
	"ehrchain/core/record"
)

// Report is a full inspection of a store. Unlike Verify it does not stop at the first problem.
type Report struct {
	ScanTime               time.Time          `json:"scanTime"`
	TotalBlocks            uint64             `json:"totalBlocks"`
	BlocksScanned          int                `json:"blocksScanned"`
	TotalErrors            int                `json:"totalErrors"`
	CorruptedBlocks        []string           `json:"corruptedBlocks,omitempty"`
	MissingBlocks          []uint64           `json:"missingBlocks,omitempty"`
	OrphanBlocks           []uint64           `json:"orphanBlocks,omitempty"`
	BadPayloadHash         []string           `json:"badPayloadHash,omitempty"`
	BadBlockHash           []string           `json:"badBlockHash,omitempty"`
	PrevHashErrors         []string           `json:"prevHashErrors,omitempty"`
	IndexErrors            []string           `json:"indexErrors,omitempty"`
	SignatureErrors        []string           `json:"signatureErrors,omitempty"`
	DuplicateHashes        []string           `json:"duplicateHashes,omitempty"`
	TimestampFuture        []string           `json:"timestampFuture,omitempty"`
	TimestampNotIncreasing []string           `json:"timestampNotIncreasing,omitempty"`
	KindCounts             map[block.Kind]int `json:"kindCounts"`
	HealthScore            int                `json:"healthScore"`
	Status                 string             `json:"status"`
}

// Report statuses.
const (
	StatusHealthy     = "HEALTHY"
	StatusErrorsFound = "ERRORS_FOUND"
	StatusEmpty       = "EMPTY"
)

const futureSkew = 5 * time.Minute

// orphanLister is implemented by sources that can see blocks stored past their length.
type orphanLister interface {
	Orphans() ([]uint64, error)
}

func (r *Report) add(list *[]string, index uint64, format string, args ...interface{}) {
	*list = append(*list, fmt.Sprintf("block %d: ", index)+fmt.Sprintf(format, args...))
	r.TotalErrors++
}

// Scan walks every block in src and collects all problems it finds.
func Scan(ctx context.Context, src Source) (*Report, error) {
	r := &Report{
		ScanTime:    time.Now().UTC(),
		TotalBlocks: src.Len(),
		KindCounts:  make(map[block.Kind]int),
	}
	if r.TotalBlocks == 0 {
		r.Status = StatusEmpty
		return r, nil
	}
	keys := make(keyring)
	seen := make(map[string]uint64)
	now := time.Now()
	var prev *block.Block

	for i := uint64(0); i < r.TotalBlocks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := src.Get(i)
		if errors.Is(err, ledger.ErrNotFound) {
			r.MissingBlocks = append(r.MissingBlocks, i)
			r.TotalErrors++
			prev = nil
			continue
		}
		if err != nil {
			r.add(&r.CorruptedBlocks, i, "%v", err)
			prev = nil
			continue
		}
		r.BlocksScanned++
		r.KindCounts[b.Kind]++

		if b.Index != i {
			r.add(&r.IndexErrors, i, "stored index %d", b.Index)
		}
		if block.HashPayload(b.Payload) != b.PayloadHash {
			r.add(&r.BadPayloadHash, i, "payload hash mismatch")
		}
		if b.ComputeHash() != b.BlockHash {
			r.add(&r.BadBlockHash, i, "block hash mismatch")
		}
		if first, dup := seen[b.BlockHash]; dup {
			r.add(&r.DuplicateHashes, i, "duplicates hash of block %d", first)
		} else {
			seen[b.BlockHash] = i
		}
		if b.Timestamp.After(now.Add(futureSkew)) {
			r.add(&r.TimestampFuture, i, "timestamp %s in the future", b.Timestamp.Format(time.RFC3339))
		}
		if prev != nil && b.Timestamp.Before(prev.Timestamp) {
			r.add(&r.TimestampNotIncreasing, i, "timestamp earlier than block %d", prev.Index)
		}

		trusted := true
		if i == 0 {
			if b.PrevHash != block.GenesisPrevHash {
				r.add(&r.PrevHashErrors, i, "genesis prevHash is not the sentinel")
			}
		} else {
			if prev != nil && b.PrevHash != prev.BlockHash {
				r.add(&r.PrevHashErrors, i, "prevHash linkage broken")
			}
			if err := keys.checkSignature(b); err != nil {
				r.add(&r.SignatureErrors, i, "%v", err)
				trusted = false
			}
		}
		if env, err := record.DecodeEnvelope(b.Payload); err != nil {
			r.add(&r.CorruptedBlocks, i, "%v", err)
		} else if env.Kind != b.Kind {
			r.add(&r.CorruptedBlocks, i, "header kind %q, payload kind %q", b.Kind, env.Kind)
		}
		if trusted {
			if err := keys.observe(b); err != nil {
				r.add(&r.CorruptedBlocks, i, "actor event: %v", err)
			}
		}
		prev = b
	}
	if ol, ok := src.(orphanLister); ok {
		orphans, err := ol.Orphans()
		if err != nil {
			return nil, err
		}
		r.OrphanBlocks = orphans
		r.TotalErrors += len(orphans)
	}

	if r.BlocksScanned > 0 {
		r.HealthScore = (r.BlocksScanned - r.TotalErrors) * 100 / r.BlocksScanned
		if r.HealthScore < 0 {
			r.HealthScore = 0
		}
	}
	r.Status = StatusHealthy
	if r.TotalErrors > 0 {
		r.Status = StatusErrorsFound
	}
	return r, nil
}
