package ehr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ehrchain/core/access"
	"ehrchain/core/audit"
	"ehrchain/core/block"
	"ehrchain/core/notify"
	"ehrchain/core/verify"
)

// Blocks lists block headers in [from, to). Payloads are never returned.
func (s *Service) Blocks(ctx context.Context, from, to uint64) ([]block.Header, error) {
	blocks, err := s.ledger.Range(from, to)
	if err != nil {
		return nil, err
	}
	out := make([]block.Header, 0, len(blocks))
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, b.Header())
	}
	return out, nil
}

// BlockByHash returns the header of the block whose hash is hash.
func (s *Service) BlockByHash(ctx context.Context, hash string) (block.Header, error) {
	if err := ctx.Err(); err != nil {
		return block.Header{}, err
	}
	b, err := s.ledger.GetByHash(strings.ToLower(strings.TrimSpace(hash)))
	if err != nil {
		return block.Header{}, err
	}
	return b.Header(), nil
}

// Verify checks the chain in [from, to) and raises an integrity notification on failure.
func (s *Service) Verify(ctx context.Context, from, to uint64) verify.Result {
	res := verify.Verifier{GenesisHash: s.genesisHash}.Verify(ctx, s.ledger.Stored(), from, to)
	ev := audit.Event{
		Timestamp: s.now(),
		EventType: audit.EventVerification,
		Result:    audit.ResultSuccess,
		Metadata:  map[string]string{"checked": strconv.Itoa(res.Checked)},
	}
	if !res.Valid {
		ev.Result = audit.ResultFailure
		ev.Reason = res.Reason
		if res.FirstInvalidIndex != nil {
			ev.EntityID = strconv.FormatUint(*res.FirstInvalidIndex, 10)
			notify.IntegrityFailure(s.notifier, ev.EntityID, res.Reason)
			s.log.Error().Str("block", ev.EntityID).Str("reason", res.Reason).Msg("ledger verification failed")
		}
	}
	s.audit.LogEvent(ev)
	return res
}

// AuditTrail returns the retained audit entries. Admins only.
func (s *Service) AuditTrail(ctx context.Context, actorID string) ([]audit.Entry, error) {
	if err := s.authorize(actorID, "", access.OpAudit); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.trail.Entries(), nil
}

// Tail returns the header of the last committed block.
func (s *Service) Tail() block.Header {
	return s.ledger.Tail().Header()
}

// TailIntact reports whether the last block on disk still matches its hashes and the tail the
// node published.
func (s *Service) TailIntact() bool {
	if _, err := s.ledger.StoredTail(); err != nil {
		s.log.Warn().Err(err).Msg("stored tail check failed")
		return false
	}
	return true
}

// Checkpoint returns a Merkle commitment to blocks in [from, to) for external anchoring.
func (s *Service) Checkpoint(ctx context.Context, from, to uint64) (verify.Checkpoint, error) {
	cp, err := verify.MakeCheckpoint(ctx, s.ledger.Stored(), from, to)
	if errors.Is(err, verify.ErrEmptyRange) {
		return cp, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return cp, err
}
