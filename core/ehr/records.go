package ehr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ehrchain/core/access"
	"ehrchain/core/block"
	"ehrchain/core/record"
	"ehrchain/types/ids"
)

// Receipt confirms that a record was committed.
type Receipt struct {
	RecordID    string    `json:"recordId"`
	BlockIndex  uint64    `json:"blockIndex"`
	BlockHash   string    `json:"blockHash"`
	PayloadHash string    `json:"payloadHash"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// SubmitRecord commits a new record authored by actorID. The service assigns the record's ID,
// author and creation time.
func (s *Service) SubmitRecord(ctx context.Context, actorID string, r record.Record) (Receipt, error) {
	if err := s.authorize(actorID, r.PatientID, access.OpCreate); err != nil {
		return Receipt{}, err
	}
	if r.Amends != "" {
		return Receipt{}, fmt.Errorf("%w: use an amendment to correct a record", record.ErrInvalid)
	}
	return s.commitRecord(ctx, actorID, r)
}

// AmendRecord commits a correction of originalID. The original must belong to r.PatientID and
// must be the latest version in its amendment chain.
func (s *Service) AmendRecord(ctx context.Context, actorID, originalID string, r record.Record, reason string) (Receipt, error) {
	if err := s.authorize(actorID, r.PatientID, access.OpAmend); err != nil {
		return Receipt{}, err
	}
	s.amendMu.Lock()
	defer s.amendMu.Unlock()

	s.stateMu.RLock()
	orig, ok := s.index.get(originalID)
	next, amended := s.index.amendedBy[originalID]
	s.stateMu.RUnlock()
	if !ok || orig.PatientID != r.PatientID {
		return Receipt{}, fmt.Errorf("%w: %s", ErrRecordNotFound, originalID)
	}
	if amended {
		return Receipt{}, fmt.Errorf("%w: record %s was already amended by %s", record.ErrInvalid, originalID, next)
	}
	r.Amends = originalID
	r.AmendReason = strings.TrimSpace(reason)
	return s.commitRecord(ctx, actorID, r)
}

func (s *Service) commitRecord(ctx context.Context, actorID string, r record.Record) (Receipt, error) {
	r.ID = ids.NewRecordID()
	r.AuthorID = actorID
	r.CreatedAt = s.now()
	payload, err := s.codec.EncodeRecord(r)
	if err != nil {
		return Receipt{}, err
	}
	fp, err := record.Fingerprint(r)
	if err != nil {
		return Receipt{}, err
	}
	signer, err := s.keys.Signer(actorID)
	if err != nil {
		return Receipt{}, err
	}
	b, err := s.appendEvent(ctx, block.KindRecord, payload, actorID, signer)
	if err != nil {
		return Receipt{}, err
	}
	s.log.Info().Str("record", r.ID).Uint64("block", b.Index).Str("type", r.RecordType).Msg("record committed")
	return Receipt{
		RecordID:    r.ID,
		BlockIndex:  b.Index,
		BlockHash:   b.BlockHash,
		PayloadHash: b.PayloadHash,
		Fingerprint: fp,
		Timestamp:   b.Timestamp,
	}, nil
}

// PatientRecords returns every record of patientID, oldest first.
func (s *Service) PatientRecords(ctx context.Context, actorID, patientID string) ([]record.Record, error) {
	if err := s.authorize(actorID, patientID, access.OpRead); err != nil {
		return nil, err
	}
	s.stateMu.RLock()
	blocks := s.index.patientBlocks(patientID)
	s.stateMu.RUnlock()

	out := make([]record.Record, 0, len(blocks))
	for _, idx := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := s.readRecord(idx)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// GetRecord returns one record. An unknown ID is denied exactly like a record the actor may not
// read.
func (s *Service) GetRecord(ctx context.Context, actorID, recordID string) (record.Record, error) {
	e, err := s.resolve(actorID, recordID)
	if err != nil {
		return record.Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}
	return s.readRecord(e.Block)
}

// Lineage returns recordID's amendment chain, oldest first.
func (s *Service) Lineage(ctx context.Context, actorID, recordID string) ([]record.Record, error) {
	if _, err := s.resolve(actorID, recordID); err != nil {
		return nil, err
	}
	s.stateMu.RLock()
	chain := s.index.lineage(recordID)
	blocks := make([]uint64, 0, len(chain))
	for _, id := range chain {
		e, ok := s.index.get(id)
		if !ok {
			s.stateMu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		blocks = append(blocks, e.Block)
	}
	s.stateMu.RUnlock()

	out := make([]record.Record, 0, len(blocks))
	for _, idx := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := s.readRecord(idx)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// VerifyFingerprint reports whether the committed record hashes to expected.
func (s *Service) VerifyFingerprint(ctx context.Context, actorID, recordID, expected string) (bool, error) {
	r, err := s.GetRecord(ctx, actorID, recordID)
	if err != nil {
		return false, err
	}
	fp, err := record.Fingerprint(r)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(fp, strings.TrimSpace(expected)), nil
}

// resolve finds the record's patient and authorizes a read on it.
func (s *Service) resolve(actorID, recordID string) (entry, error) {
	s.stateMu.RLock()
	e, ok := s.index.get(recordID)
	s.stateMu.RUnlock()
	patientID := ""
	if ok {
		patientID = e.PatientID
	}
	if err := s.authorize(actorID, patientID, access.OpRead); err != nil {
		return entry{}, err
	}
	return e, nil
}

func (s *Service) readRecord(index uint64) (record.Record, error) {
	b, err := s.ledger.Get(index)
	if err != nil {
		return record.Record{}, fmt.Errorf("%w: block %d: %v", ErrRecordNotFound, index, err)
	}
	return s.codec.DecodeRecord(b.Payload)
}
