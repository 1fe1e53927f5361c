package ehr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ehrchain/core/access"
	"ehrchain/core/audit"
	"ehrchain/core/auth"
	"ehrchain/core/block"
	"ehrchain/core/ledger"
	"ehrchain/core/notify"
	"ehrchain/core/record"
	"ehrchain/core/wallet"
)

const defaultAppendRetries = 3

// Options wires a Service to its collaborators. Ledger, Keystore and Tokens are required.
type Options struct {
	Ledger        *ledger.Ledger
	Keystore      *wallet.Keystore
	Codec         *record.Codec
	Tokens        *auth.Tokens
	Trail         *audit.Trail
	Audit         audit.Logger
	Notifier      notify.Notifier
	Logger        zerolog.Logger
	GenesisHash   string
	AppendRetries int
	// KeyAlgorithm is used for wallets created at registration. Empty means Ed25519.
	KeyAlgorithm string
}

// Service is the EHR application layer: it authorizes requests, turns them into signed ledger
// events and keeps the state derived from those events.
type Service struct {
	ledger   *ledger.Ledger
	keys     *wallet.Keystore
	codec    *record.Codec
	tokens   *auth.Tokens
	trail    *audit.Trail
	audit    audit.Logger
	notifier notify.Notifier
	log      zerolog.Logger

	genesisHash string
	retries     int
	keyAlg      string
	now         func() time.Time

	policy *access.Policy

	stateMu sync.RWMutex
	index   *recordIndex
	applied uint64

	// reserved holds actor IDs with a registration in flight.
	reservedMu sync.Mutex
	reserved   map[string]bool
	// amendMu keeps amendment chains linear.
	amendMu sync.Mutex
	// actorMu serializes read-modify-write actor events.
	actorMu sync.Mutex

	// beforeAppend runs between reading the tail and appending. Tests use it to lose a race.
	beforeAppend func()
}

// New builds the service and replays the ledger to rebuild actors, grants and the record index.
func New(opts Options) (*Service, error) {
	if opts.Ledger == nil || opts.Keystore == nil || opts.Tokens == nil {
		return nil, errors.New("ehr: ledger, keystore and tokens are required")
	}
	keyAlg, err := wallet.NormalizeAlgorithm(opts.KeyAlgorithm)
	if err != nil {
		return nil, err
	}
	s := &Service{
		ledger:      opts.Ledger,
		keys:        opts.Keystore,
		codec:       opts.Codec,
		tokens:      opts.Tokens,
		trail:       opts.Trail,
		notifier:    opts.Notifier,
		log:         opts.Logger.With().Str("component", "ehr").Logger(),
		genesisHash: opts.GenesisHash,
		retries:     opts.AppendRetries,
		keyAlg:      keyAlg,
		now:         func() time.Time { return time.Now().UTC() },
		policy:      access.NewPolicy(),
		index:       newRecordIndex(),
		reserved:    make(map[string]bool),
	}
	if s.codec == nil {
		s.codec = record.NewCodec(nil)
	}
	if s.trail == nil {
		s.trail = audit.NewTrail(10000)
	}
	s.audit = s.trail
	if opts.Audit != nil {
		s.audit = audit.Multi{s.trail, opts.Audit}
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.retries <= 0 {
		s.retries = defaultAppendRetries
	}
	if !s.codec.Sealing() {
		s.log.Warn().Msg("no data encryption key configured; record bodies are stored unsealed")
	}
	if err := s.catchUp(); err != nil {
		return nil, fmt.Errorf("replay ledger: %w", err)
	}
	s.log.Info().Uint64("height", s.applied).Msg("ledger replayed")
	return s, nil
}

// Close closes the underlying ledger.
func (s *Service) Close() error {
	return s.ledger.Close()
}

// Height is the number of committed blocks.
func (s *Service) Height() uint64 {
	return s.ledger.Len()
}

// Sealing reports whether record bodies are encrypted at rest.
func (s *Service) Sealing() bool {
	return s.codec.Sealing()
}

// catchUp applies every committed block that has not been applied yet, in chain order.
func (s *Service) catchUp() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for s.applied < s.ledger.Len() {
		b, err := s.ledger.Get(s.applied)
		if err != nil {
			return err
		}
		if err := s.apply(b); err != nil {
			return fmt.Errorf("apply block %d: %w", b.Index, err)
		}
		s.applied++
	}
	return nil
}

// apply folds one block into the derived state. Callers hold stateMu.
func (s *Service) apply(b *block.Block) error {
	switch b.Kind {
	case block.KindGenesis:
		return nil
	case block.KindActor:
		var a access.Actor
		if err := s.codec.Decode(b.Payload, block.KindActor, &a); err != nil {
			return err
		}
		s.policy.PutActor(a)
	case block.KindGrant:
		var g access.Grant
		if err := s.codec.Decode(b.Payload, block.KindGrant, &g); err != nil {
			return err
		}
		s.policy.PutGrant(g)
	case block.KindRevoke:
		var ev revokeEvent
		if err := s.codec.Decode(b.Payload, block.KindRevoke, &ev); err != nil {
			return err
		}
		s.policy.Revoke(ev.PatientID, ev.DoctorID, ev.RevokedAt)
	case block.KindRecord:
		r, err := s.codec.DecodeRecord(b.Payload)
		if err != nil {
			return err
		}
		s.index.add(r, b.Index)
	default:
		return fmt.Errorf("unknown block kind %q", b.Kind)
	}
	return nil
}

// appendEvent signs payload as signerID and appends it, rebuilding the block against the new
// tail when another writer got there first.
func (s *Service) appendEvent(ctx context.Context, kind block.Kind, payload []byte, signerID string, signer wallet.Signer) (*block.Block, error) {
	proto := block.New(nil, s.now(), kind, payload)
	if err := proto.Sign(signerID, signer); err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tail := s.ledger.Tail()
		ts := s.now()
		if ts.Before(tail.Timestamp) {
			ts = tail.Timestamp
		}
		b := block.New(tail, ts, kind, payload)
		b.Signer, b.SigAlgorithm, b.Signature = proto.Signer, proto.SigAlgorithm, proto.Signature
		if s.beforeAppend != nil {
			s.beforeAppend()
		}
		if _, err := s.ledger.Append(b); err != nil {
			if !errors.Is(err, ledger.ErrChainViolation) {
				return nil, err
			}
			lastErr = err
			s.log.Debug().Int("attempt", attempt).Err(err).Msg("append lost race, retrying against new tail")
			continue
		}
		s.audit.LogEvent(audit.Event{
			Timestamp: b.Timestamp,
			EventType: audit.EventAppend,
			EntityID:  strconv.FormatUint(b.Index, 10),
			Result:    audit.ResultSuccess,
			Metadata:  map[string]string{"kind": string(kind), "signer": signerID, "attempt": strconv.Itoa(attempt)},
		})
		if err := s.catchUp(); err != nil {
			return nil, err
		}
		return b, nil
	}
	s.audit.LogEvent(audit.Event{
		Timestamp: s.now(),
		EventType: audit.EventAppend,
		EntityID:  signerID,
		Result:    audit.ResultFailure,
		Reason:    lastErr.Error(),
		Metadata:  map[string]string{"kind": string(kind)},
	})
	return nil, fmt.Errorf("append %s block after %d attempts: %w", kind, s.retries, lastErr)
}

// authorize checks the policy and records the decision.
func (s *Service) authorize(actorID, patientID string, op access.Operation) error {
	err := s.policy.Authorize(actorID, patientID, op)
	ev := audit.Event{
		Timestamp: s.now(),
		EventType: audit.EventAuthorization,
		EntityID:  actorID,
		Result:    audit.ResultSuccess,
		Metadata:  map[string]string{"op": string(op)},
	}
	if patientID != "" {
		ev.Metadata["patient"] = patientID
	}
	if err != nil {
		ev.Result = audit.ResultFailure
		ev.Reason = err.Error()
		notify.AccessDenied(s.notifier, actorID, err.Error())
	}
	s.audit.LogEvent(ev)
	return err
}
