package record

import (
	"encoding/json"
	"errors"
	"fmt"

	"ehrchain/core/block"
)

// EnvelopeVersion is the current payload layout.
const EnvelopeVersion = 1

// ErrSealed is returned when a sealed body is opened by a codec without a data key.
var ErrSealed = errors.New("payload is sealed and no data key is configured")

// Envelope is the serialized form stored in Block.Payload.
type Envelope struct {
	Version int        `json:"v"`
	Kind    block.Kind `json:"kind"`
	Sealed  bool       `json:"sealed,omitempty"`
	Body    []byte     `json:"body"`
}

// Codec turns ledger event bodies into block payloads and back. Record bodies are sealed when
// the codec has a Sealer; actor, grant and genesis bodies stay readable so the chain can be
// verified without the data key.
type Codec struct {
	sealer *Sealer
}

// NewCodec returns a codec. sealer may be nil.
func NewCodec(sealer *Sealer) *Codec {
	return &Codec{sealer: sealer}
}

// Sealing reports whether record bodies are encrypted.
func (c *Codec) Sealing() bool {
	return c != nil && c.sealer != nil
}

// Encode serializes body under kind.
func (c *Codec) Encode(kind block.Kind, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", kind, err)
	}
	env := Envelope{Version: EnvelopeVersion, Kind: kind, Body: raw}
	if kind == block.KindRecord && c.Sealing() {
		sealed, err := c.sealer.Seal(raw)
		if err != nil {
			return nil, fmt.Errorf("seal record body: %w", err)
		}
		env.Body = sealed
		env.Sealed = true
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses a payload without opening the body.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return env, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	return env, nil
}

// Decode parses payload, checks it carries kind, and unmarshals the body into out.
func (c *Codec) Decode(payload []byte, kind block.Kind, out interface{}) error {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		return err
	}
	if env.Kind != kind {
		return fmt.Errorf("payload kind %q, want %q", env.Kind, kind)
	}
	raw := env.Body
	if env.Sealed {
		if !c.Sealing() {
			return ErrSealed
		}
		raw, err = c.sealer.Open(env.Body)
		if err != nil {
			return fmt.Errorf("open record body: %w", err)
		}
	}
	return json.Unmarshal(raw, out)
}

// EncodeRecord validates r and serializes it.
func (c *Codec) EncodeRecord(r Record) ([]byte, error) {
	if err := Validate(r); err != nil {
		return nil, err
	}
	return c.Encode(block.KindRecord, r)
}

// DecodeRecord is the inverse of EncodeRecord.
func (c *Codec) DecodeRecord(payload []byte) (Record, error) {
	var r Record
	err := c.Decode(payload, block.KindRecord, &r)
	return r, err
}
