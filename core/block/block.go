package block

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ehrchain/types/ids"
)

// Kind identifies what a block's payload carries.
type Kind string

const (
	KindGenesis Kind = "genesis"
	KindActor   Kind = "actor"
	KindGrant   Kind = "grant"
	KindRevoke  Kind = "revoke"
	KindRecord  Kind = "record"
)

// GenesisPrevHash is the fixed previous hash of block 0.
var GenesisPrevHash = strings.Repeat("0", 64)

// Block is one entry of the ledger. BlockHash covers Index, Timestamp, PrevHash and, through
// PayloadHash, the payload. Kind is bound by the payload envelope; Signer, SigAlgorithm and
// Signature are bound only by the signature check against the signer's registered key.
type Block struct {
	Index        uint64    `json:"index"`                  // Position in the chain (genesis = 0)
	Timestamp    time.Time `json:"timestamp"`              // UTC creation time
	PrevHash     string    `json:"prevHash"`               // BlockHash of the previous block
	Kind         Kind      `json:"kind"`                   // Mirrors the payload envelope kind
	Payload      []byte    `json:"payload"`                // Codec output, possibly sealed
	PayloadHash  string    `json:"payloadHash"`            // hex(sha256(Payload))
	BlockHash    string    `json:"blockHash"`              // hash(index, timestamp, prevHash, payloadHash)
	Signer       string    `json:"signer,omitempty"`       // Submitting actor ID
	SigAlgorithm string    `json:"sigAlgorithm,omitempty"` // Ed25519 | Secp256k1
	Signature    []byte    `json:"signature,omitempty"`    // Signer's signature over the payload hash
}

// Header is the part of a block that is safe to list without exposing payloads.
type Header struct {
	Index       uint64    `json:"index"`
	Timestamp   time.Time `json:"timestamp"`
	PrevHash    string    `json:"prevHash"`
	Kind        Kind      `json:"kind"`
	PayloadHash string    `json:"payloadHash"`
	BlockHash   string    `json:"blockHash"`
	Signer      string    `json:"signer,omitempty"`
}

// Signer is the credential material needed to sign a block.
type Signer interface {
	Algorithm() string
	Sign(digest []byte) ([]byte, error)
}

// HashPayload returns hex(sha256(payload)).
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ComputeHash computes the hash of the header fields (excluding BlockHash itself)
func ComputeHash(index uint64, timestamp time.Time, prevHash, payloadHash string) string {
	header := struct {
		Index       uint64 `json:"index"`
		Timestamp   string `json:"timestamp"`
		PrevHash    string `json:"prevHash"`
		PayloadHash string `json:"payloadHash"`
	}{index, timestamp.UTC().Format(time.RFC3339Nano), prevHash, payloadHash}
	data, _ := json.Marshal(header)
	return ids.NewID(data).String()
}

// ComputeHash recomputes b's hash from its stored fields.
func (b *Block) ComputeHash() string {
	return ComputeHash(b.Index, b.Timestamp, b.PrevHash, b.PayloadHash)
}

// New builds an unsigned block that extends prev. A nil prev builds block 0.
func New(prev *Block, timestamp time.Time, kind Kind, payload []byte) *Block {
	b := &Block{
		Timestamp: timestamp.UTC(),
		PrevHash:  GenesisPrevHash,
		Kind:      kind,
		Payload:   payload,
	}
	if prev != nil {
		b.Index = prev.Index + 1
		b.PrevHash = prev.BlockHash
	}
	b.PayloadHash = HashPayload(payload)
	b.BlockHash = b.ComputeHash()
	return b
}

// Sign records signerID and the signature over the payload hash.
func (b *Block) Sign(signerID string, s Signer) error {
	digest, err := hex.DecodeString(b.PayloadHash)
	if err != nil {
		return fmt.Errorf("decode payload hash: %w", err)
	}
	sig, err := s.Sign(digest)
	if err != nil {
		return fmt.Errorf("sign block %d: %w", b.Index, err)
	}
	b.Signer = signerID
	b.SigAlgorithm = s.Algorithm()
	b.Signature = sig
	return nil
}

// Digest returns the bytes a signer signs: the raw payload hash.
func (b *Block) Digest() ([]byte, error) {
	return hex.DecodeString(b.PayloadHash)
}

// CheckHashes reports the first stored hash that does not match the block's fields.
func (b *Block) CheckHashes() error {
	if got := HashPayload(b.Payload); got != b.PayloadHash {
		return fmt.Errorf("payload hash mismatch at %d: stored %s, computed %s", b.Index, b.PayloadHash, got)
	}
	if got := b.ComputeHash(); got != b.BlockHash {
		return fmt.Errorf("block hash mismatch at %d: stored %s, computed %s", b.Index, b.BlockHash, got)
	}
	return nil
}

// Header returns the listing view of b.
func (b *Block) Header() Header {
	return Header{
		Index:       b.Index,
		Timestamp:   b.Timestamp,
		PrevHash:    b.PrevHash,
		Kind:        b.Kind,
		PayloadHash: b.PayloadHash,
		BlockHash:   b.BlockHash,
		Signer:      b.Signer,
	}
}

// Serialize encodes Block into JSON
func (b *Block) Serialize() ([]byte, error) {
	return json.Marshal(b)
}

// Deserialize decodes JSON into Block
func Deserialize(data []byte) (*Block, error) {
	var b Block
	err := json.Unmarshal(data, &b)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
