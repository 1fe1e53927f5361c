package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 32-byte sha256 digest.
type ID [32]byte

// NewID generates a new ID by hashing input bytes
func NewID(data []byte) ID {
	return ID(sha256.Sum256(data))
}

// FromString parses a hex string into an ID
func FromString(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String converts an ID back to a hex string
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// NewRecordID returns a fresh UUID v4 string for records and actors.
func NewRecordID() string {
	return uuid.NewString()
}
