package ehr

import (
	"errors"
	"fmt"

	"ehrchain/core/ledger"
)

var (
	// ErrRecordNotFound is returned for record IDs the ledger does not hold.
	ErrRecordNotFound = fmt.Errorf("record not found: %w", ledger.ErrNotFound)
	// ErrDuplicateActor is returned when registering an ID that is already taken.
	ErrDuplicateActor = errors.New("actor already registered")
	// ErrInvalidRequest covers malformed input that is not a record schema failure.
	ErrInvalidRequest = errors.New("invalid request")
)
