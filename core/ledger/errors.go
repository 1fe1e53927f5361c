package ledger

import "errors"

var (
	// ErrChainViolation means a block does not extend the current tail: wrong index, wrong
	// previous hash, or stored hashes that do not match its fields.
	ErrChainViolation = errors.New("chain violation")
	// ErrNotFound is returned for indices or hashes beyond the committed chain.
	ErrNotFound = errors.New("block not found")
	// ErrGenesisMismatch is returned by Open when the stored genesis differs from the configured one.
	ErrGenesisMismatch = errors.New("stored genesis does not match configuration")
)
