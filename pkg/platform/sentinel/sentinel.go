package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (usually wrapped with
// fmt.Errorf and %w) and services translate them into domain errors:
//   - ErrNotFound: no row, key or session for the identifier
//   - ErrConflict: unique key already taken (ledger hash, approval id)
//   - ErrExpired: TTL elapsed before the operation ran
//   - ErrAlreadyUsed: verification request consumed, pairing session finalized
//   - ErrInvalidState: compare-and-set precondition failed
//   - ErrUnavailable: backing store unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
