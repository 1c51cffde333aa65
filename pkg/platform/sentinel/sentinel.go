package sentinel

import "errors"

// Sentinel errors for storage and infrastructure facts. Stores return these
// (optionally wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: row or record does not exist
//   - ErrConflict: optimistic write lost against a concurrent writer
//   - ErrAlreadyUsed: unique key (username, document income) already taken
//   - ErrLockTimeout: per-key lock could not be acquired before the deadline
//   - ErrUnavailable: backing service temporarily unreachable
//
// Validation failures belong in pkg/domain-errors, not here.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAlreadyUsed = errors.New("already used")
	ErrLockTimeout = errors.New("lock timeout")
	ErrUnavailable = errors.New("unavailable")
)
