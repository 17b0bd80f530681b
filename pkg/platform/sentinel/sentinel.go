package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so callers can branch with errors.Is without knowing the backend.
//
//   - ErrNotFound: no record for the requested key
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrUnavailable: the backing service could not be reached
//   - ErrInvalidInput: the caller supplied data that can never succeed
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidInput = errors.New("invalid input")
)
