package registry

import "errors"

// ErrInvalidTransition is returned by Put when a write would move a
// record's status backward (e.g. overwrite SUCCESS).
var ErrInvalidTransition = errors.New("invalid status transition")

// Store persists job records keyed by handle.
//
// Durability contract: after Put returns, a process crash must not lose
// the record. Mutations are atomic per handle; no partial state is ever
// visible to readers.
type Store interface {
	// Get returns the record for a handle, if present.
	Get(handle string) (Record, bool)

	// All returns a copy of every record.
	All() map[string]Record

	// Put writes a record, persisting before returning. Returns
	// ErrInvalidTransition for backward status changes.
	Put(handle string, rec Record) error

	// Clear removes every record and the backing storage artifact.
	// Administrative use only.
	Clear() error
}
