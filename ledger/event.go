package ledger

import (
	"github.com/macterra/go-authority-kernel/core/ipld"
)

// Status is derived per cycle from the immutable event history, never stored
// on a grant.
type Status string

const (
	StatusActive      Status = "active"
	StatusSuspended   Status = "suspended"
	StatusExpired     Status = "expired"
	StatusRevoked     Status = "revoked"
	StatusInvalidated Status = "invalidated"
)

// Terminal reports whether a grant in this status can ever authorize again.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusRevoked || s == StatusInvalidated
}

type EventType string

const (
	EventAdmitted    EventType = "admitted"
	EventRevoked     EventType = "revoked"
	EventInvalidated EventType = "invalidated"
)

// Invalidation causes. Revalidation invalidates grants that no longer pass
// the constitution; density repair invalidates newest-first to restore the
// ceiling after tightening.
const (
	CauseRevalidation  = "revalidation"
	CauseDensityRepair = "density-repair"
)

// Event is one append-only ledger entry. Status changes are new events
// referencing the grant (and, when applicable, the artifact that caused the
// change); nothing is ever mutated in place or deleted.
type Event struct {
	Type  EventType
	Grant ipld.Link
	Cycle uint64
	// Ref is the causing artifact for admitted/revoked events.
	Ref ipld.Link
	// Cause distinguishes invalidation passes.
	Cause string
}
