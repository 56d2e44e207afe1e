package reactor

import "time"

// ConsumerGroupState tags whether this run created the consumer group or
// found it already present. The transition is monotonic and one-way: once
// set, a reactor never re-bootstraps.
type ConsumerGroupState int

const (
	Uninitialized ConsumerGroupState = iota
	NewlyCreated
	PreviouslyCreated
)

func (s ConsumerGroupState) String() string {
	switch s {
	case NewlyCreated:
		return "newly_created"
	case PreviouslyCreated:
		return "previously_created"
	default:
		return "uninitialized"
	}
}

// ClaimMode selects which loops a Start call runs and with what bounds.
// The zero value behaves as NewOnly; use one of the constructors below.
type ClaimMode struct {
	kind    claimKind
	minIdle time.Duration
	maxIdle time.Duration
}

type claimKind int

const (
	claimNewOnly claimKind = iota
	claimAllPending
	claimClearBacklog
	claimAutoclaim
)

// ClaimAllPending drains the entire pending list as fast as possible
// (min_idle = 0, max_idle = 0, so the reclaim loop never sleeps between
// empty scans) alongside the new-delivery loop, but
// only when the group pre-existed; a newly created group runs only the
// new-delivery loop since it cannot have a backlog yet.
func ClaimAllPending() ClaimMode {
	return ClaimMode{kind: claimAllPending}
}

// ClearBacklog runs the reclaim loop bounded by minIdle/maxIdle alongside
// the new-delivery loop, again only when the group pre-existed.
func ClearBacklog(minIdle, maxIdle time.Duration) ClaimMode {
	return ClaimMode{kind: claimClearBacklog, minIdle: minIdle, maxIdle: maxIdle}
}

// Autoclaim always runs both loops for the reactor's lifetime, with no
// max_idle bound on the reclaim loop.
func Autoclaim(minIdle time.Duration) ClaimMode {
	return ClaimMode{kind: claimAutoclaim, minIdle: minIdle}
}

// NewOnly runs only the new-delivery loop, regardless of group state.
func NewOnly() ClaimMode {
	return ClaimMode{kind: claimNewOnly}
}

// runsReclaim reports whether the reclaim loop should run at all given the
// group's bootstrap state.
func (m ClaimMode) runsReclaim(state ConsumerGroupState) bool {
	switch m.kind {
	case claimNewOnly:
		return false
	case claimAutoclaim:
		return true
	case claimAllPending, claimClearBacklog:
		return state == PreviouslyCreated
	default:
		return false
	}
}

// bounds returns the (minIdle, maxIdle, hasMaxIdle) triple the reclaim loop
// should use for this mode.
func (m ClaimMode) bounds() (minIdle, maxIdle time.Duration, hasMaxIdle bool) {
	switch m.kind {
	case claimAllPending:
		return 0, 0, true
	case claimClearBacklog:
		return m.minIdle, m.maxIdle, true
	case claimAutoclaim:
		return m.minIdle, 0, false
	default:
		return 0, 0, false
	}
}
