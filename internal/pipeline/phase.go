// Package pipeline orchestrates a portfolio sync: a fast positions phase,
// a background enrichment phase, and bounded retries of failed symbols.
package pipeline

import "fmt"

// Phase is the single source of truth for whether a sync is in flight.
type Phase int

const (
	Idle Phase = iota
	Fetching
	Analyzing
	Retrying
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Analyzing:
		return "analyzing"
	case Retrying:
		return "retrying"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Busy reports whether a sync is in flight.
func (p Phase) Busy() bool {
	return p != Idle
}

// transitions lists the legal moves. Fetching may return to Idle when a
// cached snapshot is restored or the account list cannot be loaded.
var transitions = map[Phase][]Phase{
	Idle:      {Fetching},
	Fetching:  {Analyzing, Idle},
	Analyzing: {Retrying, Idle},
	Retrying:  {Idle},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
