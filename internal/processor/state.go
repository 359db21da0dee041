package processor

import (
	"time"

	"crystalproc/internal/catalog"
)

// State is the lifecycle position of one run within a batch.
type State string

const (
	StateUnprocessed State = "unprocessed"
	StateConverting  State = "converting"
	StateConverted   State = "converted"
	StatePlaced      State = "placed"
	StateSkipped     State = "skipped"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	switch s {
	case StatePlaced, StateSkipped, StateFailed:
		return true
	default:
		return false
	}
}

var transitions = map[State][]State{
	StateUnprocessed: {StateSkipped, StateConverting},
	StateConverting:  {StateConverted, StateFailed},
	StateConverted:   {StatePlaced, StateFailed},
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Outcome is the result of processing one run.
type Outcome struct {
	Run         int
	RawPath     string
	Placement   catalog.Placement
	State       State
	Destination string
	Elapsed     time.Duration
	Err         error
}

func (o *Outcome) advance(to State) {
	if !CanTransition(o.State, to) {
		panic("processor: illegal transition " + string(o.State) + " -> " + string(to))
	}
	o.State = to
}

// Report summarizes one crystal's pass.
type Report struct {
	Serial   string
	Outcomes []Outcome
	// AlreadyBuilt lists configured runs with a converted file anywhere in
	// the crystal's built tree before the pass started.
	AlreadyBuilt []int
	// MissingRaw lists configured runs for which no raw file was found.
	MissingRaw []int
}

// Count returns the number of outcomes in state s.
func (r Report) Count(s State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}
