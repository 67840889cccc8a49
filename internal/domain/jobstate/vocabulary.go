package jobstate

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change is not permitted by a
// vocabulary's transition table.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Status is the constraint satisfied by every job status enum.
type Status interface {
	comparable
	String() string
}

// Presentation is the user-facing rendering of a job control.
type Presentation struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// Vocabulary describes the closed set of statuses one kind of job moves
// through, which moves between them are legal, and how each status is shown.
type Vocabulary[S Status] struct {
	name        string
	initial     S
	states      []S
	known       map[S]struct{}
	transitions map[S]map[S]struct{}
	present     func(S) Presentation
}

// NewVocabulary builds a Vocabulary. Every status referenced by transitions
// must appear in states, and present must return a non-empty Presentation for
// every status in states; violations are programming errors and panic at
// construction time.
func NewVocabulary[S Status](
	name string,
	initial S,
	states []S,
	transitions map[S][]S,
	present func(S) Presentation,
) *Vocabulary[S] {
	v := &Vocabulary[S]{
		name:        name,
		initial:     initial,
		states:      append([]S(nil), states...),
		known:       make(map[S]struct{}, len(states)),
		transitions: make(map[S]map[S]struct{}, len(transitions)),
		present:     present,
	}

	for _, s := range states {
		v.known[s] = struct{}{}
	}
	if _, ok := v.known[initial]; !ok {
		panic(fmt.Sprintf("jobstate: %s vocabulary initial status %s is not a member", name, initial))
	}

	for from, tos := range transitions {
		if _, ok := v.known[from]; !ok {
			panic(fmt.Sprintf("jobstate: %s vocabulary has transition from unknown status %s", name, from))
		}
		targets := make(map[S]struct{}, len(tos))
		for _, to := range tos {
			if _, ok := v.known[to]; !ok {
				panic(fmt.Sprintf("jobstate: %s vocabulary has transition to unknown status %s", name, to))
			}
			targets[to] = struct{}{}
		}
		v.transitions[from] = targets
	}

	for _, s := range states {
		p := present(s)
		if p.Label == "" || p.Icon == "" {
			panic(fmt.Sprintf("jobstate: %s vocabulary has empty presentation for %s", name, s))
		}
	}

	return v
}

// Name returns the job kind this vocabulary describes.
func (v *Vocabulary[S]) Name() string { return v.name }

// Initial returns the status a fresh job starts in.
func (v *Vocabulary[S]) Initial() S { return v.initial }

// States returns every member of the vocabulary in declaration order.
func (v *Vocabulary[S]) States() []S { return append([]S(nil), v.states...) }

// Contains reports whether s is a member of the vocabulary.
func (v *Vocabulary[S]) Contains(s S) bool {
	_, ok := v.known[s]
	return ok
}

// CanTransition reports whether moving from one status to another is legal.
func (v *Vocabulary[S]) CanTransition(from, to S) bool {
	targets, ok := v.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// ValidateTransition returns an error wrapping ErrInvalidTransition when the
// move is not legal.
func (v *Vocabulary[S]) ValidateTransition(from, to S) error {
	if !v.CanTransition(from, to) {
		return fmt.Errorf("%w: %s job from %s to %s", ErrInvalidTransition, v.name, from, to)
	}
	return nil
}

// Present derives the presentation of s.
func (v *Vocabulary[S]) Present(s S) Presentation { return v.present(s) }
