package domain

import (
	"fmt"

	apperrors "groupdecide/pkg/errors"
)

// Phase is the stage a decision is in. Phases are strictly ordered:
// constraints → options → voting → locked.
type Phase string

const (
	PhaseConstraints Phase = "constraints"
	PhaseOptions     Phase = "options"
	PhaseVoting      Phase = "voting"
	PhaseLocked      Phase = "locked"
)

// TransitionKind distinguishes how a phase change was requested
type TransitionKind string

const (
	// TransitionAdvance moves forward by organizer action or member consent
	TransitionAdvance TransitionKind = "advance"
	// TransitionRevert moves backward by organizer action and cascades deletes
	TransitionRevert TransitionKind = "revert"
	// TransitionLock closes voting once the deadline has passed
	TransitionLock TransitionKind = "lock"
)

// Transition is one edge of the phase state machine
type Transition struct {
	From Phase
	To   Phase
	Kind TransitionKind
}

// transitions lists every legal edge. Anything not listed is illegal.
var transitions = []Transition{
	{From: PhaseConstraints, To: PhaseOptions, Kind: TransitionAdvance},
	{From: PhaseOptions, To: PhaseVoting, Kind: TransitionAdvance},
	{From: PhaseVoting, To: PhaseLocked, Kind: TransitionLock},
	{From: PhaseOptions, To: PhaseConstraints, Kind: TransitionRevert},
	{From: PhaseVoting, To: PhaseOptions, Kind: TransitionRevert},
}

// ParsePhase converts a stored or requested phase name
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown phase %q", s), nil)
	}
	return p, nil
}

// Valid reports whether p is one of the four phases
func (p Phase) Valid() bool {
	switch p {
	case PhaseConstraints, PhaseOptions, PhaseVoting, PhaseLocked:
		return true
	}
	return false
}

// Next returns the forward successor of p
func (p Phase) Next() (Phase, bool) {
	for _, t := range transitions {
		if t.From == p && t.Kind != TransitionRevert {
			return t.To, true
		}
	}
	return "", false
}

// Previous returns the phase a revert from p lands in
func (p Phase) Previous() (Phase, bool) {
	for _, t := range transitions {
		if t.From == p && t.Kind == TransitionRevert {
			return t.To, true
		}
	}
	return "", false
}

// AcceptsAdvanceVotes reports whether members may vote to leave p
func (p Phase) AcceptsAdvanceVotes() bool {
	return p == PhaseConstraints || p == PhaseOptions
}

// PreVoting reports whether p comes before voting
func (p Phase) PreVoting() bool {
	return p == PhaseConstraints || p == PhaseOptions
}

// CheckTransition returns nil when from→to is a legal edge of the given kind
// and an IllegalTransitionError otherwise.
func CheckTransition(from, to Phase, kind TransitionKind) error {
	for _, t := range transitions {
		if t.From == from && t.To == to && t.Kind == kind {
			return nil
		}
	}
	return apperrors.NewIllegalTransitionError(
		fmt.Sprintf("cannot %s from %s to %s", kind, from, to))
}
