package domain

import (
	"fmt"

	apperrors "groupdecide/pkg/errors"
)

// Action is something a user may try to do to a decision
type Action string

const (
	ActionJoin              Action = "join"
	ActionSubmitConstraint  Action = "submit_constraint"
	ActionSubmitOption      Action = "submit_option"
	ActionSubmitBallot      Action = "submit_ballot"
	ActionAdvance           Action = "advance"
	ActionRevert            Action = "revert"
	ActionVoteToAdvance     Action = "vote_to_advance"
	ActionManageMembers     Action = "manage_members"
	ActionTransferOrganizer Action = "transfer_organizer"
	ActionLeave             Action = "leave"
	ActionEditDecision      Action = "edit_decision"
	ActionDeleteDecision    Action = "delete_decision"
	ActionComment           Action = "comment"
	ActionViewResults       Action = "view_results"

	// Per-item actions. Check evaluates them against the item's owner, so
	// LegalActions does not list them.
	ActionRemoveOption     Action = "remove_option"
	ActionRemoveConstraint Action = "remove_constraint"
)

// memberActions is the order LegalActions reports in
var memberActions = []Action{
	ActionSubmitConstraint,
	ActionSubmitOption,
	ActionSubmitBallot,
	ActionAdvance,
	ActionRevert,
	ActionVoteToAdvance,
	ActionManageMembers,
	ActionTransferOrganizer,
	ActionLeave,
	ActionEditDecision,
	ActionDeleteDecision,
	ActionComment,
	ActionViewResults,
}

// Check is the single authority on what is legal for member m right now.
// m is nil when the caller does not belong to the decision. optionCount is
// the number of stored options. A nil return means the action is allowed.
func Check(d Decision, m *Member, optionCount int, action Action) error {
	if action == ActionJoin {
		if d.IsLocked() {
			return apperrors.NewIllegalTransitionError("cannot join a locked decision")
		}
		return nil
	}
	if m == nil {
		return apperrors.NewIllegalTransitionError("you are not a member of this decision")
	}

	switch action {
	case ActionSubmitConstraint:
		if !d.Phase.PreVoting() {
			return phaseError(action, d.Phase)
		}
	case ActionSubmitOption:
		if d.Phase != PhaseOptions {
			return phaseError(action, d.Phase)
		}
		if d.OptionSubmission == SubmissionOrganizerOnly && !m.IsOrganizer() {
			return apperrors.NewIllegalTransitionError("only the organizer may submit options")
		}
		if optionCount >= d.MaxOptions {
			return apperrors.NewIllegalTransitionError(
				fmt.Sprintf("option limit of %d reached", d.MaxOptions))
		}
	case ActionSubmitBallot:
		if d.Phase != PhaseVoting {
			return phaseError(action, d.Phase)
		}
		if m.HasVoted {
			return apperrors.NewConflictError("you have already voted")
		}
	case ActionAdvance:
		if err := requireOrganizer(m, action); err != nil {
			return err
		}
		next, ok := d.Phase.Next()
		if !ok || next == PhaseLocked {
			return phaseError(action, d.Phase)
		}
		if next == PhaseVoting && optionCount < MinOptionsForVoting {
			return apperrors.NewIllegalTransitionError(
				fmt.Sprintf("at least %d options are required to start voting", MinOptionsForVoting))
		}
	case ActionRevert:
		if err := requireOrganizer(m, action); err != nil {
			return err
		}
		if _, ok := d.Phase.Previous(); !ok {
			return phaseError(action, d.Phase)
		}
	case ActionVoteToAdvance:
		if !d.Phase.AcceptsAdvanceVotes() {
			return phaseError(action, d.Phase)
		}
	case ActionManageMembers, ActionTransferOrganizer, ActionDeleteDecision:
		return requireOrganizer(m, action)
	case ActionEditDecision:
		if err := requireOrganizer(m, action); err != nil {
			return err
		}
		if d.IsLocked() {
			return phaseError(action, d.Phase)
		}
	case ActionLeave:
		if m.IsOrganizer() {
			return apperrors.NewIllegalTransitionError("the organizer must transfer the role before leaving")
		}
	case ActionRemoveOption:
		if d.Phase != PhaseOptions {
			return phaseError(action, d.Phase)
		}
	case ActionRemoveConstraint:
		if !d.Phase.PreVoting() {
			return phaseError(action, d.Phase)
		}
	case ActionComment:
	case ActionViewResults:
		if !d.IsLocked() {
			return apperrors.NewIllegalTransitionError("results are available once the decision is locked")
		}
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown action %q", action), nil)
	}
	return nil
}

// Can reports whether Check allows action
func Can(d Decision, m *Member, optionCount int, action Action) bool {
	return Check(d, m, optionCount, action) == nil
}

// LegalActions lists every action m may take right now
func LegalActions(d Decision, m *Member, optionCount int) []Action {
	if m == nil {
		if Can(d, nil, optionCount, ActionJoin) {
			return []Action{ActionJoin}
		}
		return []Action{}
	}
	actions := make([]Action, 0, len(memberActions))
	for _, a := range memberActions {
		if Can(d, m, optionCount, a) {
			actions = append(actions, a)
		}
	}
	return actions
}

func requireOrganizer(m *Member, action Action) error {
	if !m.IsOrganizer() {
		return apperrors.NewIllegalTransitionError(
			fmt.Sprintf("only the organizer may %s", humanize(action)))
	}
	return nil
}

func phaseError(action Action, p Phase) error {
	return apperrors.NewIllegalTransitionError(
		fmt.Sprintf("cannot %s while the decision is in the %s phase", humanize(action), p))
}

func humanize(a Action) string {
	switch a {
	case ActionSubmitConstraint:
		return "submit constraints"
	case ActionSubmitOption:
		return "submit options"
	case ActionSubmitBallot:
		return "submit a ballot"
	case ActionAdvance:
		return "advance the phase"
	case ActionRevert:
		return "revert the phase"
	case ActionVoteToAdvance:
		return "vote to advance"
	case ActionManageMembers:
		return "manage members"
	case ActionTransferOrganizer:
		return "transfer the organizer role"
	case ActionEditDecision:
		return "edit the decision"
	case ActionDeleteDecision:
		return "delete the decision"
	case ActionRemoveOption:
		return "remove options"
	case ActionRemoveConstraint:
		return "remove constraints"
	}
	return string(a)
}
