package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
	apperrors "groupdecide/pkg/errors"
)

// RecordAdvanceVote records userID's consent to leave fromPhase. When the
// consent count reaches the majority threshold the decision advances in the
// same unit of work. fromPhase may be empty to mean the current phase; a stale
// fromPhase is a ConflictError.
func (s *DecisionService) RecordAdvanceVote(ctx context.Context, decisionID, userID string, fromPhase domain.Phase) (*domain.AdvanceVoteStatus, error) {
	var status *domain.AdvanceVoteStatus
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		d, err := tx.GetDecisionForUpdate(ctx, decisionID)
		if err != nil {
			return notFound(err, "decision")
		}
		if fromPhase != "" && fromPhase != d.Phase {
			return apperrors.NewConflictError(
				fmt.Sprintf("decision is no longer in the %s phase", fromPhase))
		}
		a, err := s.load(ctx, tx, decisionID, userID, domain.ActionVoteToAdvance)
		if err != nil {
			return err
		}

		vote := domain.AdvanceVote{
			DecisionID: decisionID,
			FromPhase:  a.decision.Phase,
			UserID:     userID,
			CreatedAt:  s.now().UTC(),
		}
		if err := tx.CreateAdvanceVote(ctx, &vote); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewConflictError("you have already voted to advance this phase")
			}
			return err
		}

		status, err = s.evaluateAdvance(ctx, tx, a.decision, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterAdvanceVote(ctx, status, userID)
	return status, nil
}

// RetractAdvanceVote withdraws userID's consent for the current phase
func (s *DecisionService) RetractAdvanceVote(ctx context.Context, decisionID, userID string) (*domain.AdvanceVoteStatus, error) {
	var status *domain.AdvanceVoteStatus
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := s.load(ctx, tx, decisionID, userID, domain.ActionVoteToAdvance)
		if err != nil {
			return err
		}
		if err := tx.DeleteAdvanceVote(ctx, decisionID, a.decision.Phase, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFoundError("you have not voted to advance this phase")
			}
			return err
		}
		status, err = s.advanceStatus(ctx, tx, a.decision, userID)
		return err
	})
	return status, err
}

// AdvanceVoteStatus reports consent collected for leaving the current phase
func (s *DecisionService) AdvanceVoteStatus(ctx context.Context, decisionID, userID string) (*domain.AdvanceVoteStatus, error) {
	var status *domain.AdvanceVoteStatus
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		d, _, err := s.loadMember(ctx, tx, decisionID, userID)
		if err != nil {
			return err
		}
		status, err = s.advanceStatus(ctx, tx, d, userID)
		if err != nil {
			return err
		}
		if d.Phase.AcceptsAdvanceVotes() && domain.ThresholdReached(status.Count, status.MemberCount) {
			status.BlockedReason, err = s.advanceBlocked(ctx, tx, d)
		}
		return err
	})
	return status, err
}

// advanceStatus counts consent for the decision's current phase
func (s *DecisionService) advanceStatus(ctx context.Context, tx repository.Tx, d *domain.Decision, userID string) (*domain.AdvanceVoteStatus, error) {
	members, err := tx.ListMembers(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	status := &domain.AdvanceVoteStatus{
		DecisionID:  d.ID,
		FromPhase:   d.Phase,
		Voters:      []string{},
		Threshold:   domain.AdvanceThreshold(len(members)),
		MemberCount: len(members),
		Phase:       d.Phase,
	}
	if !d.Phase.AcceptsAdvanceVotes() {
		return status, nil
	}

	votes, err := tx.ListAdvanceVotes(ctx, d.ID, d.Phase)
	if err != nil {
		return nil, err
	}
	for _, v := range votes {
		status.Voters = append(status.Voters, v.UserID)
		if v.UserID == userID {
			status.UserHasVoted = true
		}
	}
	status.Count = len(status.Voters)
	return status, nil
}

// advanceBlocked explains why a reached threshold cannot move the decision.
// An empty reason means the advance may proceed.
func (s *DecisionService) advanceBlocked(ctx context.Context, tx repository.Tx, d *domain.Decision) (string, error) {
	next, ok := d.Phase.Next()
	if !ok || next != domain.PhaseVoting {
		return "", nil
	}
	count, err := tx.CountOptions(ctx, d.ID)
	if err != nil {
		return "", err
	}
	if count < domain.MinOptionsForVoting {
		return fmt.Sprintf("at least %d options are required to start voting", domain.MinOptionsForVoting), nil
	}
	if d.DeadlinePassed(s.now()) {
		return "lock_time has passed; the organizer must set a new one", nil
	}
	return "", nil
}

// evaluateAdvance applies the consent threshold to d. It runs after every
// change to the vote count or to the membership, inside the caller's unit of
// work, and advances the phase when the threshold is met and nothing blocks it.
func (s *DecisionService) evaluateAdvance(ctx context.Context, tx repository.Tx, d *domain.Decision, userID string) (*domain.AdvanceVoteStatus, error) {
	status, err := s.advanceStatus(ctx, tx, d, userID)
	if err != nil {
		return nil, err
	}
	if !d.Phase.AcceptsAdvanceVotes() || !domain.ThresholdReached(status.Count, status.MemberCount) {
		return status, nil
	}

	reason, err := s.advanceBlocked(ctx, tx, d)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		status.BlockedReason = reason
		return status, nil
	}

	next, _ := d.Phase.Next()
	if err := s.transition(ctx, tx, d, next, domain.TransitionAdvance, nil); err != nil {
		return nil, err
	}
	status.Advanced = true
	status.Phase = d.Phase
	return status, nil
}

// afterAdvanceVote logs and publishes a consent-driven advance
func (s *DecisionService) afterAdvanceVote(ctx context.Context, status *domain.AdvanceVoteStatus, userID string) {
	if status == nil || !status.Advanced {
		return
	}
	s.logger.WithDecision(status.DecisionID, userID).Info("Phase advanced by member consent",
		zap.String("from", string(status.FromPhase)),
		zap.String("to", string(status.Phase)),
		zap.Int("votes", status.Count),
		zap.Int("threshold", status.Threshold))
	s.publish(ctx, Event{
		Type:       EventPhaseChanged,
		DecisionID: status.DecisionID,
		UserID:     userID,
		FromPhase:  status.FromPhase,
		Phase:      status.Phase,
		At:         s.now().UTC(),
	})
}
