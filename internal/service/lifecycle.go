package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
	apperrors "groupdecide/pkg/errors"
)

// PhaseChangeRequest carries the optional parts of an advance or revert
type PhaseChangeRequest struct {
	// ExpectedPhase, when set, must equal the current phase. A mismatch means
	// someone else moved the decision first and yields a ConflictError.
	ExpectedPhase domain.Phase `json:"expected_phase,omitempty"`
	// LockTime replaces the deadline; it must be in the future
	LockTime *time.Time `json:"lock_time,omitempty"`
}

// CreateDecision creates a decision owned by userID, who becomes its organizer
func (s *DecisionService) CreateDecision(ctx context.Context, userID string, input domain.CreateDecisionInput) (*domain.Decision, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	d, err := domain.CreateDecision(input, userID, s.now, s.newID)
	if err != nil {
		return nil, err
	}
	organizer := domain.Member{
		DecisionID: d.ID,
		UserID:     userID,
		Role:       domain.RoleOrganizer,
		JoinedAt:   d.CreatedAt,
	}

	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateDecision(ctx, &d); err != nil {
			return err
		}
		return tx.AddMember(ctx, &organizer)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decision: %w", err)
	}

	s.logger.WithDecision(d.ID, userID).Info("Decision created",
		zap.String("mechanism", string(d.Mechanism)),
		zap.Time("lock_time", d.LockTime))
	return &d, nil
}

// GetDecision returns a decision by ID. Anyone holding the ID may read it so
// they can decide whether to join.
func (s *DecisionService) GetDecision(ctx context.Context, decisionID string) (*domain.Decision, error) {
	var out *domain.Decision
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		d, err := tx.GetDecision(ctx, decisionID)
		if err != nil {
			return notFound(err, "decision")
		}
		out = d
		return nil
	})
	return out, err
}

// ListDecisions returns the decisions userID belongs to
func (s *DecisionService) ListDecisions(ctx context.Context, userID string) ([]domain.Decision, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var out []domain.Decision
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListDecisionsForUser(ctx, userID)
		return err
	})
	return out, err
}

// UpdateDecisionDetails edits title, description and category
func (s *DecisionService) UpdateDecisionDetails(ctx context.Context, decisionID, userID string, input domain.UpdateDecisionInput) (*domain.Decision, error) {
	var out *domain.Decision
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := s.load(ctx, tx, decisionID, userID, domain.ActionEditDecision)
		if err != nil {
			return err
		}
		if err := a.decision.ApplyUpdate(input, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateDecision(ctx, a.decision); err != nil {
			return err
		}
		out = a.decision
		return nil
	})
	return out, err
}

// DeleteDecision removes a decision and everything attached to it
func (s *DecisionService) DeleteDecision(ctx context.Context, decisionID, userID string) error {
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := s.load(ctx, tx, decisionID, userID, domain.ActionDeleteDecision); err != nil {
			return err
		}
		return tx.DeleteDecision(ctx, decisionID)
	})
	if err != nil {
		return err
	}
	_ = s.cache.InvalidateResults(ctx, decisionID)
	s.logger.WithDecision(decisionID, userID).Info("Decision deleted")
	return nil
}

// LegalActions reports what userID may do to the decision right now
func (s *DecisionService) LegalActions(ctx context.Context, decisionID, userID string) ([]domain.Action, error) {
	var out []domain.Action
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		d, err := tx.GetDecision(ctx, decisionID)
		if err != nil {
			return notFound(err, "decision")
		}
		m, err := s.memberOrNil(ctx, tx, decisionID, userID)
		if err != nil {
			return err
		}
		count, err := tx.CountOptions(ctx, decisionID)
		if err != nil {
			return err
		}
		out = domain.LegalActions(*d, m, count)
		return nil
	})
	return out, err
}

// AdvancePhase is the organizer's forward move: constraints to options, or
// options to voting once at least two options exist.
func (s *DecisionService) AdvancePhase(ctx context.Context, decisionID, userID string, req PhaseChangeRequest) (*domain.Decision, error) {
	return s.changePhase(ctx, decisionID, userID, req, domain.ActionAdvance, domain.TransitionAdvance)
}

// RevertPhase is the organizer's backward move with its cascading deletes
func (s *DecisionService) RevertPhase(ctx context.Context, decisionID, userID string, req PhaseChangeRequest) (*domain.Decision, error) {
	return s.changePhase(ctx, decisionID, userID, req, domain.ActionRevert, domain.TransitionRevert)
}

func (s *DecisionService) changePhase(ctx context.Context, decisionID, userID string, req PhaseChangeRequest, action domain.Action, kind domain.TransitionKind) (*domain.Decision, error) {
	var (
		out  *domain.Decision
		from domain.Phase
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		d, err := tx.GetDecisionForUpdate(ctx, decisionID)
		if err != nil {
			return notFound(err, "decision")
		}
		if req.ExpectedPhase != "" && req.ExpectedPhase != d.Phase {
			return apperrors.NewConflictError(
				fmt.Sprintf("decision already moved from %s to %s", req.ExpectedPhase, d.Phase))
		}
		a, err := s.load(ctx, tx, decisionID, userID, action)
		if err != nil {
			return err
		}
		to, _ := a.decision.Phase.Next()
		if kind == domain.TransitionRevert {
			to, _ = a.decision.Phase.Previous()
		}
		from = a.decision.Phase
		if err := s.transition(ctx, tx, a.decision, to, kind, req.LockTime); err != nil {
			return err
		}
		out = a.decision
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithDecision(decisionID, userID).Info("Phase changed",
		zap.String("kind", string(kind)),
		zap.String("from", string(from)),
		zap.String("to", string(out.Phase)))
	e := s.event(EventPhaseChanged, out, userID)
	e.FromPhase = from
	s.publish(ctx, e)
	return out, nil
}

// transition validates from→to and then applies its side effects. Nothing is
// written until every check has passed.
func (s *DecisionService) transition(ctx context.Context, tx repository.Tx, d *domain.Decision, to domain.Phase, kind domain.TransitionKind, lockTime *time.Time) error {
	from := d.Phase
	if err := domain.CheckTransition(from, to, kind); err != nil {
		return err
	}
	now := s.now()
	if lockTime != nil {
		if err := domain.ValidateLockTime(*lockTime, now); err != nil {
			return err
		}
		d.LockTime = lockTime.UTC()
	}
	if to == domain.PhaseVoting && d.DeadlinePassed(now) {
		return apperrors.NewIllegalTransitionError("lock_time has passed; provide a new lock_time to start voting")
	}

	if from.AcceptsAdvanceVotes() {
		if _, err := tx.DeleteAdvanceVotes(ctx, d.ID, from); err != nil {
			return err
		}
	}
	if kind == domain.TransitionRevert {
		if err := s.cascadeRevert(ctx, tx, d.ID, to); err != nil {
			return err
		}
	}

	d.Phase = to
	d.UpdatedAt = now.UTC()
	return tx.UpdateDecision(ctx, d)
}

// cascadeRevert deletes state that belongs to phases after to
func (s *DecisionService) cascadeRevert(ctx context.Context, tx repository.Tx, decisionID string, to domain.Phase) error {
	switch to {
	case domain.PhaseConstraints:
		if _, err := tx.DeleteVotes(ctx, decisionID); err != nil {
			return err
		}
		if _, err := tx.DeleteOptions(ctx, decisionID); err != nil {
			return err
		}
	case domain.PhaseOptions:
		if _, err := tx.DeleteVotes(ctx, decisionID); err != nil {
			return err
		}
		if _, err := tx.ResetVoted(ctx, decisionID); err != nil {
			return err
		}
		if _, err := tx.DeleteResults(ctx, decisionID); err != nil {
			return err
		}
	}
	return nil
}

// LockSummary reports one sweep pass
type LockSummary struct {
	Locked  []string `json:"locked"`
	Skipped []string `json:"skipped"`
}

// errSkipLock aborts a lock unit of work that has nothing to do
var errSkipLock = errors.New("nothing to lock")

// TallyAndLockExpired locks every voting decision whose deadline has passed.
// Each decision is tallied at most once: the phase is re-read under the row
// lock, so a repeat run or a concurrent sweeper finds it locked and skips it.
func (s *DecisionService) TallyAndLockExpired(ctx context.Context) (*LockSummary, error) {
	now := s.now()
	var ids []string
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		ids, err = tx.ListExpiredVoting(ctx, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list expired decisions: %w", err)
	}

	summary := &LockSummary{Locked: []string{}, Skipped: []string{}}
	var failures []error
	for _, id := range ids {
		locked, err := s.lockExpired(ctx, id)
		switch {
		case err != nil:
			failures = append(failures, fmt.Errorf("decision %s: %w", id, err))
		case locked:
			summary.Locked = append(summary.Locked, id)
		default:
			summary.Skipped = append(summary.Skipped, id)
		}
	}
	return summary, errors.Join(failures...)
}

func (s *DecisionService) lockExpired(ctx context.Context, decisionID string) (bool, error) {
	guard, err := s.cache.TryDecisionLock(ctx, decisionID)
	if err != nil {
		s.logger.WithDecision(decisionID, "").Warn("Lock guard unavailable, relying on row lock", zap.Error(err))
	} else if guard == nil {
		return false, nil
	} else {
		defer guard.Release(ctx)
	}

	var locked *domain.Decision
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		d, err := tx.GetDecisionForUpdate(ctx, decisionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errSkipLock
			}
			return err
		}
		now := s.now()
		if d.Phase != domain.PhaseVoting || !d.DeadlinePassed(now) {
			return errSkipLock
		}
		if err := domain.CheckTransition(d.Phase, domain.PhaseLocked, domain.TransitionLock); err != nil {
			return err
		}

		options, err := tx.ListOptions(ctx, decisionID)
		if err != nil {
			return err
		}
		votes, err := tx.ListVotes(ctx, decisionID)
		if err != nil {
			return err
		}
		results := domain.Tally(d.Mechanism, options, votes)
		if err := tx.CreateResults(ctx, results); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewConflictError("decision was already tallied")
			}
			return err
		}

		lockedAt := now.UTC()
		d.Phase = domain.PhaseLocked
		d.LockedAt = &lockedAt
		d.UpdatedAt = lockedAt
		if err := tx.UpdateDecision(ctx, d); err != nil {
			return err
		}
		locked = d
		return nil
	})
	if errors.Is(err, errSkipLock) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.logger.WithDecision(decisionID, "").Info("Decision locked", zap.Time("locked_at", *locked.LockedAt))
	s.publish(ctx, s.event(EventDecisionLocked, locked, ""))
	return true, nil
}
