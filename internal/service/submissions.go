package service

import (
	"context"

	"go.uber.org/zap"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
	apperrors "groupdecide/pkg/errors"
)

// SubmitConstraint adds a filter rule while the decision is before voting
func (s *DecisionService) SubmitConstraint(ctx context.Context, decisionID, userID string, input domain.ConstraintInput) (*domain.Constraint, error) {
	var out *domain.Constraint
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := s.load(ctx, tx, decisionID, userID, domain.ActionSubmitConstraint)
		if err != nil {
			return err
		}
		c, err := domain.NewConstraint(input, *a.decision, userID, s.now(), s.newID)
		if err != nil {
			return err
		}
		if err := tx.CreateConstraint(ctx, &c); err != nil {
			return err
		}
		out = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithDecision(decisionID, userID).Debug("Constraint submitted",
		zap.String("constraint_id", out.ID),
		zap.String("type", string(out.Type())))
	return out, nil
}

// RemoveConstraint deletes one of the caller's own constraints
func (s *DecisionService) RemoveConstraint(ctx context.Context, decisionID, userID, constraintID string) error {
	return s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := s.load(ctx, tx, decisionID, userID, domain.ActionRemoveConstraint); err != nil {
			return err
		}
		c, err := tx.GetConstraint(ctx, decisionID, constraintID)
		if err != nil {
			return notFound(err, "constraint")
		}
		if c.UserID != userID {
			return apperrors.NewIllegalTransitionError("only the member who added a constraint may remove it")
		}
		return notFound(tx.DeleteConstraint(ctx, decisionID, constraintID), "constraint")
	})
}

// ListConstraints returns the decision's constraints in creation order
func (s *DecisionService) ListConstraints(ctx context.Context, decisionID, userID string) ([]domain.Constraint, error) {
	var out []domain.Constraint
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, _, err := s.loadMember(ctx, tx, decisionID, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListConstraints(ctx, decisionID)
		return err
	})
	return out, err
}

// SubmitOption stores a candidate together with the verdict of the
// constraints in force right now. The verdict is never recomputed.
func (s *DecisionService) SubmitOption(ctx context.Context, decisionID, userID string, draft domain.OptionDraft) (*domain.Option, error) {
	var out *domain.Option
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := s.load(ctx, tx, decisionID, userID, domain.ActionSubmitOption); err != nil {
			return err
		}
		constraints, err := tx.ListConstraints(ctx, decisionID)
		if err != nil {
			return err
		}
		o, err := domain.NewOption(draft, decisionID, userID, constraints, s.now(), s.newID)
		if err != nil {
			return err
		}
		if err := tx.CreateOption(ctx, &o); err != nil {
			return err
		}
		out = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithDecision(decisionID, userID).Debug("Option submitted",
		zap.String("option_id", out.ID),
		zap.Bool("passes_constraints", out.PassesConstraints),
		zap.Int("violations", len(out.Violations)))
	return out, nil
}

// RemoveOption deletes an option during the options phase. The submitter and
// the organizer may remove it.
func (s *DecisionService) RemoveOption(ctx context.Context, decisionID, userID, optionID string) error {
	return s.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := s.load(ctx, tx, decisionID, userID, domain.ActionRemoveOption)
		if err != nil {
			return err
		}
		o, err := tx.GetOption(ctx, decisionID, optionID)
		if err != nil {
			return notFound(err, "option")
		}
		if o.SubmittedBy != userID && !a.member.IsOrganizer() {
			return apperrors.NewIllegalTransitionError("only the submitter or the organizer may remove an option")
		}
		return notFound(tx.DeleteOption(ctx, decisionID, optionID), "option")
	})
}

// ListOptions returns every option with its frozen verdict
func (s *DecisionService) ListOptions(ctx context.Context, decisionID, userID string) ([]domain.Option, error) {
	var out []domain.Option
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, _, err := s.loadMember(ctx, tx, decisionID, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListOptions(ctx, decisionID)
		return err
	})
	return out, err
}

// BallotOptions returns the options a ballot may reference: those that
// passed every constraint, in creation order
func (s *DecisionService) BallotOptions(ctx context.Context, decisionID, userID string) ([]domain.Option, error) {
	options, err := s.ListOptions(ctx, decisionID, userID)
	if err != nil {
		return nil, err
	}
	return domain.EligibleOptions(options), nil
}
