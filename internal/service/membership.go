package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
	apperrors "groupdecide/pkg/errors"
)

// JoinDecision adds userID as a member. Joining twice returns the existing
// membership without writing anything.
func (s *DecisionService) JoinDecision(ctx context.Context, decisionID, userID string) (*domain.Member, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	var (
		out    *domain.Member
		joined bool
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		d, err := tx.GetDecisionForUpdate(ctx, decisionID)
		if err != nil {
			return notFound(err, "decision")
		}
		existing, err := s.memberOrNil(ctx, tx, decisionID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}
		if err := domain.Check(*d, nil, 0, domain.ActionJoin); err != nil {
			return err
		}
		members, err := tx.ListMembers(ctx, decisionID)
		if err != nil {
			return err
		}
		if err := s.policy.AllowJoin(ctx, *d, len(members), userID); err != nil {
			return err
		}

		// Ballots survive leaving, so a returning voter stays voted.
		voted, err := tx.HasVotes(ctx, decisionID, userID)
		if err != nil {
			return err
		}
		m := domain.Member{
			DecisionID: decisionID,
			UserID:     userID,
			Role:       domain.RoleMember,
			HasVoted:   voted,
			JoinedAt:   s.now().UTC(),
		}
		if err := tx.AddMember(ctx, &m); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewConflictError("you are already a member of this decision")
			}
			return err
		}
		out, joined = &m, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if joined {
		s.logger.WithDecision(decisionID, userID).Info("Member joined")
		s.publish(ctx, Event{Type: EventMemberJoined, DecisionID: decisionID, UserID: userID, At: s.now().UTC()})
	}
	return out, nil
}

// LeaveDecision removes the caller's own membership. The organizer has to
// transfer the role first.
func (s *DecisionService) LeaveDecision(ctx context.Context, decisionID, userID string) error {
	var status *domain.AdvanceVoteStatus
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := s.load(ctx, tx, decisionID, userID, domain.ActionLeave)
		if err != nil {
			return err
		}
		status, err = s.dropMember(ctx, tx, a.decision, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.WithDecision(decisionID, userID).Info("Member left")
	s.publish(ctx, Event{Type: EventMemberLeft, DecisionID: decisionID, UserID: userID, At: s.now().UTC()})
	s.afterAdvanceVote(ctx, status, userID)
	return nil
}

// RemoveMember lets the organizer remove another member. Ballots the member
// already cast stay in place.
func (s *DecisionService) RemoveMember(ctx context.Context, decisionID, userID, targetUserID string) error {
	var status *domain.AdvanceVoteStatus
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := s.load(ctx, tx, decisionID, userID, domain.ActionManageMembers)
		if err != nil {
			return err
		}
		if targetUserID == userID {
			return apperrors.NewIllegalTransitionError("you cannot remove yourself; transfer the organizer role and leave instead")
		}
		target, err := tx.GetMember(ctx, decisionID, targetUserID)
		if err != nil {
			return notFound(err, "member")
		}
		if target.IsOrganizer() {
			return apperrors.NewIllegalTransitionError("the organizer cannot be removed")
		}
		status, err = s.dropMember(ctx, tx, a.decision, targetUserID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.WithDecision(decisionID, userID).Info("Member removed", zap.String("target_user_id", targetUserID))
	s.publish(ctx, Event{Type: EventMemberLeft, DecisionID: decisionID, UserID: targetUserID, At: s.now().UTC()})
	s.afterAdvanceVote(ctx, status, userID)
	return nil
}

// dropMember deletes a membership with its pending consents and then re-checks
// the advance threshold, which a smaller group may now meet
func (s *DecisionService) dropMember(ctx context.Context, tx repository.Tx, d *domain.Decision, userID string) (*domain.AdvanceVoteStatus, error) {
	if err := tx.DeleteMember(ctx, d.ID, userID); err != nil {
		return nil, notFound(err, "member")
	}
	if _, err := tx.DeleteAdvanceVotesForUser(ctx, d.ID, userID); err != nil {
		return nil, err
	}
	return s.evaluateAdvance(ctx, tx, d, "")
}

// TransferOrganizer hands the organizer role to another member. The demotion,
// the promotion and the created_by change commit together.
func (s *DecisionService) TransferOrganizer(ctx context.Context, decisionID, userID, newOrganizerID string) (*domain.Decision, error) {
	var out *domain.Decision
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := s.load(ctx, tx, decisionID, userID, domain.ActionTransferOrganizer)
		if err != nil {
			return err
		}
		if newOrganizerID == userID {
			return apperrors.NewValidationError("you are already the organizer",
				map[string]interface{}{"field": "user_id"})
		}
		target, err := tx.GetMember(ctx, decisionID, newOrganizerID)
		if err != nil {
			return notFound(err, "member")
		}

		previous := *a.member
		previous.Role = domain.RoleMember
		if err := tx.UpdateMember(ctx, &previous); err != nil {
			return err
		}
		target.Role = domain.RoleOrganizer
		if err := tx.UpdateMember(ctx, target); err != nil {
			return err
		}

		a.decision.CreatedBy = newOrganizerID
		a.decision.UpdatedAt = s.now().UTC()
		if err := tx.UpdateDecision(ctx, a.decision); err != nil {
			return err
		}
		out = a.decision
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithDecision(decisionID, userID).Info("Organizer transferred", zap.String("new_organizer_id", newOrganizerID))
	s.publish(ctx, s.event(EventOrganizerTransferred, out, newOrganizerID))
	return out, nil
}

// ListMembers returns the members of a decision in join order
func (s *DecisionService) ListMembers(ctx context.Context, decisionID, userID string) ([]domain.Member, error) {
	var out []domain.Member
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, _, err := s.loadMember(ctx, tx, decisionID, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListMembers(ctx, decisionID)
		return err
	})
	return out, err
}
