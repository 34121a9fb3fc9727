package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
	apperrors "groupdecide/pkg/errors"
)

// SubmitBallot stores the caller's complete ballot and marks them as voted.
// The has_voted check, the existing-vote check and the flag flip run under the
// decision row lock, so a double submission either sees the first ballot or
// waits for it to finish. Vote rows are checked too because they outlive the
// membership that cast them.
// A ballot arriving after lock_time is accepted until the sweep locks the
// decision.
func (s *DecisionService) SubmitBallot(ctx context.Context, decisionID, userID string, ballot domain.BallotRequest) ([]domain.Vote, error) {
	var (
		out  []domain.Vote
		late bool
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := s.load(ctx, tx, decisionID, userID, domain.ActionSubmitBallot)
		if err != nil {
			return err
		}
		voted, err := tx.HasVotes(ctx, decisionID, userID)
		if err != nil {
			return err
		}
		if voted {
			return apperrors.NewConflictError("you have already voted")
		}
		options, err := tx.ListOptions(ctx, decisionID)
		if err != nil {
			return err
		}
		if err := domain.ValidateBallot(a.decision.Mechanism, domain.EligibleOptions(options), ballot.Entries); err != nil {
			return err
		}

		now := s.now()
		votes := domain.BuildVotes(decisionID, userID, ballot.Entries, now, s.newID)
		if err := tx.CreateVotes(ctx, votes); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewConflictError("you have already voted")
			}
			return err
		}
		a.member.HasVoted = true
		if err := tx.UpdateMember(ctx, a.member); err != nil {
			return err
		}
		out = votes
		late = a.decision.DeadlinePassed(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.WithDecision(decisionID, userID)
	if late {
		log.Info("Ballot accepted after lock_time, before sweep", zap.Int("entries", len(out)))
	} else {
		log.Info("Ballot submitted", zap.Int("entries", len(out)))
	}
	return out, nil
}

// VotingStatus reports participation. Silent voting hides who voted.
func (s *DecisionService) VotingStatus(ctx context.Context, decisionID, userID string) (*domain.VotingStatus, error) {
	var out *domain.VotingStatus
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		d, m, err := s.loadMember(ctx, tx, decisionID, userID)
		if err != nil {
			return err
		}
		members, err := tx.ListMembers(ctx, decisionID)
		if err != nil {
			return err
		}

		status := &domain.VotingStatus{
			DecisionID:   d.ID,
			Phase:        d.Phase,
			LockTime:     d.LockTime,
			MemberCount:  len(members),
			UserHasVoted: m.HasVoted,
		}
		voters := []string{}
		for _, member := range members {
			if member.HasVoted {
				status.VotedCount++
				voters = append(voters, member.UserID)
			}
		}
		if !d.SilentVoting {
			status.Voters = voters
		}
		out = status
		return nil
	})
	return out, err
}

// GetResults returns the frozen results of a locked decision. Access is
// checked on every call; the view itself comes from the cache when present.
func (s *DecisionService) GetResults(ctx context.Context, decisionID, userID string) (*domain.DecisionResults, error) {
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		d, m, err := s.loadMember(ctx, tx, decisionID, userID)
		if err != nil {
			return err
		}
		return domain.Check(*d, m, 0, domain.ActionViewResults)
	})
	if err != nil {
		return nil, err
	}

	return s.cache.GetResultsWithCache(ctx, decisionID, func(ctx context.Context) (*domain.DecisionResults, error) {
		var out *domain.DecisionResults
		err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
			var err error
			out, err = s.buildResults(ctx, tx, decisionID)
			return err
		})
		return out, err
	})
}

// buildResults joins result rows with their options and, when the decision
// reveals votes after lock, every voter's ballot
func (s *DecisionService) buildResults(ctx context.Context, tx repository.Tx, decisionID string) (*domain.DecisionResults, error) {
	d, err := tx.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, notFound(err, "decision")
	}
	results, err := tx.ListResults(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	options, err := tx.ListOptions(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	votes, err := tx.ListVotes(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Option, len(options))
	for _, o := range options {
		byID[o.ID] = o
	}
	view := &domain.DecisionResults{
		DecisionID: d.ID,
		Mechanism:  d.Mechanism,
		LockedAt:   d.LockedAt,
		Results:    make([]domain.ResultWithOption, 0, len(results)),
	}
	for _, r := range results {
		o := byID[r.OptionID]
		view.Results = append(view.Results, domain.ResultWithOption{Result: r, Title: o.Title, Description: o.Description})
	}
	for i := range view.Results {
		if view.Results[i].IsWinner {
			winner := view.Results[i]
			view.Winner = &winner
			break
		}
	}

	voters := make(map[string]struct{})
	for _, v := range votes {
		voters[v.UserID] = struct{}{}
	}
	view.VoterCount = len(voters)

	if d.RevealVotesAfterLock {
		view.Ballots = make(map[string][]domain.BallotEntry, len(voters))
		for _, v := range votes {
			view.Ballots[v.UserID] = append(view.Ballots[v.UserID], domain.BallotEntry{OptionID: v.OptionID, Value: v.Value})
		}
	}
	return view, nil
}
