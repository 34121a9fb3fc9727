package domain

import (
	"fmt"
	"time"

	apperrors "groupdecide/pkg/errors"
)

// PointBudget is the number of points every point-allocation ballot spends
const PointBudget = 10

// Vote is one line of a ballot
type Vote struct {
	ID         string    `json:"id"`
	DecisionID string    `json:"decision_id"`
	UserID     string    `json:"user_id"`
	OptionID   string    `json:"option_id"`
	Value      int       `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
}

// BallotEntry is one option's value in a submitted ballot: points under
// point allocation, rank (1 = best) under forced ranking.
type BallotEntry struct {
	OptionID string `json:"option_id"`
	Value    int    `json:"value"`
}

// BallotRequest is a voter's complete ballot
type BallotRequest struct {
	Entries []BallotEntry `json:"entries"`
}

// ValidateBallot checks the whole ballot against the mechanism's shape rules.
// The ballot is accepted or rejected as a unit.
func ValidateBallot(mechanism Mechanism, eligible []Option, entries []BallotEntry) error {
	if len(eligible) == 0 {
		return apperrors.NewValidationError("there are no eligible options to vote on", nil)
	}
	if len(entries) == 0 {
		return apperrors.NewValidationError("ballot is empty", map[string]interface{}{"field": "entries"})
	}

	allowed := make(map[string]struct{}, len(eligible))
	for _, o := range eligible {
		allowed[o.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := allowed[e.OptionID]; !ok {
			return apperrors.NewValidationError(
				fmt.Sprintf("option %s is not on the ballot", e.OptionID),
				map[string]interface{}{"option_id": e.OptionID})
		}
		if _, dup := seen[e.OptionID]; dup {
			return apperrors.NewValidationError(
				fmt.Sprintf("option %s appears more than once", e.OptionID),
				map[string]interface{}{"option_id": e.OptionID})
		}
		seen[e.OptionID] = struct{}{}
	}

	switch mechanism {
	case MechanismPointAllocation:
		return validatePointBallot(entries)
	case MechanismForcedRanking:
		return validateRankingBallot(entries, len(eligible))
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown voting mechanism %q", mechanism), nil)
	}
}

func validatePointBallot(entries []BallotEntry) error {
	total := 0
	for _, e := range entries {
		if e.Value < 0 {
			return apperrors.NewValidationError("points must not be negative",
				map[string]interface{}{"option_id": e.OptionID})
		}
		total += e.Value
	}
	if total != PointBudget {
		return apperrors.NewValidationError(
			fmt.Sprintf("points must add up to %d, got %d", PointBudget, total),
			map[string]interface{}{"total": total, "required": PointBudget})
	}
	return nil
}

func validateRankingBallot(entries []BallotEntry, n int) error {
	if len(entries) != n {
		return apperrors.NewValidationError(
			fmt.Sprintf("every one of the %d options must be ranked, got %d", n, len(entries)),
			map[string]interface{}{"required": n, "ranked": len(entries)})
	}
	used := make([]bool, n+1)
	for _, e := range entries {
		if e.Value < 1 || e.Value > n {
			return apperrors.NewValidationError(
				fmt.Sprintf("rank %d is outside 1..%d", e.Value, n),
				map[string]interface{}{"option_id": e.OptionID})
		}
		if used[e.Value] {
			return apperrors.NewValidationError(
				fmt.Sprintf("rank %d is used more than once", e.Value),
				map[string]interface{}{"rank": e.Value})
		}
		used[e.Value] = true
	}
	return nil
}

// BuildVotes turns an accepted ballot into vote rows
func BuildVotes(decisionID, userID string, entries []BallotEntry, now time.Time, idGenerator func() string) []Vote {
	if idGenerator == nil {
		idGenerator = NewID
	}
	votes := make([]Vote, 0, len(entries))
	for _, e := range entries {
		votes = append(votes, Vote{
			ID:         idGenerator(),
			DecisionID: decisionID,
			UserID:     userID,
			OptionID:   e.OptionID,
			Value:      e.Value,
			CreatedAt:  now.UTC(),
		})
	}
	return votes
}

// VotingStatus summarizes participation in the current round
type VotingStatus struct {
	DecisionID   string    `json:"decision_id"`
	Phase        Phase     `json:"phase"`
	LockTime     time.Time `json:"lock_time"`
	MemberCount  int       `json:"member_count"`
	VotedCount   int       `json:"voted_count"`
	UserHasVoted bool      `json:"user_has_voted"`
	// Voters is withheld when the decision uses silent voting
	Voters []string `json:"voters,omitempty"`
}

// ResultWithOption is a frozen result joined with its option for display
type ResultWithOption struct {
	Result
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// DecisionResults is the read model served once a decision is locked
type DecisionResults struct {
	DecisionID string             `json:"decision_id"`
	Mechanism  Mechanism          `json:"mechanism"`
	LockedAt   *time.Time         `json:"locked_at,omitempty"`
	Results    []ResultWithOption `json:"results"`
	Winner     *ResultWithOption  `json:"winner,omitempty"`
	VoterCount int                `json:"voter_count"`
	// Ballots is populated only when votes are revealed after lock
	Ballots map[string][]BallotEntry `json:"ballots,omitempty"`
}
