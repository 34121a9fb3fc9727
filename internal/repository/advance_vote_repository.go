package repository

import (
	"context"
	"fmt"

	"groupdecide/internal/domain"
)

// CreateAdvanceVote records a member's consent to leave a phase
func (t *PostgresTx) CreateAdvanceVote(ctx context.Context, v *domain.AdvanceVote) error {
	query := `
		INSERT INTO advance_votes (decision_id, from_phase, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := t.tx.Exec(ctx, query, v.DecisionID, v.FromPhase, v.UserID, v.CreatedAt)
	return mapError(err, "record advance vote")
}

// DeleteAdvanceVote retracts one consent
func (t *PostgresTx) DeleteAdvanceVote(ctx context.Context, decisionID string, from domain.Phase, userID string) error {
	return t.execAffecting(ctx, "retract advance vote",
		`DELETE FROM advance_votes WHERE decision_id = $1 AND from_phase = $2 AND user_id = $3`,
		decisionID, from, userID)
}

// ListAdvanceVotes returns the consents for leaving a phase, oldest first
func (t *PostgresTx) ListAdvanceVotes(ctx context.Context, decisionID string, from domain.Phase) ([]domain.AdvanceVote, error) {
	query := `
		SELECT decision_id, from_phase, user_id, created_at
		FROM advance_votes
		WHERE decision_id = $1 AND from_phase = $2
		ORDER BY created_at, user_id
	`
	rows, err := t.tx.Query(ctx, query, decisionID, from)
	if err != nil {
		return nil, mapError(err, "list advance votes")
	}
	defer rows.Close()

	votes := []domain.AdvanceVote{}
	for rows.Next() {
		var v domain.AdvanceVote
		if err := rows.Scan(&v.DecisionID, &v.FromPhase, &v.UserID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan advance vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// DeleteAdvanceVotes clears every consent recorded for leaving a phase
func (t *PostgresTx) DeleteAdvanceVotes(ctx context.Context, decisionID string, from domain.Phase) (int64, error) {
	return t.execCount(ctx, "clear advance votes",
		`DELETE FROM advance_votes WHERE decision_id = $1 AND from_phase = $2`, decisionID, from)
}

// DeleteAdvanceVotesForUser clears a departing member's consents
func (t *PostgresTx) DeleteAdvanceVotesForUser(ctx context.Context, decisionID, userID string) (int64, error) {
	return t.execCount(ctx, "clear member advance votes",
		`DELETE FROM advance_votes WHERE decision_id = $1 AND user_id = $2`, decisionID, userID)
}
