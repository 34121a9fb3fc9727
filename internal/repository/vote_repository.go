package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"groupdecide/internal/domain"
)

// CreateVotes copies a whole ballot in one round trip
func (t *PostgresTx) CreateVotes(ctx context.Context, votes []domain.Vote) error {
	if len(votes) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(votes))
	for _, v := range votes {
		rows = append(rows, []any{v.ID, v.DecisionID, v.UserID, v.OptionID, v.Value, v.CreatedAt})
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"votes"},
		[]string{"id", "decision_id", "user_id", "option_id", "value", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return mapError(err, "create votes")
}

// ListVotes returns every vote row of a decision in insertion order
func (t *PostgresTx) ListVotes(ctx context.Context, decisionID string) ([]domain.Vote, error) {
	query := `
		SELECT id, decision_id, user_id, option_id, value, created_at
		FROM votes
		WHERE decision_id = $1
		ORDER BY seq
	`
	rows, err := t.tx.Query(ctx, query, decisionID)
	if err != nil {
		return nil, mapError(err, "list votes")
	}
	defer rows.Close()

	votes := []domain.Vote{}
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.ID, &v.DecisionID, &v.UserID, &v.OptionID, &v.Value, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// HasVotes reports whether the user already cast a ballot in the decision
func (t *PostgresTx) HasVotes(ctx context.Context, decisionID, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM votes WHERE decision_id = $1 AND user_id = $2)`
	if err := t.tx.QueryRow(ctx, query, decisionID, userID).Scan(&exists); err != nil {
		return false, mapError(err, "check votes")
	}
	return exists, nil
}

// DeleteVotes removes every vote of a decision
func (t *PostgresTx) DeleteVotes(ctx context.Context, decisionID string) (int64, error) {
	return t.execCount(ctx, "delete votes", `DELETE FROM votes WHERE decision_id = $1`, decisionID)
}
