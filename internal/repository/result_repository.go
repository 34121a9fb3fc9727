package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"groupdecide/internal/domain"
)

// CreateResults writes the tally output. The primary key rejects a second
// tally of the same decision.
func (t *PostgresTx) CreateResults(ctx context.Context, results []domain.Result) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
			INSERT INTO results (decision_id, option_id, total_points, average_rank, rank, is_winner)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.DecisionID, r.OptionID, r.TotalPoints, r.AverageRank, r.Rank, r.IsWinner)
	}
	return mapError(t.tx.SendBatch(ctx, batch).Close(), "create results")
}

// ListResults returns frozen results by rank
func (t *PostgresTx) ListResults(ctx context.Context, decisionID string) ([]domain.Result, error) {
	query := `
		SELECT decision_id, option_id, total_points, average_rank, rank, is_winner
		FROM results
		WHERE decision_id = $1
		ORDER BY rank
	`
	rows, err := t.tx.Query(ctx, query, decisionID)
	if err != nil {
		return nil, mapError(err, "list results")
	}
	defer rows.Close()

	results := []domain.Result{}
	for rows.Next() {
		var r domain.Result
		if err := rows.Scan(&r.DecisionID, &r.OptionID, &r.TotalPoints, &r.AverageRank, &r.Rank, &r.IsWinner); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteResults removes every result of a decision
func (t *PostgresTx) DeleteResults(ctx context.Context, decisionID string) (int64, error) {
	return t.execCount(ctx, "delete results", `DELETE FROM results WHERE decision_id = $1`, decisionID)
}
