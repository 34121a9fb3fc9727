package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"groupdecide/internal/domain"
)

const decisionColumns = `
	d.id, d.title, d.description, d.category, d.created_by, d.phase, d.lock_time,
	d.mechanism, d.max_options, d.option_submission, d.reveal_votes_after_lock,
	d.silent_voting, d.constraint_weighting, d.locked_at, d.created_at, d.updated_at`

func scanDecision(row pgx.Row) (*domain.Decision, error) {
	var d domain.Decision
	err := row.Scan(
		&d.ID,
		&d.Title,
		&d.Description,
		&d.Category,
		&d.CreatedBy,
		&d.Phase,
		&d.LockTime,
		&d.Mechanism,
		&d.MaxOptions,
		&d.OptionSubmission,
		&d.RevealVotesAfterLock,
		&d.SilentVoting,
		&d.ConstraintWeighting,
		&d.LockedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDecision inserts a new decision
func (t *PostgresTx) CreateDecision(ctx context.Context, d *domain.Decision) error {
	query := `
		INSERT INTO decisions (
			id, title, description, category, created_by, phase, lock_time,
			mechanism, max_options, option_submission, reveal_votes_after_lock,
			silent_voting, constraint_weighting, locked_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := t.tx.Exec(ctx, query,
		d.ID,
		d.Title,
		d.Description,
		d.Category,
		d.CreatedBy,
		d.Phase,
		d.LockTime,
		d.Mechanism,
		d.MaxOptions,
		d.OptionSubmission,
		d.RevealVotesAfterLock,
		d.SilentVoting,
		d.ConstraintWeighting,
		d.LockedAt,
		d.CreatedAt,
		d.UpdatedAt,
	)
	return mapError(err, "create decision")
}

// GetDecision retrieves a decision by ID
func (t *PostgresTx) GetDecision(ctx context.Context, id string) (*domain.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions d WHERE d.id = $1`
	d, err := scanDecision(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "get decision")
	}
	return d, nil
}

// GetDecisionForUpdate retrieves a decision and row-locks it for the rest of
// the transaction. Every phase change goes through here first.
func (t *PostgresTx) GetDecisionForUpdate(ctx context.Context, id string) (*domain.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions d WHERE d.id = $1 FOR UPDATE`
	d, err := scanDecision(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "lock decision")
	}
	return d, nil
}

// UpdateDecision persists the mutable columns of a decision
func (t *PostgresTx) UpdateDecision(ctx context.Context, d *domain.Decision) error {
	query := `
		UPDATE decisions
		SET title = $2, description = $3, category = $4, created_by = $5, phase = $6,
		    lock_time = $7, locked_at = $8, updated_at = $9
		WHERE id = $1
	`
	return t.execAffecting(ctx, "update decision", query,
		d.ID,
		d.Title,
		d.Description,
		d.Category,
		d.CreatedBy,
		d.Phase,
		d.LockTime,
		d.LockedAt,
		d.UpdatedAt,
	)
}

// DeleteDecision removes a decision; child rows cascade
func (t *PostgresTx) DeleteDecision(ctx context.Context, id string) error {
	return t.execAffecting(ctx, "delete decision", `DELETE FROM decisions WHERE id = $1`, id)
}

// ListDecisionsForUser returns the decisions a user belongs to, newest first
func (t *PostgresTx) ListDecisionsForUser(ctx context.Context, userID string) ([]domain.Decision, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM decisions d
		JOIN members m ON m.decision_id = d.id
		WHERE m.user_id = $1
		ORDER BY d.created_at DESC, d.id
	`
	rows, err := t.tx.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "list decisions")
	}
	defer rows.Close()

	decisions := []domain.Decision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, *d)
	}
	return decisions, rows.Err()
}

// ListExpiredVoting returns voting decisions whose deadline has passed
func (t *PostgresTx) ListExpiredVoting(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT id FROM decisions
		WHERE phase = 'voting' AND lock_time <= $1
		ORDER BY lock_time, id
	`
	rows, err := t.tx.Query(ctx, query, now)
	if err != nil {
		return nil, mapError(err, "list expired decisions")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan decision id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
