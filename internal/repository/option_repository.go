package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"groupdecide/internal/domain"
)

const optionColumns = `id, decision_id, user_id, title, description, metadata, passes_constraints, violations, created_at`

func scanOption(row pgx.Row) (*domain.Option, error) {
	var (
		o          domain.Option
		metadata   []byte
		violations []byte
	)
	err := row.Scan(
		&o.ID,
		&o.DecisionID,
		&o.SubmittedBy,
		&o.Title,
		&o.Description,
		&metadata,
		&o.PassesConstraints,
		&violations,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
		return nil, fmt.Errorf("option %s has unreadable metadata: %w", o.ID, err)
	}
	o.Violations = []domain.Violation{}
	if err := json.Unmarshal(violations, &o.Violations); err != nil {
		return nil, fmt.Errorf("option %s has unreadable violations: %w", o.ID, err)
	}
	return &o, nil
}

// CreateOption inserts an option together with its frozen verdict
func (t *PostgresTx) CreateOption(ctx context.Context, o *domain.Option) error {
	metadata, err := json.Marshal(o.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode option metadata: %w", err)
	}
	violations := o.Violations
	if violations == nil {
		violations = []domain.Violation{}
	}
	encodedViolations, err := json.Marshal(violations)
	if err != nil {
		return fmt.Errorf("failed to encode violations: %w", err)
	}

	query := `
		INSERT INTO options (` + optionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = t.tx.Exec(ctx, query,
		o.ID,
		o.DecisionID,
		o.SubmittedBy,
		o.Title,
		o.Description,
		metadata,
		o.PassesConstraints,
		encodedViolations,
		o.CreatedAt,
	)
	return mapError(err, "create option")
}

// GetOption retrieves an option of a decision
func (t *PostgresTx) GetOption(ctx context.Context, decisionID, id string) (*domain.Option, error) {
	query := `SELECT ` + optionColumns + ` FROM options WHERE decision_id = $1 AND id = $2`
	o, err := scanOption(t.tx.QueryRow(ctx, query, decisionID, id))
	if err != nil {
		return nil, mapError(err, "get option")
	}
	return o, nil
}

// ListOptions returns options in creation order
func (t *PostgresTx) ListOptions(ctx context.Context, decisionID string) ([]domain.Option, error) {
	query := `SELECT ` + optionColumns + ` FROM options WHERE decision_id = $1 ORDER BY seq`
	rows, err := t.tx.Query(ctx, query, decisionID)
	if err != nil {
		return nil, mapError(err, "list options")
	}
	defer rows.Close()

	options := []domain.Option{}
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, *o)
	}
	return options, rows.Err()
}

// CountOptions returns how many options a decision has, passing or not
func (t *PostgresTx) CountOptions(ctx context.Context, decisionID string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM options WHERE decision_id = $1`, decisionID).Scan(&count)
	if err != nil {
		return 0, mapError(err, "count options")
	}
	return count, nil
}

// DeleteOption removes one option
func (t *PostgresTx) DeleteOption(ctx context.Context, decisionID, id string) error {
	return t.execAffecting(ctx, "delete option",
		`DELETE FROM options WHERE decision_id = $1 AND id = $2`, decisionID, id)
}

// DeleteOptions removes every option of a decision
func (t *PostgresTx) DeleteOptions(ctx context.Context, decisionID string) (int64, error) {
	return t.execCount(ctx, "delete options", `DELETE FROM options WHERE decision_id = $1`, decisionID)
}
