package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"groupdecide/internal/domain"
)

func scanConstraint(row pgx.Row) (*domain.Constraint, error) {
	var (
		c     domain.Constraint
		typ   domain.ConstraintType
		value []byte
	)
	if err := row.Scan(&c.ID, &c.DecisionID, &c.UserID, &typ, &value, &c.Weight, &c.CreatedAt); err != nil {
		return nil, err
	}
	v, err := domain.DecodeConstraintValue(typ, value)
	if err != nil {
		return nil, fmt.Errorf("stored constraint %s is unreadable: %w", c.ID, err)
	}
	c.Value = v
	return &c, nil
}

// CreateConstraint inserts a constraint with its typed value as JSONB
func (t *PostgresTx) CreateConstraint(ctx context.Context, c *domain.Constraint) error {
	value, err := json.Marshal(c.Value)
	if err != nil {
		return fmt.Errorf("failed to encode constraint value: %w", err)
	}
	query := `
		INSERT INTO decision_constraints (id, decision_id, user_id, type, value, weight, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = t.tx.Exec(ctx, query, c.ID, c.DecisionID, c.UserID, c.Type(), value, c.Weight, c.CreatedAt)
	return mapError(err, "create constraint")
}

// GetConstraint retrieves a constraint of a decision
func (t *PostgresTx) GetConstraint(ctx context.Context, decisionID, id string) (*domain.Constraint, error) {
	query := `
		SELECT id, decision_id, user_id, type, value, weight, created_at
		FROM decision_constraints
		WHERE decision_id = $1 AND id = $2
	`
	c, err := scanConstraint(t.tx.QueryRow(ctx, query, decisionID, id))
	if err != nil {
		return nil, mapError(err, "get constraint")
	}
	return c, nil
}

// ListConstraints returns constraints in creation order
func (t *PostgresTx) ListConstraints(ctx context.Context, decisionID string) ([]domain.Constraint, error) {
	query := `
		SELECT id, decision_id, user_id, type, value, weight, created_at
		FROM decision_constraints
		WHERE decision_id = $1
		ORDER BY seq
	`
	rows, err := t.tx.Query(ctx, query, decisionID)
	if err != nil {
		return nil, mapError(err, "list constraints")
	}
	defer rows.Close()

	constraints := []domain.Constraint{}
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan constraint: %w", err)
		}
		constraints = append(constraints, *c)
	}
	return constraints, rows.Err()
}

// DeleteConstraint removes one constraint
func (t *PostgresTx) DeleteConstraint(ctx context.Context, decisionID, id string) error {
	return t.execAffecting(ctx, "delete constraint",
		`DELETE FROM decision_constraints WHERE decision_id = $1 AND id = $2`, decisionID, id)
}

// DeleteConstraints removes every constraint of a decision
func (t *PostgresTx) DeleteConstraints(ctx context.Context, decisionID string) (int64, error) {
	return t.execCount(ctx, "delete constraints",
		`DELETE FROM decision_constraints WHERE decision_id = $1`, decisionID)
}
