package repository

import (
	"context"
	"fmt"

	"groupdecide/internal/domain"
)

// CreateComment inserts a comment
func (t *PostgresTx) CreateComment(ctx context.Context, c *domain.Comment) error {
	query := `
		INSERT INTO comments (id, decision_id, user_id, parent_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.Exec(ctx, query, c.ID, c.DecisionID, c.UserID, c.ParentID, c.Body, c.CreatedAt)
	return mapError(err, "create comment")
}

// GetComment retrieves a comment of a decision
func (t *PostgresTx) GetComment(ctx context.Context, decisionID, id string) (*domain.Comment, error) {
	var c domain.Comment
	query := `
		SELECT id, decision_id, user_id, parent_id, body, created_at
		FROM comments
		WHERE decision_id = $1 AND id = $2
	`
	err := t.tx.QueryRow(ctx, query, decisionID, id).Scan(
		&c.ID, &c.DecisionID, &c.UserID, &c.ParentID, &c.Body, &c.CreatedAt)
	if err != nil {
		return nil, mapError(err, "get comment")
	}
	return &c, nil
}

// ListComments returns a decision's comments in creation order
func (t *PostgresTx) ListComments(ctx context.Context, decisionID string) ([]domain.Comment, error) {
	query := `
		SELECT id, decision_id, user_id, parent_id, body, created_at
		FROM comments
		WHERE decision_id = $1
		ORDER BY seq
	`
	rows, err := t.tx.Query(ctx, query, decisionID)
	if err != nil {
		return nil, mapError(err, "list comments")
	}
	defer rows.Close()

	comments := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.DecisionID, &c.UserID, &c.ParentID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
