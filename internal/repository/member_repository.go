package repository

import (
	"context"
	"fmt"

	"groupdecide/internal/domain"
)

// AddMember inserts a membership row
func (t *PostgresTx) AddMember(ctx context.Context, m *domain.Member) error {
	query := `
		INSERT INTO members (decision_id, user_id, role, has_voted, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.Exec(ctx, query, m.DecisionID, m.UserID, m.Role, m.HasVoted, m.JoinedAt)
	return mapError(err, "add member")
}

// GetMember retrieves one membership
func (t *PostgresTx) GetMember(ctx context.Context, decisionID, userID string) (*domain.Member, error) {
	var m domain.Member
	query := `
		SELECT decision_id, user_id, role, has_voted, joined_at
		FROM members
		WHERE decision_id = $1 AND user_id = $2
	`
	err := t.tx.QueryRow(ctx, query, decisionID, userID).Scan(
		&m.DecisionID,
		&m.UserID,
		&m.Role,
		&m.HasVoted,
		&m.JoinedAt,
	)
	if err != nil {
		return nil, mapError(err, "get member")
	}
	return &m, nil
}

// ListMembers returns members in join order
func (t *PostgresTx) ListMembers(ctx context.Context, decisionID string) ([]domain.Member, error) {
	query := `
		SELECT decision_id, user_id, role, has_voted, joined_at
		FROM members
		WHERE decision_id = $1
		ORDER BY joined_at, user_id
	`
	rows, err := t.tx.Query(ctx, query, decisionID)
	if err != nil {
		return nil, mapError(err, "list members")
	}
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.DecisionID, &m.UserID, &m.Role, &m.HasVoted, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMember persists role and has_voted
func (t *PostgresTx) UpdateMember(ctx context.Context, m *domain.Member) error {
	query := `
		UPDATE members SET role = $3, has_voted = $4
		WHERE decision_id = $1 AND user_id = $2
	`
	return t.execAffecting(ctx, "update member", query, m.DecisionID, m.UserID, m.Role, m.HasVoted)
}

// DeleteMember removes one membership
func (t *PostgresTx) DeleteMember(ctx context.Context, decisionID, userID string) error {
	return t.execAffecting(ctx, "delete member",
		`DELETE FROM members WHERE decision_id = $1 AND user_id = $2`, decisionID, userID)
}

// ResetVoted clears has_voted across the decision
func (t *PostgresTx) ResetVoted(ctx context.Context, decisionID string) (int64, error) {
	return t.execCount(ctx, "reset voted flags",
		`UPDATE members SET has_voted = FALSE WHERE decision_id = $1 AND has_voted`, decisionID)
}
