package service

import (
	"context"
	"fmt"

	"groupdecide/internal/domain"
	apperrors "groupdecide/pkg/errors"
)

// LimitPolicy caps the number of members per decision. Max <= 0 means no cap.
type LimitPolicy struct {
	Max int
}

func (p LimitPolicy) AllowJoin(_ context.Context, _ domain.Decision, memberCount int, _ string) error {
	if p.Max > 0 && memberCount >= p.Max {
		return apperrors.NewValidationError(
			fmt.Sprintf("this decision is limited to %d participants", p.Max),
			map[string]interface{}{"limit": p.Max})
	}
	return nil
}
