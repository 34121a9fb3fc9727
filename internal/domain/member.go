package domain

import "time"

// Role is a member's standing within one decision
type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleMember    Role = "member"
)

// Member joins a user to a decision. A user appears at most once per decision
// and exactly one member holds RoleOrganizer.
type Member struct {
	DecisionID string    `json:"decision_id"`
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	HasVoted   bool      `json:"has_voted"`
	JoinedAt   time.Time `json:"joined_at"`
}

func (m Member) IsOrganizer() bool {
	return m.Role == RoleOrganizer
}

// CountOrganizers returns how many members hold the organizer role
func CountOrganizers(members []Member) int {
	n := 0
	for _, m := range members {
		if m.IsOrganizer() {
			n++
		}
	}
	return n
}
