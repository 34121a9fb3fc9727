package domain

import "time"

// AdvanceVote is one member's consent to leave FromPhase
type AdvanceVote struct {
	DecisionID string    `json:"decision_id"`
	FromPhase  Phase     `json:"from_phase"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// AdvanceThreshold is ceil(members/2), never below one
func AdvanceThreshold(memberCount int) int {
	t := (memberCount + 1) / 2
	if t < 1 {
		return 1
	}
	return t
}

// ThresholdReached reports whether votes distinct consents meet the threshold
func ThresholdReached(votes, memberCount int) bool {
	return votes >= AdvanceThreshold(memberCount)
}

// AdvanceVoteStatus reports consent collected for leaving the current phase
type AdvanceVoteStatus struct {
	DecisionID    string   `json:"decision_id"`
	FromPhase     Phase    `json:"from_phase"`
	Voters        []string `json:"voters"`
	Count         int      `json:"count"`
	Threshold     int      `json:"threshold"`
	MemberCount   int      `json:"member_count"`
	UserHasVoted  bool     `json:"user_has_voted"`
	Advanced      bool     `json:"advanced"`
	Phase         Phase    `json:"phase"`
	BlockedReason string   `json:"blocked_reason,omitempty"`
}
