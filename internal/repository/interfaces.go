package repository

import (
	"context"
	"errors"
	"time"

	"groupdecide/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key already exists
	ErrDuplicate = errors.New("duplicate record")
)

// DecisionRepository defines the interface for decision data operations
type DecisionRepository interface {
	// CreateDecision inserts a new decision
	CreateDecision(ctx context.Context, d *domain.Decision) error

	// GetDecision retrieves a decision by ID
	GetDecision(ctx context.Context, id string) (*domain.Decision, error)

	// GetDecisionForUpdate retrieves a decision and holds it against
	// concurrent writers until the transaction ends
	GetDecisionForUpdate(ctx context.Context, id string) (*domain.Decision, error)

	// UpdateDecision persists every mutable column of d
	UpdateDecision(ctx context.Context, d *domain.Decision) error

	// DeleteDecision removes a decision and all of its child rows
	DeleteDecision(ctx context.Context, id string) error

	// ListDecisionsForUser returns decisions the user belongs to, newest first
	ListDecisionsForUser(ctx context.Context, userID string) ([]domain.Decision, error)

	// ListExpiredVoting returns IDs of voting decisions whose lock_time is at or before now
	ListExpiredVoting(ctx context.Context, now time.Time) ([]string, error)
}

// MemberRepository defines the interface for membership operations
type MemberRepository interface {
	// AddMember inserts a membership; ErrDuplicate if the user already belongs
	AddMember(ctx context.Context, m *domain.Member) error

	// GetMember retrieves one membership
	GetMember(ctx context.Context, decisionID, userID string) (*domain.Member, error)

	// ListMembers returns members in join order
	ListMembers(ctx context.Context, decisionID string) ([]domain.Member, error)

	// UpdateMember persists role and has_voted
	UpdateMember(ctx context.Context, m *domain.Member) error

	// DeleteMember removes one membership
	DeleteMember(ctx context.Context, decisionID, userID string) error

	// ResetVoted clears has_voted for every member of the decision
	ResetVoted(ctx context.Context, decisionID string) (int64, error)
}

// ConstraintRepository defines the interface for constraint operations
type ConstraintRepository interface {
	CreateConstraint(ctx context.Context, c *domain.Constraint) error
	GetConstraint(ctx context.Context, decisionID, id string) (*domain.Constraint, error)
	// ListConstraints returns constraints in creation order
	ListConstraints(ctx context.Context, decisionID string) ([]domain.Constraint, error)
	DeleteConstraint(ctx context.Context, decisionID, id string) error
	DeleteConstraints(ctx context.Context, decisionID string) (int64, error)
}

// OptionRepository defines the interface for option operations
type OptionRepository interface {
	CreateOption(ctx context.Context, o *domain.Option) error
	GetOption(ctx context.Context, decisionID, id string) (*domain.Option, error)
	// ListOptions returns options in creation order
	ListOptions(ctx context.Context, decisionID string) ([]domain.Option, error)
	CountOptions(ctx context.Context, decisionID string) (int, error)
	DeleteOption(ctx context.Context, decisionID, id string) error
	DeleteOptions(ctx context.Context, decisionID string) (int64, error)
}

// VoteRepository defines the interface for ballot rows
type VoteRepository interface {
	// CreateVotes inserts a whole ballot
	CreateVotes(ctx context.Context, votes []domain.Vote) error
	// ListVotes returns vote rows in insertion order
	ListVotes(ctx context.Context, decisionID string) ([]domain.Vote, error)
	// HasVotes reports whether the user has any vote row in the decision
	HasVotes(ctx context.Context, decisionID, userID string) (bool, error)
	DeleteVotes(ctx context.Context, decisionID string) (int64, error)
}

// ResultRepository defines the interface for frozen tally output
type ResultRepository interface {
	CreateResults(ctx context.Context, results []domain.Result) error
	// ListResults returns results by rank
	ListResults(ctx context.Context, decisionID string) ([]domain.Result, error)
	DeleteResults(ctx context.Context, decisionID string) (int64, error)
}

// AdvanceVoteRepository defines the interface for phase consent records
type AdvanceVoteRepository interface {
	// CreateAdvanceVote inserts a consent; ErrDuplicate if the user already consented
	CreateAdvanceVote(ctx context.Context, v *domain.AdvanceVote) error
	DeleteAdvanceVote(ctx context.Context, decisionID string, from domain.Phase, userID string) error
	ListAdvanceVotes(ctx context.Context, decisionID string, from domain.Phase) ([]domain.AdvanceVote, error)
	DeleteAdvanceVotes(ctx context.Context, decisionID string, from domain.Phase) (int64, error)
	DeleteAdvanceVotesForUser(ctx context.Context, decisionID, userID string) (int64, error)
}

// CommentRepository defines the interface for discussion threads
type CommentRepository interface {
	CreateComment(ctx context.Context, c *domain.Comment) error
	GetComment(ctx context.Context, decisionID, id string) (*domain.Comment, error)
	// ListComments returns comments in creation order
	ListComments(ctx context.Context, decisionID string) ([]domain.Comment, error)
}

// Tx is a unit of work spanning every entity
type Tx interface {
	DecisionRepository
	MemberRepository
	ConstraintRepository
	OptionRepository
	VoteRepository
	ResultRepository
	AdvanceVoteRepository
	CommentRepository
}

// Store is the data source the engine runs against. WithinTx commits when
// fn returns nil and rolls back otherwise, so no partial effects are visible.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Health(ctx context.Context) error
	Close()
}
