package service

import (
	"context"

	"groupdecide/internal/domain"
)

// ParticipantPolicy decides whether a decision may take another member
type ParticipantPolicy interface {
	// AllowJoin returns an error when a decision with memberCount members must
	// not accept userID
	AllowJoin(ctx context.Context, d domain.Decision, memberCount int, userID string) error
}

// EventPublisher fans out lifecycle events after they are committed
type EventPublisher interface {
	// Publish delivers an event; failures are the publisher's to report
	Publish(ctx context.Context, event Event) error
}

// SweeperService defines the interface for the deadline sweep loop
type SweeperService interface {
	// Start runs one pass immediately and then one per interval
	Start(ctx context.Context) error

	// Stop halts the loop and waits for an in-flight pass to finish
	Stop(ctx context.Context) error
}

// Services aggregates the application services
type Services struct {
	Decisions *DecisionService
	Sweeper   SweeperService
}
