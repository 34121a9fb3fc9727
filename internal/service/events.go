package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"groupdecide/internal/domain"
	"groupdecide/pkg/redis"
)

// EventType names a lifecycle event
type EventType string

const (
	EventPhaseChanged         EventType = "phase_changed"
	EventDecisionLocked       EventType = "decision_locked"
	EventMemberJoined         EventType = "member_joined"
	EventMemberLeft           EventType = "member_left"
	EventOrganizerTransferred EventType = "organizer_transferred"
)

// Event is a committed change other parties may want to hear about
type Event struct {
	Type       EventType    `json:"type"`
	DecisionID string       `json:"decision_id"`
	UserID     string       `json:"user_id,omitempty"`
	FromPhase  domain.Phase `json:"from_phase,omitempty"`
	Phase      domain.Phase `json:"phase,omitempty"`
	At         time.Time    `json:"at"`
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// RedisEventPublisher publishes events as JSON on a per-decision channel
type RedisEventPublisher struct {
	redis *redis.Client
}

func NewRedisEventPublisher(client *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{redis: client}
}

// Publish sends event to <env>:decision:<id>:events
func (p *RedisEventPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	channel := p.redis.KeyBuilder.KeyDecisionEvents(event.DecisionID)
	if _, err := p.redis.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}
