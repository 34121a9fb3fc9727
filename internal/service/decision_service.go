package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
	apperrors "groupdecide/pkg/errors"
	"groupdecide/pkg/logger"
)

// DecisionService is the decision lifecycle engine. Every operation runs as
// one unit of work: guards are evaluated first, against rows read inside the
// same transaction, and only then are writes issued.
type DecisionService struct {
	store  repository.Store
	cache  *CacheService
	events EventPublisher
	policy ParticipantPolicy
	logger *logger.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a DecisionService
type Option func(*DecisionService)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(s *DecisionService) { s.now = now }
}

// WithIDGenerator replaces the identifier source
func WithIDGenerator(newID func() string) Option {
	return func(s *DecisionService) { s.newID = newID }
}

// WithCache attaches the redis cache
func WithCache(cache *CacheService) Option {
	return func(s *DecisionService) { s.cache = cache }
}

// WithEvents attaches an event publisher
func WithEvents(events EventPublisher) Option {
	return func(s *DecisionService) { s.events = events }
}

// WithParticipantPolicy attaches the join policy
func WithParticipantPolicy(policy ParticipantPolicy) Option {
	return func(s *DecisionService) { s.policy = policy }
}

// NewDecisionService creates the engine over a data source
func NewDecisionService(store repository.Store, log *logger.Logger, opts ...Option) *DecisionService {
	if log == nil {
		log = logger.NewNop()
	}
	s := &DecisionService{
		store:  store,
		events: NopPublisher{},
		policy: LimitPolicy{},
		logger: log.Named("decisions"),
		now:    time.Now,
		newID:  domain.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewCacheService(nil, s.logger.Logger, 0)
	}
	return s
}

// access is what every guarded operation reads before deciding
type access struct {
	decision    *domain.Decision
	member      *domain.Member
	optionCount int
}

// load reads the decision under a row lock together with the caller's
// membership and the option count, then asks the capability authority.
func (s *DecisionService) load(ctx context.Context, tx repository.Tx, decisionID, userID string, action domain.Action) (*access, error) {
	d, err := tx.GetDecisionForUpdate(ctx, decisionID)
	if err != nil {
		return nil, notFound(err, "decision")
	}
	m, err := s.memberOrNil(ctx, tx, decisionID, userID)
	if err != nil {
		return nil, err
	}
	count, err := tx.CountOptions(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if err := domain.Check(*d, m, count, action); err != nil {
		return nil, err
	}
	return &access{decision: d, member: m, optionCount: count}, nil
}

// loadMember is load for operations that only need the caller to belong to
// the decision
func (s *DecisionService) loadMember(ctx context.Context, tx repository.Tx, decisionID, userID string) (*domain.Decision, *domain.Member, error) {
	d, err := tx.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, nil, notFound(err, "decision")
	}
	m, err := s.memberOrNil(ctx, tx, decisionID, userID)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, apperrors.NewIllegalTransitionError("you are not a member of this decision")
	}
	return d, m, nil
}

func (s *DecisionService) memberOrNil(ctx context.Context, tx repository.Tx, decisionID, userID string) (*domain.Member, error) {
	if userID == "" {
		return nil, nil
	}
	m, err := tx.GetMember(ctx, decisionID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// publish delivers events after commit. Delivery problems are logged only.
func (s *DecisionService) publish(ctx context.Context, events ...Event) {
	for _, e := range events {
		if err := s.events.Publish(ctx, e); err != nil {
			s.logger.WithDecision(e.DecisionID, e.UserID).Warn("Failed to publish event",
				zap.String("event", string(e.Type)),
				zap.Error(err))
		}
	}
}

func (s *DecisionService) event(t EventType, d *domain.Decision, userID string) Event {
	return Event{Type: t, DecisionID: d.ID, UserID: userID, Phase: d.Phase, At: s.now().UTC()}
}

// notFound maps a repository miss to a NotFoundError naming what
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError(fmt.Sprintf("%s not found", what))
	}
	return err
}

// requireUser rejects calls without a caller identity
func requireUser(userID string) error {
	if userID == "" {
		return apperrors.NewValidationError("user id is required", map[string]interface{}{"field": "user_id"})
	}
	return nil
}
