// Package memory is an in-process data source. Each unit of work runs on a
// private copy of the data that replaces the shared copy only on success, so
// a failed operation leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
)

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*tx)(nil)
)

type state struct {
	decisions    map[string]domain.Decision
	members      []domain.Member
	constraints  []domain.Constraint
	options      []domain.Option
	votes        []domain.Vote
	results      []domain.Result
	advanceVotes []domain.AdvanceVote
	comments     []domain.Comment
}

func newState() *state {
	return &state{decisions: make(map[string]domain.Decision)}
}

func (s *state) clone() *state {
	c := &state{
		decisions:    make(map[string]domain.Decision, len(s.decisions)),
		members:      append([]domain.Member(nil), s.members...),
		constraints:  append([]domain.Constraint(nil), s.constraints...),
		options:      make([]domain.Option, len(s.options)),
		votes:        append([]domain.Vote(nil), s.votes...),
		results:      append([]domain.Result(nil), s.results...),
		advanceVotes: append([]domain.AdvanceVote(nil), s.advanceVotes...),
		comments:     append([]domain.Comment(nil), s.comments...),
	}
	for id, d := range s.decisions {
		c.decisions[id] = d
	}
	for i, o := range s.options {
		c.options[i] = copyOption(o)
	}
	return c
}

func copyOption(o domain.Option) domain.Option {
	o.Violations = append([]domain.Violation{}, o.Violations...)
	return o
}

// Store keeps every entity in memory behind one mutex. Units of work are
// serialized, which is what the row lock achieves in postgres.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx runs fn against a private copy and publishes it if fn succeeds
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() {}

type tx struct {
	st *state
}

// Decisions

func (t *tx) CreateDecision(_ context.Context, d *domain.Decision) error {
	if _, ok := t.st.decisions[d.ID]; ok {
		return repository.ErrDuplicate
	}
	t.st.decisions[d.ID] = *d
	return nil
}

func (t *tx) GetDecision(_ context.Context, id string) (*domain.Decision, error) {
	d, ok := t.st.decisions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (t *tx) GetDecisionForUpdate(ctx context.Context, id string) (*domain.Decision, error) {
	return t.GetDecision(ctx, id)
}

func (t *tx) UpdateDecision(_ context.Context, d *domain.Decision) error {
	if _, ok := t.st.decisions[d.ID]; !ok {
		return repository.ErrNotFound
	}
	t.st.decisions[d.ID] = *d
	return nil
}

func (t *tx) DeleteDecision(_ context.Context, id string) error {
	if _, ok := t.st.decisions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.st.decisions, id)
	inDecision := func(decisionID string) bool { return decisionID == id }
	t.st.members = filter(t.st.members, func(m domain.Member) bool { return !inDecision(m.DecisionID) })
	t.st.constraints = filter(t.st.constraints, func(c domain.Constraint) bool { return !inDecision(c.DecisionID) })
	t.st.options = filter(t.st.options, func(o domain.Option) bool { return !inDecision(o.DecisionID) })
	t.st.votes = filter(t.st.votes, func(v domain.Vote) bool { return !inDecision(v.DecisionID) })
	t.st.results = filter(t.st.results, func(r domain.Result) bool { return !inDecision(r.DecisionID) })
	t.st.advanceVotes = filter(t.st.advanceVotes, func(v domain.AdvanceVote) bool { return !inDecision(v.DecisionID) })
	t.st.comments = filter(t.st.comments, func(c domain.Comment) bool { return !inDecision(c.DecisionID) })
	return nil
}

func (t *tx) ListDecisionsForUser(_ context.Context, userID string) ([]domain.Decision, error) {
	decisions := []domain.Decision{}
	for _, m := range t.st.members {
		if m.UserID == userID {
			if d, ok := t.st.decisions[m.DecisionID]; ok {
				decisions = append(decisions, d)
			}
		}
	}
	sort.SliceStable(decisions, func(i, j int) bool {
		if !decisions[i].CreatedAt.Equal(decisions[j].CreatedAt) {
			return decisions[i].CreatedAt.After(decisions[j].CreatedAt)
		}
		return decisions[i].ID < decisions[j].ID
	})
	return decisions, nil
}

func (t *tx) ListExpiredVoting(_ context.Context, now time.Time) ([]string, error) {
	expired := []domain.Decision{}
	for _, d := range t.st.decisions {
		if d.Phase == domain.PhaseVoting && d.DeadlinePassed(now) {
			expired = append(expired, d)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].LockTime.Equal(expired[j].LockTime) {
			return expired[i].LockTime.Before(expired[j].LockTime)
		}
		return expired[i].ID < expired[j].ID
	})
	ids := make([]string, 0, len(expired))
	for _, d := range expired {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// Members

func (t *tx) AddMember(_ context.Context, m *domain.Member) error {
	if _, ok := t.st.decisions[m.DecisionID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range t.st.members {
		if existing.DecisionID == m.DecisionID && existing.UserID == m.UserID {
			return repository.ErrDuplicate
		}
		if m.IsOrganizer() && existing.DecisionID == m.DecisionID && existing.IsOrganizer() {
			return repository.ErrDuplicate
		}
	}
	t.st.members = append(t.st.members, *m)
	return nil
}

func (t *tx) GetMember(_ context.Context, decisionID, userID string) (*domain.Member, error) {
	for _, m := range t.st.members {
		if m.DecisionID == decisionID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) ListMembers(_ context.Context, decisionID string) ([]domain.Member, error) {
	return filter(t.st.members, func(m domain.Member) bool { return m.DecisionID == decisionID }), nil
}

func (t *tx) UpdateMember(_ context.Context, m *domain.Member) error {
	for i, existing := range t.st.members {
		if existing.DecisionID == m.DecisionID && existing.UserID == m.UserID {
			if m.IsOrganizer() && !existing.IsOrganizer() {
				for _, other := range t.st.members {
					if other.DecisionID == m.DecisionID && other.IsOrganizer() {
						return repository.ErrDuplicate
					}
				}
			}
			t.st.members[i].Role = m.Role
			t.st.members[i].HasVoted = m.HasVoted
			return nil
		}
	}
	return repository.ErrNotFound
}

func (t *tx) DeleteMember(_ context.Context, decisionID, userID string) error {
	before := len(t.st.members)
	t.st.members = filter(t.st.members, func(m domain.Member) bool {
		return !(m.DecisionID == decisionID && m.UserID == userID)
	})
	if len(t.st.members) == before {
		return repository.ErrNotFound
	}
	return nil
}

func (t *tx) ResetVoted(_ context.Context, decisionID string) (int64, error) {
	var n int64
	for i := range t.st.members {
		if t.st.members[i].DecisionID == decisionID && t.st.members[i].HasVoted {
			t.st.members[i].HasVoted = false
			n++
		}
	}
	return n, nil
}

// Constraints

func (t *tx) CreateConstraint(_ context.Context, c *domain.Constraint) error {
	if _, ok := t.st.decisions[c.DecisionID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range t.st.constraints {
		if existing.ID == c.ID {
			return repository.ErrDuplicate
		}
	}
	t.st.constraints = append(t.st.constraints, *c)
	return nil
}

func (t *tx) GetConstraint(_ context.Context, decisionID, id string) (*domain.Constraint, error) {
	for _, c := range t.st.constraints {
		if c.DecisionID == decisionID && c.ID == id {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) ListConstraints(_ context.Context, decisionID string) ([]domain.Constraint, error) {
	return filter(t.st.constraints, func(c domain.Constraint) bool { return c.DecisionID == decisionID }), nil
}

func (t *tx) DeleteConstraint(_ context.Context, decisionID, id string) error {
	before := len(t.st.constraints)
	t.st.constraints = filter(t.st.constraints, func(c domain.Constraint) bool {
		return !(c.DecisionID == decisionID && c.ID == id)
	})
	if len(t.st.constraints) == before {
		return repository.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteConstraints(_ context.Context, decisionID string) (int64, error) {
	before := len(t.st.constraints)
	t.st.constraints = filter(t.st.constraints, func(c domain.Constraint) bool { return c.DecisionID != decisionID })
	return int64(before - len(t.st.constraints)), nil
}

// Options

func (t *tx) CreateOption(_ context.Context, o *domain.Option) error {
	if _, ok := t.st.decisions[o.DecisionID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range t.st.options {
		if existing.ID == o.ID {
			return repository.ErrDuplicate
		}
	}
	t.st.options = append(t.st.options, copyOption(*o))
	return nil
}

func (t *tx) GetOption(_ context.Context, decisionID, id string) (*domain.Option, error) {
	for _, o := range t.st.options {
		if o.DecisionID == decisionID && o.ID == id {
			c := copyOption(o)
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) ListOptions(_ context.Context, decisionID string) ([]domain.Option, error) {
	options := []domain.Option{}
	for _, o := range t.st.options {
		if o.DecisionID == decisionID {
			options = append(options, copyOption(o))
		}
	}
	return options, nil
}

func (t *tx) CountOptions(_ context.Context, decisionID string) (int, error) {
	n := 0
	for _, o := range t.st.options {
		if o.DecisionID == decisionID {
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteOption(_ context.Context, decisionID, id string) error {
	before := len(t.st.options)
	t.st.options = filter(t.st.options, func(o domain.Option) bool {
		return !(o.DecisionID == decisionID && o.ID == id)
	})
	if len(t.st.options) == before {
		return repository.ErrNotFound
	}
	t.st.votes = filter(t.st.votes, func(v domain.Vote) bool { return v.OptionID != id })
	t.st.results = filter(t.st.results, func(r domain.Result) bool { return r.OptionID != id })
	return nil
}

func (t *tx) DeleteOptions(_ context.Context, decisionID string) (int64, error) {
	removed := map[string]struct{}{}
	t.st.options = filter(t.st.options, func(o domain.Option) bool {
		if o.DecisionID == decisionID {
			removed[o.ID] = struct{}{}
			return false
		}
		return true
	})
	t.st.votes = filter(t.st.votes, func(v domain.Vote) bool {
		_, gone := removed[v.OptionID]
		return !gone
	})
	t.st.results = filter(t.st.results, func(r domain.Result) bool {
		_, gone := removed[r.OptionID]
		return !gone
	})
	return int64(len(removed)), nil
}

// Votes

func (t *tx) CreateVotes(_ context.Context, votes []domain.Vote) error {
	for _, v := range votes {
		for _, existing := range t.st.votes {
			if existing.DecisionID == v.DecisionID && existing.UserID == v.UserID && existing.OptionID == v.OptionID {
				return repository.ErrDuplicate
			}
		}
	}
	t.st.votes = append(t.st.votes, votes...)
	return nil
}

func (t *tx) ListVotes(_ context.Context, decisionID string) ([]domain.Vote, error) {
	return filter(t.st.votes, func(v domain.Vote) bool { return v.DecisionID == decisionID }), nil
}

func (t *tx) HasVotes(_ context.Context, decisionID, userID string) (bool, error) {
	for _, v := range t.st.votes {
		if v.DecisionID == decisionID && v.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) DeleteVotes(_ context.Context, decisionID string) (int64, error) {
	before := len(t.st.votes)
	t.st.votes = filter(t.st.votes, func(v domain.Vote) bool { return v.DecisionID != decisionID })
	return int64(before - len(t.st.votes)), nil
}

// Results

func (t *tx) CreateResults(_ context.Context, results []domain.Result) error {
	for _, r := range results {
		for _, existing := range t.st.results {
			if existing.DecisionID == r.DecisionID && existing.OptionID == r.OptionID {
				return repository.ErrDuplicate
			}
		}
	}
	t.st.results = append(t.st.results, results...)
	return nil
}

func (t *tx) ListResults(_ context.Context, decisionID string) ([]domain.Result, error) {
	results := filter(t.st.results, func(r domain.Result) bool { return r.DecisionID == decisionID })
	sort.SliceStable(results, func(i, j int) bool { return results[i].Rank < results[j].Rank })
	return results, nil
}

func (t *tx) DeleteResults(_ context.Context, decisionID string) (int64, error) {
	before := len(t.st.results)
	t.st.results = filter(t.st.results, func(r domain.Result) bool { return r.DecisionID != decisionID })
	return int64(before - len(t.st.results)), nil
}

// Advance votes

func (t *tx) CreateAdvanceVote(_ context.Context, v *domain.AdvanceVote) error {
	for _, existing := range t.st.advanceVotes {
		if existing.DecisionID == v.DecisionID && existing.FromPhase == v.FromPhase && existing.UserID == v.UserID {
			return repository.ErrDuplicate
		}
	}
	t.st.advanceVotes = append(t.st.advanceVotes, *v)
	return nil
}

func (t *tx) DeleteAdvanceVote(_ context.Context, decisionID string, from domain.Phase, userID string) error {
	before := len(t.st.advanceVotes)
	t.st.advanceVotes = filter(t.st.advanceVotes, func(v domain.AdvanceVote) bool {
		return !(v.DecisionID == decisionID && v.FromPhase == from && v.UserID == userID)
	})
	if len(t.st.advanceVotes) == before {
		return repository.ErrNotFound
	}
	return nil
}

func (t *tx) ListAdvanceVotes(_ context.Context, decisionID string, from domain.Phase) ([]domain.AdvanceVote, error) {
	return filter(t.st.advanceVotes, func(v domain.AdvanceVote) bool {
		return v.DecisionID == decisionID && v.FromPhase == from
	}), nil
}

func (t *tx) DeleteAdvanceVotes(_ context.Context, decisionID string, from domain.Phase) (int64, error) {
	before := len(t.st.advanceVotes)
	t.st.advanceVotes = filter(t.st.advanceVotes, func(v domain.AdvanceVote) bool {
		return !(v.DecisionID == decisionID && v.FromPhase == from)
	})
	return int64(before - len(t.st.advanceVotes)), nil
}

func (t *tx) DeleteAdvanceVotesForUser(_ context.Context, decisionID, userID string) (int64, error) {
	before := len(t.st.advanceVotes)
	t.st.advanceVotes = filter(t.st.advanceVotes, func(v domain.AdvanceVote) bool {
		return !(v.DecisionID == decisionID && v.UserID == userID)
	})
	return int64(before - len(t.st.advanceVotes)), nil
}

// Comments

func (t *tx) CreateComment(_ context.Context, c *domain.Comment) error {
	if _, ok := t.st.decisions[c.DecisionID]; !ok {
		return repository.ErrNotFound
	}
	t.st.comments = append(t.st.comments, *c)
	return nil
}

func (t *tx) GetComment(_ context.Context, decisionID, id string) (*domain.Comment, error) {
	for _, c := range t.st.comments {
		if c.DecisionID == decisionID && c.ID == id {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) ListComments(_ context.Context, decisionID string) ([]domain.Comment, error) {
	return filter(t.st.comments, func(c domain.Comment) bool { return c.DecisionID == decisionID }), nil
}

// filter returns a new slice holding the elements keep accepts, in order
func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
