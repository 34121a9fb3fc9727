package repository_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
	"groupdecide/internal/service"
	apperrors "groupdecide/pkg/errors"
	"groupdecide/pkg/database"
	"groupdecide/pkg/logger"
)

// openTestStore connects to TEST_DATABASE_URL and recreates the schema
func openTestStore(t *testing.T) *repository.PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, url)
	require.NoError(t, err)

	require.NoError(t, db.ResetSchema(ctx))

	store := repository.NewPostgresStore(db)
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	now := time.Now().UTC().Truncate(time.Microsecond)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	svc := service.NewDecisionService(store, logger.NewNop(), service.WithClock(clock))

	d, err := svc.CreateDecision(ctx, "organizer", domain.CreateDecisionInput{
		Title:     "Offsite",
		LockTime:  now.Add(time.Hour),
		Mechanism: domain.MechanismForcedRanking,
	})
	require.NoError(t, err)

	_, err = svc.JoinDecision(ctx, d.ID, "bob")
	require.NoError(t, err)
	_, err = svc.SubmitConstraint(ctx, d.ID, "bob", domain.ConstraintInput{
		Type:  domain.ConstraintBudgetMax,
		Value: []byte(`{"max": 100}`),
	})
	require.NoError(t, err)

	_, err = svc.AdvancePhase(ctx, d.ID, "organizer", service.PhaseChangeRequest{})
	require.NoError(t, err)

	var ids []string
	for _, title := range []string{"Lisbon", "Porto", "Madrid"} {
		o, err := svc.SubmitOption(ctx, d.ID, "bob", domain.OptionDraft{Title: title})
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	_, err = svc.AdvancePhase(ctx, d.ID, "organizer", service.PhaseChangeRequest{ExpectedPhase: domain.PhaseOptions})
	require.NoError(t, err)

	ballot := domain.BallotRequest{Entries: []domain.BallotEntry{
		{OptionID: ids[0], Value: 2}, {OptionID: ids[1], Value: 1}, {OptionID: ids[2], Value: 3},
	}}
	_, err = svc.SubmitBallot(ctx, d.ID, "bob", ballot)
	require.NoError(t, err)
	_, err = svc.SubmitBallot(ctx, d.ID, "bob", ballot)
	assert.True(t, apperrors.IsConflict(err), "unique (decision, user, option) maps to conflict")

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	summary, err := svc.TallyAndLockExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID}, summary.Locked)

	results, err := svc.GetResults(ctx, d.ID, "organizer")
	require.NoError(t, err)
	require.NotNil(t, results.Winner)
	assert.Equal(t, "Porto", results.Winner.Title)

	locked, err := svc.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseLocked, locked.Phase)
	require.NotNil(t, locked.LockedAt)
}

func TestPostgresStore_RevertCascade(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	svc := service.NewDecisionService(store, logger.NewNop())

	d, err := svc.CreateDecision(ctx, "organizer", domain.CreateDecisionInput{
		Title:     "Lunch",
		LockTime:  time.Now().Add(time.Hour),
		Mechanism: domain.MechanismPointAllocation,
	})
	require.NoError(t, err)
	_, err = svc.AdvancePhase(ctx, d.ID, "organizer", service.PhaseChangeRequest{})
	require.NoError(t, err)
	for _, title := range []string{"A", "B"} {
		_, err = svc.SubmitOption(ctx, d.ID, "organizer", domain.OptionDraft{Title: title})
		require.NoError(t, err)
	}
	_, err = svc.AdvancePhase(ctx, d.ID, "organizer", service.PhaseChangeRequest{})
	require.NoError(t, err)

	_, err = svc.RevertPhase(ctx, d.ID, "organizer", service.PhaseChangeRequest{})
	require.NoError(t, err)
	_, err = svc.RevertPhase(ctx, d.ID, "organizer", service.PhaseChangeRequest{})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx repository.Tx) error {
		count, err := tx.CountOptions(ctx, d.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresStore_DuplicateMember(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.WithinTx(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.CreateDecision(ctx, &domain.Decision{
			ID: "d1", Title: "x", CreatedBy: "org", Phase: domain.PhaseConstraints,
			LockTime: now.Add(time.Hour), Mechanism: domain.MechanismPointAllocation,
			MaxOptions: 5, OptionSubmission: domain.SubmissionAnyone, CreatedAt: now, UpdatedAt: now,
		}))
		require.NoError(t, tx.AddMember(ctx, &domain.Member{DecisionID: "d1", UserID: "u", Role: domain.RoleMember, JoinedAt: now}))
		return tx.AddMember(ctx, &domain.Member{DecisionID: "d1", UserID: "u", Role: domain.RoleMember, JoinedAt: now})
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	// the failed transaction left nothing behind
	err = store.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := tx.GetDecision(ctx, "d1")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}
