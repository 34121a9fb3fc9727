package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupdecide/internal/domain"
	apperrors "groupdecide/pkg/errors"
)

func TestJoinDecision_Idempotent(t *testing.T) {
	f := newFixture(t)
	d := f.createDecision(t, "organizer", domain.MechanismPointAllocation)
	ctx := context.Background()

	first, err := f.svc.JoinDecision(ctx, d.ID, "bob")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.svc.JoinDecision(ctx, d.ID, "bob")
	require.NoError(t, err)

	assert.Equal(t, first.JoinedAt, second.JoinedAt)
	assert.Len(t, f.snapshot(t, d.ID).members, 2)

	_, err = f.svc.JoinDecision(ctx, d.ID, "organizer")
	require.NoError(t, err)
	snap := f.snapshot(t, d.ID)
	assert.Equal(t, domain.RoleOrganizer, snap.member("organizer").Role)

	joined := 0
	for _, e := range f.events.types() {
		if e == EventMemberJoined {
			joined++
		}
	}
	assert.Equal(t, 1, joined)
}

func TestJoinDecision_ConcurrentJoinsWriteOneRow(t *testing.T) {
	f := newFixture(t)
	d := f.createDecision(t, "organizer", domain.MechanismPointAllocation)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.JoinDecision(context.Background(), d.ID, "bob")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.snapshot(t, d.ID).members, 2)
}

func TestJoinDecision_ParticipantPolicy(t *testing.T) {
	f := newFixture(t, WithParticipantPolicy(LimitPolicy{Max: 2}))
	d := f.createDecision(t, "organizer", domain.MechanismPointAllocation)
	ctx := context.Background()

	_, err := f.svc.JoinDecision(ctx, d.ID, "bob")
	require.NoError(t, err)
	_, err = f.svc.JoinDecision(ctx, d.ID, "carol")
	assert.True(t, apperrors.IsValidation(err))
	assert.Len(t, f.snapshot(t, d.ID).members, 2)
}

func TestJoinDecision_UnknownDecision(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.JoinDecision(context.Background(), "missing", "bob")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLeaveDecision(t *testing.T) {
	f := newFixture(t)
	d := f.createDecision(t, "organizer", domain.MechanismPointAllocation)
	f.join(t, d.ID, "bob")
	ctx := context.Background()

	err := f.svc.LeaveDecision(ctx, d.ID, "organizer")
	assert.True(t, apperrors.IsIllegalTransition(err), "organizer must transfer first")

	require.NoError(t, f.svc.LeaveDecision(ctx, d.ID, "bob"))
	assert.Nil(t, f.snapshot(t, d.ID).member("bob"))

	err = f.svc.LeaveDecision(ctx, d.ID, "bob")
	assert.True(t, apperrors.IsIllegalTransition(err))
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	d := f.createDecision(t, "organizer", domain.MechanismPointAllocation)
	f.join(t, d.ID, "bob", "carol")
	ctx := context.Background()

	err := f.svc.RemoveMember(ctx, d.ID, "bob", "carol")
	assert.True(t, apperrors.IsIllegalTransition(err), "organizer only")

	err = f.svc.RemoveMember(ctx, d.ID, "organizer", "organizer")
	assert.True(t, apperrors.IsIllegalTransition(err), "cannot target self")

	err = f.svc.RemoveMember(ctx, d.ID, "organizer", "nobody")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, f.svc.RemoveMember(ctx, d.ID, "organizer", "carol"))
	snap := f.snapshot(t, d.ID)
	assert.Nil(t, snap.member("carol"))
	assert.Len(t, snap.members, 2)
}

func TestRemoveMember_KeepsCastBallot(t *testing.T) {
	f := newFixture(t)
	d, options := f.votingDecision(t, domain.MechanismPointAllocation, []string{"bob", "carol"}, "A", "B")
	ctx := context.Background()

	_, err := f.svc.SubmitBallot(ctx, d.ID, "carol", domain.BallotRequest{Entries: []domain.BallotEntry{
		{OptionID: options[1].ID, Value: 10},
	}})
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveMember(ctx, d.ID, "organizer", "carol"))

	f.clock.Advance(25 * time.Hour)
	_, err = f.svc.TallyAndLockExpired(ctx)
	require.NoError(t, err)

	snap := f.snapshot(t, d.ID)
	assert.Len(t, snap.votes, 1)
	require.Len(t, snap.results, 2)
	assert.Equal(t, options[1].ID, snap.results[0].OptionID)
	assert.Equal(t, 10, snap.results[0].TotalPoints)
}

func TestTransferOrganizer(t *testing.T) {
	f := newFixture(t)
	d := f.createDecision(t, "alice", domain.MechanismPointAllocation)
	f.join(t, d.ID, "bob")
	ctx := context.Background()

	_, err := f.svc.TransferOrganizer(ctx, d.ID, "bob", "bob")
	assert.True(t, apperrors.IsIllegalTransition(err))

	_, err = f.svc.TransferOrganizer(ctx, d.ID, "alice", "alice")
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.TransferOrganizer(ctx, d.ID, "alice", "nobody")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 1, domain.CountOrganizers(f.snapshot(t, d.ID).members))

	updated, err := f.svc.TransferOrganizer(ctx, d.ID, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", updated.CreatedBy)

	snap := f.snapshot(t, d.ID)
	assert.Equal(t, 1, domain.CountOrganizers(snap.members))
	assert.Equal(t, domain.RoleOrganizer, snap.member("bob").Role)
	assert.Equal(t, domain.RoleMember, snap.member("alice").Role)
	assert.Equal(t, "bob", snap.decision.CreatedBy)

	// alice can now leave, bob cannot
	assert.True(t, apperrors.IsIllegalTransition(f.svc.LeaveDecision(ctx, d.ID, "bob")))
	assert.NoError(t, f.svc.LeaveDecision(ctx, d.ID, "alice"))
	assert.Contains(t, f.events.types(), EventOrganizerTransferred)
}

func TestTransferOrganizer_SingleOrganizerUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	d := f.createDecision(t, "alice", domain.MechanismPointAllocation)
	f.join(t, d.ID, "bob", "carol")

	var wg sync.WaitGroup
	for _, target := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			_, _ = f.svc.TransferOrganizer(context.Background(), d.ID, "alice", target)
		}(target)
	}
	wg.Wait()

	snap := f.snapshot(t, d.ID)
	assert.Equal(t, 1, domain.CountOrganizers(snap.members))
	var organizer string
	for _, m := range snap.members {
		if m.IsOrganizer() {
			organizer = m.UserID
		}
	}
	assert.Equal(t, organizer, snap.decision.CreatedBy)
}

func TestListMembers_RequiresMembership(t *testing.T) {
	f := newFixture(t)
	d := f.createDecision(t, "alice", domain.MechanismPointAllocation)
	f.join(t, d.ID, "bob")
	ctx := context.Background()

	members, err := f.svc.ListMembers(ctx, d.ID, "bob")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].UserID)

	_, err = f.svc.ListMembers(ctx, d.ID, "mallory")
	assert.True(t, apperrors.IsIllegalTransition(err))
}
