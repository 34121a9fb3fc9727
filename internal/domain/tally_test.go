package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(ids ...string) []Option {
	options := make([]Option, 0, len(ids))
	for _, id := range ids {
		options = append(options, Option{ID: id, DecisionID: "d1", Title: id, PassesConstraints: true})
	}
	return options
}

func ballot(user string, values map[string]int, order ...string) []Vote {
	votes := make([]Vote, 0, len(order))
	for _, id := range order {
		votes = append(votes, Vote{DecisionID: "d1", UserID: user, OptionID: id, Value: values[id]})
	}
	return votes
}

func concat(groups ...[]Vote) []Vote {
	var all []Vote
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

func TestTally_PointAllocation(t *testing.T) {
	options := passing("A", "B", "C")
	votes := concat(
		ballot("v1", map[string]int{"A": 6, "B": 2, "C": 2}, "A", "B", "C"),
		ballot("v2", map[string]int{"A": 3, "B": 5, "C": 2}, "A", "B", "C"),
		ballot("v3", map[string]int{"A": 1, "B": 1, "C": 8}, "A", "B", "C"),
	)

	results := Tally(MechanismPointAllocation, options, votes)
	require.Len(t, results, 3)

	assert.Equal(t, "C", results[0].OptionID)
	assert.Equal(t, 12, results[0].TotalPoints)
	assert.Equal(t, 1, results[0].Rank)
	assert.True(t, results[0].IsWinner)

	assert.Equal(t, "A", results[1].OptionID)
	assert.Equal(t, 10, results[1].TotalPoints)
	assert.Equal(t, 2, results[1].Rank)
	assert.False(t, results[1].IsWinner)

	assert.Equal(t, "B", results[2].OptionID)
	assert.Equal(t, 8, results[2].TotalPoints)
	assert.Equal(t, 3, results[2].Rank)

	for _, r := range results {
		assert.Nil(t, r.AverageRank)
		assert.Equal(t, "d1", r.DecisionID)
	}
}

func TestTally_ForcedRanking(t *testing.T) {
	options := passing("A", "B", "C")
	votes := concat(
		ballot("v1", map[string]int{"A": 1, "B": 2, "C": 3}, "A", "B", "C"),
		ballot("v2", map[string]int{"A": 2, "B": 1, "C": 3}, "A", "B", "C"),
		ballot("v3", map[string]int{"A": 1, "B": 3, "C": 2}, "A", "B", "C"),
	)

	results := Tally(MechanismForcedRanking, options, votes)
	require.Len(t, results, 3)

	expected := []struct {
		id     string
		avg    float64
		points int
	}{
		{"A", 4.0 / 3.0, 3},
		{"B", 2.0, 2},
		{"C", 8.0 / 3.0, 1},
	}
	for i, want := range expected {
		got := results[i]
		assert.Equal(t, want.id, got.OptionID)
		assert.Equal(t, i+1, got.Rank)
		assert.Equal(t, want.points, got.TotalPoints)
		require.NotNil(t, got.AverageRank)
		assert.InDelta(t, want.avg, *got.AverageRank, 1e-9)
		assert.Equal(t, i == 0, got.IsWinner)
	}
}

func TestTally_TiesKeepInsertionOrder(t *testing.T) {
	options := passing("first", "second", "third")
	votes := concat(
		ballot("v1", map[string]int{"first": 4, "second": 4, "third": 2}, "first", "second", "third"),
	)

	results := Tally(MechanismPointAllocation, options, votes)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].OptionID)
	assert.Equal(t, "second", results[1].OptionID)
	assert.True(t, results[0].IsWinner)
	assert.False(t, results[1].IsWinner)
}

func TestTally_ZeroVotes(t *testing.T) {
	t.Run("point allocation reports zero totals", func(t *testing.T) {
		results := Tally(MechanismPointAllocation, passing("A", "B"), nil)
		require.Len(t, results, 2)
		assert.Equal(t, "A", results[0].OptionID)
		assert.Equal(t, 0, results[0].TotalPoints)
		assert.True(t, results[0].IsWinner)
	})

	t.Run("unranked options sort last without an average", func(t *testing.T) {
		options := passing("A", "B", "C")
		// B was added after the ballots were cast, so nobody ranked it
		votes := concat(
			ballot("v1", map[string]int{"A": 2, "C": 1}, "A", "C"),
		)
		results := Tally(MechanismForcedRanking, options, votes)
		require.Len(t, results, 3)
		assert.Equal(t, "C", results[0].OptionID)
		assert.Equal(t, "A", results[1].OptionID)
		assert.Equal(t, "B", results[2].OptionID)
		assert.Nil(t, results[2].AverageRank)
		assert.Equal(t, 1, results[2].TotalPoints)
	})
}

func TestTally_IgnoresIneligibleOptions(t *testing.T) {
	options := passing("A", "B")
	options = append(options, Option{ID: "X", DecisionID: "d1", PassesConstraints: false})
	votes := []Vote{
		{UserID: "v1", OptionID: "A", Value: 3},
		{UserID: "v1", OptionID: "B", Value: 2},
		{UserID: "v1", OptionID: "X", Value: 5},
	}

	results := Tally(MechanismPointAllocation, options, votes)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "X", r.OptionID)
	}
}

func TestTally_NoEligibleOptions(t *testing.T) {
	results := Tally(MechanismPointAllocation, nil, nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	failed := []Option{{ID: "X", PassesConstraints: false}}
	assert.Empty(t, Tally(MechanismForcedRanking, failed, nil))
}

func TestTally_Deterministic(t *testing.T) {
	options := passing("A", "B", "C", "D")
	votes := concat(
		ballot("v1", map[string]int{"A": 1, "B": 2, "C": 3, "D": 4}, "A", "B", "C", "D"),
		ballot("v2", map[string]int{"A": 2, "B": 1, "C": 4, "D": 3}, "D", "C", "B", "A"),
	)

	for _, mechanism := range []Mechanism{MechanismPointAllocation, MechanismForcedRanking} {
		first, err := json.Marshal(Tally(mechanism, options, votes))
		require.NoError(t, err)
		second, err := json.Marshal(Tally(mechanism, options, votes))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second), "mechanism %s", mechanism)
	}
}

func TestTally_DoesNotReorderInput(t *testing.T) {
	options := passing("A", "B")
	votes := []Vote{{OptionID: "B", Value: 10}}

	_ = Tally(MechanismPointAllocation, options, votes)
	assert.Equal(t, "A", options[0].ID)
	assert.Equal(t, "B", options[1].ID)
}
