package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func day(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestValidateOption_BudgetViolation(t *testing.T) {
	constraints := []Constraint{{ID: "c1", Value: BudgetMax{Max: 30}}}
	draft := OptionDraft{Title: "Steakhouse", Metadata: OptionMetadata{Price: floatPtr(45)}}

	verdict := ValidateOption(draft, constraints)

	assert.False(t, verdict.Passes)
	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, "c1", verdict.Violations[0].ConstraintID)
	assert.Equal(t, ConstraintBudgetMax, verdict.Violations[0].Type)
	assert.Contains(t, verdict.Violations[0].Reason, "$30")
	assert.Contains(t, verdict.Violations[0].Reason, "$45")
}

func TestValidateOption_Rules(t *testing.T) {
	tests := []struct {
		name       string
		constraint ConstraintValue
		draft      OptionDraft
		wantPass   bool
	}{
		{
			name:       "price at the limit passes",
			constraint: BudgetMax{Max: 30},
			draft:      OptionDraft{Title: "x", Metadata: OptionMetadata{Price: floatPtr(30)}},
			wantPass:   true,
		},
		{
			name:       "missing price is not evaluated",
			constraint: BudgetMax{Max: 30},
			draft:      OptionDraft{Title: "x"},
			wantPass:   true,
		},
		{
			name:       "distance over maximum",
			constraint: MaxDistance{Max: 5},
			draft:      OptionDraft{Title: "x", Metadata: OptionMetadata{Distance: floatPtr(5.5)}},
			wantPass:   false,
		},
		{
			name:       "duration over maximum",
			constraint: MaxDuration{Max: 120},
			draft:      OptionDraft{Title: "x", Metadata: OptionMetadata{Duration: floatPtr(150)}},
			wantPass:   false,
		},
		{
			name:       "duration within maximum",
			constraint: MaxDuration{Max: 120},
			draft:      OptionDraft{Title: "x", Metadata: OptionMetadata{Duration: floatPtr(90)}},
			wantPass:   true,
		},
		{
			name:       "date on the first day of the range",
			constraint: DateRange{Start: day("2026-06-01T00:00:00Z"), End: day("2026-06-07T00:00:00Z")},
			draft:      OptionDraft{Title: "x", Metadata: OptionMetadata{Date: timePtr(day("2026-06-01T18:30:00Z"))}},
			wantPass:   true,
		},
		{
			name:       "date on the last day of the range",
			constraint: DateRange{Start: day("2026-06-01T00:00:00Z"), End: day("2026-06-07T00:00:00Z")},
			draft:      OptionDraft{Title: "x", Metadata: OptionMetadata{Date: timePtr(day("2026-06-07T23:00:00Z"))}},
			wantPass:   true,
		},
		{
			name:       "date after the range",
			constraint: DateRange{Start: day("2026-06-01T00:00:00Z"), End: day("2026-06-07T00:00:00Z")},
			draft:      OptionDraft{Title: "x", Metadata: OptionMetadata{Date: timePtr(day("2026-06-08T00:00:00Z"))}},
			wantPass:   false,
		},
		{
			name:       "exclusion matches title ignoring case",
			constraint: Exclusion{Text: "sushi"},
			draft:      OptionDraft{Title: "Sushi Palace"},
			wantPass:   false,
		},
		{
			name:       "exclusion matches description",
			constraint: Exclusion{Text: "karaoke"},
			draft:      OptionDraft{Title: "Bar", Description: "Live KARAOKE every night"},
			wantPass:   false,
		},
		{
			name:       "exclusion without a match",
			constraint: Exclusion{Text: "sushi"},
			draft:      OptionDraft{Title: "Taco stand"},
			wantPass:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := ValidateOption(tt.draft, []Constraint{{ID: "c", Value: tt.constraint}})
			assert.Equal(t, tt.wantPass, verdict.Passes)
			assert.Equal(t, !tt.wantPass, len(verdict.Violations) == 1)
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestValidateOption_CollectsEveryViolationInOrder(t *testing.T) {
	constraints := []Constraint{
		{ID: "budget", Value: BudgetMax{Max: 20}, Weight: intPtr(4)},
		{ID: "far", Value: MaxDistance{Max: 2}},
		{ID: "ok", Value: MaxDuration{Max: 999}},
	}
	draft := OptionDraft{
		Title:    "Rooftop",
		Metadata: OptionMetadata{Price: floatPtr(50), Distance: floatPtr(10), Duration: floatPtr(60)},
	}

	verdict := ValidateOption(draft, constraints)
	require.Len(t, verdict.Violations, 2)
	assert.Equal(t, "budget", verdict.Violations[0].ConstraintID)
	assert.Equal(t, 4, *verdict.Violations[0].Weight)
	assert.Equal(t, "far", verdict.Violations[1].ConstraintID)
}

func TestValidateOption_Idempotent(t *testing.T) {
	constraints := []Constraint{
		{ID: "c1", Value: BudgetMax{Max: 10}},
		{ID: "c2", Value: Exclusion{Text: "loud"}},
		{ID: "c3", Value: DateRange{Start: day("2026-01-01T00:00:00Z"), End: day("2026-01-02T00:00:00Z")}},
	}
	draft := OptionDraft{
		Title:       "Loud club",
		Description: "dancing",
		Metadata:    OptionMetadata{Price: floatPtr(12.5), Date: timePtr(day("2026-03-01T00:00:00Z"))},
	}

	first, err := json.Marshal(ValidateOption(draft, constraints))
	require.NoError(t, err)
	second, err := json.Marshal(ValidateOption(draft, constraints))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestValidateOption_NoConstraints(t *testing.T) {
	verdict := ValidateOption(OptionDraft{Title: "anything"}, nil)
	assert.True(t, verdict.Passes)
	assert.NotNil(t, verdict.Violations)
	assert.Empty(t, verdict.Violations)
}

func TestNewOption_FreezesVerdict(t *testing.T) {
	constraints := []Constraint{{ID: "c1", Value: BudgetMax{Max: 30}}}
	now := day("2026-05-01T10:00:00Z")

	option, err := NewOption(OptionDraft{Title: "  Steakhouse ", Metadata: OptionMetadata{Price: floatPtr(45)}},
		"d1", "u1", constraints, now, func() string { return "o1" })
	require.NoError(t, err)

	assert.Equal(t, "o1", option.ID)
	assert.Equal(t, "Steakhouse", option.Title)
	assert.False(t, option.PassesConstraints)
	require.Len(t, option.Violations, 1)
	assert.Empty(t, EligibleOptions([]Option{option}))
}

func TestNewOption_RejectsBadDrafts(t *testing.T) {
	_, err := NewOption(OptionDraft{Title: "  "}, "d1", "u1", nil, time.Now(), nil)
	assert.Error(t, err)

	_, err = NewOption(OptionDraft{Title: "x", Metadata: OptionMetadata{Price: floatPtr(-1)}}, "d1", "u1", nil, time.Now(), nil)
	assert.Error(t, err)
}
