package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "groupdecide/pkg/errors"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func validInput() CreateDecisionInput {
	return CreateDecisionInput{
		Title:     "  Team dinner ",
		LockTime:  fixedNow.Add(48 * time.Hour),
		Mechanism: MechanismPointAllocation,
	}
}

func TestCreateDecision_Defaults(t *testing.T) {
	d, err := CreateDecision(validInput(), "org", clock, func() string { return "d1" })
	require.NoError(t, err)

	assert.Equal(t, "d1", d.ID)
	assert.Equal(t, "Team dinner", d.Title)
	assert.Equal(t, "org", d.CreatedBy)
	assert.Equal(t, PhaseConstraints, d.Phase)
	assert.Equal(t, DefaultMaxOptions, d.MaxOptions)
	assert.Equal(t, SubmissionAnyone, d.OptionSubmission)
	assert.Equal(t, fixedNow, d.CreatedAt)
	assert.Nil(t, d.LockedAt)
}

func TestCreateDecision_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateDecisionInput)
	}{
		{"empty title", func(in *CreateDecisionInput) { in.Title = " " }},
		{"title too long", func(in *CreateDecisionInput) { in.Title = strings.Repeat("x", MaxTitleLength+1) }},
		{"lock time now", func(in *CreateDecisionInput) { in.LockTime = fixedNow }},
		{"lock time in the past", func(in *CreateDecisionInput) { in.LockTime = fixedNow.Add(-time.Minute) }},
		{"unknown mechanism", func(in *CreateDecisionInput) { in.Mechanism = "approval" }},
		{"max options below two", func(in *CreateDecisionInput) { in.MaxOptions = 1 }},
		{"max options above limit", func(in *CreateDecisionInput) { in.MaxOptions = MaxOptionsLimit + 1 }},
		{"unknown submission mode", func(in *CreateDecisionInput) { in.OptionSubmission = "invite" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := CreateDecision(in, "org", clock, nil)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestDecision_ApplyUpdate(t *testing.T) {
	d, err := CreateDecision(validInput(), "org", clock, nil)
	require.NoError(t, err)

	later := fixedNow.Add(time.Hour)
	title := "Team lunch"
	require.NoError(t, d.ApplyUpdate(UpdateDecisionInput{Title: &title}, later))
	assert.Equal(t, "Team lunch", d.Title)
	assert.Equal(t, later, d.UpdatedAt)

	empty := ""
	assert.Error(t, d.ApplyUpdate(UpdateDecisionInput{Title: &empty}, later))
}

func TestDecision_DeadlinePassed(t *testing.T) {
	d := Decision{LockTime: fixedNow}
	assert.True(t, d.DeadlinePassed(fixedNow))
	assert.False(t, d.DeadlinePassed(fixedNow.Add(-time.Second)))
}

func TestNewConstraint(t *testing.T) {
	d := Decision{ID: "d1", ConstraintWeighting: true}

	c, err := NewConstraint(ConstraintInput{
		Type:   ConstraintBudgetMax,
		Value:  json.RawMessage(`{"max": 30}`),
		Weight: intPtr(3),
	}, d, "u1", fixedNow, func() string { return "c1" })
	require.NoError(t, err)
	assert.Equal(t, BudgetMax{Max: 30}, c.Value)
	assert.Equal(t, 3, *c.Weight)

	d.ConstraintWeighting = false
	c, err = NewConstraint(ConstraintInput{
		Type:   ConstraintExclusion,
		Value:  json.RawMessage(`{"text": " sushi "}`),
		Weight: intPtr(3),
	}, d, "u1", fixedNow, nil)
	require.NoError(t, err)
	assert.Equal(t, Exclusion{Text: "sushi"}, c.Value)
	assert.Nil(t, c.Weight)
}

func TestNewConstraint_Rejects(t *testing.T) {
	d := Decision{ID: "d1", ConstraintWeighting: true}
	tests := []struct {
		name  string
		input ConstraintInput
	}{
		{"unknown type", ConstraintInput{Type: "vibes", Value: json.RawMessage(`{}`)}},
		{"missing value", ConstraintInput{Type: ConstraintBudgetMax}},
		{"malformed value", ConstraintInput{Type: ConstraintBudgetMax, Value: json.RawMessage(`{"max":"lots"}`)}},
		{"negative budget", ConstraintInput{Type: ConstraintBudgetMax, Value: json.RawMessage(`{"max":-1}`)}},
		{"inverted range", ConstraintInput{Type: ConstraintDateRange,
			Value: json.RawMessage(`{"start":"2026-06-07T00:00:00Z","end":"2026-06-01T00:00:00Z"}`)}},
		{"empty exclusion", ConstraintInput{Type: ConstraintExclusion, Value: json.RawMessage(`{"text":"  "}`)}},
		{"weight out of range", ConstraintInput{Type: ConstraintDistance, Value: json.RawMessage(`{"max":3}`), Weight: intPtr(6)}},
		{"budget without max", ConstraintInput{Type: ConstraintBudgetMax, Value: json.RawMessage(`{}`)}},
		{"budget with misspelled max", ConstraintInput{Type: ConstraintBudgetMax, Value: json.RawMessage(`{"maximum":30}`)}},
		{"null budget", ConstraintInput{Type: ConstraintBudgetMax, Value: json.RawMessage(`null`)}},
		{"null max", ConstraintInput{Type: ConstraintBudgetMax, Value: json.RawMessage(`{"max":null}`)}},
		{"distance without max", ConstraintInput{Type: ConstraintDistance, Value: json.RawMessage(`{}`)}},
		{"duration as array", ConstraintInput{Type: ConstraintDuration, Value: json.RawMessage(`[30]`)}},
		{"range without end", ConstraintInput{Type: ConstraintDateRange, Value: json.RawMessage(`{"start":"2026-06-01T00:00:00Z"}`)}},
		{"exclusion without text", ConstraintInput{Type: ConstraintExclusion, Value: json.RawMessage(`{"word":"sushi"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConstraint(tt.input, d, "u1", fixedNow, nil)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestNewConstraint_NamesMissingField(t *testing.T) {
	_, err := NewConstraint(ConstraintInput{Type: ConstraintBudgetMax, Value: json.RawMessage(`{"maximum":30}`)},
		Decision{ID: "d1"}, "u1", fixedNow, nil)
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
	assert.Equal(t, "value.max", appErr.Details["field"])

	_, err = NewConstraint(ConstraintInput{Type: ConstraintDateRange, Value: json.RawMessage(`{"end":"2026-06-01T00:00:00Z"}`)},
		Decision{ID: "d1"}, "u1", fixedNow, nil)
	assert.Equal(t, "value.start", apperrors.AsAppError(err).Details["field"])
}

func TestConstraint_JSONKeepsVariant(t *testing.T) {
	original := Constraint{
		ID:    "c1",
		Value: DateRange{Start: fixedNow, End: fixedNow.Add(24 * time.Hour)},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"date_range"`)

	var decoded Constraint
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ConstraintDateRange, decoded.Type())
	assert.IsType(t, DateRange{}, decoded.Value)
}
