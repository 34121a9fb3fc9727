package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "groupdecide/pkg/errors"
)

const MaxOptionTitleLength = 200

// OptionMetadata carries the structured facts constraints are checked against.
// A nil field is unknown and never violates anything.
type OptionMetadata struct {
	Price    *float64   `json:"price,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Distance *float64   `json:"distance,omitempty"`
	Duration *float64   `json:"duration,omitempty"`
}

// OptionDraft is an option as submitted, before it is stamped
type OptionDraft struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    OptionMetadata `json:"metadata"`
}

// Option is a stored candidate with the verdict frozen at submission
type Option struct {
	ID                string         `json:"id"`
	DecisionID        string         `json:"decision_id"`
	SubmittedBy       string         `json:"submitted_by"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	Metadata          OptionMetadata `json:"metadata"`
	PassesConstraints bool           `json:"passes_constraints"`
	Violations        []Violation    `json:"violations"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Draft returns the submitted shape of o, as the validator saw it
func (o Option) Draft() OptionDraft {
	return OptionDraft{Title: o.Title, Description: o.Description, Metadata: o.Metadata}
}

// NormalizeOptionDraft trims text and rejects drafts that cannot be stored
func NormalizeOptionDraft(draft OptionDraft) (OptionDraft, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)
	if draft.Title == "" {
		return OptionDraft{}, apperrors.NewValidationError("option title is required",
			map[string]interface{}{"field": "title"})
	}
	if utf8.RuneCountInString(draft.Title) > MaxOptionTitleLength {
		return OptionDraft{}, apperrors.NewValidationError(
			fmt.Sprintf("option title must be at most %d characters", MaxOptionTitleLength),
			map[string]interface{}{"field": "title"})
	}
	m := draft.Metadata
	numeric := []struct {
		field string
		value *float64
	}{{"price", m.Price}, {"distance", m.Distance}, {"duration", m.Duration}}
	for _, n := range numeric {
		if n.value != nil && *n.value < 0 {
			return OptionDraft{}, apperrors.NewValidationError(
				fmt.Sprintf("metadata.%s must not be negative", n.field),
				map[string]interface{}{"field": "metadata." + n.field})
		}
	}
	return draft, nil
}

// NewOption stamps a normalized draft with the validator's verdict
func NewOption(draft OptionDraft, decisionID, userID string, constraints []Constraint, now time.Time, idGenerator func() string) (Option, error) {
	if idGenerator == nil {
		idGenerator = NewID
	}
	draft, err := NormalizeOptionDraft(draft)
	if err != nil {
		return Option{}, err
	}
	verdict := ValidateOption(draft, constraints)
	return Option{
		ID:                idGenerator(),
		DecisionID:        decisionID,
		SubmittedBy:       userID,
		Title:             draft.Title,
		Description:       draft.Description,
		Metadata:          draft.Metadata,
		PassesConstraints: verdict.Passes,
		Violations:        verdict.Violations,
		CreatedAt:         now.UTC(),
	}, nil
}

// EligibleOptions keeps only options that passed validation, in input order
func EligibleOptions(options []Option) []Option {
	eligible := make([]Option, 0, len(options))
	for _, o := range options {
		if o.PassesConstraints {
			eligible = append(eligible, o)
		}
	}
	return eligible
}
