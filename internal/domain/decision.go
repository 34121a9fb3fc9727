package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "groupdecide/pkg/errors"
)

// Mechanism is the tally algorithm, fixed when the decision is created
type Mechanism string

const (
	MechanismPointAllocation Mechanism = "point_allocation"
	MechanismForcedRanking   Mechanism = "forced_ranking"
)

// SubmissionMode controls who may submit options
type SubmissionMode string

const (
	SubmissionAnyone        SubmissionMode = "anyone"
	SubmissionOrganizerOnly SubmissionMode = "organizer_only"
)

const (
	DefaultMaxOptions   = 10
	MaxOptionsLimit     = 50
	MinOptionsForVoting = 2
	MaxTitleLength      = 200
)

// Decision is the aggregate root of the workflow
type Decision struct {
	ID                   string         `json:"id"`
	Title                string         `json:"title"`
	Description          string         `json:"description,omitempty"`
	Category             string         `json:"category,omitempty"`
	CreatedBy            string         `json:"created_by"`
	Phase                Phase          `json:"phase"`
	LockTime             time.Time      `json:"lock_time"`
	Mechanism            Mechanism      `json:"mechanism"`
	MaxOptions           int            `json:"max_options"`
	OptionSubmission     SubmissionMode `json:"option_submission"`
	RevealVotesAfterLock bool           `json:"reveal_votes_after_lock"`
	SilentVoting         bool           `json:"silent_voting"`
	ConstraintWeighting  bool           `json:"constraint_weighting"`
	LockedAt             *time.Time     `json:"locked_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// IsLocked reports whether the decision reached its terminal phase
func (d Decision) IsLocked() bool {
	return d.Phase == PhaseLocked
}

// DeadlinePassed reports whether lock_time is at or before now
func (d Decision) DeadlinePassed(now time.Time) bool {
	return !d.LockTime.After(now)
}

// CreateDecisionInput describes a new decision
type CreateDecisionInput struct {
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	Category             string         `json:"category"`
	LockTime             time.Time      `json:"lock_time"`
	Mechanism            Mechanism      `json:"mechanism"`
	MaxOptions           int            `json:"max_options"`
	OptionSubmission     SubmissionMode `json:"option_submission"`
	RevealVotesAfterLock bool           `json:"reveal_votes_after_lock"`
	SilentVoting         bool           `json:"silent_voting"`
	ConstraintWeighting  bool           `json:"constraint_weighting"`
}

// UpdateDecisionInput carries the editable, non-config fields. Nil leaves a
// field unchanged.
type UpdateDecisionInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

// NewID returns a fresh random identifier
func NewID() string {
	return uuid.NewString()
}

// CreateDecision validates input and builds a decision in the constraints
// phase owned by organizerID.
func CreateDecision(input CreateDecisionInput, organizerID string, now func() time.Time, idGenerator func() string) (Decision, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = NewID
	}

	normalized, err := NormalizeCreateDecisionInput(input, now())
	if err != nil {
		return Decision{}, err
	}
	organizerID = strings.TrimSpace(organizerID)
	if organizerID == "" {
		return Decision{}, apperrors.NewValidationError("organizer user id is required", nil)
	}

	createdAt := now().UTC()
	return Decision{
		ID:                   idGenerator(),
		Title:                normalized.Title,
		Description:          normalized.Description,
		Category:             normalized.Category,
		CreatedBy:            organizerID,
		Phase:                PhaseConstraints,
		LockTime:             normalized.LockTime.UTC(),
		Mechanism:            normalized.Mechanism,
		MaxOptions:           normalized.MaxOptions,
		OptionSubmission:     normalized.OptionSubmission,
		RevealVotesAfterLock: normalized.RevealVotesAfterLock,
		SilentVoting:         normalized.SilentVoting,
		ConstraintWeighting:  normalized.ConstraintWeighting,
		CreatedAt:            createdAt,
		UpdatedAt:            createdAt,
	}, nil
}

// NormalizeCreateDecisionInput trims text, fills defaults and validates config
func NormalizeCreateDecisionInput(input CreateDecisionInput, now time.Time) (CreateDecisionInput, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return CreateDecisionInput{}, err
	}
	input.Title = title
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.TrimSpace(input.Category)

	if err := ValidateLockTime(input.LockTime, now); err != nil {
		return CreateDecisionInput{}, err
	}

	switch input.Mechanism {
	case MechanismPointAllocation, MechanismForcedRanking:
	default:
		return CreateDecisionInput{}, apperrors.NewValidationError(
			fmt.Sprintf("unknown voting mechanism %q", input.Mechanism),
			map[string]interface{}{"field": "mechanism"})
	}

	if input.MaxOptions == 0 {
		input.MaxOptions = DefaultMaxOptions
	}
	if input.MaxOptions < MinOptionsForVoting || input.MaxOptions > MaxOptionsLimit {
		return CreateDecisionInput{}, apperrors.NewValidationError(
			fmt.Sprintf("max_options must be between %d and %d", MinOptionsForVoting, MaxOptionsLimit),
			map[string]interface{}{"field": "max_options"})
	}

	switch input.OptionSubmission {
	case "":
		input.OptionSubmission = SubmissionAnyone
	case SubmissionAnyone, SubmissionOrganizerOnly:
	default:
		return CreateDecisionInput{}, apperrors.NewValidationError(
			fmt.Sprintf("unknown option submission mode %q", input.OptionSubmission),
			map[string]interface{}{"field": "option_submission"})
	}

	return input, nil
}

// ValidateLockTime requires the deadline to be strictly in the future
func ValidateLockTime(lockTime, now time.Time) error {
	if lockTime.IsZero() {
		return apperrors.NewValidationError("lock_time is required",
			map[string]interface{}{"field": "lock_time"})
	}
	if !lockTime.After(now) {
		return apperrors.NewValidationError("lock_time must be in the future",
			map[string]interface{}{"field": "lock_time"})
	}
	return nil
}

// ApplyUpdate applies the editable fields of input to d
func (d *Decision) ApplyUpdate(input UpdateDecisionInput, now time.Time) error {
	if input.Title != nil {
		title, err := normalizeTitle(*input.Title)
		if err != nil {
			return err
		}
		d.Title = title
	}
	if input.Description != nil {
		d.Description = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		d.Category = strings.TrimSpace(*input.Category)
	}
	d.UpdatedAt = now.UTC()
	return nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperrors.NewValidationError("title is required",
			map[string]interface{}{"field": "title"})
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("title must be at most %d characters", MaxTitleLength),
			map[string]interface{}{"field": "title"})
	}
	return title, nil
}
