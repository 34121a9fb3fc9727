package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Violation explains why an option failed one constraint
type Violation struct {
	ConstraintID string         `json:"constraint_id"`
	Type         ConstraintType `json:"type"`
	Reason       string         `json:"reason"`
	Weight       *int           `json:"weight,omitempty"`
}

// Verdict is the outcome of checking one draft against a set of constraints
type Verdict struct {
	Passes     bool        `json:"passes"`
	Violations []Violation `json:"violations"`
}

const dateLayout = "2006-01-02"

// ValidateOption checks draft against every constraint in order. It reads
// nothing but its arguments, so equal inputs always give equal verdicts.
// Violations is never nil.
func ValidateOption(draft OptionDraft, constraints []Constraint) Verdict {
	violations := make([]Violation, 0)
	for _, c := range constraints {
		reason, violated := checkConstraint(draft, c.Value)
		if !violated {
			continue
		}
		violations = append(violations, Violation{
			ConstraintID: c.ID,
			Type:         c.Type(),
			Reason:       reason,
			Weight:       c.Weight,
		})
	}
	return Verdict{Passes: len(violations) == 0, Violations: violations}
}

func checkConstraint(draft OptionDraft, value ConstraintValue) (string, bool) {
	m := draft.Metadata
	switch v := value.(type) {
	case BudgetMax:
		if m.Price != nil && *m.Price > v.Max {
			return fmt.Sprintf("price $%s exceeds the $%s budget limit", formatAmount(*m.Price), formatAmount(v.Max)), true
		}
	case MaxDistance:
		if m.Distance != nil && *m.Distance > v.Max {
			return fmt.Sprintf("distance %s exceeds the maximum of %s", formatAmount(*m.Distance), formatAmount(v.Max)), true
		}
	case MaxDuration:
		if m.Duration != nil && *m.Duration > v.Max {
			return fmt.Sprintf("duration %s exceeds the maximum of %s", formatAmount(*m.Duration), formatAmount(v.Max)), true
		}
	case DateRange:
		if m.Date != nil {
			day, start, end := calendarDay(*m.Date), calendarDay(v.Start), calendarDay(v.End)
			if day.Before(start) || day.After(end) {
				return fmt.Sprintf("date %s is outside %s to %s",
					day.Format(dateLayout), start.Format(dateLayout), end.Format(dateLayout)), true
			}
		}
	case Exclusion:
		needle := strings.ToLower(strings.TrimSpace(v.Text))
		if needle == "" {
			return "", false
		}
		if strings.Contains(strings.ToLower(draft.Title), needle) ||
			strings.Contains(strings.ToLower(draft.Description), needle) {
			return fmt.Sprintf("mentions excluded term %q", v.Text), true
		}
	}
	return "", false
}

// calendarDay truncates t to midnight UTC so ranges compare whole days
func calendarDay(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
