package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "groupdecide/pkg/errors"
)

// ConstraintType names the kind of filter a constraint applies
type ConstraintType string

const (
	ConstraintBudgetMax ConstraintType = "budget_max"
	ConstraintDateRange ConstraintType = "date_range"
	ConstraintDistance  ConstraintType = "distance"
	ConstraintDuration  ConstraintType = "duration"
	ConstraintExclusion ConstraintType = "exclusion"
)

const (
	MinConstraintWeight = 1
	MaxConstraintWeight = 5
)

// ConstraintValue is the typed payload of a constraint. Each variant carries
// only the fields its type needs.
type ConstraintValue interface {
	Type() ConstraintType
	check() error
}

// BudgetMax caps an option's price
type BudgetMax struct {
	Max float64 `json:"max"`
}

// DateRange bounds an option's date, both ends inclusive
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MaxDistance caps an option's distance
type MaxDistance struct {
	Max float64 `json:"max"`
}

// MaxDuration caps an option's duration
type MaxDuration struct {
	Max float64 `json:"max"`
}

// Exclusion rejects options whose title or description mention Text
type Exclusion struct {
	Text string `json:"text"`
}

func (BudgetMax) Type() ConstraintType   { return ConstraintBudgetMax }
func (DateRange) Type() ConstraintType   { return ConstraintDateRange }
func (MaxDistance) Type() ConstraintType { return ConstraintDistance }
func (MaxDuration) Type() ConstraintType { return ConstraintDuration }
func (Exclusion) Type() ConstraintType   { return ConstraintExclusion }

func (v BudgetMax) check() error   { return checkNonNegative("max", v.Max) }
func (v MaxDistance) check() error { return checkNonNegative("max", v.Max) }
func (v MaxDuration) check() error { return checkNonNegative("max", v.Max) }

func (v DateRange) check() error {
	if v.Start.IsZero() || v.End.IsZero() {
		return apperrors.NewValidationError("date_range requires start and end",
			map[string]interface{}{"field": "value"})
	}
	if v.End.Before(v.Start) {
		return apperrors.NewValidationError("date_range end must not be before start",
			map[string]interface{}{"field": "value.end"})
	}
	return nil
}

func (v Exclusion) check() error {
	if strings.TrimSpace(v.Text) == "" {
		return apperrors.NewValidationError("exclusion requires non-empty text",
			map[string]interface{}{"field": "value.text"})
	}
	return nil
}

func checkNonNegative(field string, v float64) error {
	if v < 0 {
		return apperrors.NewValidationError(fmt.Sprintf("%s must not be negative", field),
			map[string]interface{}{"field": "value." + field})
	}
	return nil
}

// requiredConstraintFields lists the keys each constraint value must carry
var requiredConstraintFields = map[ConstraintType][]string{
	ConstraintBudgetMax: {"max"},
	ConstraintDateRange: {"start", "end"},
	ConstraintDistance:  {"max"},
	ConstraintDuration:  {"max"},
	ConstraintExclusion: {"text"},
}

// DecodeConstraintValue parses raw JSON into the variant for t. The value must
// be an object holding every required field and nothing else.
func DecodeConstraintValue(t ConstraintType, raw json.RawMessage) (ConstraintValue, error) {
	required, ok := requiredConstraintFields[t]
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown constraint type %q", t),
			map[string]interface{}{"field": "type"})
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s value must be a JSON object", t),
			map[string]interface{}{"field": "value"})
	}
	for _, name := range required {
		field, present := fields[name]
		if !present || bytes.Equal(bytes.TrimSpace(field), []byte("null")) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("%s requires value.%s", t, name),
				map[string]interface{}{"field": "value." + name})
		}
	}

	var (
		v   ConstraintValue
		err error
	)
	switch t {
	case ConstraintBudgetMax:
		var b BudgetMax
		err = decodeStrict(raw, &b)
		v = b
	case ConstraintDateRange:
		var d DateRange
		err = decodeStrict(raw, &d)
		v = d
	case ConstraintDistance:
		var d MaxDistance
		err = decodeStrict(raw, &d)
		v = d
	case ConstraintDuration:
		var d MaxDuration
		err = decodeStrict(raw, &d)
		v = d
	case ConstraintExclusion:
		var e Exclusion
		err = decodeStrict(raw, &e)
		v = e
	}
	if err != nil {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("malformed %s value: %v", t, err),
			map[string]interface{}{"field": "value"})
	}
	return v, nil
}

// decodeStrict unmarshals raw into dst, rejecting keys dst does not declare
func decodeStrict(raw json.RawMessage, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Constraint is a filter rule contributed by a member
type Constraint struct {
	ID         string
	DecisionID string
	UserID     string
	Value      ConstraintValue
	Weight     *int
	CreatedAt  time.Time
}

// Type returns the constraint's type, derived from its value
func (c Constraint) Type() ConstraintType {
	if c.Value == nil {
		return ""
	}
	return c.Value.Type()
}

type constraintJSON struct {
	ID         string          `json:"id"`
	DecisionID string          `json:"decision_id"`
	UserID     string          `json:"user_id"`
	Type       ConstraintType  `json:"type"`
	Value      json.RawMessage `json:"value"`
	Weight     *int            `json:"weight,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MarshalJSON flattens the tagged value into {type, value}
func (c Constraint) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(c.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(constraintJSON{
		ID:         c.ID,
		DecisionID: c.DecisionID,
		UserID:     c.UserID,
		Type:       c.Type(),
		Value:      raw,
		Weight:     c.Weight,
		CreatedAt:  c.CreatedAt,
	})
}

// UnmarshalJSON decodes {type, value} back into the matching variant
func (c *Constraint) UnmarshalJSON(data []byte) error {
	var aux constraintJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v, err := DecodeConstraintValue(aux.Type, aux.Value)
	if err != nil {
		return err
	}
	*c = Constraint{
		ID:         aux.ID,
		DecisionID: aux.DecisionID,
		UserID:     aux.UserID,
		Value:      v,
		Weight:     aux.Weight,
		CreatedAt:  aux.CreatedAt,
	}
	return nil
}

// ConstraintInput is a member's request to add a constraint
type ConstraintInput struct {
	Type   ConstraintType  `json:"type"`
	Value  json.RawMessage `json:"value"`
	Weight *int            `json:"weight,omitempty"`
}

// NewConstraint decodes and validates input. Weights are kept only when the
// decision enables constraint weighting.
func NewConstraint(input ConstraintInput, d Decision, userID string, now time.Time, idGenerator func() string) (Constraint, error) {
	if idGenerator == nil {
		idGenerator = NewID
	}
	if len(input.Value) == 0 {
		return Constraint{}, apperrors.NewValidationError("constraint value is required",
			map[string]interface{}{"field": "value"})
	}
	value, err := DecodeConstraintValue(input.Type, input.Value)
	if err != nil {
		return Constraint{}, err
	}
	if err := value.check(); err != nil {
		return Constraint{}, err
	}
	if ex, ok := value.(Exclusion); ok {
		ex.Text = strings.TrimSpace(ex.Text)
		value = ex
	}

	var weight *int
	if d.ConstraintWeighting && input.Weight != nil {
		w := *input.Weight
		if w < MinConstraintWeight || w > MaxConstraintWeight {
			return Constraint{}, apperrors.NewValidationError(
				fmt.Sprintf("weight must be between %d and %d", MinConstraintWeight, MaxConstraintWeight),
				map[string]interface{}{"field": "weight"})
		}
		weight = &w
	}

	return Constraint{
		ID:         idGenerator(),
		DecisionID: d.ID,
		UserID:     userID,
		Value:      value,
		Weight:     weight,
		CreatedAt:  now.UTC(),
	}, nil
}
