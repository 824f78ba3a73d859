package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opencurate/curation-engine/pkg/apperrors"
)

// ValueKind discriminates the shapes a candidate value can take.
type ValueKind string

const (
	ValueScalar ValueKind = "scalar"
	ValueList   ValueKind = "list"
	ValueRecord ValueKind = "record"
)

// FieldValue is the tagged union stored in the candidate's value column.
// Exactly one of Scalar, List or Record is populated, selected by Kind,
// so consumers never need runtime type inspection of a loose blob.
type FieldValue struct {
	Kind   ValueKind         `json:"kind"`
	Scalar string            `json:"scalar,omitempty"`
	List   []string          `json:"list,omitempty"`
	Record map[string]string `json:"record,omitempty"`
}

// ScalarValue builds a scalar-kind field value.
func ScalarValue(s string) FieldValue {
	return FieldValue{Kind: ValueScalar, Scalar: s}
}

// ListValue builds a list-kind field value.
func ListValue(items ...string) FieldValue {
	return FieldValue{Kind: ValueList, List: items}
}

// RecordValue builds a record-kind field value.
func RecordValue(fields map[string]string) FieldValue {
	return FieldValue{Kind: ValueRecord, Record: fields}
}

// Validate checks that the value carries content matching its kind.
func (v FieldValue) Validate() error {
	switch v.Kind {
	case ValueScalar:
		if v.Scalar == "" {
			return apperrors.ErrEmptyValue
		}
	case ValueList:
		if len(v.List) == 0 {
			return apperrors.ErrEmptyValue
		}
		for _, item := range v.List {
			if item == "" {
				return apperrors.ErrEmptyValue
			}
		}
	case ValueRecord:
		if len(v.Record) == 0 {
			return apperrors.ErrEmptyValue
		}
	default:
		return fmt.Errorf("unknown value kind %q", v.Kind)
	}
	return nil
}

// Value implements driver.Valuer for JSONB serialization.
func (v FieldValue) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner for JSONB deserialization.
func (v *FieldValue) Scan(value interface{}) error {
	if value == nil {
		return fmt.Errorf("cannot scan NULL into FieldValue")
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into FieldValue", value)
	}
	return json.Unmarshal(bytes, v)
}

// String renders a compact form for logs. List and record kinds show
// their size rather than full contents.
func (v FieldValue) String() string {
	switch v.Kind {
	case ValueScalar:
		return v.Scalar
	case ValueList:
		return fmt.Sprintf("list(%d)", len(v.List))
	case ValueRecord:
		return fmt.Sprintf("record(%d)", len(v.Record))
	}
	return string(v.Kind)
}

// Candidate is a submitted value competing to become a field's canonical
// value. Immutable once created; supersession happens via voting, never
// via mutation or deletion.
type Candidate struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	FieldKey    string     `json:"field_key"`
	Value       FieldValue `json:"value"`
	Ref         string     `json:"ref,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	SubmitterID uuid.UUID  `json:"submitter_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CandidateTally is one row of the per-field aggregation: a candidate,
// the total active vote weight it holds, and how many distinct voters
// back it. SubmittedAt carries the candidate's creation time so the
// tie-break (earliest submission wins) travels with the tally.
type CandidateTally struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Weight      int64     `json:"weight"`
	Voters      int       `json:"voters"`
	SubmittedAt time.Time `json:"submitted_at"`
}
