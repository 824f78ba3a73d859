// Package models contains domain types for the curation engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is a tracked subject whose fields are community-curated.
// Created on first candidate submission, never deleted by the engine.
type Project struct {
	ID uuid.UUID `json:"id"`

	// Published is true once every essential catalog field is led by an
	// accepted candidate. Maintained by the rank aggregator.
	Published bool `json:"published"`

	// ReceivedSupport is externally-recorded community stake. It feeds the
	// trust score on the rank snapshot but plays no part in vote weight.
	ReceivedSupport int64 `json:"received_support"`

	CreatedAt time.Time `json:"created_at"`
}

// FieldState is the denormalized per-(project, field) cache row: the
// current leader, its aggregate weight and distinct voter count, and
// whether the field's acceptance thresholds are met. The set of rows for
// a project is its set of fields with candidates.
//
// FieldState is rebuildable from the leadership log and vote records; it
// exists purely for read performance and as the row-level lock that
// serializes concurrent votes on one (project, field) pair.
type FieldState struct {
	ProjectID          uuid.UUID  `json:"project_id"`
	FieldKey           string     `json:"field_key"`
	LeadingCandidateID *uuid.UUID `json:"leading_candidate_id,omitempty"`
	LeadingWeight      int64      `json:"leading_weight"`
	VoterCount         int        `json:"voter_count"`
	Accepted           bool       `json:"accepted"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
