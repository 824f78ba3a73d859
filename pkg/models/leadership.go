package models

import (
	"time"

	"github.com/google/uuid"
)

// LeadershipEntry is one row of the append-only leadership log. A row is
// appended whenever the leader of a (project, field) pair changes, or
// when the incumbent leader first meets the field's acceptance
// thresholds. The most recent row is the current state; older rows are
// flagged superseded but never mutated otherwise or deleted.
type LeadershipEntry struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	FieldKey  string    `json:"field_key"`

	// CandidateID is nil for the initial "no leader yet" entry.
	CandidateID *uuid.UUID `json:"candidate_id,omitempty"`

	// Accepted records whether the field's quorum and weight thresholds
	// were met at append time. Reward idempotency is decided by scanning
	// accepted entries, so acceptance must live in the log itself.
	Accepted bool `json:"accepted"`

	Superseded bool      `json:"superseded"`
	CreatedAt  time.Time `json:"created_at"`
}

// SameLeader reports whether the entry's winner matches the given
// candidate id (nil meaning "no leader").
func (e *LeadershipEntry) SameLeader(candidateID *uuid.UUID) bool {
	if e.CandidateID == nil || candidateID == nil {
		return e.CandidateID == nil && candidateID == nil
	}
	return *e.CandidateID == *candidateID
}
