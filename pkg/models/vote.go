package models

import (
	"time"

	"github.com/google/uuid"
)

// VoteRecord holds one user's weight commitment on one (project, field)
// pair. At most one active record exists per (voter, project, field);
// re-voting retargets the record in place, it is never soft-deleted.
type VoteRecord struct {
	ID          uuid.UUID `json:"id"`
	VoterID     uuid.UUID `json:"voter_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	FieldKey    string    `json:"field_key"`
	CandidateID uuid.UUID `json:"candidate_id"`
	Weight      int64     `json:"weight"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WeightAccount is a user's influence budget. TotalWeight only ever
// grows (via rewards or external grants); UsedWeight is derived from the
// user's active vote records and is never separately debited.
type WeightAccount struct {
	UserID      uuid.UUID `json:"user_id"`
	TotalWeight int64     `json:"total_weight"`
	UsedWeight  int64     `json:"used_weight"`
}

// Available returns the uncommitted remainder of the budget.
func (a WeightAccount) Available() int64 {
	return a.TotalWeight - a.UsedWeight
}
