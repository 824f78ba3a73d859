package models

import (
	"time"

	"github.com/google/uuid"
)

// RankSnapshot holds a project's derived scores. It is recomputed from
// field states plus the catalog, never independently authored.
type RankSnapshot struct {
	ProjectID uuid.UUID `json:"project_id"`

	// PublishedGenesisWeight sums coefficient × weight unit over the
	// project's accepted fields.
	PublishedGenesisWeight int64 `json:"published_genesis_weight"`

	// TransparencyPct is the genesis weight as a share of the maximum the
	// catalog allows, rounded and clamped to [0, 100].
	TransparencyPct int `json:"transparency_pct"`

	// TrustScore is the externally-recorded support stake, carried here
	// as the community-trust ordering key.
	TrustScore int64 `json:"trust_score"`

	UpdatedAt time.Time `json:"updated_at"`
}
