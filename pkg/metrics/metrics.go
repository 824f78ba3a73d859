// Package metrics exposes Prometheus instrumentation for the consensus
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	VotesCast          prometheus.Counter
	VoteSwitches       prometheus.Counter
	LeadershipChanges  prometheus.Counter
	FieldsAccepted     prometheus.Counter
	RewardsIssued      prometheus.Counter
	RecomputeRuns      prometheus.Counter
	RecomputeFailures  prometheus.Counter
	CandidatesProposed prometheus.Counter
}

// New registers the engine collectors on the given registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		VotesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: "curation_votes_cast_total",
			Help: "total new vote records created",
		}),
		VoteSwitches: factory.NewCounter(prometheus.CounterOpts{
			Name: "curation_vote_switches_total",
			Help: "total in-place vote retargets",
		}),
		LeadershipChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "curation_leadership_changes_total",
			Help: "total leadership log entries appended",
		}),
		FieldsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "curation_fields_accepted_total",
			Help: "total field acceptance transitions",
		}),
		RewardsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "curation_rewards_issued_total",
			Help: "total submitter rewards credited",
		}),
		RecomputeRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "curation_recompute_runs_total",
			Help: "total per-project recompute executions",
		}),
		RecomputeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "curation_recompute_failures_total",
			Help: "total per-project recompute failures",
		}),
		CandidatesProposed: factory.NewCounter(prometheus.CounterOpts{
			Name: "curation_candidates_proposed_total",
			Help: "total candidate submissions",
		}),
	}
}

// NewNop returns metrics backed by an unregistered throwaway registry,
// for tests and callers that don't scrape.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
