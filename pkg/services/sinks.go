package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Activity event actions emitted by the vote ledger.
const (
	ActivityVoteCreate = "vote.create"
	ActivityVoteUpdate = "vote.update"
)

// ActivityEvent describes one vote ledger mutation for downstream
// activity feeds.
type ActivityEvent struct {
	Action      string
	VoterID     uuid.UUID
	ProjectID   uuid.UUID
	FieldKey    string
	CandidateID uuid.UUID
	Weight      int64
}

// ActivitySink receives vote activity events. Delivery is fire-and-forget:
// implementations must not fail the voting operation and must return
// quickly.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent)
}

// NotificationSink receives leadership change notifications for the
// external delivery queue. Fire-and-forget, like ActivitySink.
type NotificationSink interface {
	LeaderChanged(ctx context.Context, projectID uuid.UUID, fieldKey string, candidateID *uuid.UUID)
}

// logActivitySink logs activity events. The default sink when no
// external feed is wired.
type logActivitySink struct {
	logger *zap.Logger
}

// NewLogActivitySink creates an ActivitySink that writes to the log.
func NewLogActivitySink(logger *zap.Logger) ActivitySink {
	return &logActivitySink{logger: logger.Named("activity")}
}

func (s *logActivitySink) Record(_ context.Context, event ActivityEvent) {
	s.logger.Info("Vote activity",
		zap.String("action", event.Action),
		zap.String("voter_id", event.VoterID.String()),
		zap.String("project_id", event.ProjectID.String()),
		zap.String("field_key", event.FieldKey),
		zap.String("candidate_id", event.CandidateID.String()),
		zap.Int64("weight", event.Weight))
}

// logNotificationSink logs leadership changes. The default sink when no
// delivery queue is wired.
type logNotificationSink struct {
	logger *zap.Logger
}

// NewLogNotificationSink creates a NotificationSink that writes to the log.
func NewLogNotificationSink(logger *zap.Logger) NotificationSink {
	return &logNotificationSink{logger: logger.Named("notify")}
}

func (s *logNotificationSink) LeaderChanged(_ context.Context, projectID uuid.UUID, fieldKey string, candidateID *uuid.UUID) {
	leader := "none"
	if candidateID != nil {
		leader = candidateID.String()
	}
	s.logger.Info("Leader changed",
		zap.String("project_id", projectID.String()),
		zap.String("field_key", fieldKey),
		zap.String("candidate_id", leader))
}
