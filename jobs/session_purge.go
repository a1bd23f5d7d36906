package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/residuos-hospitalarios/residuos/internal/jobs"
)

// SessionPurger deletes login session rows that expired before now.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// PurgeSessionsJob removes expired auth_sessions rows.
type PurgeSessionsJob struct {
	repo    SessionPurger
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPurgeSessionsJob constructs the purge handler.
func NewPurgeSessionsJob(repo SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeSessionsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeSessionsJob{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the purge.
func (j *PurgeSessionsJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PurgeSessionsPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("purge sessions: malformed payload: %w", asynq.SkipRetry)
		}
	}
	if payload.Grace < 0 {
		payload.Grace = 0
	}
	tracker := j.metrics.Track(TaskTypePurgeSessions)
	cutoff := j.clock().Add(-payload.Grace)
	n, err := j.repo.PurgeExpiredSessions(ctx, cutoff)
	if err != nil {
		j.logger.Error("purge sessions", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddPurgedSessions(n)
	j.logger.Info("expired sessions purged", slog.Int64("rows", n), slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}
