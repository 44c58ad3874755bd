package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/parishdesk/parishdesk/internal/jobs"
	"github.com/parishdesk/parishdesk/internal/rbac"
)

const (
	defaultWarmupWindow = 24 * time.Hour
	defaultWarmupLimit  = 500
)

// ActiveUsers lists users that signed in recently.
type ActiveUsers interface {
	ListActiveUserIDsSince(ctx context.Context, since time.Time, limit int) ([]int64, error)
}

// CapabilityCore reloads the catalog and resolves capability maps.
type CapabilityCore interface {
	ReloadCatalog(ctx context.Context) error
	Capabilities(ctx context.Context, userID int64) (rbac.Capabilities, error)
}

// CapabilitiesWarmupJob fills the capability cache for recently active users
// so their first request after a catalog change is served from cache.
type CapabilitiesWarmupJob struct {
	Users   ActiveUsers
	Core    CapabilityCore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// Handle processes TaskCapabilitiesWarmup tasks.
func (j *CapabilitiesWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Users == nil || j.Core == nil {
		return errors.New("capabilities warmup: handler not configured")
	}
	var payload CapabilitiesWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Window <= 0 {
		payload.Window = defaultWarmupWindow
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultWarmupLimit
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskCapabilitiesWarmup)
	defer func() {
		err = tracker.End(err)
	}()
	logger := jobLogger(j.Logger, TaskCapabilitiesWarmup).With(slog.String("reason", payload.Reason))

	// The worker holds its own registry; catch up before resolving.
	if err := j.Core.ReloadCatalog(ctx); err != nil {
		logger.Error("reload catalog", slog.Any("error", err))
		return err
	}
	start := j.now()
	ids, err := j.Users.ListActiveUserIDsSince(ctx, start.Add(-payload.Window), payload.Limit)
	if err != nil {
		logger.Error("list active users", slog.Any("error", err))
		return err
	}
	warmed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := j.Core.Capabilities(ctx, id); err != nil {
			logger.Warn("warm capabilities", slog.Int64("user_id", id), slog.Any("error", err))
			continue
		}
		warmed++
	}
	metrics.AddWarmed(warmed)
	logger.Info("completed capabilities warmup",
		slog.Int("users", warmed),
		slog.Int("candidates", len(ids)),
		slog.Duration("duration", time.Since(start)),
	)
	return ctx.Err()
}

func (j *CapabilitiesWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
