package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/parishdesk/parishdesk/internal/jobs"
	"github.com/parishdesk/parishdesk/internal/rbac"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Bootstrapper promotes the configured account when no super administrator
// is left.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, account rbac.BootstrapAccount) (rbac.BootstrapResult, error)
}

// BootstrapRepairJob periodically restores a bypass holder, e.g. after one
// was removed directly in the database.
type BootstrapRepairJob struct {
	Core    Bootstrapper
	Account rbac.BootstrapAccount
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskBootstrapRepair tasks.
func (j *BootstrapRepairJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Core == nil {
		return errors.New("bootstrap repair: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskBootstrapRepair)
	defer func() {
		err = tracker.End(err)
	}()

	logger := jobLogger(j.Logger, TaskBootstrapRepair)
	if j.Account.Email == "" {
		logger.Debug("bootstrap account not configured, skipping")
		return nil
	}
	res, err := j.Core.Bootstrap(ctx, j.Account)
	if err != nil {
		logger.Error("bootstrap repair", slog.Any("error", err))
		if errors.Is(err, rbac.ErrBootstrapAccount) || errors.Is(err, rbac.ErrInvalidRole) {
			// Retrying cannot fix configuration.
			return errors.Join(err, asynq.SkipRetry)
		}
		return err
	}
	if res.Outcome != rbac.BootstrapNoop {
		logger.Warn("super administrator restored",
			slog.String("outcome", string(res.Outcome)),
			slog.Int64("user_id", res.UserID),
		)
	}
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
