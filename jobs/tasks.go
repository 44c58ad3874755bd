package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBootstrapRepair re-runs the super administrator bootstrap.
	TaskBootstrapRepair = "rbac:bootstrap_repair"
	// TaskCapabilitiesWarmup resolves capability maps of recently active users.
	TaskCapabilitiesWarmup = "rbac:capabilities_warmup"
)

// CapabilitiesWarmupPayload bounds which users the warmup touches.
type CapabilitiesWarmupPayload struct {
	// Window selects users that signed in within it. Zero means 24h.
	Window time.Duration `json:"window"`
	// Limit caps the number of users warmed. Zero means 500.
	Limit int `json:"limit"`
	// Reason is logged; it records what triggered the run.
	Reason string `json:"reason,omitempty"`
}

// NewBootstrapRepairTask constructs the bootstrap repair task.
func NewBootstrapRepairTask() *asynq.Task {
	return asynq.NewTask(TaskBootstrapRepair, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// NewCapabilitiesWarmupTask constructs a warmup task. Duplicate warmups
// enqueued within a minute collapse into one.
func NewCapabilitiesWarmupTask(payload CapabilitiesWarmupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCapabilitiesWarmup, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(2),
		asynq.Unique(time.Minute),
	), nil
}
