package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAgingRecompute rebuilds the candidate aging signals.
	TaskAgingRecompute = "aging:recompute"
)

// AgingRecomputePayload carries scheduling metadata.
type AgingRecomputePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewAgingRecomputeTask constructs an Asynq task for the aging recompute.
func NewAgingRecomputeTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(AgingRecomputePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAgingRecompute, body, asynq.Queue(QueueDefault)), nil
}
