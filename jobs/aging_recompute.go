package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/talentpath-hq/talentpath/internal/aging"
	jobmetrics "github.com/talentpath-hq/talentpath/internal/jobs"
)

// AgingRecomputeJob rebuilds aging signals from the candidate pipeline.
type AgingRecomputeJob struct {
	Service *aging.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAgingRecomputeJob initialises the recompute handler.
func NewAgingRecomputeJob(service *aging.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *AgingRecomputeJob {
	return &AgingRecomputeJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes the recompute.
func (j *AgingRecomputeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("aging recompute: handler not configured")
	}
	var payload AgingRecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAgingRecompute)
	var resultErr error
	defer func() {
		_ = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()
	logger.Info("starting aging recompute")

	n, err := j.Service.Recompute(ctx)
	if err != nil {
		resultErr = err
		logger.Error("aging recompute failed", slog.Any("error", err))
		return resultErr
	}

	if counts, err := j.Service.SignalCounts(ctx); err != nil {
		logger.Warn("read signal counts", slog.Any("error", err))
	} else {
		j.metrics().SetSignals(string(aging.ColorGreen), counts.Green)
		j.metrics().SetSignals(string(aging.ColorAmber), counts.Amber)
		j.metrics().SetSignals(string(aging.ColorRed), counts.Red)
	}

	logger.Info("completed aging recompute",
		slog.Int("signals", n),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *AgingRecomputeJob) metrics() *jobmetrics.Metrics {
	if j == nil {
		return nil
	}
	return j.Metrics
}

func (j *AgingRecomputeJob) logger() *slog.Logger {
	if j == nil || j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
