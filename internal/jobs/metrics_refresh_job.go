package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MetricsRefreshJobName is the scheduler name of the stage metrics refresh
const MetricsRefreshJobName = "stage_metrics_refresh"

// MetricsRefresher recomputes the stage metrics cache of every funnel
type MetricsRefresher interface {
	RefreshAll(ctx context.Context) error
}

// MetricsRefreshJob keeps the stage metrics cache from going stale
type MetricsRefreshJob struct {
	refresher MetricsRefresher
	logger    *zap.Logger
	timeout   time.Duration
}

func NewMetricsRefreshJob(refresher MetricsRefresher, logger *zap.Logger, timeout time.Duration) *MetricsRefreshJob {
	return &MetricsRefreshJob{
		refresher: refresher,
		logger:    logger,
		timeout:   timeout,
	}
}

// Run is invoked by the scheduler. Errors are logged; the next tick retries.
func (j *MetricsRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	if err := j.refresher.RefreshAll(ctx); err != nil {
		j.logger.Error("stage metrics refresh job failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("stage metrics refresh job completed", zap.Duration("duration", time.Since(start)))
}

// Register adds the job to the scheduler under MetricsRefreshJobName
func (j *MetricsRefreshJob) Register(s *Scheduler, cronExpr string) error {
	return s.AddJob(MetricsRefreshJobName, cronExpr, j.Run)
}
