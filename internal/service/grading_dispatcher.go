package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/noah-isme/edumark-api/internal/observability"
)

// GradingDispatcher runs grading jobs in the background with at most
// `workers` runs active at once. Schedule never blocks the caller.
type GradingDispatcher struct {
	orchestrator GradingOrchestrator
	slots        *semaphore.Weighted
	baseCtx      context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex
	closed       bool
	logger       zerolog.Logger
}

// NewGradingDispatcher builds a dispatcher bounded to workers concurrent runs.
func NewGradingDispatcher(orchestrator GradingOrchestrator, workers int, logger zerolog.Logger) *GradingDispatcher {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &GradingDispatcher{
		orchestrator: orchestrator,
		slots:        semaphore.NewWeighted(int64(workers)),
		baseCtx:      ctx,
		cancel:       cancel,
		logger:       logger.With().Str("component", "grading_dispatcher").Logger(),
	}
}

// Schedule queues job and returns immediately. It reports false once the
// dispatcher is shutting down.
func (d *GradingDispatcher) Schedule(job GradingJob) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn().Uint("submission_id", job.SubmissionID).Msg("dispatcher closed, grading job dropped")
		return false
	}

	d.wg.Add(1)
	observability.GradingWaiting().Inc()
	go d.run(job)

	return true
}

func (d *GradingDispatcher) run(job GradingJob) {
	defer d.wg.Done()

	err := d.slots.Acquire(d.baseCtx, 1)
	observability.GradingWaiting().Dec()
	if err != nil {
		d.logger.Warn().Uint("submission_id", job.SubmissionID).Msg("grading job cancelled before it started")
		return
	}
	defer d.slots.Release(1)

	observability.GradingInFlight().Inc()
	defer observability.GradingInFlight().Dec()

	defer func() {
		if recovered := recover(); recovered != nil {
			observability.GradingRuns().WithLabelValues(observability.OutcomePanic).Inc()
			d.logger.Error().
				Uint("submission_id", job.SubmissionID).
				Str("panic", fmt.Sprint(recovered)).
				Msg("grading run panicked")
		}
	}()

	d.orchestrator.Run(d.baseCtx, job)
}

// Shutdown stops accepting jobs and waits for queued and running jobs. When
// ctx ends first, outstanding runs are cancelled and ctx's error is returned.
func (d *GradingDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
