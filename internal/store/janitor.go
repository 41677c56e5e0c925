package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"segment-cache/pkg/logger"
)

// sweepTimeout bounds a single scheduled sweep
const sweepTimeout = 30 * time.Second

// Janitor runs a store's Sweep on a cron schedule ("@every 1m", "*/5 * * * *").
// It only reclaims memory or disk; it never decides what readers can see.
type Janitor struct {
	sweeper  Sweeper
	schedule cron.Schedule
	spec     string
	logger   *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron // nil while stopped
}

// ParseSchedule validates a sweep schedule in standard cron syntax or a descriptor
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// NewJanitor creates a stopped janitor for sweeper
func NewJanitor(sweeper Sweeper, spec string, log *logger.Logger) (*Janitor, error) {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}

	return &Janitor{
		sweeper:  sweeper,
		schedule: schedule,
		spec:     spec,
		logger:   log.Named("janitor"),
	}, nil
}

// Start begins running sweeps. Calling Start on a running janitor is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return
	}

	c := cron.New()
	// SkipIfStillRunning keeps a slow sweep from overlapping the next tick.
	c.Schedule(j.schedule, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(j.run)))
	c.Start()
	j.cron = c

	j.logger.Infow("Sweep schedule started", "schedule", j.spec)
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to end
func (j *Janitor) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		j.logger.Infow("Sweep schedule stopped")
	case <-ctx.Done():
		j.logger.Warnw("Timed out waiting for running sweep", "error", ctx.Err())
	}
}

// RunOnce performs a single sweep immediately
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	removed, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		j.logger.Debugw("Swept expired records", "removed", removed)
	}
	return removed, nil
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Warnw("Sweep failed", "error", err)
	}
}
