package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule sweeps once a minute.
const DefaultSchedule = "@every 1m"

// Evictor drops loops that have been idle too long.
// Satisfied by *loop.Registry.
type Evictor interface {
	Evict(ctx context.Context, now time.Time, idle time.Duration) []string
}

// Purger deletes finished loop runs older than a cutoff.
// Satisfied by store.Store.
type Purger interface {
	PurgeLoopRuns(ctx context.Context, before time.Time) (int64, error)
}

// JanitorConfig controls what a sweep removes. A zero IdleTTL disables
// eviction and a zero Retention disables purging.
type JanitorConfig struct {
	Schedule  string
	IdleTTL   time.Duration
	Retention time.Duration
}

// SweepResult reports what one sweep removed.
type SweepResult struct {
	Evicted []string `json:"evicted"`
	Purged  int64    `json:"purged"`
}

// Janitor periodically evicts idle loops and purges old loop runs on a
// cron schedule. Nothing runs until Start, and Sweep can be called directly.
type Janitor struct {
	loops  Evictor
	purger Purger
	cfg    JanitorConfig
	parser cron.Parser
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewJanitor validates the schedule and builds a Janitor. purger may be nil.
func NewJanitor(loops Evictor, purger Purger, cfg JanitorConfig, logger *slog.Logger) (*Janitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		loops:  loops,
		purger: purger,
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    time.Now,
		logger: logger,
	}
	if _, err := j.parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse janitor schedule %q: %w", cfg.Schedule, err)
	}
	return j, nil
}

// Start schedules sweeps. Overlapping sweeps are skipped.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return fmt.Errorf("janitor already started")
	}

	c := cron.New(
		cron.WithParser(j.parser),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(j.cfg.Schedule, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Error("janitor sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	c.Start()
	j.cron = c

	j.logger.Info("janitor started",
		slog.String("schedule", j.cfg.Schedule),
		slog.Duration("idle_ttl", j.cfg.IdleTTL),
		slog.Duration("retention", j.cfg.Retention),
	)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron == nil {
		return nil
	}

	<-j.cron.Stop().Done()
	j.cron = nil
	j.logger.Info("janitor stopped")
	return nil
}

// Sweep evicts idle loops and purges expired runs once.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := j.now()

	if j.cfg.IdleTTL > 0 && j.loops != nil {
		res.Evicted = j.loops.Evict(ctx, now, j.cfg.IdleTTL)
	}
	if j.cfg.Retention > 0 && j.purger != nil {
		n, err := j.purger.PurgeLoopRuns(ctx, now.Add(-j.cfg.Retention))
		if err != nil {
			return res, fmt.Errorf("purge loop runs: %w", err)
		}
		res.Purged = n
	}

	if len(res.Evicted) > 0 || res.Purged > 0 {
		j.logger.Info("janitor sweep",
			slog.Int("evicted", len(res.Evicted)),
			slog.Int64("purged", res.Purged),
		)
	}
	return res, nil
}

// NextSweep returns when the schedule fires next after from.
func (j *Janitor) NextSweep(from time.Time) time.Time {
	schedule, err := j.parser.Parse(j.cfg.Schedule)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(from)
}
