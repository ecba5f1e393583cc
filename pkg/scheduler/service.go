// Package scheduler re-runs the evaluation pipeline on a cron schedule
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// RunFunc is one scheduled execution. The context is canceled when the scheduler stops.
type RunFunc func(ctx context.Context) error

// Entry describes a scheduled job
type Entry struct {
	ID       string
	Name     string
	Schedule string
	NextRun  time.Time
	LastRun  time.Time
	Runs     int
	Failures int
}

type job struct {
	entry  Entry
	cronID cron.EntryID
	run    RunFunc
}

// Service provides job scheduling operations
type Service struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job // job ID -> job
}

// NewService creates a new scheduler service. A job that is still running
// when its next tick fires is skipped, so executions of one job never overlap.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger.With("component", "scheduler")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Start starts the scheduler
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("job scheduler started")
}

// Stop stops the scheduler, cancels running jobs and waits for them to return
func (s *Service) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.logger.Info("job scheduler stopped")
}

// Schedule registers fn under a standard cron expression or descriptor such
// as "@every 6h" and returns the job ID
func (s *Service) Schedule(name, spec string, fn RunFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("job function is required")
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return "", fmt.Errorf("invalid cron expression: %w", err)
	}

	j := &job{
		entry: Entry{
			ID:       uuid.New().String(),
			Name:     name,
			Schedule: spec,
			NextRun:  schedule.Next(time.Now()),
		},
		run: fn,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j.cronID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.execute(j) }))
	s.jobs[j.entry.ID] = j

	s.logger.Info("scheduled job", "job", name, "id", j.entry.ID, "schedule", spec)
	return j.entry.ID, nil
}

// Remove unschedules a job
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	s.cron.Remove(j.cronID)
	delete(s.jobs, id)
	return nil
}

// Get returns a snapshot of a job
func (s *Service) Get(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Entry{}, fmt.Errorf("job not found: %s", id)
	}
	return s.snapshot(j), nil
}

// List returns a snapshot of every job
func (s *Service) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		entries = append(entries, s.snapshot(j))
	}
	return entries
}

func (s *Service) snapshot(j *job) Entry {
	e := j.entry
	if ce := s.cron.Entry(j.cronID); ce.Valid() && !ce.Next.IsZero() {
		e.NextRun = ce.Next
	}
	return e
}

// execute runs a job and records the outcome
func (s *Service) execute(j *job) {
	s.mu.Lock()
	j.entry.LastRun = time.Now()
	name := j.entry.Name
	s.mu.Unlock()

	s.logger.Info("executing scheduled job", "job", name)
	err := j.run(s.ctx)

	s.mu.Lock()
	j.entry.Runs++
	if err != nil {
		j.entry.Failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled job failed", "job", name, "error", err)
		return
	}
	s.logger.Info("scheduled job completed", "job", name)
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
