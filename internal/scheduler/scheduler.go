package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the background jobs on cron schedules. Each job is wrapped
// so an invocation is skipped while the previous one is still running; a job
// never overlaps itself.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a stopped scheduler
func New() *Scheduler {
	logger := slog.Default()
	cl := &cronLogger{logger: logger}

	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cl),
			cron.Recover(cl),
		)),
		logger: logger,
	}
}

// AddJob registers a named job on a standard 5-field cron spec
func (s *Scheduler) AddJob(spec, name string, fn func(context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("starting scheduled job", "job", name)
		fn(context.Background())
	})
	if err != nil {
		return err
	}

	s.logger.Info("scheduled job", "job", name, "spec", spec)
	return nil
}

// Start begins running jobs in their own goroutines
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling new runs and returns a context that is done once
// in-flight jobs have finished
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("stopping scheduler")
	return s.cron.Stop()
}

// JobCount returns the number of registered jobs
func (s *Scheduler) JobCount() int {
	return len(s.cron.Entries())
}

// cronLogger adapts slog to the cron logger interface
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info("cron: "+msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"error", err}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
