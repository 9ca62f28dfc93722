package docsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the refresh job on a cron expression. One refresh runs at a
// time; an overlapping tick is skipped.
type Scheduler struct {
	cron    *cron.Cron
	job     *Job
	spec    string
	logger  *slog.Logger
	running chan struct{}
}

func NewScheduler(log *slog.Logger, job *Job, spec string) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if spec == "" {
		spec = "@daily"
	}
	return &Scheduler{
		cron:    cron.New(),
		job:     job,
		spec:    spec,
		logger:  log.With(slog.String("service", "sync_scheduler")),
		running: make(chan struct{}, 1),
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.tick)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("docs refresh scheduled", slog.String("cron", s.spec))
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("timed out waiting for running refresh")
	}
}

func (s *Scheduler) tick() {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		s.logger.Warn("previous refresh still running, skipping tick")
		return
	}

	start := time.Now()
	if err := s.job.Run(context.Background(), true); err != nil {
		s.logger.Error("scheduled refresh failed", slog.Any("error", err))
		return
	}
	s.logger.Info("scheduled refresh complete", slog.Duration("took", time.Since(start)))
}
