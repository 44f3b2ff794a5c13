package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a unit of periodic work returning the number of items it processed
type Job interface {
	RunOnce(ctx context.Context) (int, error)
}

// Scheduler runs a job on a cron schedule. A run still in progress when the
// next one is due causes the next one to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	log    *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a scheduler firing job on schedule (standard 5-field cron) in the
// named time zone.
func New(schedule, timezone string, job Job, log *logrus.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", timezone, err)
	}

	cronLog := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, log: log, ctx: ctx, cancel: cancel}

	if _, err := c.AddFunc(schedule, func() { s.run(job) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run(job Job) {
	n, err := job.RunOnce(s.ctx)
	if err != nil {
		s.log.WithError(err).Error("Scheduled job failed")
		return
	}
	s.log.Infof("Scheduled job processed %d items", n)
}

// Start begins firing the job in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Infof("Scheduled job next run at %s", e.Next.Format(time.RFC3339))
	}
}

// Stop prevents further runs and waits for a running job until ctx is done,
// after which the running job's context is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}
