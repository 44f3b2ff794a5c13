package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/credit-service/internal/metrics"
)

// Sweeper moves ACTIVE credits past their due date to OVERDUE
type Sweeper struct {
	svc     *Service
	log     *logrus.Logger
	metrics *metrics.Metrics

	// mu keeps sweeps from overlapping, whether scheduled or on demand.
	mu sync.Mutex
}

// NewSweeper initializes a sweeper on top of the engine
func NewSweeper(svc *Service, log *logrus.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{svc: svc, log: log, metrics: m}
}

// RunOnce sweeps as of the engine clock
func (sw *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return sw.Sweep(ctx, sw.svc.opts.Clock())
}

// Sweep transitions every ACTIVE credit due before the day of now and returns
// how many moved. A failure on one credit is logged and skipped; only a
// failure to list candidates or a cancelled context fails the sweep.
func (sw *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	started := time.Now()
	candidates, err := sw.svc.pastDue(ctx, now)
	if err != nil {
		sw.log.WithError(err).Error("Overdue sweep could not list candidates")
		return 0, err
	}

	transitioned, failed := 0, 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			sw.metrics.SweepFinished(transitioned, failed, time.Since(started))
			return transitioned, err
		}
		changed, err := sw.svc.MarkOverdue(ctx, c.ID, now)
		if err != nil {
			failed++
			sw.log.WithError(err).WithField("credit_id", c.ID).Warn("Failed to mark credit overdue")
			continue
		}
		if changed {
			transitioned++
		}
	}

	sw.metrics.SweepFinished(transitioned, failed, time.Since(started))
	sw.log.WithFields(logrus.Fields{
		"as_of":        now.Format(time.RFC3339),
		"candidates":   len(candidates),
		"transitioned": transitioned,
		"failed":       failed,
	}).Info("Overdue sweep finished")
	return transitioned, nil
}
