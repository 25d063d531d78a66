// Package scheduler provides cron-based background jobs for ChartFlow.
//
// Its main use is the periodic reconciliation sweep that resolves pending
// workflows whose patient reply arrived while no one was polling.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultReconcileExpr runs the pending-workflow sweep every minute.
const DefaultReconcileExpr = "* * * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddReconcileJob schedules the pending-workflow sweep. The sweep function
// is supplied by the caller so this package stays free of engine imports.
func (s *Scheduler) AddReconcileJob(expr string, sweep func(ctx context.Context) int) error {
	if expr == "" {
		expr = DefaultReconcileExpr
	}
	return s.AddJob(expr, func() {
		resolved := sweep(context.Background())
		if resolved > 0 {
			slog.Info("Scheduler reconciliation resolved workflows", "count", resolved)
		} else {
			slog.Debug("Scheduler reconciliation found nothing to resolve")
		}
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
