package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/andretaki/simurgh-sub002/internal/core/ports"
	"github.com/andretaki/simurgh-sub002/internal/observability/metrics"
)

// Poller runs the mailbox scan on a cron schedule. A run already in
// progress is never overlapped; the skipped tick is made up for by the
// lookback window of the next one.
type Poller struct {
	runner  ports.PollRunner
	metrics *metrics.WorkerMetrics
	cron    *cron.Cron
	spec    string
	running atomic.Bool
}

func NewPoller(runner ports.PollRunner, workerMetrics *metrics.WorkerMetrics, spec string) *Poller {
	return &Poller{
		runner:  runner,
		metrics: workerMetrics,
		cron:    cron.New(),
		spec:    spec,
	}
}

// Start registers the schedule and begins firing. It returns an error only
// when the cron expression does not parse.
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(p.spec, func() {
		p.runOnce(ctx)
	})
	if err != nil {
		return err
	}
	p.cron.Start()
	slog.Info("mailbox poller started", "schedule", p.spec)
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (p *Poller) Stop() {
	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
	slog.Info("mailbox poller stopped")
}

func (p *Poller) runOnce(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		slog.Warn("mailbox poll skipped: previous run still in progress")
		return
	}
	defer p.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	summary, err := p.runner.RunPoll(runCtx, time.Now().UTC())
	if p.metrics != nil {
		p.metrics.RecordPollRun("worker", err, summary.Plan.WindowDays)
		p.metrics.RecordPollMessages("worker", summary.Created, summary.Duplicates, summary.Skipped, summary.Failed)
	}
	if err != nil {
		slog.Error("scheduled mailbox poll failed", "error", err)
	}
}
