package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
)

// PollMailboxUseCase runs one scan of the upstream mailbox. The checkpoint
// is written exactly once, after the whole batch: RecordFailure when the
// listing fails or any message fails to ingest, RecordSuccess only for a
// fully clean batch. Per-message failures are isolated and never abort the
// batch, but they must keep the failed message inside the next scan window,
// so they count as a batch failure and widen the next lookback. A crash
// mid-run leaves the checkpoint untouched, so the next run simply re-scans
// the same window.
type PollMailboxUseCase struct {
	mail        ports.MailClient
	ingestor    ports.MailIngestor
	checkpoints ports.CheckpointStore
	source      string
	lookback    domain.LookbackConfig
}

func NewPollMailboxUseCase(
	mail ports.MailClient,
	ingestor ports.MailIngestor,
	checkpoints ports.CheckpointStore,
	source string,
	lookback domain.LookbackConfig,
) *PollMailboxUseCase {
	return &PollMailboxUseCase{
		mail:        mail,
		ingestor:    ingestor,
		checkpoints: checkpoints,
		source:      source,
		lookback:    lookback,
	}
}

func (uc *PollMailboxUseCase) RunPoll(ctx context.Context, now time.Time) (ports.PollSummary, error) {
	checkpoint, err := uc.checkpoints.Get(ctx, uc.source)
	if err != nil {
		return ports.PollSummary{}, fmt.Errorf("load checkpoint: %w", err)
	}

	plan := domain.PlanLookback(checkpoint, now, uc.lookback)
	summary := ports.PollSummary{Plan: plan}

	refs, err := uc.mail.ListMessagesSince(ctx, plan.ScanFrom)
	if err != nil {
		if recordErr := uc.checkpoints.RecordFailure(ctx, uc.source, err.Error()); recordErr != nil {
			slog.Error("record poll failure", "source", uc.source, "error", recordErr)
		}
		return summary, fmt.Errorf("list messages since %s: %w", plan.ScanFrom.Format(time.RFC3339), err)
	}

	summary.Scanned = len(refs)
	var newest *domain.ProcessedMarker
	for _, ref := range refs {
		outcome, err := uc.ingestor.ProcessNewEmail(ctx, ref.ID, ports.ChannelPoll)
		if err != nil {
			summary.Failed++
			slog.Warn("poll message failed",
				"source", uc.source,
				"message_id", ref.ID,
				"error", err,
			)
			continue
		}
		switch outcome {
		case ports.OutcomeCreated:
			summary.Created++
		case ports.OutcomeDuplicate:
			summary.Duplicates++
		default:
			summary.Skipped++
		}
		if newest == nil || ref.ReceivedAt.After(newest.ExternalDate) {
			newest = &domain.ProcessedMarker{ExternalID: ref.ID, ExternalDate: ref.ReceivedAt}
		}
	}

	if summary.Failed > 0 {
		// A success here would advance lastSuccessfulRun past messages that
		// never became documents; the failure record keeps them inside the
		// next run's widened window.
		reason := fmt.Sprintf("%d of %d messages failed to ingest", summary.Failed, summary.Scanned)
		if err := uc.checkpoints.RecordFailure(ctx, uc.source, reason); err != nil {
			return summary, fmt.Errorf("record poll failure: %w", err)
		}
		slog.Warn("poll run incomplete",
			"source", uc.source,
			"reason", plan.Reason,
			"window_days", plan.WindowDays,
			"scanned", summary.Scanned,
			"created", summary.Created,
			"failed", summary.Failed,
		)
		return summary, nil
	}

	if err := uc.checkpoints.RecordSuccess(ctx, uc.source, newest); err != nil {
		return summary, fmt.Errorf("record poll success: %w", err)
	}

	slog.Info("poll run complete",
		"source", uc.source,
		"reason", plan.Reason,
		"window_days", plan.WindowDays,
		"scanned", summary.Scanned,
		"created", summary.Created,
		"duplicates", summary.Duplicates,
		"failed", summary.Failed,
	)
	return summary, nil
}
