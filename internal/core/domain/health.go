package domain

import (
	"fmt"
	"time"
)

// HealthReport is the operator-facing view of ingestion state.
type HealthReport struct {
	Healthy             bool         `json:"healthy"`
	LastRun             *time.Time   `json:"last_run,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	NextLookback        LookbackPlan `json:"next_lookback"`
	Alert               string       `json:"alert,omitempty"`
}

const (
	healthCriticalFailures = 3
	healthWarnAfterHours   = 24
	healthUnhealthyHours   = 48
)

// BuildHealthReport is pure over the checkpoint and now, reusing the
// lookback planner for the next-window preview.
func BuildHealthReport(cp IngestionCheckpoint, now time.Time, cfg LookbackConfig) HealthReport {
	report := HealthReport{
		Healthy:             true,
		LastRun:             cp.LastSuccessfulRun,
		ConsecutiveFailures: cp.ConsecutiveFailures,
		NextLookback:        PlanLookback(cp, now, cfg),
	}

	if cp.ConsecutiveFailures >= healthCriticalFailures {
		report.Healthy = false
		report.Alert = fmt.Sprintf("CRITICAL: %d consecutive ingestion failures", cp.ConsecutiveFailures)
		return report
	}

	if cp.LastSuccessfulRun != nil {
		hours := now.Sub(*cp.LastSuccessfulRun).Hours()
		if hours > healthUnhealthyHours {
			report.Healthy = false
		}
		if hours > healthWarnAfterHours {
			report.Alert = fmt.Sprintf("WARNING: %.0f hours since last successful ingestion", hours)
		}
	}

	return report
}
