package domain

import (
	"fmt"
	"math"
	"time"
)

// IngestionCheckpoint is the durable progress marker for one ingestion
// source (a mailbox). One logical row per source; mutated only when a run
// completes, never mid-batch.
type IngestionCheckpoint struct {
	Source                    string     `json:"source"`
	LastSuccessfulRun         *time.Time `json:"last_successful_run,omitempty"`
	LastAttemptedRun          *time.Time `json:"last_attempted_run,omitempty"`
	ConsecutiveFailures       int        `json:"consecutive_failures"`
	LastProcessedExternalID   string     `json:"last_processed_external_id,omitempty"`
	LastProcessedExternalDate *time.Time `json:"last_processed_external_date,omitempty"`
}

// ProcessedMarker identifies the newest upstream message a successful run
// got through.
type ProcessedMarker struct {
	ExternalID   string
	ExternalDate time.Time
}

// LookbackConfig tunes how far back a run re-scans the upstream source.
type LookbackConfig struct {
	DefaultWindowDays int
	BackoffMultiplier float64
	MaxWindowDays     int
	SafetyBuffer      time.Duration
	NormalWithin      time.Duration
}

func DefaultLookbackConfig() LookbackConfig {
	return LookbackConfig{
		DefaultWindowDays: 2,
		BackoffMultiplier: 2.0,
		MaxWindowDays:     30,
		SafetyBuffer:      30 * time.Minute,
		NormalWithin:      24 * time.Hour,
	}
}

func (c LookbackConfig) normalize() LookbackConfig {
	out := c
	def := DefaultLookbackConfig()
	if out.DefaultWindowDays <= 0 {
		out.DefaultWindowDays = def.DefaultWindowDays
	}
	if out.BackoffMultiplier < 1.0 {
		out.BackoffMultiplier = def.BackoffMultiplier
	}
	if out.MaxWindowDays <= 0 {
		out.MaxWindowDays = def.MaxWindowDays
	}
	if out.MaxWindowDays < out.DefaultWindowDays {
		out.MaxWindowDays = out.DefaultWindowDays
	}
	if out.SafetyBuffer <= 0 {
		out.SafetyBuffer = def.SafetyBuffer
	}
	if out.NormalWithin <= 0 {
		out.NormalWithin = def.NormalWithin
	}
	return out
}

// LookbackPlan is the planner's answer: where the next run starts scanning
// and why.
type LookbackPlan struct {
	ScanFrom   time.Time `json:"scan_from"`
	WindowDays int       `json:"window_days"`
	Reason     string    `json:"reason"`
}

// PlanLookback decides the next scan window from the checkpoint alone. It
// is pure: no side effects, no clock access beyond the explicit now, so the
// health endpoint can call it as freely as the ingestion run. Precedence:
//
//  1. no prior success: the small default window
//  2. healthy and recent: last success minus a safety buffer
//  3. consecutive failures: exponential widening, capped
//  4. gap since last success: one day per elapsed day plus one, capped
//
// The window is always clamped to MaxWindowDays; on ambiguity the planner
// over-scans rather than risking a missed message.
func PlanLookback(cp IngestionCheckpoint, now time.Time, cfg LookbackConfig) LookbackPlan {
	cfg = cfg.normalize()

	if cp.LastSuccessfulRun == nil {
		return LookbackPlan{
			ScanFrom:   now.AddDate(0, 0, -cfg.DefaultWindowDays),
			WindowDays: cfg.DefaultWindowDays,
			Reason:     "first run: no prior successful ingestion",
		}
	}

	if cp.ConsecutiveFailures > 0 {
		days := float64(cfg.DefaultWindowDays) * math.Pow(cfg.BackoffMultiplier, float64(cp.ConsecutiveFailures))
		capped := int(days)
		if days > float64(cfg.MaxWindowDays) {
			capped = cfg.MaxWindowDays
		}
		return LookbackPlan{
			ScanFrom:   now.AddDate(0, 0, -capped),
			WindowDays: capped,
			Reason:     fmt.Sprintf("widened after %d consecutive failures", cp.ConsecutiveFailures),
		}
	}

	elapsed := now.Sub(*cp.LastSuccessfulRun)
	if elapsed <= cfg.NormalWithin {
		scanFrom := cp.LastSuccessfulRun.Add(-cfg.SafetyBuffer)
		return LookbackPlan{
			ScanFrom:   scanFrom,
			WindowDays: windowDaysFor(now, scanFrom),
			Reason:     "normal operation",
		}
	}

	days := int(math.Ceil(elapsed.Hours()/24)) + 1
	if days > cfg.MaxWindowDays {
		days = cfg.MaxWindowDays
	}
	return LookbackPlan{
		ScanFrom:   now.AddDate(0, 0, -days),
		WindowDays: days,
		Reason:     fmt.Sprintf("gap detected: %.0f hours since last success", elapsed.Hours()),
	}
}

func windowDaysFor(now, scanFrom time.Time) int {
	days := int(math.Ceil(now.Sub(scanFrom).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days
}
