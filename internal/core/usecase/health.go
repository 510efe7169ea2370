package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
)

// IngestionHealthUseCase reports ingestion state without side effects; the
// lookback preview comes from the same pure planner the poll uses.
type IngestionHealthUseCase struct {
	checkpoints ports.CheckpointStore
	source      string
	lookback    domain.LookbackConfig
}

func NewIngestionHealthUseCase(
	checkpoints ports.CheckpointStore,
	source string,
	lookback domain.LookbackConfig,
) *IngestionHealthUseCase {
	return &IngestionHealthUseCase{
		checkpoints: checkpoints,
		source:      source,
		lookback:    lookback,
	}
}

func (uc *IngestionHealthUseCase) IngestionHealth(ctx context.Context, now time.Time) (domain.HealthReport, error) {
	checkpoint, err := uc.checkpoints.Get(ctx, uc.source)
	if err != nil {
		return domain.HealthReport{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return domain.BuildHealthReport(checkpoint, now, uc.lookback), nil
}
