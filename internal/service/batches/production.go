package batches

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/appctx"
	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
)

// StartProductionInput selects the approved batches a cheese run consumes.
type StartProductionInput struct {
	BatchIDs []string `json:"batch_ids" validate:"min=1,unique,dive,required"`
	Notes    string   `json:"notes"`
}

// StartProduction opens a cheese production run over approved batches of a
// farm and moves them to in_production.
func (s *Service) StartProduction(ctx context.Context, farmID string, input StartProductionInput) (*models.ProductionRun, error) {
	if farmID == "" {
		return nil, models.NewValidationError("farm_id", "required")
	}
	if err := models.Validate(input); err != nil {
		return nil, err
	}

	actor := appctx.ActorFrom(ctx)
	var run *models.ProductionRun

	err := s.store.RunInTransaction(ctx, func(txCtx context.Context) error {
		batches, err := s.store.FindBatches(txCtx, repository.BatchFilter{FarmID: farmID, IDs: input.BatchIDs})
		if err != nil {
			return err
		}
		if len(batches) != len(input.BatchIDs) {
			return fmt.Errorf("batches %v for farm %s: %w", input.BatchIDs, farmID, models.ErrNotFound)
		}

		var liters float64
		for _, b := range batches {
			if b.Status != models.BatchApproved {
				return invalidTransition(b.Status, models.BatchInProduction)
			}
			liters += b.TotalVolume
		}

		startedAt := s.now().UTC()
		code, err := s.codes.Generate(txCtx, models.ProductionCodePrefix, startedAt)
		if err != nil {
			return err
		}

		r := &models.ProductionRun{
			ProductionCode: code,
			FarmID:         farmID,
			BatchIDs:       append([]string(nil), input.BatchIDs...),
			TotalLiters:    liters,
			Notes:          input.Notes,
			StartedBy:      actor,
			StartedAt:      startedAt,
		}
		if err := s.store.InsertProduction(txCtx, r); err != nil {
			return err
		}

		for i := range batches {
			b := batches[i]
			b.Status = models.BatchInProduction
			b.ProductionID = r.ID
			if err := s.store.UpdateBatch(txCtx, &b); err != nil {
				return err
			}
		}
		run = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("production started",
		zap.String("production_code", run.ProductionCode),
		zap.Int("batches", len(run.BatchIDs)),
		zap.Float64("liters", run.TotalLiters))
	return run, nil
}
