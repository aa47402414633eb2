package batches

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/appctx"
	"github.com/mamadbah2/milkchain/internal/domain/models"
)

// CreateBatchInput describes the milking records pooled into a new batch.
type CreateBatchInput struct {
	CollectionDate    time.Time      `json:"collection_date" validate:"required"`
	Session           models.Session `json:"session" validate:"required,oneof=morning afternoon evening"`
	SourceMilkingIDs  []int64        `json:"source_milking_ids" validate:"min=1,unique,dive,gt=0"`
	EstimatedVolume   float64        `json:"estimated_volume" validate:"gte=0"`
	ActualVolume      float64        `json:"actual_volume" validate:"gte=0"`
	PickupTemperature *float64       `json:"pickup_temperature"`
	Notes             string         `json:"notes"`
}

// CreateBatch pools milking records into a collected batch. The code, the
// batch and the claim over every milking id commit together or not at all;
// an id already claimed by another batch fails with
// models.ErrMilkingAlreadyBatched.
func (s *Service) CreateBatch(ctx context.Context, farmID string, input CreateBatchInput) (*models.MilkBatch, error) {
	if farmID == "" {
		return nil, models.NewValidationError("farm_id", "required")
	}
	if err := models.Validate(input); err != nil {
		return nil, err
	}

	actor := appctx.ActorFrom(ctx)
	var batch *models.MilkBatch

	err := s.store.RunInTransaction(ctx, func(txCtx context.Context) error {
		code, err := s.codes.Generate(txCtx, models.BatchCodePrefix, input.CollectionDate)
		if err != nil {
			return err
		}

		b := &models.MilkBatch{
			BatchCode:          code,
			FarmID:             farmID,
			CollectionDate:     input.CollectionDate,
			Session:            input.Session,
			SourceMilkingIDs:   append([]int64(nil), input.SourceMilkingIDs...),
			EstimatedVolume:    input.EstimatedVolume,
			ActualVolume:       input.ActualVolume,
			TotalVolume:        input.ActualVolume,
			VariancePercentage: models.VariancePercentage(input.EstimatedVolume, input.ActualVolume),
			PickupTemperature:  input.PickupTemperature,
			TransportStatus:    models.TransportPending,
			Status:             models.BatchCollected,
			CollectedBy:        actor,
			CollectedAt:        s.stamp(),
			Notes:              input.Notes,
		}
		if err := s.store.InsertBatch(txCtx, b); err != nil {
			return err
		}
		if err := s.store.ClaimMilkings(txCtx, farmID, b.ID, b.SourceMilkingIDs); err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		s.logger.Warn("batch creation failed", zap.String("farm_id", farmID), zap.Int64s("milking_ids", input.SourceMilkingIDs), zap.Error(err))
		return nil, err
	}

	s.logger.Info("batch collected",
		zap.String("batch_code", batch.BatchCode),
		zap.String("farm_id", farmID),
		zap.Int("milkings", len(batch.SourceMilkingIDs)),
		zap.Float64("variance_pct", batch.VariancePercentage))
	s.notify(ctx, models.EventBatchCollected, batch, nil)
	return batch, nil
}
