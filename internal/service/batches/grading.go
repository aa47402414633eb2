package batches

import (
	"context"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/appctx"
	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/service/quality"
)

// QualityTestInput holds laboratory measurements for a received batch.
type QualityTestInput struct {
	QualityData models.QualityData `json:"quality_data" validate:"required"`
	Notes       string             `json:"notes"`
}

// UpdateQualityTest grades a received batch against the configured
// standards and approves or rejects it.
func (s *Service) UpdateQualityTest(ctx context.Context, batchID string, input QualityTestInput) (*models.MilkBatch, error) {
	if err := models.Validate(input); err != nil {
		return nil, err
	}

	standards, err := quality.Load(ctx, s.settings)
	if err != nil {
		return nil, models.Storage("load quality standards", err)
	}

	actor := appctx.ActorFrom(ctx)

	batch, err := s.mutate(ctx, batchID, func(b *models.MilkBatch) error {
		if b.Status != models.BatchReceived {
			return invalidTransition(b.Status, models.BatchApproved)
		}

		data := input.QualityData
		grade := quality.ComputeGrade(data, standards)

		b.QualityData = &data
		b.QualityGrade = grade
		b.QualityNotes = input.Notes
		b.QualityTestedBy = actor
		b.QualityTestedAt = s.stamp()

		if grade == models.GradeReject {
			b.Status = models.BatchRejected
			if b.RejectionReason == "" {
				b.RejectionReason = models.LabRejectionReason
			}
		} else {
			b.Status = models.BatchApproved
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch graded",
		zap.String("batch_code", batch.BatchCode),
		zap.String("grade", string(batch.QualityGrade)),
		zap.String("status", string(batch.Status)))
	s.notify(ctx, models.EventBatchQualityTested, batch, map[string]string{
		"grade":  string(batch.QualityGrade),
		"reason": batch.RejectionReason,
	})
	return batch, nil
}
