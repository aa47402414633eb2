// Package reporting summarises milk collection per farm and period.
package reporting

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
	"github.com/mamadbah2/milkchain/internal/service/notify"
)

// Store is the persistence surface reporting reads and writes.
type Store interface {
	repository.BatchRepository
	repository.FarmRepository
	repository.ReportRepository
}

// Service exposes collection analytics for dashboards and WhatsApp summaries.
type Service struct {
	store    Store
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a new reporting service instance.
func NewService(store Store, notifier notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// CollectionSummary aggregates every batch a farm collected within
// [start, end], whatever its status.
func (s *Service) CollectionSummary(ctx context.Context, farmID string, start, end time.Time) (*models.CollectionReport, error) {
	if farmID == "" {
		return nil, models.NewValidationError("farm_id", "required")
	}
	if end.Before(start) {
		return nil, models.NewValidationError("to", "gtefield=from")
	}

	batches, err := s.store.FindBatches(ctx, repository.BatchFilter{
		FarmID:        farmID,
		CollectedFrom: start,
		CollectedTo:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}

	report := &models.CollectionReport{
		FarmID:        farmID,
		PeriodStart:   start,
		PeriodEnd:     end,
		Batches:       len(batches),
		LitersByGrade: make(map[models.Grade]float64),
		CreatedAt:     s.now().UTC(),
	}

	var grades []models.Grade
	for _, b := range batches {
		report.TotalLiters += b.TotalVolume

		switch b.Status {
		case models.BatchRejected:
			report.Rejected++
		case models.BatchCollected, models.BatchInTransit, models.BatchReceived:
			report.Pending++
		}

		if b.QualityGrade == "" {
			continue
		}
		grades = append(grades, b.QualityGrade)
		if b.QualityGrade != models.GradeReject {
			report.LitersByGrade[b.QualityGrade] += b.TotalVolume
		}
	}

	report.TotalLiters = math.Round(report.TotalLiters*100) / 100
	report.AverageGrade = models.AverageGrade(grades)
	return report, nil
}

// GenerateWeeklyReports summarises the seven days ending at now for every
// active farm, stores each report and sends it to the farm owner. It
// returns the number of reports produced.
func (s *Service) GenerateWeeklyReports(ctx context.Context, now time.Time) (int, error) {
	farms, err := s.store.ListActiveFarms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list farms: %w", err)
	}

	end := now
	start := end.AddDate(0, 0, -7)

	var sent int
	for _, farm := range farms {
		report, err := s.CollectionSummary(ctx, farm.ID, start, end)
		if err != nil {
			s.logger.Error("failed to summarise collection", zap.String("farm_id", farm.ID), zap.Error(err))
			continue
		}
		if err := s.store.SaveCollectionReport(ctx, *report); err != nil {
			s.logger.Error("failed to store collection report", zap.String("farm_id", farm.ID), zap.Error(err))
			continue
		}

		if s.notifier != nil {
			s.notifier.Notify(ctx, models.Notification{
				Recipient: farm.ID,
				Event:     models.EventCollectionReport,
				Payload:   map[string]string{"message": report.Format()},
				CreatedAt: s.now(),
			})
		}
		sent++
	}

	s.logger.Info("weekly collection reports generated", zap.Int("farms", len(farms)), zap.Int("reports", sent))
	return sent, nil
}
