// Package batches implements the milk batch lifecycle: aggregation of raw
// milking records, transport and receiving, laboratory grading and the hand
// off to cheese production.
package batches

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
	"github.com/mamadbah2/milkchain/internal/service/batchcode"
	"github.com/mamadbah2/milkchain/internal/service/notify"
	"github.com/mamadbah2/milkchain/internal/service/settings"
)

// Service coordinates batch operations over the store.
type Service struct {
	store    repository.Store
	codes    *batchcode.Generator
	settings settings.Provider
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a new batch service instance.
func NewService(store repository.Store, provider settings.Provider, notifier notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		codes:    batchcode.NewGenerator(store),
		settings: provider,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// GetBatch loads a batch by id.
func (s *Service) GetBatch(ctx context.Context, id string) (*models.MilkBatch, error) {
	return s.store.GetBatch(ctx, id)
}

// ListBatches returns a farm's batches collected within [from, to]. Zero
// bounds are open.
func (s *Service) ListBatches(ctx context.Context, farmID string, from, to time.Time) ([]models.MilkBatch, error) {
	if farmID == "" {
		return nil, models.NewValidationError("farm_id", "required")
	}
	return s.store.FindBatches(ctx, repository.BatchFilter{FarmID: farmID, CollectedFrom: from, CollectedTo: to})
}

// mutate loads a batch, applies fn and writes it back with a version check.
func (s *Service) mutate(ctx context.Context, id string, fn func(b *models.MilkBatch) error) (*models.MilkBatch, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(batch); err != nil {
		return nil, err
	}
	if err := s.store.UpdateBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Service) notify(ctx context.Context, event models.EventType, batch *models.MilkBatch, extra map[string]string) {
	if s.notifier == nil {
		return
	}
	payload := map[string]string{
		"batch_code": batch.BatchCode,
		"status":     string(batch.Status),
		"volume":     fmt.Sprintf("%.2f L", batch.TotalVolume),
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.notifier.Notify(ctx, models.Notification{
		Recipient: batch.FarmID,
		Event:     event,
		Payload:   payload,
		CreatedAt: s.now(),
	})
}

func (s *Service) stamp() *time.Time {
	t := s.now().UTC()
	return &t
}

func invalidTransition(from models.BatchStatus, to models.BatchStatus) error {
	return &models.InvalidTransitionError{Entity: "batch", From: string(from), To: string(to)}
}

func statusIn(status models.BatchStatus, allowed ...models.BatchStatus) bool {
	for _, a := range allowed {
		if status == a {
			return true
		}
	}
	return false
}

// newTrackingNumber returns TRK- followed by 12 uppercase alphanumerics.
func newTrackingNumber() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRK-" + strings.ToUpper(token[:12])
}
