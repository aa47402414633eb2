package batches

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/appctx"
	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/service/settings"
)

// DispatchInput carries courier and destination details.
type DispatchInput struct {
	TrackingNumber     string     `json:"tracking_number"`
	DestinationFarmID  string     `json:"destination_farm_id"`
	CourierName        string     `json:"courier_name"`
	CourierPhone       string     `json:"courier_phone"`
	VehicleNumber      string     `json:"vehicle_number"`
	ExpectedDeliveryAt *time.Time `json:"expected_delivery_at"`
	Notes              string     `json:"notes"`
}

// TransportUpdateInput is one location report from the courier.
type TransportUpdateInput struct {
	TransportStatus models.TransportStatus `json:"transport_status" validate:"required,oneof=in_transit delayed arrived"`
	Location        string                 `json:"location"`
	Notes           string                 `json:"notes"`
}

// ReceiveInput holds the checks made when a batch arrives.
type ReceiveInput struct {
	DeliveryTemperature *float64 `json:"delivery_temperature"`
	DurationMinutes     *int     `json:"duration_minutes" validate:"omitempty,gte=0"`
	VisualCheck         string   `json:"visual_check" validate:"required,oneof=normal abnormal foamy discolored"`
	SmellCheck          string   `json:"smell_check" validate:"required,oneof=normal sour abnormal"`
	Photos              []string `json:"photos"`
	Notes               string   `json:"notes"`
}

// ConfirmDeliveryInput records factory-side receipt.
type ConfirmDeliveryInput struct {
	DeliveredAt      *time.Time `json:"delivered_at"`
	ReceivedByUserID string     `json:"received_by_user_id"`
	Notes            string     `json:"notes"`
}

// Dispatch hands a collected batch to a courier.
func (s *Service) Dispatch(ctx context.Context, batchID string, input DispatchInput) (*models.MilkBatch, error) {
	actor := appctx.ActorFrom(ctx)

	batch, err := s.mutate(ctx, batchID, func(b *models.MilkBatch) error {
		if b.Status != models.BatchCollected {
			return invalidTransition(b.Status, models.BatchInTransit)
		}
		now := s.stamp()

		if b.TrackingNumber == "" {
			b.TrackingNumber = input.TrackingNumber
		}
		if b.TrackingNumber == "" {
			b.TrackingNumber = newTrackingNumber()
		}
		b.DestinationFarmID = input.DestinationFarmID
		b.CourierName = input.CourierName
		b.CourierPhone = input.CourierPhone
		b.VehicleNumber = input.VehicleNumber
		b.ExpectedDeliveryAt = input.ExpectedDeliveryAt
		b.TransportNotes = appendNote(b.TransportNotes, input.Notes)
		b.TransportStatus = models.TransportDispatched
		b.DispatchedAt = now
		b.DispatchedBy = actor
		b.Status = models.BatchInTransit
		b.TransportHistory = append(b.TransportHistory, models.TransportEvent{
			Timestamp: *now,
			Status:    models.TransportDispatched,
			Notes:     input.Notes,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch dispatched", zap.String("batch_code", batch.BatchCode), zap.String("tracking_number", batch.TrackingNumber))
	s.notify(ctx, models.EventBatchDispatched, batch, map[string]string{"tracking_number": batch.TrackingNumber})
	return batch, nil
}

// UpdateTransportStatus appends a location report. It is refused once
// delivery has been confirmed.
func (s *Service) UpdateTransportStatus(ctx context.Context, batchID string, input TransportUpdateInput) (*models.MilkBatch, error) {
	if err := models.Validate(input); err != nil {
		return nil, err
	}

	return s.mutate(ctx, batchID, func(b *models.MilkBatch) error {
		if b.TransportStatus == models.TransportDelivered {
			return &models.InvalidTransitionError{
				Entity: "transport",
				From:   string(b.TransportStatus),
				To:     string(input.TransportStatus),
			}
		}
		b.TransportStatus = input.TransportStatus
		b.TransportHistory = append(b.TransportHistory, models.TransportEvent{
			Timestamp: s.now().UTC(),
			Status:    input.TransportStatus,
			Location:  input.Location,
			Notes:     input.Notes,
		})
		return nil
	})
}

// Receive records the farm-side receiving checks. Abnormal visual or smell
// checks reject the batch; a delivery temperature above the warning
// threshold only leaves a marker in the transport notes.
func (s *Service) Receive(ctx context.Context, batchID string, input ReceiveInput) (*models.MilkBatch, error) {
	if err := models.Validate(input); err != nil {
		return nil, err
	}

	temps, err := settings.LoadTemperatureRange(ctx, s.settings)
	if err != nil {
		return nil, models.Storage("load temperature range", err)
	}

	actor := appctx.ActorFrom(ctx)
	var warning string

	batch, err := s.mutate(ctx, batchID, func(b *models.MilkBatch) error {
		if !statusIn(b.Status, models.BatchCollected, models.BatchInTransit) {
			return invalidTransition(b.Status, models.BatchReceived)
		}

		b.DeliveryTemperature = input.DeliveryTemperature
		b.TransportDuration = input.DurationMinutes
		b.VisualCheck = input.VisualCheck
		b.SmellCheck = input.SmellCheck
		b.ReceivingNotes = input.Notes
		b.TransportPhotos = append(b.TransportPhotos, input.Photos...)

		if t := input.DeliveryTemperature; t != nil && *t > temps.WarningThreshold {
			warning = temperatureWarning(*t, temps.WarningThreshold)
			b.TransportNotes = appendNote(b.TransportNotes, warning)
		}

		if models.IsAbnormalVisual(input.VisualCheck) || models.IsAbnormalSmell(input.SmellCheck) {
			b.Status = models.BatchRejected
			b.RejectionReason = models.SensoryRejectionReason(input.VisualCheck, input.SmellCheck)
		} else {
			b.Status = models.BatchReceived
		}

		b.ReceivedBy = actor
		b.ReceivedAt = s.stamp()
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := models.EventBatchReceived
	extra := map[string]string{"warning": warning}
	if batch.Status == models.BatchRejected {
		event = models.EventBatchRejected
		extra["reason"] = batch.RejectionReason
	}
	s.logger.Info("batch received",
		zap.String("batch_code", batch.BatchCode),
		zap.String("status", string(batch.Status)),
		zap.Bool("temperature_warning", warning != ""))
	s.notify(ctx, event, batch, extra)
	return batch, nil
}

// ConfirmDelivery records factory-side receipt, marking transport delivered
// and the batch received. A batch already graded cannot be confirmed.
func (s *Service) ConfirmDelivery(ctx context.Context, batchID string, input ConfirmDeliveryInput) (*models.MilkBatch, error) {
	actor := appctx.ActorFrom(ctx)

	batch, err := s.mutate(ctx, batchID, func(b *models.MilkBatch) error {
		if !statusIn(b.Status, models.BatchCollected, models.BatchInTransit, models.BatchReceived) {
			return invalidTransition(b.Status, models.BatchReceived)
		}

		deliveredAt := s.now().UTC()
		if input.DeliveredAt != nil {
			deliveredAt = input.DeliveredAt.UTC()
		}
		receivedBy := input.ReceivedByUserID
		if receivedBy == "" {
			receivedBy = actor
		}

		b.TransportStatus = models.TransportDelivered
		b.DeliveredAt = &deliveredAt
		b.Status = models.BatchReceived
		if b.ReceivedBy == "" {
			b.ReceivedBy = receivedBy
		}
		if b.ReceivedAt == nil {
			b.ReceivedAt = &deliveredAt
		}
		b.TransportNotes = appendNote(b.TransportNotes, input.Notes)
		b.TransportHistory = append(b.TransportHistory, models.TransportEvent{
			Timestamp: deliveredAt,
			Status:    models.TransportDelivered,
			Notes:     input.Notes,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch delivery confirmed", zap.String("batch_code", batch.BatchCode), zap.String("received_by", batch.ReceivedBy))
	return batch, nil
}

func temperatureWarning(temp, threshold float64) string {
	return fmt.Sprintf("[WARNING] Delivery temperature %.1f°C above %.1f°C threshold", temp, threshold)
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	default:
		return existing + "\n" + note
	}
}
