package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
	client "github.com/mamadbah2/milkchain/pkg/clients/whatsapp"
)

// NotificationSender delivers pipeline notifications to farm owners over
// the WhatsApp Cloud API.
type NotificationSender struct {
	client client.Client
	farms  repository.FarmRepository
	logger *zap.Logger
}

// NewNotificationSender wires a new sender instance.
func NewNotificationSender(c client.Client, farms repository.FarmRepository, logger *zap.Logger) *NotificationSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationSender{client: c, farms: farms, logger: logger}
}

var eventTitles = map[models.EventType]string{
	models.EventBatchCollected:     "Milk collected",
	models.EventBatchDispatched:    "Milk batch dispatched",
	models.EventBatchReceived:      "Milk batch received",
	models.EventBatchRejected:      "Milk batch rejected",
	models.EventBatchQualityTested: "Quality test result",
	models.EventPaymentCreated:     "Milk payment calculated",
	models.EventPaymentApproved:    "Milk payment approved",
	models.EventPaymentPaid:        "Milk payment sent",
	models.EventCollectionReport:   "Weekly collection report",
}

// payloadOrder fixes the order in which payload fields are rendered.
var payloadOrder = []string{
	"batch_code", "tracking_number", "status", "grade", "volume", "reason", "warning",
	"period", "gross_amount", "deductions", "net_amount", "method", "reference",
}

// Send resolves the farm owner's contact and sends a formatted text message.
func (s *NotificationSender) Send(ctx context.Context, n models.Notification) error {
	farm, err := s.farms.GetFarm(ctx, n.Recipient)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", n.Recipient, err)
	}
	if farm.OwnerContact == "" {
		s.logger.Debug("farm has no owner contact, skipping", zap.String("farm_id", farm.ID), zap.String("event", string(n.Event)))
		return nil
	}

	_, err = s.client.SendTextMessage(ctx, client.SendTextMessageRequest{
		To:   farm.OwnerContact,
		Body: FormatMessage(n),
	})
	return err
}

// FormatMessage renders a notification as chat text.
func FormatMessage(n models.Notification) string {
	title, ok := eventTitles[n.Event]
	if !ok {
		title = string(n.Event)
	}

	lines := []string{"*" + title + "*"}
	if body, ok := n.Payload["message"]; ok {
		lines = append(lines, body)
	}
	for _, key := range payloadOrder {
		if v, ok := n.Payload[key]; ok && v != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", humanize(key), v))
		}
	}
	return strings.Join(lines, "\n")
}

func humanize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}
