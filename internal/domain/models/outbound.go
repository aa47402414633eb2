package models

import "time"

// EventType names a pipeline event that farm owners are told about.
type EventType string

const (
	EventBatchCollected     EventType = "batch.collected"
	EventBatchDispatched    EventType = "batch.dispatched"
	EventBatchReceived      EventType = "batch.received"
	EventBatchRejected      EventType = "batch.rejected"
	EventBatchQualityTested EventType = "batch.quality_tested"
	EventPaymentCreated     EventType = "payment.created"
	EventPaymentApproved    EventType = "payment.approved"
	EventPaymentPaid        EventType = "payment.paid"
	EventCollectionReport   EventType = "report.collection"
)

// Notification is an out-of-band message for a farm owner. Recipient is a
// farm id; the delivery layer resolves the actual contact.
type Notification struct {
	Recipient string            `json:"recipient"`
	Event     EventType         `json:"event"`
	Payload   map[string]string `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
}
