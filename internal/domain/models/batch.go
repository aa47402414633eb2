package models

import (
	"fmt"
	"math"
	"time"
)

// BatchStatus is the lifecycle state of a milk batch.
type BatchStatus string

const (
	BatchCollected    BatchStatus = "collected"
	BatchInTransit    BatchStatus = "in_transit"
	BatchReceived     BatchStatus = "received"
	BatchApproved     BatchStatus = "approved"
	BatchRejected     BatchStatus = "rejected"
	BatchInProduction BatchStatus = "in_production"
)

// TransportStatus tracks the cold-chain leg of a batch independently of its lifecycle.
type TransportStatus string

const (
	TransportPending    TransportStatus = "pending"
	TransportDispatched TransportStatus = "dispatched"
	TransportInTransit  TransportStatus = "in_transit"
	TransportDelayed    TransportStatus = "delayed"
	TransportArrived    TransportStatus = "arrived"
	TransportDelivered  TransportStatus = "delivered"
)

// Session is the milking session a batch was collected in.
type Session string

const (
	SessionMorning   Session = "morning"
	SessionAfternoon Session = "afternoon"
	SessionEvening   Session = "evening"
)

// Visual check outcomes recorded at receiving.
const (
	VisualNormal     = "normal"
	VisualAbnormal   = "abnormal"
	VisualFoamy      = "foamy"
	VisualDiscolored = "discolored"
)

// Smell check outcomes recorded at receiving.
const (
	SmellNormal   = "normal"
	SmellSour     = "sour"
	SmellAbnormal = "abnormal"
)

// BatchCodePrefix and ProductionCodePrefix scope the two code sequences.
const (
	BatchCodePrefix      = "MB"
	ProductionCodePrefix = "CP"
)

// QualityData holds laboratory measurements for a batch.
type QualityData struct {
	PH                float64  `bson:"ph" json:"ph" validate:"gte=0,lte=14"`
	FatPercentage     float64  `bson:"fat_percentage" json:"fat_percentage" validate:"gte=0,lte=100"`
	ProteinPercentage *float64 `bson:"protein_percentage,omitempty" json:"protein_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	BacteriaCount     int64    `bson:"bacteria_count" json:"bacteria_count" validate:"gte=0"`
	Temperature       *float64 `bson:"temperature,omitempty" json:"temperature,omitempty"`
	SNFPercentage     *float64 `bson:"snf_percentage,omitempty" json:"snf_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// TransportEvent is one entry of the append-only location history.
type TransportEvent struct {
	Timestamp time.Time       `bson:"timestamp" json:"timestamp"`
	Status    TransportStatus `bson:"status" json:"status"`
	Location  string          `bson:"location,omitempty" json:"location,omitempty"`
	Notes     string          `bson:"notes,omitempty" json:"notes,omitempty"`
}

// MilkBatch is a pooled, traceable quantity of raw milk.
type MilkBatch struct {
	ID               string    `bson:"_id" json:"id"`
	BatchCode        string    `bson:"batch_code" json:"batch_code"`
	TrackingNumber   string    `bson:"tracking_number,omitempty" json:"tracking_number,omitempty"`
	FarmID           string    `bson:"farm_id" json:"farm_id"`
	CollectionDate   time.Time `bson:"collection_date" json:"collection_date"`
	Session          Session   `bson:"session" json:"session"`
	SourceMilkingIDs []int64   `bson:"source_milking_ids" json:"source_milking_ids"`

	EstimatedVolume    float64 `bson:"estimated_volume" json:"estimated_volume"`
	ActualVolume       float64 `bson:"actual_volume" json:"actual_volume"`
	TotalVolume        float64 `bson:"total_volume" json:"total_volume"`
	VariancePercentage float64 `bson:"variance_percentage" json:"variance_percentage"`

	PickupTemperature   *float64         `bson:"pickup_temperature,omitempty" json:"pickup_temperature,omitempty"`
	DeliveryTemperature *float64         `bson:"delivery_temperature,omitempty" json:"delivery_temperature,omitempty"`
	TransportDuration   *int             `bson:"transport_duration_minutes,omitempty" json:"transport_duration_minutes,omitempty"`
	DestinationFarmID   string           `bson:"destination_farm_id,omitempty" json:"destination_farm_id,omitempty"`
	CourierName         string           `bson:"courier_name,omitempty" json:"courier_name,omitempty"`
	CourierPhone        string           `bson:"courier_phone,omitempty" json:"courier_phone,omitempty"`
	VehicleNumber       string           `bson:"vehicle_number,omitempty" json:"vehicle_number,omitempty"`
	TransportNotes      string           `bson:"transport_notes,omitempty" json:"transport_notes,omitempty"`
	TransportPhotos     []string         `bson:"transport_photos,omitempty" json:"transport_photos,omitempty"`
	TransportStatus     TransportStatus  `bson:"transport_status" json:"transport_status"`
	TransportHistory    []TransportEvent `bson:"transport_history,omitempty" json:"transport_history,omitempty"`
	ExpectedDeliveryAt  *time.Time       `bson:"expected_delivery_at,omitempty" json:"expected_delivery_at,omitempty"`
	DispatchedAt        *time.Time       `bson:"dispatched_at,omitempty" json:"dispatched_at,omitempty"`
	DispatchedBy        string           `bson:"dispatched_by,omitempty" json:"dispatched_by,omitempty"`
	DeliveredAt         *time.Time       `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`

	CollectedBy string     `bson:"collected_by,omitempty" json:"collected_by,omitempty"`
	CollectedAt *time.Time `bson:"collected_at,omitempty" json:"collected_at,omitempty"`

	ReceivedBy     string     `bson:"received_by,omitempty" json:"received_by,omitempty"`
	ReceivedAt     *time.Time `bson:"received_at,omitempty" json:"received_at,omitempty"`
	VisualCheck    string     `bson:"visual_check,omitempty" json:"visual_check,omitempty"`
	SmellCheck     string     `bson:"smell_check,omitempty" json:"smell_check,omitempty"`
	ReceivingNotes string     `bson:"receiving_notes,omitempty" json:"receiving_notes,omitempty"`

	QualityData     *QualityData `bson:"quality_data,omitempty" json:"quality_data,omitempty"`
	QualityGrade    Grade        `bson:"quality_grade,omitempty" json:"quality_grade,omitempty"`
	QualityNotes    string       `bson:"quality_notes,omitempty" json:"quality_notes,omitempty"`
	QualityTestedBy string       `bson:"quality_tested_by,omitempty" json:"quality_tested_by,omitempty"`
	QualityTestedAt *time.Time   `bson:"quality_tested_at,omitempty" json:"quality_tested_at,omitempty"`

	Status          BatchStatus `bson:"status" json:"status"`
	RejectionReason string      `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	ProductionID    string      `bson:"production_id,omitempty" json:"production_id,omitempty"`
	Notes           string      `bson:"notes,omitempty" json:"notes,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// VariancePercentage returns the signed difference between actual and
// estimated volume as a percentage rounded to two decimals. A zero estimate
// yields zero.
func VariancePercentage(estimated, actual float64) float64 {
	if estimated == 0 {
		return 0
	}
	v := ((actual - estimated) / estimated) * 100
	return math.Round(v*100) / 100
}

// IsAbnormalVisual reports whether a visual check outcome forces rejection.
func IsAbnormalVisual(v string) bool {
	switch v {
	case VisualAbnormal, VisualFoamy, VisualDiscolored:
		return true
	}
	return false
}

// IsAbnormalSmell reports whether a smell check outcome forces rejection.
func IsAbnormalSmell(s string) bool {
	switch s {
	case SmellSour, SmellAbnormal:
		return true
	}
	return false
}

// SensoryRejectionReason formats the reason recorded when receiving checks fail.
func SensoryRejectionReason(visual, smell string) string {
	return fmt.Sprintf("Failed visual/smell check: visual=%s, smell=%s", visual, smell)
}

// LabRejectionReason is recorded when a quality test grades a batch as Reject.
const LabRejectionReason = "Failed laboratory quality test"
