package models

import "time"

// ProductionRun is a cheese production that consumes approved batches.
type ProductionRun struct {
	ID             string    `bson:"_id" json:"id"`
	ProductionCode string    `bson:"production_code" json:"production_code"`
	FarmID         string    `bson:"farm_id" json:"farm_id"`
	BatchIDs       []string  `bson:"batch_ids" json:"batch_ids"`
	TotalLiters    float64   `bson:"total_liters" json:"total_liters"`
	Notes          string    `bson:"notes,omitempty" json:"notes,omitempty"`
	StartedBy      string    `bson:"started_by,omitempty" json:"started_by,omitempty"`
	StartedAt      time.Time `bson:"started_at" json:"started_at"`
}
