package models

import "time"

// MilkingRecord is a raw milking event. BatchID is set once the record has
// been claimed by a batch and never changes afterwards.
type MilkingRecord struct {
	ID          int64     `bson:"_id" json:"id"`
	FarmID      string    `bson:"farm_id" json:"farm_id"`
	LivestockID string    `bson:"livestock_id,omitempty" json:"livestock_id,omitempty"`
	MilkedAt    time.Time `bson:"milked_at" json:"milked_at"`
	Session     Session   `bson:"session" json:"session"`
	Volume      float64   `bson:"volume" json:"volume"`
	BatchID     *string   `bson:"batch_id" json:"batch_id,omitempty"`
}
