// Package repository declares the persistence contracts of the milk pipeline.
// Implementations live in the mongodb and memory subpackages.
package repository

import (
	"context"
	"time"

	"github.com/mamadbah2/milkchain/internal/domain/models"
)

// Transactor runs fn atomically. Repository calls made with the context
// handed to fn take part in the transaction; an error from fn rolls it back.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SequenceRepository hands out per-day code sequences.
type SequenceRepository interface {
	// NextSequence returns 1 + the highest sequence already used for
	// prefix on day, reserving it atomically.
	NextSequence(ctx context.Context, prefix string, day time.Time) (int, error)
}

// MilkingRepository manages raw milking records.
type MilkingRepository interface {
	// ClaimMilkings marks every id as belonging to batchID. It fails with
	// models.ErrNotFound when an id is unknown or owned by another farm and
	// with models.ErrMilkingAlreadyBatched when any id is already claimed.
	ClaimMilkings(ctx context.Context, farmID, batchID string, ids []int64) error
}

// BatchFilter narrows batch queries. Zero values are ignored.
type BatchFilter struct {
	FarmID        string
	Statuses      []models.BatchStatus
	CollectedFrom time.Time
	CollectedTo   time.Time
	IDs           []string
}

// BatchRepository stores milk batches.
type BatchRepository interface {
	// InsertBatch assigns an id when empty and stores the batch at version 1.
	InsertBatch(ctx context.Context, batch *models.MilkBatch) error
	GetBatch(ctx context.Context, id string) (*models.MilkBatch, error)
	// UpdateBatch writes the batch only if its stored version still equals
	// batch.Version, then bumps the version.
	UpdateBatch(ctx context.Context, batch *models.MilkBatch) error
	FindBatches(ctx context.Context, filter BatchFilter) ([]models.MilkBatch, error)
}

// PaymentRepository stores milk payments.
type PaymentRepository interface {
	InsertPayment(ctx context.Context, payment *models.MilkPayment) error
	GetPayment(ctx context.Context, id string) (*models.MilkPayment, error)
	UpdatePayment(ctx context.Context, payment *models.MilkPayment) error
	ListPayments(ctx context.Context, farmID string) ([]models.MilkPayment, error)
	// PaymentExists reports whether a payment covers exactly this farm and period.
	PaymentExists(ctx context.Context, farmID string, start, end time.Time) (bool, error)
}

// ProductionRepository stores cheese production runs.
type ProductionRepository interface {
	InsertProduction(ctx context.Context, run *models.ProductionRun) error
}

// FarmRepository is a read-only farm directory.
type FarmRepository interface {
	GetFarm(ctx context.Context, id string) (*models.Farm, error)
	ListActiveFarms(ctx context.Context) ([]models.Farm, error)
}

// ReportRepository stores periodic collection reports.
type ReportRepository interface {
	SaveCollectionReport(ctx context.Context, report models.CollectionReport) error
}

// Store bundles every repository behind one transactional backend.
type Store interface {
	Transactor
	SequenceRepository
	MilkingRepository
	BatchRepository
	PaymentRepository
	ProductionRepository
	FarmRepository
	ReportRepository
}

// DayKey formats the date part of generated codes.
func DayKey(day time.Time) string {
	return day.Format("20060102")
}
