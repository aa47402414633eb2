package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
)

const duplicateKeyCode = 11000

// InsertBatch stores a new batch at version 1.
func (r *MongoDBRepository) InsertBatch(ctx context.Context, batch *models.MilkBatch) error {
	if batch.ID == "" {
		batch.ID = primitive.NewObjectID().Hex()
	}
	now := r.now().UTC()
	batch.Version = 1
	batch.CreatedAt = now
	batch.UpdatedAt = now

	if _, err := r.db.Collection(batchesCollection).InsertOne(ctx, batch); err != nil {
		if duplicateKeyOn(err, "source_milking_ids") {
			// The multikey index on source_milking_ids backs the claim check.
			return fmt.Errorf("insert batch %s: %w", batch.BatchCode, models.ErrMilkingAlreadyBatched)
		}
		return models.Storage("insert batch", err)
	}
	return nil
}

// duplicateKeyOn reports whether err is a duplicate key violation of the
// unique index covering field.
func duplicateKeyOn(err error, field string) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code != duplicateKeyCode {
			continue
		}
		if _, lookupErr := e.Raw.LookupErr("keyPattern", field); lookupErr == nil {
			return true
		}
		if strings.Contains(e.Message, field+"_") {
			return true
		}
	}
	return false
}

// GetBatch loads a batch by id.
func (r *MongoDBRepository) GetBatch(ctx context.Context, id string) (*models.MilkBatch, error) {
	var batch models.MilkBatch
	err := r.db.Collection(batchesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&batch)
	if err != nil {
		return nil, notFoundOr(fmt.Sprintf("batch %s", id), err)
	}
	return &batch, nil
}

// UpdateBatch replaces the stored batch when the version matches.
func (r *MongoDBRepository) UpdateBatch(ctx context.Context, batch *models.MilkBatch) error {
	expected := batch.Version
	batch.Version++
	batch.UpdatedAt = r.now().UTC()

	res, err := r.db.Collection(batchesCollection).ReplaceOne(ctx, bson.M{"_id": batch.ID, "version": expected}, batch)
	if err != nil {
		batch.Version = expected
		return models.Storage("update batch", err)
	}
	if res.MatchedCount == 0 {
		batch.Version = expected
		if _, getErr := r.GetBatch(ctx, batch.ID); getErr != nil {
			return getErr
		}
		r.logger.Debug("stale batch write rejected", zap.String("batch_id", batch.ID), zap.Int64("version", expected))
		return fmt.Errorf("batch %s: %w", batch.ID, models.ErrConcurrentModification)
	}
	return nil
}

// FindBatches queries batches by filter ordered by collection date and code.
func (r *MongoDBRepository) FindBatches(ctx context.Context, filter repository.BatchFilter) ([]models.MilkBatch, error) {
	query := bson.M{}
	if filter.FarmID != "" {
		query["farm_id"] = filter.FarmID
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}
	if len(filter.IDs) > 0 {
		query["_id"] = bson.M{"$in": filter.IDs}
	}
	dateRange := bson.M{}
	if !filter.CollectedFrom.IsZero() {
		dateRange["$gte"] = filter.CollectedFrom
	}
	if !filter.CollectedTo.IsZero() {
		dateRange["$lte"] = filter.CollectedTo
	}
	if len(dateRange) > 0 {
		query["collection_date"] = dateRange
	}

	opts := options.Find().SetSort(bson.D{{Key: "collection_date", Value: 1}, {Key: "batch_code", Value: 1}})
	cur, err := r.db.Collection(batchesCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, models.Storage("find batches", err)
	}

	var batches []models.MilkBatch
	if err := cur.All(ctx, &batches); err != nil {
		return nil, models.Storage("decode batches", err)
	}
	return batches, nil
}

// InsertProduction stores a cheese production run.
func (r *MongoDBRepository) InsertProduction(ctx context.Context, run *models.ProductionRun) error {
	if run.ID == "" {
		run.ID = primitive.NewObjectID().Hex()
	}
	if _, err := r.db.Collection(productionsCollection).InsertOne(ctx, run); err != nil {
		return models.Storage("insert production", err)
	}
	return nil
}
