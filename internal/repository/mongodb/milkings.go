package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mamadbah2/milkchain/internal/domain/models"
)

// ClaimMilkings sets batch_id on every unclaimed record of the farm. When
// fewer records than requested were claimed the caller's transaction must
// abort; the follow-up read tells unknown ids apart from claimed ones.
// Concurrent claims on the same record hit a write conflict, which the
// driver retries and which then observes the winning claim.
func (r *MongoDBRepository) ClaimMilkings(ctx context.Context, farmID, batchID string, ids []int64) error {
	coll := r.db.Collection(milkingsCollection)

	res, err := coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "farm_id": farmID, "batch_id": nil},
		bson.M{"$set": bson.M{"batch_id": batchID}},
	)
	if err != nil {
		return models.Storage("claim milkings", err)
	}
	if res.ModifiedCount == int64(len(ids)) {
		return nil
	}

	cur, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}, "farm_id": farmID})
	if err != nil {
		return models.Storage("load milkings", err)
	}
	var found []models.MilkingRecord
	if err := cur.All(ctx, &found); err != nil {
		return models.Storage("decode milkings", err)
	}

	byID := make(map[int64]models.MilkingRecord, len(found))
	for _, rec := range found {
		byID[rec.ID] = rec
	}

	var missing, taken []int64
	for _, id := range ids {
		rec, ok := byID[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case rec.BatchID != nil && *rec.BatchID != batchID:
			taken = append(taken, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("milking records %v: %w", missing, models.ErrNotFound)
	}
	return fmt.Errorf("milking records %v: %w", taken, models.ErrMilkingAlreadyBatched)
}
