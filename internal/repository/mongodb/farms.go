package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/milkchain/internal/domain/models"
)

// GetFarm loads a farm by id.
func (r *MongoDBRepository) GetFarm(ctx context.Context, id string) (*models.Farm, error) {
	var farm models.Farm
	if err := r.db.Collection(farmsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&farm); err != nil {
		return nil, notFoundOr(fmt.Sprintf("farm %s", id), err)
	}
	return &farm, nil
}

// ListActiveFarms returns every active farm ordered by id.
func (r *MongoDBRepository) ListActiveFarms(ctx context.Context) ([]models.Farm, error) {
	cur, err := r.db.Collection(farmsCollection).Find(ctx, bson.M{"active": true}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, models.Storage("find farms", err)
	}
	var farms []models.Farm
	if err := cur.All(ctx, &farms); err != nil {
		return nil, models.Storage("decode farms", err)
	}
	return farms, nil
}
