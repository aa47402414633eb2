package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type settingDoc struct {
	Key   string `bson:"_id"`
	Value string `bson:"value"`
}

// GetSetting decodes the JSON value stored under key into dest. It returns
// false without error when the key is absent.
func (r *MongoDBRepository) GetSetting(ctx context.Context, key string, dest any) (bool, error) {
	var doc settingDoc
	err := r.db.Collection(settingsCollection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load setting %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(doc.Value), dest); err != nil {
		return false, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return true, nil
}
