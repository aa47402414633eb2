package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
)

type sequenceDoc struct {
	ID  string `bson:"_id"`
	Seq int    `bson:"seq"`
}

// codeFields maps a code prefix to the collection and field holding its codes.
var codeFields = map[string][2]string{
	models.BatchCodePrefix:      {batchesCollection, "batch_code"},
	models.ProductionCodePrefix: {productionsCollection, "production_code"},
}

// NextSequence raises the counter for prefix/day to at least the highest
// code already stored, then increments it atomically. Run inside the
// transaction that inserts the coded record so both commit together.
func (r *MongoDBRepository) NextSequence(ctx context.Context, prefix string, day time.Time) (int, error) {
	scope := fmt.Sprintf("%s-%s", prefix, repository.DayKey(day))

	highest, err := r.highestSequence(ctx, prefix, scope+"-")
	if err != nil {
		return 0, err
	}

	counters := r.db.Collection(sequencesCollection)
	if _, err := counters.UpdateOne(ctx,
		bson.M{"_id": scope},
		bson.M{"$max": bson.M{"seq": highest}},
		options.Update().SetUpsert(true),
	); err != nil {
		return 0, models.Storage("seed sequence", err)
	}

	var doc sequenceDoc
	err = counters.FindOneAndUpdate(ctx,
		bson.M{"_id": scope},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, models.Storage("increment sequence", err)
	}
	return doc.Seq, nil
}

func (r *MongoDBRepository) highestSequence(ctx context.Context, prefix, codePrefix string) (int, error) {
	target, ok := codeFields[prefix]
	if !ok {
		return 0, nil
	}
	coll, field := target[0], target[1]

	var doc bson.M
	err := r.db.Collection(coll).FindOne(ctx,
		bson.M{field: bson.M{"$regex": "^" + regexp.QuoteMeta(codePrefix)}},
		options.FindOne().SetSort(bson.D{{Key: field, Value: -1}}).SetProjection(bson.M{field: 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, models.Storage("highest sequence", err)
	}

	code, _ := doc[field].(string)
	n, err := strconv.Atoi(strings.TrimPrefix(code, codePrefix))
	if err != nil {
		return 0, nil
	}
	return n, nil
}
