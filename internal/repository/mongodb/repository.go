package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
)

const (
	batchesCollection     = "milk_batches"
	milkingsCollection    = "milkings"
	paymentsCollection    = "milk_payments"
	productionsCollection = "cheese_productions"
	sequencesCollection   = "code_sequences"
	farmsCollection       = "farms"
	reportsCollection     = "collection_reports"
	settingsCollection    = "settings"
)

// MongoDBRepository implements repository.Store on top of MongoDB. Multi
// document transactions require a replica set or sharded cluster.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
	now    func() time.Time
}

var _ repository.Store = (*MongoDBRepository)(nil)

// NewMongoDBRepository connects, pings and ensures indexes.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri).SetRegistry(newRegistry())
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
		now:    time.Now,
	}

	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		batchesCollection: {
			{Keys: bson.D{{Key: "batch_code", Value: 1}}, Options: options.Index().SetUnique(true)},
			// Multikey unique index: no milking id can appear in two batches.
			{Keys: bson.D{{Key: "source_milking_ids", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "farm_id", Value: 1}, {Key: "status", Value: 1}, {Key: "collection_date", Value: 1}}},
		},
		milkingsCollection: {
			{Keys: bson.D{{Key: "farm_id", Value: 1}, {Key: "batch_id", Value: 1}}},
		},
		paymentsCollection: {
			{Keys: bson.D{{Key: "farm_id", Value: 1}, {Key: "payment_period_start", Value: -1}}},
		},
		productionsCollection: {
			{Keys: bson.D{{Key: "production_code", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for coll, idx := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// RunInTransaction executes fn inside a MongoDB transaction. Transient
// errors such as write conflicts are retried by the driver; nested calls
// join the surrounding session.
func (r *MongoDBRepository) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := r.client.StartSession()
	if err != nil {
		return models.Storage("start session", err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txnOpts)
	return models.Storage("transaction", err)
}

// SaveCollectionReport stores a collection report.
func (r *MongoDBRepository) SaveCollectionReport(ctx context.Context, report models.CollectionReport) error {
	collection := r.db.Collection(reportsCollection)
	_, err := collection.InsertOne(ctx, report)
	if err != nil {
		return models.Storage("insert collection report", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return models.Storage(op, err)
}
