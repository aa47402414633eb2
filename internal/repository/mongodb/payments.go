package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/milkchain/internal/domain/models"
)

// InsertPayment stores a new payment at version 1.
func (r *MongoDBRepository) InsertPayment(ctx context.Context, payment *models.MilkPayment) error {
	if payment.ID == "" {
		payment.ID = primitive.NewObjectID().Hex()
	}
	now := r.now().UTC()
	payment.Version = 1
	payment.CreatedAt = now
	payment.UpdatedAt = now

	if _, err := r.db.Collection(paymentsCollection).InsertOne(ctx, payment); err != nil {
		return models.Storage("insert payment", err)
	}
	return nil
}

// GetPayment loads a payment by id.
func (r *MongoDBRepository) GetPayment(ctx context.Context, id string) (*models.MilkPayment, error) {
	var payment models.MilkPayment
	err := r.db.Collection(paymentsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&payment)
	if err != nil {
		return nil, notFoundOr(fmt.Sprintf("payment %s", id), err)
	}
	return &payment, nil
}

// UpdatePayment replaces the stored payment when the version matches.
func (r *MongoDBRepository) UpdatePayment(ctx context.Context, payment *models.MilkPayment) error {
	expected := payment.Version
	payment.Version++
	payment.UpdatedAt = r.now().UTC()

	res, err := r.db.Collection(paymentsCollection).ReplaceOne(ctx, bson.M{"_id": payment.ID, "version": expected}, payment)
	if err != nil {
		payment.Version = expected
		return models.Storage("update payment", err)
	}
	if res.MatchedCount == 0 {
		payment.Version = expected
		if _, getErr := r.GetPayment(ctx, payment.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("payment %s: %w", payment.ID, models.ErrConcurrentModification)
	}
	return nil
}

// ListPayments returns a farm's payments, newest period first.
func (r *MongoDBRepository) ListPayments(ctx context.Context, farmID string) ([]models.MilkPayment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "payment_period_start", Value: -1}})
	cur, err := r.db.Collection(paymentsCollection).Find(ctx, bson.M{"farm_id": farmID}, opts)
	if err != nil {
		return nil, models.Storage("find payments", err)
	}
	var payments []models.MilkPayment
	if err := cur.All(ctx, &payments); err != nil {
		return nil, models.Storage("decode payments", err)
	}
	return payments, nil
}

// PaymentExists reports whether a payment covers exactly this farm and period.
func (r *MongoDBRepository) PaymentExists(ctx context.Context, farmID string, start, end time.Time) (bool, error) {
	n, err := r.db.Collection(paymentsCollection).CountDocuments(ctx, bson.M{
		"farm_id":              farmID,
		"payment_period_start": start,
		"payment_period_end":   end,
	})
	if err != nil {
		return false, models.Storage("count payments", err)
	}
	return n > 0, nil
}
