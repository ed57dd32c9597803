package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"receipthub/internal/constants"
)

// EnsureMongoCollections creates the indexes the receipt pipeline relies
// on. Safe to run on every start; existing indexes are left alone.
func EnsureMongoCollections(ctx context.Context, db *mongo.Database) error {
	indexSets := map[string][]mongo.IndexModel{
		constants.CollectionReceipts: {
			{
				Keys:    bson.D{{Key: "eventId", Value: 1}},
				Options: options.Index().SetName("idx_receipts_event_id").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "insertedAt", Value: 1}},
				Options: options.Index().SetName("idx_receipts_status_inserted_at"),
			},
		},
		constants.CollectionCarts: {
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "insertedAt", Value: 1}},
				Options: options.Index().SetName("idx_carts_status_inserted_at"),
			},
		},
		constants.CollectionReceiptErrors: {
			{
				Keys:    bson.D{{Key: "status", Value: 1}},
				Options: options.Index().SetName("idx_receipt_errors_status"),
			},
			{
				Keys:    bson.D{{Key: "bizEventId", Value: 1}},
				Options: options.Index().SetName("idx_receipt_errors_biz_event_id"),
			},
		},
		constants.CollectionBizEvents: {
			{
				Keys:    bson.D{{Key: "transactionDetails.transaction.transactionId", Value: 1}},
				Options: options.Index().SetName("idx_biz_events_transaction_id"),
			},
		},
	}

	for name, indexes := range indexSets {
		collection := db.Collection(name)
		if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}

	return nil
}
