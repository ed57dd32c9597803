package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"receipthub/internal/constants"
	"receipthub/internal/model"
	"receipthub/pkg/errors"
)

type MongoReceiptStore struct {
	collection *mongo.Collection
}

func NewReceiptStore(db *mongo.Database) *MongoReceiptStore {
	return &MongoReceiptStore{
		collection: db.Collection(constants.CollectionReceipts),
	}
}

func (s *MongoReceiptStore) GetByEventID(ctx context.Context, eventID string) (*model.Receipt, error) {
	var receipt model.Receipt
	err := s.collection.FindOne(ctx, bson.M{"eventId": eventID}).Decode(&receipt)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find receipt for event %s: %w", eventID, err)
	}
	return &receipt, nil
}

func (s *MongoReceiptStore) Insert(ctx context.Context, receipt *model.Receipt) error {
	_, err := s.collection.InsertOne(ctx, receipt)
	if mongo.IsDuplicateKeyError(err) {
		return errors.ErrConflict.WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert receipt %s: %w", receipt.ID, err)
	}
	return nil
}

func (s *MongoReceiptStore) Update(ctx context.Context, receipt *model.Receipt) error {
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": receipt.ID}, receipt)
	if err != nil {
		return fmt.Errorf("failed to update receipt %s: %w", receipt.ID, err)
	}
	if result.MatchedCount == 0 {
		return errors.ErrNotFound.WithDetail("message", fmt.Sprintf("receipt %s not found", receipt.ID))
	}
	return nil
}

func (s *MongoReceiptStore) FindByStatus(ctx context.Context, statuses []model.ReceiptStatus, notBefore int64, page PageRequest) (*ReceiptPage, error) {
	if page.Limit <= 0 {
		page.Limit = constants.RecoveryPageSize
	}

	filter := bson.M{"status": bson.M{"$in": statuses}}
	if notBefore > 0 {
		filter["insertedAt"] = bson.M{"$gte": notBefore}
	}
	if page.ContinuationToken != "" {
		filter["_id"] = bson.M{"$gt": page.ContinuationToken}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(page.Limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find receipts by status: %w", err)
	}
	defer cursor.Close(ctx)

	var items []model.Receipt
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode receipts: %w", err)
	}

	result := &ReceiptPage{Items: items}
	if len(items) == page.Limit {
		result.ContinuationToken = items[len(items)-1].ID
	}
	return result, nil
}

type MongoCartStore struct {
	collection *mongo.Collection
}

func NewCartStore(db *mongo.Database) *MongoCartStore {
	return &MongoCartStore{
		collection: db.Collection(constants.CollectionCarts),
	}
}

func (s *MongoCartStore) Get(ctx context.Context, id string) (*model.Cart, error) {
	var cart model.Cart
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&cart)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart %s: %w", id, err)
	}
	return &cart, nil
}

func (s *MongoCartStore) Insert(ctx context.Context, cart *model.Cart) error {
	_, err := s.collection.InsertOne(ctx, cart)
	if mongo.IsDuplicateKeyError(err) {
		return errors.ErrConflict.WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert cart %s: %w", cart.ID, err)
	}
	return nil
}

func (s *MongoCartStore) ReplaceIfVersion(ctx context.Context, cart *model.Cart, expectedVersion string) error {
	filter := bson.M{"_id": cart.ID, "version": expectedVersion}
	result, err := s.collection.ReplaceOne(ctx, filter, cart)
	if err != nil {
		return fmt.Errorf("failed to replace cart %s: %w", cart.ID, err)
	}
	if result.MatchedCount == 0 {
		return errors.ErrConflict.WithDetail("message",
			fmt.Sprintf("cart %s version %s no longer current", cart.ID, expectedVersion))
	}
	return nil
}

func (s *MongoCartStore) Update(ctx context.Context, cart *model.Cart) error {
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": cart.ID}, cart)
	if err != nil {
		return fmt.Errorf("failed to update cart %s: %w", cart.ID, err)
	}
	if result.MatchedCount == 0 {
		return errors.ErrNotFound.WithDetail("message", fmt.Sprintf("cart %s not found", cart.ID))
	}
	return nil
}

type MongoReceiptErrorStore struct {
	collection *mongo.Collection
}

func NewReceiptErrorStore(db *mongo.Database) *MongoReceiptErrorStore {
	return &MongoReceiptErrorStore{
		collection: db.Collection(constants.CollectionReceiptErrors),
	}
}

func (s *MongoReceiptErrorStore) GetByID(ctx context.Context, id string) (*model.ReceiptError, error) {
	var re model.ReceiptError
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&re)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find receipt error %s: %w", id, err)
	}
	return &re, nil
}

func (s *MongoReceiptErrorStore) Insert(ctx context.Context, re *model.ReceiptError) error {
	_, err := s.collection.InsertOne(ctx, re)
	if mongo.IsDuplicateKeyError(err) {
		return errors.ErrConflict.WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert receipt error %s: %w", re.ID, err)
	}
	return nil
}

func (s *MongoReceiptErrorStore) Update(ctx context.Context, re *model.ReceiptError) error {
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": re.ID}, re)
	if err != nil {
		return fmt.Errorf("failed to update receipt error %s: %w", re.ID, err)
	}
	if result.MatchedCount == 0 {
		return errors.ErrNotFound.WithDetail("message", fmt.Sprintf("receipt error %s not found", re.ID))
	}
	return nil
}

func (s *MongoReceiptErrorStore) FindByStatus(ctx context.Context, status model.ReceiptErrorStatus, page PageRequest) (*ReceiptErrorPage, error) {
	if page.Limit <= 0 {
		page.Limit = constants.RecoveryPageSize
	}

	filter := bson.M{"status": status}
	if page.ContinuationToken != "" {
		filter["_id"] = bson.M{"$gt": page.ContinuationToken}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(page.Limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find receipt errors by status: %w", err)
	}
	defer cursor.Close(ctx)

	var items []model.ReceiptError
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode receipt errors: %w", err)
	}

	result := &ReceiptErrorPage{Items: items}
	if len(items) == page.Limit {
		result.ContinuationToken = items[len(items)-1].ID
	}
	return result, nil
}

type MongoBizEventStore struct {
	collection *mongo.Collection
}

func NewBizEventStore(db *mongo.Database) *MongoBizEventStore {
	return &MongoBizEventStore{
		collection: db.Collection(constants.CollectionBizEvents),
	}
}

func (s *MongoBizEventStore) GetByID(ctx context.Context, id string) (*model.BizEvent, error) {
	var event model.BizEvent
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find biz event %s: %w", id, err)
	}
	return &event, nil
}

func (s *MongoBizEventStore) GetByTransactionID(ctx context.Context, transactionID string) ([]model.BizEvent, error) {
	filter := bson.M{"transactionDetails.transaction.transactionId": transactionID}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find biz events for transaction %s: %w", transactionID, err)
	}
	defer cursor.Close(ctx)

	var events []model.BizEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode biz events: %w", err)
	}
	return events, nil
}

func (s *MongoBizEventStore) Upsert(ctx context.Context, event *model.BizEvent) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": event.ID}, event, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert biz event %s: %w", event.ID, err)
	}
	return nil
}
