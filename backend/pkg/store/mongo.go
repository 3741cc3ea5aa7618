package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	transactionsCollection   = "transactions"
	ordersCollection         = "orders"
	reconciliationCollection = "reconciliation_exceptions"
)

// EnsureMongoIndexes creates the unique gateway order indexes and the status
// indexes used by the console and the sweeper.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		transactionsCollection: {
			{Keys: bson.D{{Key: "gateway_order_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		ordersCollection: {
			{Keys: bson.D{{Key: "gateway_order_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		reconciliationCollection: {
			{Keys: bson.D{{Key: "gateway_order_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

// MongoTransactionRepository implements TransactionRepository on MongoDB.
type MongoTransactionRepository struct {
	collection *mongo.Collection
}

func NewMongoTransactionRepository(db *mongo.Database) TransactionRepository {
	return &MongoTransactionRepository{collection: db.Collection(transactionsCollection)}
}

func (r *MongoTransactionRepository) Create(ctx context.Context, tx *Transaction) error {
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, tx)
	return translateMongoError(err)
}

func (r *MongoTransactionRepository) FindByID(ctx context.Context, id string) (*Transaction, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoTransactionRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Transaction, error) {
	return r.findOne(ctx, bson.M{"gateway_order_id": gatewayOrderID})
}

func (r *MongoTransactionRepository) findOne(ctx context.Context, filter bson.M) (*Transaction, error) {
	var tx Transaction
	if err := r.collection.FindOne(ctx, filter).Decode(&tx); err != nil {
		return nil, translateMongoError(err)
	}
	return &tx, nil
}

func (r *MongoTransactionRepository) Finalize(ctx context.Context, id string, status TransactionStatus, reason FailureReason, v Verification) error {
	filter := bson.M{"_id": id, "status": TransactionPending}
	update := bson.M{"$set": bson.M{
		"status":         status,
		"failure_reason": reason,
		"verification":   v,
		"updated_at":     time.Now().UTC(),
	}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return translateMongoError(err)
	}
	if res.MatchedCount == 0 {
		return mongoMissingOrStale(ctx, r.collection, id)
	}
	return nil
}

func (r *MongoTransactionRepository) FindStalePending(ctx context.Context, before time.Time, limit int) ([]Transaction, error) {
	filter := bson.M{"status": TransactionPending, "created_at": bson.M{"$lt": before}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, translateMongoError(err)
	}
	defer cursor.Close(ctx)

	var txs []Transaction
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// MongoOrderRepository implements OrderRepository on MongoDB.
type MongoOrderRepository struct {
	collection *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) OrderRepository {
	return &MongoOrderRepository{collection: db.Collection(ordersCollection)}
}

func (r *MongoOrderRepository) Create(ctx context.Context, order *Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, order)
	return translateMongoError(err)
}

func (r *MongoOrderRepository) FindByID(ctx context.Context, id string) (*Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoOrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	return r.findOne(ctx, bson.M{"gateway_order_id": gatewayOrderID})
}

func (r *MongoOrderRepository) findOne(ctx context.Context, filter bson.M) (*Order, error) {
	var order Order
	if err := r.collection.FindOne(ctx, filter).Decode(&order); err != nil {
		return nil, translateMongoError(err)
	}
	return &order, nil
}

func (r *MongoOrderRepository) FindByStatus(ctx context.Context, statuses ...OrderStatus) ([]Order, error) {
	filter := bson.M{"status": bson.M{"$in": statuses}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.find(ctx, filter, opts)
}

func (r *MongoOrderRepository) FindCreatedBetween(ctx context.Context, from, to time.Time, statuses ...OrderStatus) ([]Order, error) {
	filter := bson.M{
		"status":     bson.M{"$in": statuses},
		"created_at": bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}, {Key: "created_at", Value: -1}})
	return r.find(ctx, filter, opts)
}

func (r *MongoOrderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Order, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, translateMongoError(err)
	}
	defer cursor.Close(ctx)

	var orders []Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *MongoOrderRepository) Transition(ctx context.Context, id string, from OrderStatus, change OrderTransition) error {
	filter := bson.M{"_id": id, "status": from}
	set := bson.M{
		"status":            change.To,
		"completion_status": change.Completion,
		"completed_at":      change.At,
		"updated_at":        time.Now().UTC(),
	}
	if change.Note != "" {
		set["note"] = change.Note
	}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return translateMongoError(err)
	}
	if res.MatchedCount == 0 {
		return mongoMissingOrStale(ctx, r.collection, id)
	}
	return nil
}

// MongoReconciliationRepository implements ReconciliationRepository on MongoDB.
type MongoReconciliationRepository struct {
	collection *mongo.Collection
}

func NewMongoReconciliationRepository(db *mongo.Database) ReconciliationRepository {
	return &MongoReconciliationRepository{collection: db.Collection(reconciliationCollection)}
}

func (r *MongoReconciliationRepository) Create(ctx context.Context, e *ReconciliationException) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, e)
	return translateMongoError(err)
}

func (r *MongoReconciliationRepository) FindByID(ctx context.Context, id string) (*ReconciliationException, error) {
	var e ReconciliationException
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		return nil, translateMongoError(err)
	}
	return &e, nil
}

func (r *MongoReconciliationRepository) FindByStatus(ctx context.Context, status ExceptionStatus) ([]ReconciliationException, error) {
	return r.find(ctx, bson.M{"status": status})
}

func (r *MongoReconciliationRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]ReconciliationException, error) {
	return r.find(ctx, bson.M{"gateway_order_id": gatewayOrderID})
}

func (r *MongoReconciliationRepository) find(ctx context.Context, filter bson.M) ([]ReconciliationException, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, translateMongoError(err)
	}
	defer cursor.Close(ctx)

	var list []ReconciliationException
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *MongoReconciliationRepository) MarkResolved(ctx context.Context, id, orderID string, at time.Time) error {
	filter := bson.M{"_id": id, "status": ExceptionOpen}
	update := bson.M{"$set": bson.M{
		"status":      ExceptionResolved,
		"order_id":    orderID,
		"resolved_at": at,
		"updated_at":  time.Now().UTC(),
	}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return translateMongoError(err)
	}
	if res.MatchedCount == 0 {
		return mongoMissingOrStale(ctx, r.collection, id)
	}
	return nil
}

func mongoMissingOrStale(ctx context.Context, c *mongo.Collection, id string) error {
	n, err := c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return translateMongoError(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStaleStatus
}

func translateMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return err
	}
}
