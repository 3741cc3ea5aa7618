package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// GormTransactionRepository implements TransactionRepository using GORM.
type GormTransactionRepository struct {
	db *gorm.DB
}

func NewGormTransactionRepository(db *gorm.DB) TransactionRepository {
	return &GormTransactionRepository{db: db}
}

func (r *GormTransactionRepository) Create(ctx context.Context, tx *Transaction) error {
	return translateGormError(r.db.WithContext(ctx).Create(tx).Error)
}

func (r *GormTransactionRepository) FindByID(ctx context.Context, id string) (*Transaction, error) {
	var tx Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &tx, nil
}

func (r *GormTransactionRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Transaction, error) {
	var tx Transaction
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&tx).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &tx, nil
}

func (r *GormTransactionRepository) Finalize(ctx context.Context, id string, status TransactionStatus, reason FailureReason, v Verification) error {
	res := r.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ? AND status = ?", id, TransactionPending).
		Updates(&Transaction{Status: status, FailureReason: reason, Verification: v})
	if res.Error != nil {
		return translateGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrStale(r.db.WithContext(ctx), &Transaction{}, id)
	}
	return nil
}

func (r *GormTransactionRepository) FindStalePending(ctx context.Context, before time.Time, limit int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", TransactionPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, translateGormError(err)
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *Order) error {
	return translateGormError(r.db.WithContext(ctx).Create(order).Error)
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*Order, error) {
	var order Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	var order Order
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByStatus(ctx context.Context, statuses ...OrderStatus) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, translateGormError(err)
}

func (r *GormOrderRepository) FindCreatedBetween(ctx context.Context, from, to time.Time, statuses ...OrderStatus) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Where("status IN ?", statuses).
		Order("completed_at DESC").
		Order("created_at DESC").
		Find(&orders).Error
	return orders, translateGormError(err)
}

func (r *GormOrderRepository) Transition(ctx context.Context, id string, from OrderStatus, change OrderTransition) error {
	completion := change.Completion
	at := change.At
	res := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(&Order{
			Status:           change.To,
			CompletionStatus: &completion,
			CompletedAt:      &at,
			Note:             change.Note,
		})
	if res.Error != nil {
		return translateGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrStale(r.db.WithContext(ctx), &Order{}, id)
	}
	return nil
}

// GormReconciliationRepository implements ReconciliationRepository using GORM.
type GormReconciliationRepository struct {
	db *gorm.DB
}

func NewGormReconciliationRepository(db *gorm.DB) ReconciliationRepository {
	return &GormReconciliationRepository{db: db}
}

func (r *GormReconciliationRepository) Create(ctx context.Context, e *ReconciliationException) error {
	return translateGormError(r.db.WithContext(ctx).Create(e).Error)
}

func (r *GormReconciliationRepository) FindByID(ctx context.Context, id string) (*ReconciliationException, error) {
	var e ReconciliationException
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &e, nil
}

func (r *GormReconciliationRepository) FindByStatus(ctx context.Context, status ExceptionStatus) ([]ReconciliationException, error) {
	var list []ReconciliationException
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&list).Error
	return list, translateGormError(err)
}

func (r *GormReconciliationRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]ReconciliationException, error) {
	var list []ReconciliationException
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		Order("created_at DESC").
		Find(&list).Error
	return list, translateGormError(err)
}

func (r *GormReconciliationRepository) MarkResolved(ctx context.Context, id, orderID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&ReconciliationException{}).
		Where("id = ? AND status = ?", id, ExceptionOpen).
		Updates(&ReconciliationException{Status: ExceptionResolved, OrderID: orderID, ResolvedAt: &at})
	if res.Error != nil {
		return translateGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrStale(r.db.WithContext(ctx), &ReconciliationException{}, id)
	}
	return nil
}

func missingOrStale(db *gorm.DB, model interface{}, id string) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return translateGormError(err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStaleStatus
}

func translateGormError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique") {
		return ErrDuplicate
	}
	return err
}
