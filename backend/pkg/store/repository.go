package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	// ErrStaleStatus means a compare-and-set lost: the record was no longer
	// in the expected status.
	ErrStaleStatus = errors.New("record status changed")
)

// TransactionRepository is the transaction ledger.
type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	FindByID(ctx context.Context, id string) (*Transaction, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Transaction, error)
	// Finalize moves a pending transaction to a terminal status. It returns
	// ErrStaleStatus if the transaction already left pending.
	Finalize(ctx context.Context, id string, status TransactionStatus, reason FailureReason, v Verification) error
	// FindStalePending returns pending transactions created before the cutoff, oldest first.
	FindStalePending(ctx context.Context, before time.Time, limit int) ([]Transaction, error)
}

// OrderRepository is the order store.
type OrderRepository interface {
	// Create inserts an order; ErrDuplicate if one already exists for the gateway order.
	Create(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	// FindByStatus returns orders in any of the statuses, newest first.
	FindByStatus(ctx context.Context, statuses ...OrderStatus) ([]Order, error)
	// FindCreatedBetween returns orders created in [from, to) in any of the
	// statuses, most recently completed first.
	FindCreatedBetween(ctx context.Context, from, to time.Time, statuses ...OrderStatus) ([]Order, error)
	// Transition moves an order from one status to another with a
	// compare-and-set on the current status.
	Transition(ctx context.Context, id string, from OrderStatus, change OrderTransition) error
}

// OrderTransition describes a terminal status change.
type OrderTransition struct {
	To         OrderStatus
	Completion CompletionStatus
	Note       string
	At         time.Time
}

// ReconciliationRepository stores reconciliation exceptions.
type ReconciliationRepository interface {
	Create(ctx context.Context, e *ReconciliationException) error
	FindByID(ctx context.Context, id string) (*ReconciliationException, error)
	FindByStatus(ctx context.Context, status ExceptionStatus) ([]ReconciliationException, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]ReconciliationException, error)
	// MarkResolved closes an open exception; ErrStaleStatus if already resolved.
	MarkResolved(ctx context.Context, id, orderID string, at time.Time) error
}

// Repositories bundles the three stores behind one backend.
type Repositories struct {
	Transactions   TransactionRepository
	Orders         OrderRepository
	Reconciliation ReconciliationRepository
	Close          func(ctx context.Context) error
}
