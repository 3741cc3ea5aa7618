package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DriverMemory keeps everything in process. It backs local development
// with the sandbox gateway and the service tests; nothing survives a
// restart.
const DriverMemory = "memory"

type memoryDB struct {
	mu           sync.RWMutex
	transactions map[string]Transaction
	orders       map[string]Order
	exceptions   map[string]ReconciliationException
}

// NewMemoryRepositories returns repositories sharing one in-memory
// database with the same uniqueness and compare-and-set rules as the SQL
// and document backends.
func NewMemoryRepositories() *Repositories {
	db := &memoryDB{
		transactions: make(map[string]Transaction),
		orders:       make(map[string]Order),
		exceptions:   make(map[string]ReconciliationException),
	}
	return &Repositories{
		Transactions:   &MemoryTransactionRepository{db: db},
		Orders:         &MemoryOrderRepository{db: db},
		Reconciliation: &MemoryReconciliationRepository{db: db},
		Close:          func(context.Context) error { return nil },
	}
}

type MemoryTransactionRepository struct{ db *memoryDB }

func (r *MemoryTransactionRepository) Create(_ context.Context, tx *Transaction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.transactions[tx.ID]; ok {
		return ErrDuplicate
	}
	for _, t := range r.db.transactions {
		if t.GatewayOrderID == tx.GatewayOrderID {
			return ErrDuplicate
		}
	}
	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	r.db.transactions[tx.ID] = *tx
	return nil
}

func (r *MemoryTransactionRepository) FindByID(_ context.Context, id string) (*Transaction, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r *MemoryTransactionRepository) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (*Transaction, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, t := range r.db.transactions {
		if t.GatewayOrderID == gatewayOrderID {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryTransactionRepository) Finalize(_ context.Context, id string, status TransactionStatus, reason FailureReason, v Verification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.transactions[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != TransactionPending {
		return ErrStaleStatus
	}
	t.Status, t.FailureReason, t.Verification, t.UpdatedAt = status, reason, v, time.Now()
	r.db.transactions[id] = t
	return nil
}

func (r *MemoryTransactionRepository) FindStalePending(_ context.Context, before time.Time, limit int) ([]Transaction, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []Transaction
	for _, t := range r.db.transactions {
		if t.Status == TransactionPending && t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MemoryOrderRepository struct{ db *memoryDB }

func (r *MemoryOrderRepository) Create(_ context.Context, order *Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.orders[order.ID]; ok {
		return ErrDuplicate
	}
	for _, o := range r.db.orders {
		if o.GatewayOrderID == order.GatewayOrderID {
			return ErrDuplicate
		}
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	r.db.orders[order.ID] = *order
	return nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id string) (*Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	o, ok := r.db.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *MemoryOrderRepository) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (*Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, o := range r.db.orders {
		if o.GatewayOrderID == gatewayOrderID {
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryOrderRepository) FindByStatus(_ context.Context, statuses ...OrderStatus) ([]Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []Order
	for _, o := range r.db.orders {
		if hasStatus(o.Status, statuses) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryOrderRepository) FindCreatedBetween(_ context.Context, from, to time.Time, statuses ...OrderStatus) ([]Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []Order
	for _, o := range r.db.orders {
		if !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) && hasStatus(o.Status, statuses) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CompletedAt, out[j].CompletedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryOrderRepository) Transition(_ context.Context, id string, from OrderStatus, change OrderTransition) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStaleStatus
	}
	completion, at := change.Completion, change.At
	o.Status = change.To
	o.CompletionStatus = &completion
	o.CompletedAt = &at
	if change.Note != "" {
		o.Note = change.Note
	}
	o.UpdatedAt = time.Now()
	r.db.orders[id] = o
	return nil
}

type MemoryReconciliationRepository struct{ db *memoryDB }

func (r *MemoryReconciliationRepository) Create(_ context.Context, e *ReconciliationException) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.exceptions[e.ID]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	r.db.exceptions[e.ID] = *e
	return nil
}

func (r *MemoryReconciliationRepository) FindByID(_ context.Context, id string) (*ReconciliationException, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	e, ok := r.db.exceptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (r *MemoryReconciliationRepository) FindByStatus(_ context.Context, status ExceptionStatus) ([]ReconciliationException, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []ReconciliationException
	for _, e := range r.db.exceptions {
		if e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryReconciliationRepository) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) ([]ReconciliationException, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []ReconciliationException
	for _, e := range r.db.exceptions {
		if e.GatewayOrderID == gatewayOrderID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryReconciliationRepository) MarkResolved(_ context.Context, id, orderID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.exceptions[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != ExceptionOpen {
		return ErrStaleStatus
	}
	e.Status, e.OrderID, e.ResolvedAt, e.UpdatedAt = ExceptionResolved, orderID, &at, time.Now()
	r.db.exceptions[id] = e
	return nil
}

func hasStatus(s OrderStatus, statuses []OrderStatus) bool {
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
