package services

import (
	"context"
	"errors"
	"fmt"

	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"github.com/yashrajoria/seatserve/backend/services/order-service/models"
	"go.uber.org/zap"
)

// ListExceptions returns open exceptions followed by resolved ones, each
// newest first.
func (s *fulfillmentServiceImpl) ListExceptions(ctx context.Context) ([]store.ReconciliationException, error) {
	open, err := s.exceptions.FindByStatus(ctx, store.ExceptionOpen)
	if err != nil {
		return nil, fmt.Errorf("list open exceptions: %w", err)
	}
	resolved, err := s.exceptions.FindByStatus(ctx, store.ExceptionResolved)
	if err != nil {
		return nil, fmt.Errorf("list resolved exceptions: %w", err)
	}
	return append(open, resolved...), nil
}

// ResolveException re-verifies the captured payment and makes sure exactly
// one order exists for it. The ledger entry is left as it is; the
// exception records how the money was accounted for.
func (s *fulfillmentServiceImpl) ResolveException(ctx context.Context, id string) (*models.Resolution, error) {
	exc, err := s.exceptions.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrExceptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exception %s: %w", id, err)
	}
	if exc.Status == store.ExceptionResolved {
		return nil, ErrAlreadyResolved
	}

	log := s.logger.With(
		zap.String("exception_id", exc.ID),
		zap.String("kind", string(exc.Kind)),
		zap.String("transaction_id", exc.TransactionID),
		zap.String("gateway_order_id", exc.GatewayOrderID),
		zap.String("payment_id", exc.PaymentID),
	)

	tx, err := s.transactions.FindByID(ctx, exc.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", exc.TransactionID, err)
	}

	ok, err := s.guard.Check(ctx, exc.GatewayOrderID, exc.PaymentID, exc.PaymentSignature)
	if err != nil {
		log.Warn("Completion guard unavailable during resolution", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if !ok {
		log.Error("Reconciliation proof failed verification")
		return nil, ErrPaymentNotVerified
	}

	order, created, err := s.ensureOrder(ctx, tx, exc)
	if err != nil {
		log.Error("Failed to record order for exception", zap.Error(err))
		return nil, err
	}

	now := s.now().UTC()
	if err := s.exceptions.MarkResolved(ctx, exc.ID, order.ID, now); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("resolve exception %s: %w", exc.ID, err)
	}
	exc.Status, exc.OrderID, exc.ResolvedAt = store.ExceptionResolved, order.ID, &now

	log.Info("Reconciliation exception resolved", zap.String("order_id", order.ID), zap.Bool("order_created", created))
	if created {
		s.publishOrder(ctx, events.TypeOrderCreated, order, "")
		s.count(ctx, aws_pkg.MetricOrdersCreated)
	}
	s.publishOrder(ctx, events.TypeReconciliationResolved, order, string(exc.Kind))
	s.count(ctx, aws_pkg.MetricReconciliationResolved)

	return &models.Resolution{Exception: *exc, Order: order, Created: created, ResolvedAt: now}, nil
}

// ensureOrder links the existing order for the gateway order or creates
// it from the transaction snapshot.
func (s *fulfillmentServiceImpl) ensureOrder(ctx context.Context, tx *store.Transaction, exc *store.ReconciliationException) (*store.Order, bool, error) {
	existing, err := s.orders.FindByGatewayOrderID(ctx, tx.GatewayOrderID)
	if err == nil {
		if existing.PaymentID != exc.PaymentID {
			s.logger.Warn("Linked order carries a different payment",
				zap.String("order_id", existing.ID),
				zap.String("order_payment_id", existing.PaymentID),
				zap.String("exception_payment_id", exc.PaymentID),
			)
		}
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("look up order: %w", err)
	}

	order := store.NewOrder(tx, exc.PaymentID, exc.PaymentSignature)
	err = s.orders.Create(ctx, order)
	if errors.Is(err, store.ErrDuplicate) {
		existing, err := s.orders.FindByGatewayOrderID(ctx, tx.GatewayOrderID)
		if err != nil {
			return nil, false, fmt.Errorf("load concurrently created order: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create order: %w", err)
	}
	return order, true, nil
}
