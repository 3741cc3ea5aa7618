package services

import (
	"context"

	"github.com/google/uuid"
	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"go.uber.org/zap"
)

// raiseException records captured money that has no order. Every channel
// is attempted independently so that losing one (store, queue or bus)
// still leaves the others and the error log.
func (s *checkoutServiceImpl) raiseException(ctx context.Context, tx *store.Transaction, paymentID, signature string, kind store.ExceptionKind, detail string) *store.ReconciliationException {
	ctx, cancel := detach(ctx)
	defer cancel()

	exc := &store.ReconciliationException{
		ID:               uuid.NewString(),
		TransactionID:    tx.ID,
		GatewayOrderID:   tx.GatewayOrderID,
		PaymentID:        paymentID,
		PaymentSignature: signature,
		AmountMinor:      tx.AmountMinor,
		Kind:             kind,
		Detail:           detail,
		Status:           store.ExceptionOpen,
	}

	fields := []zap.Field{
		zap.String("exception_id", exc.ID),
		zap.String("kind", string(kind)),
		zap.String("transaction_id", tx.ID),
		zap.String("gateway_order_id", tx.GatewayOrderID),
		zap.String("payment_id", paymentID),
		zap.Int64("amount_minor", tx.AmountMinor),
		zap.String("detail", detail),
	}
	s.logger.Error("Reconciliation exception: payment captured without order", fields...)

	if err := s.exceptions.Create(ctx, exc); err != nil {
		s.logger.Error("Failed to persist reconciliation exception", append(fields, zap.Error(err))...)
	}

	if s.alerts != nil {
		body, err := events.ReconciliationAlert{
			ExceptionID:    exc.ID,
			Kind:           string(kind),
			TransactionID:  tx.ID,
			GatewayOrderID: tx.GatewayOrderID,
			PaymentID:      paymentID,
			AmountMinor:    tx.AmountMinor,
			Detail:         detail,
		}.Encode()
		if err == nil {
			err = s.alerts.SendMessage(ctx, body)
		}
		if err != nil {
			s.logger.Error("Failed to queue reconciliation alert", append(fields, zap.Error(err))...)
		}
	}

	_ = s.publisher.Publish(ctx, events.Event{
		Type:           events.TypeReconciliationException,
		TransactionID:  tx.ID,
		GatewayOrderID: tx.GatewayOrderID,
		PaymentID:      paymentID,
		AmountMinor:    tx.AmountMinor,
		Currency:       tx.Currency,
		Reason:         string(kind),
	})
	s.count(ctx, aws_pkg.MetricReconciliationExceptions)
	return exc
}
