package services

import (
	"context"
	"errors"

	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"go.uber.org/zap"
)

// NewAlertHandler returns the SQS handler for the reconciliation alert
// queue. Each delivery attempts one automatic resolution. Verification
// outages and store errors leave the message for redelivery; a proof that
// fails verification is acknowledged and stays open for an operator. Late
// payments are never resolved here: the patron was told the attempt failed,
// so an operator decides between fulfilling and refunding.
func NewAlertHandler(svc FulfillmentService, metrics aws_pkg.Counter, logger *zap.Logger) aws_pkg.MessageHandler {
	if metrics == nil {
		metrics = aws_pkg.NopCounter{}
	}
	return func(ctx context.Context, body string) error {
		alert, err := events.DecodeAlert(aws_pkg.UnwrapSNSEnvelope(body))
		if err != nil {
			logger.Error("Dropping malformed reconciliation alert", zap.Error(err))
			return nil
		}

		log := logger.With(
			zap.String("exception_id", alert.ExceptionID),
			zap.String("kind", alert.Kind),
			zap.String("gateway_order_id", alert.GatewayOrderID),
		)

		if alert.Kind == string(store.ExceptionLatePayment) {
			log.Warn("Late payment left for manual review")
			_ = metrics.RecordCount(ctx, aws_pkg.MetricSQSMessages, map[string]string{"Queue": "reconciliation"})
			return nil
		}

		res, err := svc.ResolveException(ctx, alert.ExceptionID)
		switch {
		case err == nil:
			log.Info("Reconciliation alert resolved automatically",
				zap.String("order_id", res.Order.ID),
				zap.Bool("order_created", res.Created),
			)
		case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrExceptionNotFound):
			log.Info("Reconciliation alert needs no action", zap.Error(err))
		case errors.Is(err, ErrPaymentNotVerified):
			log.Error("Reconciliation alert left for manual review", zap.Error(err))
		default:
			log.Warn("Reconciliation alert will be redelivered", zap.Error(err))
			return err
		}

		_ = metrics.RecordCount(ctx, aws_pkg.MetricSQSMessages, map[string]string{"Queue": "reconciliation"})
		return nil
	}
}
