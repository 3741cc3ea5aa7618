package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
	"go.uber.org/zap"
)

// NewRelayHandler consumes gateway callbacks relayed through SQS. Only
// transient failures are returned, which leaves the message for
// redelivery; definitive outcomes and malformed bodies are acknowledged.
func NewRelayHandler(svc CheckoutService, logger *zap.Logger) aws_pkg.MessageHandler {
	return func(ctx context.Context, body string) error {
		var evt gateway.Callback
		if err := json.Unmarshal([]byte(body), &evt); err != nil {
			logger.Warn("Dropping malformed relayed callback", zap.Error(err))
			return nil
		}

		out, err := svc.HandleEvent(ctx, evt)
		switch {
		case err == nil,
			errors.Is(err, ErrInvalidSignature),
			errors.Is(err, ErrUserCancelled),
			errors.Is(err, ErrReconciliation):
			if out != nil {
				logger.Info("Relayed callback applied",
					zap.String("gateway_order_id", out.GatewayOrderID),
					zap.String("status", string(out.Status)),
					zap.Bool("duplicate", out.Duplicate),
				)
			}
			return nil
		case errors.Is(err, ErrInvalidEvent), errors.Is(err, ErrTransactionNotFound):
			logger.Warn("Dropping relayed callback",
				zap.String("gateway_order_id", evt.GatewayOrderID),
				zap.Error(err),
			)
			return nil
		default:
			return fmt.Errorf("relayed callback %s: %w", evt.GatewayOrderID, err)
		}
	}
}
