package services

import (
	"context"

	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
)

// CompletionGuard decides whether stored payment proof is still genuine.
// It must return false with a nil error for a bad signature and reserve
// errors for infrastructure failures.
type CompletionGuard interface {
	Name() string
	Check(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error)
}

// SignatureGuard re-verifies proof against the payment gateway.
type SignatureGuard struct {
	gateway gateway.Client
}

func NewSignatureGuard(client gateway.Client) *SignatureGuard {
	return &SignatureGuard{gateway: client}
}

func (g *SignatureGuard) Name() string { return "signature:" + g.gateway.Name() }

func (g *SignatureGuard) Check(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error) {
	if gatewayOrderID == "" || paymentID == "" || signature == "" {
		return false, nil
	}
	return g.gateway.Verify(ctx, gatewayOrderID, paymentID, signature)
}
