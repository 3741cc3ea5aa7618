package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sandbox is an in-memory gateway for local runs. It signs payments with the
// same scheme as Razorpay so the whole checkout flow can be exercised offline.
type Sandbox struct {
	secret   SecretSource
	currency string

	mu        sync.Mutex
	byReceipt map[string]*Order
	orders    map[string]*Order
}

func NewSandbox(secret SecretSource, currency string) *Sandbox {
	return &Sandbox{
		secret:    secret,
		currency:  currency,
		byReceipt: make(map[string]*Order),
		orders:    make(map[string]*Order),
	}
}

func (s *Sandbox) Name() string { return ProviderSandbox }

func (s *Sandbox) CreateOrder(_ context.Context, amountMinor int64, receipt string) (*Order, error) {
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.byReceipt[receipt]; ok {
		cp := *o
		return &cp, nil
	}
	o := &Order{
		ID:          "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		AmountMinor: amountMinor,
		Currency:    s.currency,
		Receipt:     receipt,
		Status:      "created",
		CreatedAt:   time.Now().UTC(),
	}
	s.byReceipt[receipt] = o
	s.orders[o.ID] = o
	cp := *o
	return &cp, nil
}

func (s *Sandbox) Verify(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error) {
	secret, err := s.secret.Secret(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	return VerifySignature(secret, gatewayOrderID, paymentID, signature), nil
}

// Pay simulates the hosted checkout completing and returns what the browser
// callback would carry.
func (s *Sandbox) Pay(ctx context.Context, gatewayOrderID string) (*Callback, error) {
	s.mu.Lock()
	o, ok := s.orders[gatewayOrderID]
	if ok {
		o.Status = "paid"
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown order %s", ErrGatewayRejected, gatewayOrderID)
	}

	secret, err := s.secret.Secret(ctx)
	if err != nil {
		return nil, err
	}
	paymentID := "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return &Callback{
		Kind:           CallbackCompleted,
		GatewayOrderID: gatewayOrderID,
		PaymentID:      paymentID,
		Signature:      Sign(secret, gatewayOrderID, paymentID),
	}, nil
}
