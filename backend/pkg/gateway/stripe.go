package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/webhook"
)

// CallbackKind classifies a gateway notification.
type CallbackKind string

const (
	CallbackCompleted CallbackKind = "payment_completed"
	CallbackDismissed CallbackKind = "checkout_dismissed"
	CallbackIgnored   CallbackKind = "ignored"
)

// Callback is a gateway notification normalised to the checkout flow.
type Callback struct {
	Kind           CallbackKind `json:"kind"`
	GatewayOrderID string       `json:"gateway_order_id"`
	PaymentID      string       `json:"payment_id,omitempty"`
	Signature      string       `json:"signature,omitempty"`
	EventID        string       `json:"event_id,omitempty"`
}

// Stripe implements Client with PaymentIntents. A payment is genuine when the
// completion token matches and Stripe reports the intent as succeeded.
type Stripe struct {
	webhookSecret string
	signer        SecretSource
	currency      string

	newIntent func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getIntent func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// NewStripe configures the global Stripe key and returns the adapter.
func NewStripe(apiKey, webhookSecret string, signer SecretSource, currency string) *Stripe {
	stripe.Key = apiKey
	return &Stripe{
		webhookSecret: webhookSecret,
		signer:        signer,
		currency:      strings.ToLower(currency),
		newIntent:     paymentintent.New,
		getIntent:     paymentintent.Get,
	}
}

func (s *Stripe) Name() string { return ProviderStripe }

// CreateOrder creates a PaymentIntent. The receipt doubles as the idempotency
// key so a retried call returns the same intent.
func (s *Stripe) CreateOrder(_ context.Context, amountMinor int64, receipt string) (*Order, error) {
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(s.currency),
	}
	params.AddMetadata("receipt", receipt)
	params.SetIdempotencyKey(receipt)

	pi, err := s.newIntent(params)
	if err != nil {
		return nil, classifyStripeError(err, ErrGatewayUnavailable)
	}

	return &Order{
		ID:           pi.ID,
		AmountMinor:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      receipt,
		Status:       string(pi.Status),
		CreatedAt:    time.Unix(pi.Created, 0).UTC(),
		ClientSecret: pi.ClientSecret,
	}, nil
}

// Verify checks the completion token locally, then confirms with Stripe that
// the intent succeeded with the given charge.
func (s *Stripe) Verify(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error) {
	secret, err := s.signer.Secret(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if !VerifySignature(secret, gatewayOrderID, paymentID, signature) {
		return false, nil
	}

	pi, err := s.getIntent(gatewayOrderID, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 &&
			stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != http.StatusTooManyRequests {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return false, nil
	}
	return chargeID(pi) == paymentID, nil
}

// ParseWebhook authenticates a Stripe webhook and converts intent events into
// callbacks. Succeeded intents carry a freshly minted completion token.
func (s *Stripe) ParseWebhook(ctx context.Context, payload []byte, sigHeader string) (*Callback, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("invalid webhook: %w", err)
	}

	cb := &Callback{Kind: CallbackIgnored, EventID: event.ID}
	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		secret, err := s.signer.Secret(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrVerification, err)
		}
		cb.Kind = CallbackCompleted
		cb.GatewayOrderID = pi.ID
		cb.PaymentID = chargeID(&pi)
		cb.Signature = Sign(secret, cb.GatewayOrderID, cb.PaymentID)
	case "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		cb.Kind = CallbackDismissed
		cb.GatewayOrderID = pi.ID
	}
	return cb, nil
}

func chargeID(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		return pi.LatestCharge.ID
	}
	return pi.ID
}

func classifyStripeError(err error, transient error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", transient, err)
		}
		return fmt.Errorf("%w: %v", ErrGatewayRejected, err)
	}
	return fmt.Errorf("%w: %v", transient, err)
}
