package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrGatewayUnavailable marks a transient failure (network, 5xx, throttling).
	// Callers may retry with the same receipt.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrVerification marks an infrastructure failure while verifying a payment.
	// It never means the signature was wrong.
	ErrVerification = errors.New("payment verification unavailable")
	// ErrGatewayRejected is a definitive refusal from the gateway (4xx).
	ErrGatewayRejected = errors.New("payment gateway rejected request")
	ErrInvalidAmount   = errors.New("amount must be a positive number of minor units")
)

const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
	ProviderSandbox  = "sandbox"
)

// Order is the gateway-side order for one checkout attempt. Immutable once created.
type Order struct {
	ID          string    `json:"id"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Receipt     string    `json:"receipt"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`

	// ClientSecret is set by gateways whose browser checkout needs a
	// per-order secret to confirm the payment (Stripe PaymentIntents).
	ClientSecret string `json:"-"`
}

// Client is the contract every payment gateway adapter implements.
type Client interface {
	Name() string
	// CreateOrder registers an order for amountMinor. Repeating a receipt
	// must not create a second logical order.
	CreateOrder(ctx context.Context, amountMinor int64, receipt string) (*Order, error)
	// Verify reports whether the payment is genuine. A mismatch returns
	// false with a nil error; ErrVerification is reserved for infrastructure failures.
	Verify(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error)
}

// Sign computes the hex HMAC-SHA256 of "orderID|paymentID".
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the HMAC and compares in constant time.
func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	expected := Sign(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
