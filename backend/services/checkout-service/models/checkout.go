package models

import (
	"strings"

	"github.com/yashrajoria/seatserve/backend/pkg/pricing"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
)

// Session is the patron's checkout context: who is ordering, where they
// sit and what is in the cart. The client owns it and sends it with every
// quote and initiation.
type Session struct {
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone"`
	SeatNumber    string             `json:"seat_number"`
	Screen        string             `json:"screen,omitempty"`
	Cart          []pricing.CartLine `json:"cart" binding:"dive"`
}

// HasIdentity reports whether the patron fields needed to deliver an order
// are present.
func (s Session) HasIdentity() bool {
	return strings.TrimSpace(s.CustomerName) != "" &&
		strings.TrimSpace(s.CustomerPhone) != "" &&
		strings.TrimSpace(s.SeatNumber) != ""
}

// Prefill seeds the hosted checkout form.
type Prefill struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// CheckoutOptions is everything the browser needs to open the hosted
// checkout for one attempt.
type CheckoutOptions struct {
	Key            string            `json:"key,omitempty"`
	Gateway        string            `json:"gateway"`
	GatewayOrderID string            `json:"gateway_order_id"`
	TransactionID  string            `json:"transaction_id"`
	AmountMinor    int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Prefill        Prefill           `json:"prefill"`
	Breakdown      pricing.Breakdown `json:"breakdown"`
	// ClientSecret confirms a Stripe PaymentIntent from the browser.
	ClientSecret   string            `json:"client_secret,omitempty"`
}

// CallbackRequest is the hosted checkout success handler payload.
type CallbackRequest struct {
	GatewayOrderID string `json:"razorpay_order_id" binding:"required"`
	PaymentID      string `json:"razorpay_payment_id" binding:"required"`
	Signature      string `json:"razorpay_signature" binding:"required"`
}

// DismissRequest is sent when the patron closes the hosted checkout.
type DismissRequest struct {
	GatewayOrderID string `json:"gateway_order_id" binding:"required"`
}

// Outcome is the state of an attempt after an event was applied.
type Outcome struct {
	TransactionID  string                  `json:"transaction_id"`
	GatewayOrderID string                  `json:"gateway_order_id"`
	Status         store.TransactionStatus `json:"status"`
	FailureReason  store.FailureReason     `json:"failure_reason,omitempty"`
	Order          *store.Order            `json:"order,omitempty"`
	ExceptionID    string                  `json:"exception_id,omitempty"`
	// ClearCart is true only once an order exists for the attempt.
	ClearCart bool `json:"clear_cart"`
	// Duplicate marks an event that arrived after the attempt was already settled.
	Duplicate bool `json:"duplicate,omitempty"`
}

// OutcomeFor describes tx as it currently stands.
func OutcomeFor(tx *store.Transaction) *Outcome {
	return &Outcome{
		TransactionID:  tx.ID,
		GatewayOrderID: tx.GatewayOrderID,
		Status:         tx.Status,
		FailureReason:  tx.FailureReason,
	}
}

// TransactionStatus is the read-only view served to polling clients.
type TransactionStatus struct {
	TransactionID  string                  `json:"transaction_id"`
	GatewayOrderID string                  `json:"gateway_order_id"`
	Status         store.TransactionStatus `json:"status"`
	FailureReason  store.FailureReason     `json:"failure_reason,omitempty"`
	AmountMinor    int64                   `json:"amount"`
	Currency       string                  `json:"currency"`
	Verified       bool                    `json:"verified"`
	OrderID        string                  `json:"order_id,omitempty"`
}
