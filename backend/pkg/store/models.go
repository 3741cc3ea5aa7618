package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/seatserve/backend/pkg/pricing"
)

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonInvalidSignature FailureReason = "invalid_signature"
	ReasonCancelled        FailureReason = "cancelled"
	ReasonTimeout          FailureReason = "timeout"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderNotDone   OrderStatus = "not_done"
)

type CompletionStatus string

const (
	CompletionSuccess CompletionStatus = "success"
	CompletionFailed  CompletionStatus = "failed"
)

type ExceptionKind string

const (
	// ExceptionOrderWriteFailed: payment verified, order insert failed.
	ExceptionOrderWriteFailed ExceptionKind = "order_write_failed"
	// ExceptionLatePayment: a genuine payment arrived after the attempt was closed.
	ExceptionLatePayment ExceptionKind = "late_payment"
)

type ExceptionStatus string

const (
	ExceptionOpen     ExceptionStatus = "open"
	ExceptionResolved ExceptionStatus = "resolved"
)

// LineItem is the persisted snapshot of a cart line.
type LineItem struct {
	ItemID         string `json:"item_id" bson:"item_id"`
	Name           string `json:"name" bson:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor" bson:"unit_price_minor"`
	Quantity       int    `json:"quantity" bson:"quantity"`
	ImageRef       string `json:"image_ref,omitempty" bson:"image_ref,omitempty"`
}

// LineItemsFromCart snapshots cart lines in minor units.
func LineItemsFromCart(lines []pricing.CartLine) []LineItem {
	items := make([]LineItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, LineItem{
			ItemID:         l.ItemID,
			Name:           l.Name,
			UnitPriceMinor: pricing.ToMinorUnits(l.UnitPrice),
			Quantity:       l.Quantity,
			ImageRef:       l.ImageRef,
		})
	}
	return items
}

// Amounts is the charged price breakdown in minor units.
type Amounts struct {
	SubtotalMinor int64  `json:"subtotal_minor" bson:"subtotal_minor"`
	SGSTMinor     int64  `json:"sgst_minor" bson:"sgst_minor"`
	CGSTMinor     int64  `json:"cgst_minor" bson:"cgst_minor"`
	HandlingMinor int64  `json:"handling_minor" bson:"handling_minor"`
	TotalMinor    int64  `json:"total_minor" bson:"total_minor"`
	Policy        string `json:"pricing_policy" gorm:"column:pricing_policy;type:varchar(32)" bson:"pricing_policy"`
}

// AmountsFromBreakdown converts a priced breakdown to its stored form.
func AmountsFromBreakdown(b pricing.Breakdown) Amounts {
	return Amounts{
		SubtotalMinor: pricing.ToMinorUnits(b.Subtotal),
		SGSTMinor:     pricing.ToMinorUnits(b.SGST),
		CGSTMinor:     pricing.ToMinorUnits(b.CGST),
		HandlingMinor: pricing.ToMinorUnits(b.HandlingCharge),
		TotalMinor:    b.AmountMinor(),
		Policy:        b.Policy,
	}
}

// Verification records the outcome of the signature check on a transaction.
type Verification struct {
	Verified  bool       `json:"verified" bson:"verified"`
	Timestamp *time.Time `json:"timestamp" bson:"timestamp"`
	PaymentID string     `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	Signature string     `json:"signature,omitempty" bson:"signature,omitempty"`
	Error     string     `json:"error,omitempty" bson:"error,omitempty"`
}

// Transaction is the ledger entry for one checkout attempt.
type Transaction struct {
	ID             string            `json:"id" gorm:"type:uuid;primaryKey" bson:"_id"`
	GatewayOrderID string            `json:"gateway_order_id" gorm:"type:varchar(64);uniqueIndex;not null" bson:"gateway_order_id"`
	ReceiptID      string            `json:"receipt_id" gorm:"type:varchar(64);not null" bson:"receipt_id"`
	Gateway        string            `json:"gateway" gorm:"type:varchar(20);not null" bson:"gateway"`
	AmountMinor    int64             `json:"amount_minor" gorm:"not null" bson:"amount_minor"`
	Currency       string            `json:"currency" gorm:"type:varchar(10);not null" bson:"currency"`
	CustomerName   string            `json:"customer_name" bson:"customer_name"`
	CustomerPhone  string            `json:"customer_phone" bson:"customer_phone"`
	SeatNumber     string            `json:"seat_number" bson:"seat_number"`
	Screen         string            `json:"screen,omitempty" bson:"screen,omitempty"`
	Items          []LineItem        `json:"items" gorm:"serializer:json;type:jsonb" bson:"items"`
	Amounts        Amounts           `json:"breakdown" gorm:"embedded" bson:"breakdown"`
	Status         TransactionStatus `json:"status" gorm:"type:varchar(20);index;not null" bson:"status"`
	FailureReason  FailureReason     `json:"failure_reason,omitempty" gorm:"type:varchar(32)" bson:"failure_reason,omitempty"`
	Verification   Verification      `json:"verification" gorm:"serializer:json;type:jsonb" bson:"verification"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime;index" bson:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"autoUpdateTime" bson:"updated_at"`
}

// IsTerminal reports whether the transaction has left pending.
func (t *Transaction) IsTerminal() bool {
	return t.Status != TransactionPending
}

// Order exists only for verified payments.
type Order struct {
	ID               string            `json:"id" gorm:"type:uuid;primaryKey" bson:"_id"`
	TransactionID    string            `json:"transaction_id" gorm:"type:uuid;index;not null" bson:"transaction_id"`
	GatewayOrderID   string            `json:"gateway_order_id" gorm:"type:varchar(64);uniqueIndex;not null" bson:"gateway_order_id"`
	PaymentID        string            `json:"payment_id" gorm:"type:varchar(64);not null" bson:"payment_id"`
	PaymentSignature string            `json:"-" gorm:"type:varchar(128);not null" bson:"payment_signature"`
	Items            []LineItem        `json:"items" gorm:"serializer:json;type:jsonb" bson:"items"`
	Amounts          Amounts           `json:"breakdown" gorm:"embedded" bson:"breakdown"`
	Currency         string            `json:"currency" gorm:"type:varchar(10)" bson:"currency"`
	CustomerName     string            `json:"customer_name" bson:"customer_name"`
	CustomerPhone    string            `json:"customer_phone" bson:"customer_phone"`
	SeatNumber       string            `json:"seat_number" bson:"seat_number"`
	Screen           string            `json:"screen,omitempty" bson:"screen,omitempty"`
	Status           OrderStatus       `json:"status" gorm:"type:varchar(20);index;not null" bson:"status"`
	CompletionStatus *CompletionStatus `json:"completion_status,omitempty" gorm:"type:varchar(20)" bson:"completion_status,omitempty"`
	Note             string            `json:"note,omitempty" bson:"note,omitempty"`
	CreatedAt        time.Time         `json:"created_at" gorm:"autoCreateTime;index" bson:"created_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at" gorm:"autoUpdateTime" bson:"updated_at"`
}

// NewOrder builds the fulfilment record for a verified transaction.
// Callers must only pass proof the gateway accepted.
func NewOrder(tx *Transaction, paymentID, signature string) *Order {
	return &Order{
		ID:               uuid.NewString(),
		TransactionID:    tx.ID,
		GatewayOrderID:   tx.GatewayOrderID,
		PaymentID:        paymentID,
		PaymentSignature: signature,
		Items:            tx.Items,
		Amounts:          tx.Amounts,
		Currency:         tx.Currency,
		CustomerName:     tx.CustomerName,
		CustomerPhone:    tx.CustomerPhone,
		SeatNumber:       tx.SeatNumber,
		Screen:           tx.Screen,
		Status:           OrderPending,
	}
}

// ReconciliationException records captured money without a matching order.
type ReconciliationException struct {
	ID               string          `json:"id" gorm:"type:uuid;primaryKey" bson:"_id"`
	TransactionID    string          `json:"transaction_id" gorm:"type:uuid;index;not null" bson:"transaction_id"`
	GatewayOrderID   string          `json:"gateway_order_id" gorm:"type:varchar(64);index;not null" bson:"gateway_order_id"`
	PaymentID        string          `json:"payment_id" gorm:"type:varchar(64)" bson:"payment_id"`
	PaymentSignature string          `json:"-" gorm:"type:varchar(128)" bson:"payment_signature"`
	AmountMinor      int64           `json:"amount_minor" bson:"amount_minor"`
	Kind             ExceptionKind   `json:"kind" gorm:"type:varchar(32);not null" bson:"kind"`
	Detail           string          `json:"detail" bson:"detail"`
	Status           ExceptionStatus `json:"status" gorm:"type:varchar(20);index;not null" bson:"status"`
	OrderID          string          `json:"order_id,omitempty" gorm:"type:varchar(36)" bson:"order_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime" bson:"created_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"autoUpdateTime" bson:"updated_at"`
}

func (ReconciliationException) TableName() string { return "reconciliation_exceptions" }
