package events

import (
	"encoding/json"
	"fmt"
)

// ReconciliationAlert is the operator queue message sent when captured
// money has no order. The exception record holds the full proof; the alert
// carries enough to triage without a lookup.
type ReconciliationAlert struct {
	ExceptionID    string `json:"exception_id"`
	Kind           string `json:"kind"`
	TransactionID  string `json:"transaction_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id"`
	AmountMinor    int64  `json:"amount_minor"`
	Detail         string `json:"detail"`
}

func (a ReconciliationAlert) Encode() (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal reconciliation alert: %w", err)
	}
	return string(b), nil
}

// DecodeAlert parses an alert body; the exception id is required.
func DecodeAlert(body string) (ReconciliationAlert, error) {
	var a ReconciliationAlert
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return a, fmt.Errorf("decode reconciliation alert: %w", err)
	}
	if a.ExceptionID == "" {
		return a, fmt.Errorf("decode reconciliation alert: missing exception_id")
	}
	return a, nil
}
