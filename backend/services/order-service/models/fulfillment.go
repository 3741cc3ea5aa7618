package models

import (
	"time"

	"github.com/yashrajoria/seatserve/backend/pkg/store"
)

// NotDoneRequest is the operator override body.
type NotDoneRequest struct {
	Note string `json:"note" binding:"max=500"`
}

// OrderList is the response for the pending and history views.
type OrderList struct {
	Orders []store.Order `json:"orders"`
	Count  int           `json:"count"`
	// Day is set for history queries, formatted YYYY-MM-DD in venue time.
	Day string `json:"day,omitempty"`
}

// Export is a rendered workbook for one venue day.
type Export struct {
	FileName string
	Content  []byte
	Rows     int
	// Location is the archive URI when the workbook was uploaded.
	Location string
}

// Resolution is the result of closing a reconciliation exception.
type Resolution struct {
	Exception store.ReconciliationException `json:"exception"`
	Order     *store.Order                  `json:"order"`
	// Created is false when an order already existed and was linked.
	Created    bool      `json:"created"`
	ResolvedAt time.Time `json:"resolved_at"`
}
