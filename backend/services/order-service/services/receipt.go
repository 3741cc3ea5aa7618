package services

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yashrajoria/seatserve/backend/pkg/pricing"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
)

// receiptWidth fits a 58mm thermal printer.
const receiptWidth = 32

const receiptTimeLayout = "2006-01-02 15:04"

// FormatReceipt renders the staff print slip from the order's stored
// breakdown. Amounts are never recomputed here.
func FormatReceipt(order *store.Order, merchant string, loc *time.Location) string {
	var b strings.Builder
	rule := strings.Repeat("-", receiptWidth) + "\n"

	if merchant != "" {
		pad := (receiptWidth - utf8.RuneCountInString(merchant)) / 2
		if pad < 0 {
			pad = 0
		}
		b.WriteString(strings.Repeat(" ", pad) + merchant + "\n")
		b.WriteString(rule)
	}

	b.WriteString("Order Details:\n")
	field(&b, "Order", order.ID)
	field(&b, "Customer", order.CustomerName)
	field(&b, "Seat", order.SeatNumber)
	if order.Screen != "" {
		field(&b, "Screen", order.Screen)
	}
	field(&b, "Phone", order.CustomerPhone)
	field(&b, "Placed", order.CreatedAt.In(loc).Format(receiptTimeLayout))
	b.WriteString(rule)

	b.WriteString("Items:\n")
	for _, item := range order.Items {
		lineTotal := item.UnitPriceMinor * int64(item.Quantity)
		fmt.Fprintf(&b, "%s x%d - %s\n", item.Name, item.Quantity, rupees(lineTotal))
	}
	b.WriteString(rule)

	amount(&b, "Subtotal", order.Amounts.SubtotalMinor)
	if order.Amounts.SGSTMinor != 0 {
		amount(&b, "SGST", order.Amounts.SGSTMinor)
	}
	if order.Amounts.CGSTMinor != 0 {
		amount(&b, "CGST", order.Amounts.CGSTMinor)
	}
	if order.Amounts.HandlingMinor != 0 {
		amount(&b, "Handling charge", order.Amounts.HandlingMinor)
	}
	amount(&b, "Total", order.Amounts.TotalMinor)

	if order.CompletedAt != nil && order.Status != store.OrderPending {
		b.WriteString(rule)
		field(&b, "Status", string(order.Status))
		field(&b, "Closed", order.CompletedAt.In(loc).Format(receiptTimeLayout))
		if order.Note != "" {
			field(&b, "Note", order.Note)
		}
	}
	return b.String()
}

func field(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%-10s%s\n", label+":", value)
}

func amount(b *strings.Builder, label string, minor int64) {
	value := rupees(minor)
	fmt.Fprintf(b, "%-*s%*s\n", receiptWidth-12, label, 12, value)
}

func rupees(minor int64) string {
	return "₹" + pricing.FromMinorUnits(minor).StringFixed(2)
}
