package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/yashrajoria/seatserve/backend/pkg/pricing"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportSheet     = "Orders"
	exportTime      = "2006-01-02 15:04:05"
)

var exportHeaders = []interface{}{
	"Order ID", "Customer Name", "Phone", "Seat Number", "Screen", "Total Amount",
	"Status", "Payment ID", "Created At", "Completed At", "Items",
}

// ExportFileName is the download name for a venue day.
func ExportFileName(day time.Time) string {
	return fmt.Sprintf("orders_%s.xlsx", day.Format(dayLayout))
}

// BuildWorkbook renders one row per order on an "Orders" sheet.
func BuildWorkbook(orders []store.Order, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(exportSheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, o := range orders {
		completedAt := ""
		if o.CompletedAt != nil {
			completedAt = o.CompletedAt.In(loc).Format(exportTime)
		}
		row := []interface{}{
			o.ID,
			o.CustomerName,
			o.CustomerPhone,
			o.SeatNumber,
			o.Screen,
			pricing.FromMinorUnits(o.Amounts.TotalMinor).InexactFloat64(),
			string(o.Status),
			o.PaymentID,
			o.CreatedAt.In(loc).Format(exportTime),
			completedAt,
			FlattenItems(o.Items),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(exportSheet, "A", "A", 38); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheet, "B", "J", 18); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheet, "K", "K", 60); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// FlattenItems renders line items as "name (qty x ₹price)" joined by ", ".
func FlattenItems(items []store.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s (%dx %s)", item.Name, item.Quantity, rupees(item.UnitPriceMinor)))
	}
	return strings.Join(parts, ", ")
}
