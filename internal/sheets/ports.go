// Package sheets exports monthly cash balances to a spreadsheet.
package sheets

import (
	"context"
	"fmt"

	"cambista/internal/report"
)

// ReportWriter is the outbound port for report export.
type ReportWriter interface {
	// WriteMonthlyReport stores r and returns a reference to where it went.
	WriteMonthlyReport(ctx context.Context, r report.Report) (ref string, err error)
}

// BlockRows is the height of one month block. Months are stacked top to
// bottom, January first.
const BlockRows = 10

// BlockStartRow is the 1-based first row of the block for month.
func BlockStartRow(month int) int {
	return (month-1)*BlockRows + 1
}

// ReportRows lays a report out as a BlockRows-high grid of three columns.
// Unused rows are blank so a re-export overwrites older content.
func ReportRows(r report.Report) [][]any {
	s := r.Summary
	rows := [][]any{
		{fmt.Sprintf("Cuadre %s", r.Period), "", ""},
		{"Concepto", "Divisa", "Soles"},
		{"Compras", s.TotalPurchaseForeign.StringFixed(2), s.TotalPurchaseLocal.StringFixed(2)},
		{"Ventas", s.TotalSaleForeign.StringFixed(2), s.TotalSaleLocal.StringFixed(2)},
		{"Utilidad", "", s.Profit.StringFixed(2)},
		{"Tasa promedio", s.AverageRate.StringFixed(4), ""},
		{"Operaciones", len(r.Purchases), len(r.Sales)},
	}
	for len(rows) < BlockRows {
		rows = append(rows, []any{"", "", ""})
	}
	return rows
}
