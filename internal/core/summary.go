package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Period selects a calendar month.
type Period struct {
	Year  int
	Month int // 1-12
}

// MonthlySummary is the cash balance of one month. It is derived on demand
// and never persisted.
type MonthlySummary struct {
	TotalPurchaseForeign decimal.Decimal `json:"TotalCompraUSD"`
	TotalPurchaseLocal   decimal.Decimal `json:"TotalCompraSoles"`
	TotalSaleForeign     decimal.Decimal `json:"TotalVentaUSD"`
	TotalSaleLocal       decimal.Decimal `json:"TotalVentaSoles"`
	Profit               decimal.Decimal `json:"Utilidad"`
	AverageRate          decimal.Decimal `json:"TasaPromedio"`
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Validate checks the month range.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// ParsePeriod extracts year and month from "2025-11-21", "2025-11-21T10:00:00"
// or "2025-11-21 10:00:00". It never fails loudly: ok is false for anything
// it cannot read.
func ParsePeriod(date string) (Period, bool) {
	datePart := date
	if i := strings.IndexAny(date, "T "); i >= 0 {
		datePart = date[:i]
	}
	parts := strings.Split(datePart, "-")
	if len(parts) < 2 {
		return Period{}, false
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, false
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return Period{}, false
	}
	return Period{Year: year, Month: month}, true
}
