// Package report computes the monthly cash balance from a transaction list.
//
// Everything here is a pure function of its inputs: no I/O, no shared
// state, and the input slice is never modified.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"cambista/internal/core"
)

// Options tunes which transactions count towards the balance.
type Options struct {
	// CompletedOnly restricts the balance to transactions whose status is
	// exactly core.StatusCompleted.
	CompletedOnly bool
}

// DefaultOptions reports realized cash only.
func DefaultOptions() Options {
	return Options{CompletedOnly: true}
}

// Report is the balance of one period plus the movements behind it.
type Report struct {
	Period    core.Period
	Summary   core.MonthlySummary
	Purchases []core.Transaction
	Sales     []core.Transaction
}

// Aggregate builds the report of period p. Transactions whose date cannot be
// parsed are ignored.
func Aggregate(txs []core.Transaction, p core.Period, opts Options) Report {
	r := Report{
		Period:    p,
		Purchases: []core.Transaction{},
		Sales:     []core.Transaction{},
		Summary:   zeroSummary(),
	}

	for _, t := range txs {
		tp, ok := core.ParsePeriod(t.Date)
		if !ok || tp != p {
			continue
		}
		if opts.CompletedOnly && t.Status != core.StatusCompleted {
			continue
		}
		switch t.Kind {
		case core.Purchase:
			r.Purchases = append(r.Purchases, t)
		case core.Sale:
			r.Sales = append(r.Sales, t)
		}
	}

	s := &r.Summary
	for _, t := range r.Purchases {
		s.TotalPurchaseForeign = s.TotalPurchaseForeign.Add(t.ForeignAmount)
		s.TotalPurchaseLocal = s.TotalPurchaseLocal.Add(t.LocalAmount)
	}
	for _, t := range r.Sales {
		s.TotalSaleForeign = s.TotalSaleForeign.Add(t.ForeignAmount)
		s.TotalSaleLocal = s.TotalSaleLocal.Add(t.LocalAmount)
	}
	s.Profit = s.TotalSaleLocal.Sub(s.TotalPurchaseLocal)
	s.AverageRate = averageRate(r.Purchases, r.Sales)

	return r
}

// averageRate is the mean implied rate over both partitions. A zero foreign
// amount contributes a rate of zero.
func averageRate(parts ...[]core.Transaction) decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, part := range parts {
		for _, t := range part {
			sum = sum.Add(t.ImpliedRate())
			n++
		}
	}
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

func zeroSummary() core.MonthlySummary {
	return core.MonthlySummary{
		TotalPurchaseForeign: decimal.Zero,
		TotalPurchaseLocal:   decimal.Zero,
		TotalSaleForeign:     decimal.Zero,
		TotalSaleLocal:       decimal.Zero,
		Profit:               decimal.Zero,
		AverageRate:          decimal.Zero,
	}
}

// AvailableYears returns the distinct years found in txs, most recent first.
func AvailableYears(txs []core.Transaction) []int {
	seen := make(map[int]struct{})
	years := []int{}
	for _, t := range txs {
		p, ok := core.ParsePeriod(t.Date)
		if !ok {
			continue
		}
		if _, dup := seen[p.Year]; dup {
			continue
		}
		seen[p.Year] = struct{}{}
		years = append(years, p.Year)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// ResolveYear keeps selected when it is available and otherwise falls back
// to the most recent available year.
func ResolveYear(years []int, selected int) int {
	if len(years) == 0 {
		return selected
	}
	for _, y := range years {
		if y == selected {
			return selected
		}
	}
	return years[0]
}
