package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cambista/internal/amqp"
	"cambista/internal/core"
	"cambista/internal/report"
	sheetsmem "cambista/internal/sheets/memory"
)

type fakeSource struct {
	txs    []core.Transaction
	err    error
	calls  int
	forced []bool
}

func (f *fakeSource) FetchTransactions(_ context.Context, force bool) ([]core.Transaction, error) {
	f.calls++
	f.forced = append(f.forced, force)
	return f.txs, f.err
}

type failingWriter struct{}

func (failingWriter) WriteMonthlyReport(context.Context, report.Report) (string, error) {
	return "", errors.New("quota exceeded")
}

func sampleTransactions() []core.Transaction {
	return []core.Transaction{
		{ID: 1, Date: "2025-11-03T10:00:00", Kind: core.Purchase, Status: core.StatusCompleted,
			ForeignAmount: decimal.NewFromInt(100), LocalAmount: decimal.RequireFromString("375.50")},
		{ID: 2, Date: "2025-11-04 09:30:00", Kind: core.Sale, Status: core.StatusCompleted,
			ForeignAmount: decimal.NewFromInt(50), LocalAmount: decimal.NewFromInt(190)},
		{ID: 3, Date: "2025-10-30T18:00:00", Kind: core.Sale, Status: core.StatusCompleted,
			ForeignAmount: decimal.NewFromInt(10), LocalAmount: decimal.NewFromInt(38)},
	}
}

func newTestWorker(src *fakeSource) (*ReportWorker, *sheetsmem.Store) {
	store := sheetsmem.New()
	w := NewReportWorker(src, store, report.DefaultOptions(), nil)
	w.now = func() time.Time { return time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC) }
	return w, store
}

func TestHandleMutation_ExportsEventMonth(t *testing.T) {
	src := &fakeSource{txs: sampleTransactions()}
	w, store := newTestWorker(src)

	msg := amqp.NewMutationMessage(amqp.EntityTransaction, amqp.ActionCreate, 2, "2025-11-04 09:30:00")
	if err := w.HandleMutation(context.Background(), msg); err != nil {
		t.Fatalf("HandleMutation: %v", err)
	}

	r, ok := store.Report(core.Period{Year: 2025, Month: 11})
	if !ok {
		t.Fatal("November report not exported")
	}
	if len(r.Purchases) != 1 || len(r.Sales) != 1 {
		t.Errorf("partitions = %d/%d", len(r.Purchases), len(r.Sales))
	}
	if !r.Summary.Profit.Equal(decimal.RequireFromString("-185.50")) {
		t.Errorf("profit = %s", r.Summary.Profit)
	}
	if len(src.forced) != 1 || !src.forced[0] {
		t.Errorf("expected a forced fetch, got %v", src.forced)
	}
}

func TestHandleMutation_NoDateUsesCurrentMonth(t *testing.T) {
	src := &fakeSource{txs: sampleTransactions()}
	w, store := newTestWorker(src)

	msg := amqp.NewMutationMessage(amqp.EntityTransaction, amqp.ActionCreate, 9, "")
	if err := w.HandleMutation(context.Background(), msg); err != nil {
		t.Fatalf("HandleMutation: %v", err)
	}
	r, ok := store.Report(core.Period{Year: 2025, Month: 10})
	if !ok || len(r.Sales) != 1 {
		t.Errorf("October report = %+v, %v", r, ok)
	}
}

func TestHandleMutation_IgnoresClientEvents(t *testing.T) {
	src := &fakeSource{txs: sampleTransactions()}
	w, store := newTestWorker(src)

	msg := amqp.NewMutationMessage(amqp.EntityClient, amqp.ActionDelete, 4, "")
	if err := w.HandleMutation(context.Background(), msg); err != nil {
		t.Fatalf("HandleMutation: %v", err)
	}
	if src.calls != 0 || store.Writes() != 0 {
		t.Errorf("client event triggered %d fetches and %d writes", src.calls, store.Writes())
	}
}

func TestHandleMutation_ErrorsRequeue(t *testing.T) {
	msg := amqp.NewMutationMessage(amqp.EntityTransaction, amqp.ActionCreate, 1, "2025-11-03")

	src := &fakeSource{err: &core.ConnectivityError{Op: "list", Err: errors.New("connection refused")}}
	w, _ := newTestWorker(src)
	if err := w.HandleMutation(context.Background(), msg); !errors.Is(err, core.ErrConnectivity) {
		t.Errorf("expected connectivity error, got %v", err)
	}

	w = NewReportWorker(&fakeSource{txs: sampleTransactions()}, failingWriter{}, report.DefaultOptions(), nil)
	if err := w.HandleMutation(context.Background(), msg); err == nil {
		t.Error("expected writer error")
	}
}

func TestExportPeriod(t *testing.T) {
	src := &fakeSource{txs: sampleTransactions()}
	w, _ := newTestWorker(src)

	ref, err := w.ExportPeriod(context.Background(), core.Period{Year: 2025, Month: 11}, false)
	if err != nil || ref != "mem:2025-11" {
		t.Fatalf("ExportPeriod = %q, %v", ref, err)
	}
	if src.forced[0] {
		t.Error("ExportPeriod(force=false) forced a refetch")
	}

	if _, err := w.ExportPeriod(context.Background(), core.Period{Year: 2025, Month: 0}, false); !errors.Is(err, core.ErrInvalidMonth) {
		t.Errorf("expected ErrInvalidMonth, got %v", err)
	}
	if src.calls != 1 {
		t.Errorf("invalid period fetched transactions")
	}
}

func TestExportCurrentMonth(t *testing.T) {
	src := &fakeSource{txs: sampleTransactions()}
	w, _ := newTestWorker(src)

	ref, err := w.ExportCurrentMonth(context.Background())
	if err != nil || ref != "mem:2025-10" {
		t.Fatalf("ExportCurrentMonth = %q, %v", ref, err)
	}
}
