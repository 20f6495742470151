package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cambista/internal/amqp"
	"cambista/internal/core"
	applog "cambista/internal/log"
	"cambista/internal/report"
	"cambista/internal/sheets"
)

// TransactionSource is where the worker reads transactions from.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, force bool) ([]core.Transaction, error)
}

// ReportWorker keeps the exported monthly balance in step with mutations.
type ReportWorker struct {
	source TransactionSource
	writer sheets.ReportWriter
	opts   report.Options
	logger *slog.Logger
	now    func() time.Time
}

func NewReportWorker(source TransactionSource, writer sheets.ReportWriter, opts report.Options, logger *slog.Logger) *ReportWorker {
	if logger == nil {
		logger = slog.Default().With(applog.FieldComponent, applog.ComponentWorker)
	}
	return &ReportWorker{
		source: source,
		writer: writer,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// HandleMutation re-exports the month a transaction event touched. Events
// without a readable date refresh the current month. Client events do not
// move the balance and are acknowledged as-is.
func (w *ReportWorker) HandleMutation(ctx context.Context, msg *amqp.MutationMessage) error {
	fields := applog.NewFields().WithMutation(msg.Entity, msg.Action, msg.ID)
	if msg.Entity != amqp.EntityTransaction {
		w.logger.DebugContext(ctx, "Ignoring non-transaction event", fields.ToSlice()...)
		return nil
	}

	period, ok := core.ParsePeriod(msg.Date)
	if !ok {
		period = w.currentPeriod()
	}

	w.logger.InfoContext(ctx, "Processing mutation event", fields.WithPeriod(period.Year, period.Month).ToSlice()...)
	if _, err := w.ExportPeriod(ctx, period, true); err != nil {
		return fmt.Errorf("export %s: %w", period, err)
	}
	return nil
}

// ExportPeriod aggregates p and hands it to the writer. force refetches the
// transaction list instead of using cached copies.
func (w *ReportWorker) ExportPeriod(ctx context.Context, p core.Period, force bool) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	txs, err := w.source.FetchTransactions(ctx, force)
	if err != nil {
		return "", fmt.Errorf("fetch transactions: %w", err)
	}

	r := report.Aggregate(txs, p, w.opts)
	ref, err := w.writer.WriteMonthlyReport(ctx, r)
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	w.logger.InfoContext(ctx, "Report exported",
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		applog.FieldCount, len(r.Purchases)+len(r.Sales),
		applog.FieldSheetsRef, ref)
	return ref, nil
}

// ExportCurrentMonth refreshes the running month. It backs the periodic
// catch-up for events that never arrived.
func (w *ReportWorker) ExportCurrentMonth(ctx context.Context) (string, error) {
	return w.ExportPeriod(ctx, w.currentPeriod(), true)
}

func (w *ReportWorker) currentPeriod() core.Period {
	now := w.now()
	return core.Period{Year: now.Year(), Month: int(now.Month())}
}
