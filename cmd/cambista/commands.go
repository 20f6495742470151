package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"cambista/internal/agent"
	"cambista/internal/core"
	applog "cambista/internal/log"
	"cambista/internal/report"
	"cambista/internal/sheets"
)

// Repository is what the commands need from the data layer.
type Repository interface {
	Login(ctx context.Context, email, password string) (core.User, error)
	Logout(ctx context.Context) error
	CurrentSessionUser(ctx context.Context) (core.User, bool)
	FetchClients(ctx context.Context, force bool) ([]core.Client, error)
	FetchTransactions(ctx context.Context, force bool) ([]core.Transaction, error)
	SaveClient(ctx context.Context, in core.ClientInput) (bool, error)
	EditClient(ctx context.Context, id int, in core.ClientInput) (bool, error)
	DeleteClient(ctx context.Context, id int) (bool, error)
	SaveTransaction(ctx context.Context, in core.TransactionInput) (bool, error)
	MonthlySummary(ctx context.Context, p core.Period) (core.MonthlySummary, error)
	Chat(ctx context.Context, message string) (string, error)
}

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errNotLoggedIn = errors.New("not logged in: run 'cambista login' first")

const usage = `usage: cambista <command> [flags]

commands:
  login             authenticate and persist the session
  logout            clear the session and every cached list
  whoami            show the logged-in operator
  clients           list clients
  client-save       register a client
  client-edit       update a client
  client-delete     delete a client
  transactions      list transactions
  transaction-save  register a purchase or sale
  report            monthly cash balance
  chat              talk to the back office assistant
`

type command struct {
	name string
	run  func(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error
}

var commands = []command{
	{"login", (*app).login},
	{"logout", (*app).logout},
	{"whoami", (*app).whoami},
	{"clients", (*app).clients},
	{"client-save", (*app).clientSave},
	{"client-edit", (*app).clientEdit},
	{"client-delete", (*app).clientDelete},
	{"transactions", (*app).transactions},
	{"transaction-save", (*app).transactionSave},
	{"report", (*app).report},
	{"chat", (*app).chat},
}

type app struct {
	repo       Repository
	exporter   sheets.ReportWriter
	reportOpts report.Options
	in         io.Reader
	out        io.Writer
	errOut     io.Writer
	now        func() time.Time
	logger     *applog.Logger
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.errOut, usage)
		return exitUsage
	}
	name := args[0]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		fs.SetOutput(a.errOut)
		err := c.run(a, ctx, fs, args[1:])
		switch {
		case err == nil:
			return exitOK
		case errors.Is(err, flag.ErrHelp):
			return exitOK
		case isUsage(err):
			fmt.Fprintln(a.errOut, "error:", err)
			fs.Usage()
			return exitUsage
		default:
			a.logger.DebugContext(ctx, "Command failed", applog.FieldOperation, name, applog.FieldError, err)
			fmt.Fprintln(a.errOut, "error:", err)
			return exitError
		}
	}
	fmt.Fprintf(a.errOut, "unknown command %q\n\n%s", name, usage)
	return exitUsage
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func isUsage(err error) bool {
	var u usageError
	return errors.As(err, &u)
}

// parse reports flag errors as usage errors.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	return nil
}

func (a *app) login(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var form loginForm
	fs.StringVar(&form.Email, "email", "", "operator email")
	fs.StringVar(&form.Password, "password", "", "password (read from stdin when empty)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if form.Password == "" && strings.TrimSpace(form.Email) != "" {
		fmt.Fprint(a.errOut, "Password: ")
		line, err := bufio.NewReader(a.in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		form.Password = strings.TrimRight(line, "\r\n")
	}
	if err := validateForm(&form); err != nil {
		return err
	}

	user, err := a.repo.Login(ctx, form.Email, form.Password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s <%s>\n", user.FullName, user.Email)
	return nil
}

func (a *app) logout(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.repo.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *app) whoami(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args); err != nil {
		return err
	}
	user, ok := a.repo.CurrentSessionUser(ctx)
	if !ok {
		return errNotLoggedIn
	}
	fmt.Fprintf(a.out, "%s <%s> (id %d)\n", user.FullName, user.Email, user.ID)
	return nil
}

func (a *app) clients(ctx context.Context, fs *flag.FlagSet, args []string) error {
	refresh := fs.Bool("refresh", false, "bypass the caches")
	query := fs.String("q", "", "filter by name or document")
	if err := parse(fs, args); err != nil {
		return err
	}
	list, err := a.repo.FetchClients(ctx, *refresh)
	if err != nil {
		return err
	}
	list = core.FilterClients(list, *query)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDOCUMENT\tPHONE\tADDRESS")
	for _, c := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Document, c.Phone, c.Address)
	}
	return w.Flush()
}

func (a *app) clientSave(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var form clientForm
	form.bind(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := validateForm(&form); err != nil {
		return err
	}
	if _, err := a.repo.SaveClient(ctx, form.input()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Client %q saved\n", form.Name)
	return nil
}

func (a *app) clientEdit(ctx context.Context, fs *flag.FlagSet, args []string) error {
	id := fs.Int("id", 0, "client id (required)")
	var form clientForm
	form.bind(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return usagef("-id is required")
	}
	if err := validateForm(&form); err != nil {
		return err
	}
	if _, err := a.repo.EditClient(ctx, *id, form.input()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Client %d updated\n", *id)
	return nil
}

func (a *app) clientDelete(ctx context.Context, fs *flag.FlagSet, args []string) error {
	id := fs.Int("id", 0, "client id (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return usagef("-id is required")
	}
	if _, err := a.repo.DeleteClient(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Client %d deleted\n", *id)
	return nil
}

func (a *app) transactions(ctx context.Context, fs *flag.FlagSet, args []string) error {
	refresh := fs.Bool("refresh", false, "bypass the caches")
	kindName := fs.String("kind", "", "compra or venta")
	query := fs.String("q", "", "filter by client or currency")
	if err := parse(fs, args); err != nil {
		return err
	}
	var kind *core.MovementKind
	if *kindName != "" {
		k, ok := core.ParseMovementKind(*kindName)
		if !ok {
			return usagef("unknown kind %q", *kindName)
		}
		kind = &k
	}

	list, err := a.repo.FetchTransactions(ctx, *refresh)
	if err != nil {
		return err
	}
	list = core.FilterTransactions(list, kind, *query)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tKIND\tCLIENT\tCURRENCY\tAMOUNT\tLOCAL\tRATE\tSTATUS")
	for _, t := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date, t.Kind, t.ClientName, t.Currency,
			t.ForeignAmount.StringFixed(2), core.FormatLocal(t.LocalAmount),
			t.ImpliedRate().StringFixed(4), t.Status)
	}
	return w.Flush()
}

func (a *app) transactionSave(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var form transactionForm
	fs.IntVar(&form.ClientID, "client", 0, "client id (required)")
	fs.StringVar(&form.Kind, "kind", "compra", "compra or venta")
	fs.StringVar(&form.Currency, "currency", "Dólares", "Dólares, Euros or Soles")
	fs.StringVar(&form.Method, "method", "Efectivo", "Efectivo, Transferencia, Yape/Plin or Otro")
	fs.StringVar(&form.Status, "status", string(core.StatusCompleted), "Completada, Pendiente or Anulada")
	fs.StringVar(&form.Amount, "amount", "", "foreign currency amount (required)")
	fs.StringVar(&form.Rate, "rate", "", "exchange rate (required)")
	fs.StringVar(&form.Detail, "detail", "", "free text note")
	if err := parse(fs, args); err != nil {
		return err
	}

	user, ok := a.repo.CurrentSessionUser(ctx)
	if !ok {
		return errNotLoggedIn
	}
	if err := validateForm(&form); err != nil {
		return err
	}
	kind, ok := core.ParseMovementKind(form.Kind)
	if !ok {
		return usagef("unknown kind %q", form.Kind)
	}
	amt, err := core.ParseAmount(form.Amount)
	if err != nil {
		return usagef("-amount: %v", err)
	}
	rate, err := core.ParseAmount(form.Rate)
	if err != nil {
		return usagef("-rate: %v", err)
	}

	in := core.TransactionInput{
		ClientID:      form.ClientID,
		UserID:        user.ID,
		Date:          a.now(),
		Kind:          kind,
		Currency:      form.Currency,
		PaymentMethod: form.Method,
		Status:        core.Status(form.Status),
		Amount:        amt,
		Rate:          rate,
		Detail:        form.Detail,
	}
	if _, err := a.repo.SaveTransaction(ctx, in); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s of %s %s saved (%s)\n", kind, amt.StringFixed(2), form.Currency, core.FormatLocal(in.LocalAmount()))
	return nil
}

func (a *app) report(ctx context.Context, fs *flag.FlagSet, args []string) error {
	now := a.now()
	year := fs.Int("year", now.Year(), "year")
	month := fs.Int("month", int(now.Month()), "month (1-12)")
	refresh := fs.Bool("refresh", false, "bypass the caches")
	server := fs.Bool("server", false, "ask the server for its balance instead of computing it")
	export := fs.Bool("export", false, "write the balance to the configured exporter")
	if err := parse(fs, args); err != nil {
		return err
	}
	p := core.Period{Year: *year, Month: *month}
	if err := p.Validate(); err != nil {
		return usagef("-month: %v", err)
	}

	if *server {
		s, err := a.repo.MonthlySummary(ctx, p)
		if err != nil {
			return err
		}
		a.printSummary(p, s, -1, -1)
		return nil
	}

	txs, err := a.repo.FetchTransactions(ctx, *refresh)
	if err != nil {
		return err
	}
	years := report.AvailableYears(txs)
	if y := report.ResolveYear(years, p.Year); y != p.Year {
		fmt.Fprintf(a.errOut, "no movements in %d, showing %d\n", p.Year, y)
		p.Year = y
	}
	r := report.Aggregate(txs, p, a.reportOpts)
	a.printSummary(p, r.Summary, len(r.Purchases), len(r.Sales))

	if !*export {
		return nil
	}
	if a.exporter == nil {
		return errors.New("no exporter configured: set EXPORT_BACKEND")
	}
	ref, err := a.exporter.WriteMonthlyReport(ctx, r)
	if err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	fmt.Fprintf(a.out, "Exported to %s\n", ref)
	return nil
}

// printSummary omits the counts when they are negative.
func (a *app) printSummary(p core.Period, s core.MonthlySummary, purchases, sales int) {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Cuadre %s\n", p)
	fmt.Fprintf(w, "Compras\t%s\t%s\n", s.TotalPurchaseForeign.StringFixed(2), core.FormatLocal(s.TotalPurchaseLocal))
	fmt.Fprintf(w, "Ventas\t%s\t%s\n", s.TotalSaleForeign.StringFixed(2), core.FormatLocal(s.TotalSaleLocal))
	fmt.Fprintf(w, "Utilidad\t\t%s\n", core.FormatLocal(s.Profit))
	fmt.Fprintf(w, "Tasa promedio\t%s\t\n", s.AverageRate.StringFixed(4))
	if purchases >= 0 && sales >= 0 {
		fmt.Fprintf(w, "Operaciones\t%d compras\t%d ventas\n", purchases, sales)
	}
	w.Flush()
}

func (a *app) chat(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := parse(fs, args); err != nil {
		return err
	}
	session := agent.NewSession(a.repo, a.logger.WithComponent(applog.ComponentAgent))

	// One-shot mode: the remaining arguments are the message.
	if fs.NArg() > 0 {
		reply, ok := session.Send(ctx, strings.Join(fs.Args(), " "))
		if ok {
			fmt.Fprintln(a.out, reply.Text)
		}
		return nil
	}

	fmt.Fprintln(a.out, session.Messages()[0].Text)
	scanner := bufio.NewScanner(a.in)
	for {
		if a.in == os.Stdin {
			fmt.Fprint(a.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reply, ok := session.Send(ctx, scanner.Text())
		if !ok {
			continue
		}
		fmt.Fprintln(a.out, reply.Text)
	}
}
