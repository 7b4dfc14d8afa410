package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/summary"
)

var errUsage = errors.New("usage")

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"bootstrap":    runBootstrap,
	"transactions": runTransactions,
	"add":          runAdd,
	"delete":       runDelete,
	"budgets":      runBudgets,
	"budget":       runBudget,
	"summary":      runSummary,
	"settings":     runSettings,
	"reset":        runReset,
	"serve":        runServe,
}

var stdout io.Writer = os.Stdout

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return errUsage
	}
	return nil
}

// optionalMonth parses v, or returns the zero month when v is empty.
func optionalMonth(v string) (core.Month, error) {
	if v == "" {
		return core.Month{}, nil
	}
	return core.ParseMonth(v)
}

func runBootstrap(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet("bootstrap"), args); err != nil {
		return err
	}
	txs, err := a.service.Transactions(ctx)
	if err != nil {
		return err
	}
	budgets, err := a.service.Budgets(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "ledger ready: %d transactions, %d budgets (%s backend)\n", len(txs), len(budgets), a.cfg.Backend)
	return nil
}

func runTransactions(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("transactions")
	monthFlag := fs.String("month", "", "only list transactions of this month (YYYY-MM)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	month, err := optionalMonth(*monthFlag)
	if err != nil {
		return err
	}

	txs, err := a.service.Transactions(ctx)
	if err != nil {
		return err
	}
	settings, err := a.service.Settings(ctx)
	if err != nil {
		return err
	}
	if !month.IsZero() {
		txs = summary.TransactionsForMonth(txs, month)
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTYPE\tCATEGORY\tAMOUNT\tNOTE\tID")
	for _, t := range txs {
		amount := settings.Format(t.Amount)
		if t.Kind == core.Expense {
			amount = "-" + amount
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.Date, t.Kind, t.CategoryID, amount, t.Note, t.ID)
	}
	return w.Flush()
}

func runAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("add")
	amountFlag := fs.String("amount", "", "positive amount, e.g. 12.50")
	kindFlag := fs.String("kind", string(core.Expense), "income or expense")
	categoryFlag := fs.String("category", "", "category id")
	dateFlag := fs.String("date", "", "date (YYYY-MM-DD), defaults to today")
	noteFlag := fs.String("note", "", "optional note")
	idFlag := fs.String("id", "", "id of the transaction to replace; a new id is generated when empty")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	amount, err := core.ParseAmount(*amountFlag)
	if err != nil {
		return core.Invalid("amount", err)
	}
	kind, err := core.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	date := core.DateOf(time.Now())
	if *dateFlag != "" {
		if date, err = core.ParseDate(*dateFlag); err != nil {
			return err
		}
	}
	id := strings.TrimSpace(*idFlag)
	if id == "" {
		id = core.NewID()
	}

	t, err := core.NewTransaction(id, date, amount, kind, *categoryFlag, *noteFlag)
	if err != nil {
		return err
	}
	m, err := a.service.SubmitTransaction(ctx, t)
	if err != nil {
		return err
	}
	if err := a.settle(ctx, m); err != nil {
		return err
	}
	fmt.Fprintln(stdout, t.ID)
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("delete")
	idFlag := fs.String("id", "", "transaction id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	m, err := a.service.DeleteTransaction(ctx, *idFlag)
	if err != nil {
		return err
	}
	return a.settle(ctx, m)
}

func runBudgets(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("budgets")
	monthFlag := fs.String("month", "", "only list budgets of this month (YYYY-MM)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	month, err := optionalMonth(*monthFlag)
	if err != nil {
		return err
	}

	budgets, err := a.service.Budgets(ctx)
	if err != nil {
		return err
	}
	settings, err := a.service.Settings(ctx)
	if err != nil {
		return err
	}
	if !month.IsZero() {
		budgets = summary.BudgetsForMonth(budgets, month)
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tCATEGORY\tLIMIT\tID")
	for _, b := range budgets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Month, b.CategoryID, settings.Format(b.Limit), b.ID)
	}
	return w.Flush()
}

func runBudget(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("budget")
	categoryFlag := fs.String("category", "", "expense category id")
	limitFlag := fs.String("limit", "", "positive spending limit")
	monthFlag := fs.String("month", "", "budget month (YYYY-MM), defaults to the current month")
	idFlag := fs.String("id", "", "id of the budget to update; a new budget is created when empty")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	limit, err := core.ParseAmount(*limitFlag)
	if err != nil {
		return core.Invalid("limit", err)
	}
	month := core.CurrentMonth(time.Now())
	if *monthFlag != "" {
		if month, err = core.ParseMonth(*monthFlag); err != nil {
			return err
		}
	}

	id := strings.TrimSpace(*idFlag)
	create := id == ""
	if create {
		id = core.NewID()
	}
	b, err := core.NewBudget(id, month, *categoryFlag, limit)
	if err != nil {
		return err
	}

	submit := a.service.SubmitBudget
	if create {
		submit = a.service.CreateBudget
	}
	m, err := submit(ctx, b)
	if err != nil {
		return err
	}
	if err := a.settle(ctx, m); err != nil {
		return err
	}
	fmt.Fprintln(stdout, b.ID)
	return nil
}

func runSummary(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("summary")
	monthFlag := fs.String("month", "", "month (YYYY-MM), defaults to the current month")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	month := core.CurrentMonth(time.Now())
	if *monthFlag != "" {
		var err error
		if month, err = core.ParseMonth(*monthFlag); err != nil {
			return err
		}
	}

	sum, err := a.service.MonthlySummary(ctx, month)
	if err != nil {
		return err
	}
	settings, err := a.service.Settings(ctx)
	if err != nil {
		return err
	}
	printSummary(stdout, sum, settings)
	return nil
}

func printSummary(out io.Writer, sum core.MonthlySummary, settings core.Settings) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Month\t%s\n", sum.Month)
	fmt.Fprintf(w, "Income\t%s\t%+.1f%% vs last month\n", settings.Format(sum.TotalIncome), sum.VsLastMonth.Income)
	fmt.Fprintf(w, "Expenses\t%s\t%+.1f%% vs last month\n", settings.Format(sum.TotalExpenses), sum.VsLastMonth.Expenses)
	fmt.Fprintf(w, "Net savings\t%s\n", settings.Format(sum.NetSavings))
	fmt.Fprintf(w, "Budget usage\t%.1f%%\n", sum.BudgetUsage)
	_ = w.Flush()

	if len(sum.CategoryBreakdown) == 0 {
		return
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tSPENT\tSHARE\tBUDGET")
	for _, c := range sum.CategoryBreakdown {
		budget := "-"
		if c.BudgetLimit != nil {
			budget = settings.Format(*c.BudgetLimit)
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n", c.CategoryID, settings.Format(c.Amount), c.ShareOfTotal, budget)
	}
	_ = w.Flush()
}

func runSettings(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("settings")
	codeFlag := fs.String("code", "", "ISO currency code, e.g. EUR")
	symbolFlag := fs.String("symbol", "", "currency symbol, e.g. €")
	weekStartFlag := fs.String("week-start", "", "first day of the week (0-6 or a weekday name)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	current, err := a.service.Settings(ctx)
	if err != nil {
		return err
	}
	if *codeFlag == "" && *symbolFlag == "" && *weekStartFlag == "" {
		fmt.Fprintf(stdout, "currency: %s (%s)\nweek starts: %s\n", current.CurrencyCode, current.CurrencySymbol, current.WeekStartDay)
		return nil
	}

	code, symbol, weekStart := current.CurrencyCode, current.CurrencySymbol, current.WeekStartDay
	if *codeFlag != "" {
		code = *codeFlag
	}
	if *symbolFlag != "" {
		symbol = *symbolFlag
	}
	if *weekStartFlag != "" {
		if weekStart, err = parseWeekday(*weekStartFlag); err != nil {
			return err
		}
	}
	next, err := core.NewSettings(code, symbol, weekStart)
	if err != nil {
		return err
	}
	m, err := a.service.SubmitSettings(ctx, next)
	if err != nil {
		return err
	}
	return a.settle(ctx, m)
}

func parseWeekday(v string) (time.Weekday, error) {
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(v, d.String()) || strings.EqualFold(v, d.String()[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", v)
}

func runReset(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet("reset"), args); err != nil {
		return err
	}
	if err := a.service.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "ledger reset")
	return nil
}

func runServe(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("serve")
	addr := a.cfg.MetricsAddr
	if addr == "" {
		addr = ":9090"
	}
	addrFlag := fs.String("addr", addr, "listen address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:      *addrFlag,
		Reader:    a.service,
		Gatherer:  a.registry,
		Logger:    a.logger,
		RateLimit: a.cfg.HTTPRateLimit,
	})

	ctx, done := cli.GracefulShutdown(a.logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("HTTP server shutdown failed", log.FieldError, err)
		}
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		cli.WaitForShutdown(ctx, done)
		return <-errCh
	}
}
