package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/notify"
	"fintrack/internal/summary"
	"fintrack/internal/worker"
)

const (
	collTransactions = "transactions"
	collBudgets      = "budgets"
	collSettings     = "settings"

	DefaultSummaryCacheSize = 24
	DefaultCleanupInterval  = 5 * time.Minute
)

// LedgerStore is the persistence the service writes through.
type LedgerStore interface {
	Bootstrap(ctx context.Context) error
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	UpsertTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	ListBudgets(ctx context.Context) ([]core.Budget, error)
	UpsertBudget(ctx context.Context, b core.Budget) error
	DeleteBudget(ctx context.Context, id string) error
	GetSettings(ctx context.Context) (core.Settings, error)
	SaveSettings(ctx context.Context, settings core.Settings) error
	Reset(ctx context.Context) error
}

var _ LedgerStore = (*ledger.Store)(nil)

type Options struct {
	Store    LedgerStore
	Notifier notify.Notifier
	Metrics  metrics.Recorder
	Logger   *log.Logger
	Now      func() time.Time

	SummaryCacheSize int
	// SummaryCacheTTL bounds how long a summary may be served. Zero keeps
	// entries until they are invalidated or evicted.
	SummaryCacheTTL time.Duration
	CleanupInterval time.Duration
}

type summaryEntry struct {
	summary core.MonthlySummary
	today   core.Date
}

// FinanceService serves reads from cached collections and applies writes
// optimistically, persisting them in the background one at a time per
// collection.
type FinanceService struct {
	store    LedgerStore
	notifier notify.Notifier
	metrics  metrics.Recorder
	logger   *log.Logger
	now      func() time.Time

	txs      *lane[[]core.Transaction]
	budgets  *lane[[]core.Budget]
	settings *lane[core.Settings]

	group singleflight.Group

	summaries *cache.LRUCache[summaryEntry]
	manager   *cache.Manager
	// sumMu orders summary invalidation against summary caching.
	sumMu sync.Mutex
	gen   uint64

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// New bootstraps the store and starts the write queues.
func New(ctx context.Context, opts Options) (*FinanceService, error) {
	if opts.Store == nil {
		return nil, errors.New("finance service requires a ledger store")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Func(func(context.Context, notify.Notification) {})
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SummaryCacheSize <= 0 {
		opts.SummaryCacheSize = DefaultSummaryCacheSize
	}
	logger := log.OrDiscard(opts.Logger)

	if err := opts.Store.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap ledger: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &FinanceService{
		store:     opts.Store,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		logger:    logger.WithComponent(log.ComponentService),
		now:       opts.Now,
		summaries: cache.NewLRUCache[summaryEntry](opts.SummaryCacheSize, opts.SummaryCacheTTL).WithClock(opts.Now),
		manager:   cache.NewManager(logger),
		ctx:       runCtx,
		cancel:    cancel,
	}
	s.txs = newLane(collTransactions, opts.Store.ListTransactions, transactionsEqual, true, logger)
	s.budgets = newLane(collBudgets, opts.Store.ListBudgets, budgetsEqual, true, logger)
	s.settings = newLane(collSettings, opts.Store.GetSettings, func(a, b core.Settings) bool { return a == b }, false, logger)

	for _, q := range s.queues() {
		if err := q.Start(runCtx); err != nil {
			cancel()
			return nil, err
		}
	}

	s.manager.Register(s.summaries)
	interval := opts.CleanupInterval
	if interval == 0 && opts.SummaryCacheTTL > 0 {
		interval = DefaultCleanupInterval
	}
	s.manager.StartCleanup(interval)

	s.logger.Info("Finance service started", log.FieldOperation, log.OpStartup)
	return s, nil
}

func (s *FinanceService) queues() []*worker.WriteQueue {
	return []*worker.WriteQueue{s.txs.queue, s.budgets.queue, s.settings.queue}
}

func (s *FinanceService) isClosed() bool { return s.closed.Load() }

// Transactions returns the current transaction list, newest first, including
// mutations not yet persisted. The first call blocks until the list is loaded.
func (s *FinanceService) Transactions(ctx context.Context) ([]core.Transaction, error) {
	v, err := s.txs.get(ctx, s)
	if err != nil {
		return nil, err
	}
	return slices.Clone(v), nil
}

func (s *FinanceService) Budgets(ctx context.Context) ([]core.Budget, error) {
	v, err := s.budgets.get(ctx, s)
	if err != nil {
		return nil, err
	}
	return slices.Clone(v), nil
}

func (s *FinanceService) Settings(ctx context.Context) (core.Settings, error) {
	return s.settings.get(ctx, s)
}

// MonthlySummary returns the summary of month as of today. Summaries are
// cached per month until a mutation touches that month or the one before
// it, or the day changes.
func (s *FinanceService) MonthlySummary(ctx context.Context, month core.Month) (core.MonthlySummary, error) {
	if err := month.Validate(); err != nil {
		return core.MonthlySummary{}, core.Invalid("month", err)
	}
	if s.isClosed() {
		return core.MonthlySummary{}, ErrClosed
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.txs.ensure(gctx, s) })
	g.Go(func() error { return s.budgets.ensure(gctx, s) })
	if err := g.Wait(); err != nil {
		return core.MonthlySummary{}, err
	}

	today := core.DateOf(s.now())
	key := month.String()
	if e, ok := s.summaries.Get(key); ok && e.today.Equal(today) {
		s.metrics.SummaryLookup(true)
		return cloneSummary(e.summary), nil
	}
	s.metrics.SummaryLookup(false)

	s.sumMu.Lock()
	gen := s.gen
	s.sumMu.Unlock()

	txs, _ := s.txs.coll.Get()
	budgets, _ := s.budgets.coll.Get()
	sum := summary.Compute(txs, budgets, month, today)

	s.sumMu.Lock()
	if s.gen == gen {
		s.summaries.Set(key, summaryEntry{summary: sum, today: today})
	}
	s.sumMu.Unlock()

	return cloneSummary(sum), nil
}

// SubmitTransaction creates or replaces a transaction by id.
func (s *FinanceService) SubmitTransaction(ctx context.Context, t core.Transaction) (*Mutation, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return s.txs.submit(ctx, s, change[[]core.Transaction]{
		op: notify.OpSaveTransaction,
		apply: func(list []core.Transaction) []core.Transaction {
			return ledger.UpsertTransaction(list, t)
		},
		write: func(ctx context.Context) error {
			return s.store.UpsertTransaction(ctx, t)
		},
		months: func(before []core.Transaction) []core.Month {
			months := []core.Month{t.Month()}
			if old, ok := ledger.FindTransaction(before, t.ID); ok {
				months = append(months, old.Month())
			}
			return months
		},
	})
}

func (s *FinanceService) DeleteTransaction(ctx context.Context, id string) (*Mutation, error) {
	if id == "" {
		return nil, rejected("id", ErrMissingID)
	}
	return s.txs.submit(ctx, s, change[[]core.Transaction]{
		op: notify.OpDeleteTransaction,
		check: func(view []core.Transaction) error {
			if _, ok := ledger.FindTransaction(view, id); !ok {
				return rejected("id", ErrUnknownTransaction)
			}
			return nil
		},
		apply: func(list []core.Transaction) []core.Transaction {
			return ledger.RemoveTransaction(list, id)
		},
		write: func(ctx context.Context) error {
			return s.store.DeleteTransaction(ctx, id)
		},
		months: func(before []core.Transaction) []core.Month {
			if old, ok := ledger.FindTransaction(before, id); ok {
				return []core.Month{old.Month()}
			}
			return nil
		},
	})
}

// SubmitBudget saves a budget. A budget with the same month and category
// as an existing one replaces it. The category of an existing budget id is
// fixed.
func (s *FinanceService) SubmitBudget(ctx context.Context, b core.Budget) (*Mutation, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return s.budgets.submit(ctx, s, s.budgetChange(b, func(view []core.Budget) error {
		if old, ok := ledger.FindBudget(view, b.ID); ok && old.CategoryID != b.CategoryID {
			return rejected("categoryId", ErrBudgetCategoryChange)
		}
		return nil
	}))
}

// CreateBudget saves a new budget and refuses to replace an existing one.
func (s *FinanceService) CreateBudget(ctx context.Context, b core.Budget) (*Mutation, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return s.budgets.submit(ctx, s, s.budgetChange(b, func(view []core.Budget) error {
		if ledger.IndexBudget(view, b) >= 0 {
			return rejected("categoryId", ErrDuplicateBudget)
		}
		return nil
	}))
}

func (s *FinanceService) budgetChange(b core.Budget, check func([]core.Budget) error) change[[]core.Budget] {
	return change[[]core.Budget]{
		op:    notify.OpSaveBudget,
		check: check,
		apply: func(list []core.Budget) []core.Budget {
			return ledger.UpsertBudget(list, b)
		},
		write: func(ctx context.Context) error {
			return s.store.UpsertBudget(ctx, b)
		},
		months: func(before []core.Budget) []core.Month {
			months := []core.Month{b.Month}
			if i := ledger.IndexBudget(before, b); i >= 0 {
				months = append(months, before[i].Month)
			}
			return months
		},
	}
}

func (s *FinanceService) DeleteBudget(ctx context.Context, id string) (*Mutation, error) {
	if id == "" {
		return nil, rejected("id", ErrMissingID)
	}
	return s.budgets.submit(ctx, s, change[[]core.Budget]{
		op: notify.OpDeleteBudget,
		check: func(view []core.Budget) error {
			if _, ok := ledger.FindBudget(view, id); !ok {
				return rejected("id", ErrUnknownBudget)
			}
			return nil
		},
		apply: func(list []core.Budget) []core.Budget {
			return ledger.RemoveBudget(list, id)
		},
		write: func(ctx context.Context) error {
			return s.store.DeleteBudget(ctx, id)
		},
		months: func(before []core.Budget) []core.Month {
			if old, ok := ledger.FindBudget(before, id); ok {
				return []core.Month{old.Month}
			}
			return nil
		},
	})
}

func (s *FinanceService) SubmitSettings(ctx context.Context, settings core.Settings) (*Mutation, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return s.settings.submit(ctx, s, change[core.Settings]{
		op:    notify.OpSaveSettings,
		apply: func(core.Settings) core.Settings { return settings },
		write: func(ctx context.Context) error {
			return s.store.SaveSettings(ctx, settings)
		},
	})
}

// Reset waits for outstanding writes, wipes the store, reseeds it and
// reloads every collection.
func (s *FinanceService) Reset(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.txs.mu.Lock()
	defer s.txs.mu.Unlock()
	s.budgets.mu.Lock()
	defer s.budgets.mu.Unlock()
	s.settings.mu.Lock()
	defer s.settings.mu.Unlock()

	for _, q := range s.queues() {
		if err := q.Flush(ctx); err != nil {
			return err
		}
	}
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	if err := s.txs.reload(ctx, s); err != nil {
		return err
	}
	if err := s.budgets.reload(ctx, s); err != nil {
		return err
	}
	if err := s.settings.reload(ctx, s); err != nil {
		return err
	}
	s.purgeSummaries()
	s.logger.Info("Ledger reset", log.FieldOperation, log.OpReset)
	return nil
}

// Close drains the write queues and stops background work. Later calls
// return ErrClosed.
func (s *FinanceService) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.logger.Info("Shutting down finance service", log.FieldOperation, log.OpShutdown)

	var g errgroup.Group
	for _, q := range s.queues() {
		g.Go(func() error { return q.Stop(ctx) })
	}
	err := g.Wait()
	s.manager.Stop()
	s.cancel()
	return err
}

// invalidate drops the summaries of months and of the months right after
// them, whose deltas compare against the changed month.
func (s *FinanceService) invalidate(months []core.Month) {
	if len(months) == 0 {
		return
	}
	keys := make(map[string]struct{}, len(months)*2)
	for _, m := range months {
		keys[m.String()] = struct{}{}
		keys[m.Next().String()] = struct{}{}
	}
	s.sumMu.Lock()
	defer s.sumMu.Unlock()
	s.gen++
	s.summaries.DeleteFunc(func(key string) bool {
		_, ok := keys[key]
		return ok
	})
}

func (s *FinanceService) purgeSummaries() {
	s.sumMu.Lock()
	defer s.sumMu.Unlock()
	s.gen++
	s.summaries.Purge()
}

func cloneSummary(sum core.MonthlySummary) core.MonthlySummary {
	sum.CategoryBreakdown = slices.Clone(sum.CategoryBreakdown)
	sum.DailySpending = slices.Clone(sum.DailySpending)
	return sum
}

func transactionsEqual(a, b []core.Transaction) bool {
	return slices.EqualFunc(a, b, func(x, y core.Transaction) bool {
		return x.ID == y.ID &&
			x.Date.Equal(y.Date) &&
			x.Amount.Equal(y.Amount) &&
			x.Kind == y.Kind &&
			x.CategoryID == y.CategoryID &&
			x.Note == y.Note
	})
}

func budgetsEqual(a, b []core.Budget) bool {
	return slices.EqualFunc(a, b, func(x, y core.Budget) bool {
		return x.ID == y.ID &&
			x.Month == y.Month &&
			x.CategoryID == y.CategoryID &&
			x.Limit.Equal(y.Limit)
	})
}
