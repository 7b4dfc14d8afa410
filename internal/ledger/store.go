package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Options configures a Store.
type Options struct {
	// Seed makes Bootstrap generate sample data instead of empty collections.
	Seed bool
	// SeedValue drives the sample generator; 0 picks a random seed.
	SeedValue uint64
	// Settings written on first run. Zero value means core.DefaultSettings.
	Settings core.Settings
	// Now is the clock used for sample data. Defaults to time.Now.
	Now    func() time.Time
	Logger *log.Logger
}

// Store is the durable ledger: transactions, budgets and settings kept as one
// JSON document per slot. Writes are read-modify-write under a mutex, and a
// failed write leaves the slots as they were.
type Store struct {
	slots    storage.SlotStore
	opts     Options
	settings core.Settings
	logger   *log.Logger

	mu sync.Mutex
}

func NewStore(slots storage.SlotStore, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	settings := opts.Settings
	if settings == (core.Settings{}) {
		settings = core.DefaultSettings()
	}
	return &Store{
		slots:    slots,
		opts:     opts,
		settings: settings,
		logger:   log.OrDiscard(opts.Logger).WithComponent(log.ComponentLedger),
	}
}

// Bootstrap populates the three collections and the initialization marker
// on first run. Later calls only read the marker.
func (s *Store) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootstrapLocked(ctx)
}

func (s *Store) bootstrapLocked(ctx context.Context) error {
	_, initialized, err := s.slots.Load(ctx, storage.SlotInitialized)
	if err != nil {
		return storeErr(log.OpBootstrap, err)
	}
	if initialized {
		return nil
	}

	txs := []core.Transaction{}
	budgets := []core.Budget{}
	if s.opts.Seed {
		txs, budgets = NewSeeder(s.opts.SeedValue).Generate(core.DateOf(s.opts.Now()))
	}

	payload := make(map[string][]byte, len(storage.AllSlots))
	for slot, v := range map[string]any{
		storage.SlotTransactions: txs,
		storage.SlotBudgets:      budgets,
		storage.SlotSettings:     s.settings,
		storage.SlotInitialized:  true,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return storeErr(log.OpBootstrap, fmt.Errorf("encode %s: %w", slot, err))
		}
		payload[slot] = data
	}
	if err := s.slots.Save(ctx, payload); err != nil {
		return storeErr(log.OpBootstrap, err)
	}

	s.logger.InfoContext(ctx, "Ledger initialized",
		"transactions", len(txs), "budgets", len(budgets), "seeded", s.opts.Seed)
	return nil
}

// ListTransactions returns the stored transactions in store order.
func (s *Store) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	txs := []core.Transaction{}
	if err := s.load(ctx, storage.SlotTransactions, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// UpsertTransaction replaces the transaction with t's id or prepends t.
func (s *Store) UpsertTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.ListTransactions(ctx)
	if err != nil {
		return err
	}
	if err := s.save(ctx, storage.SlotTransactions, UpsertTransaction(txs, t)); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "Transaction saved", log.FieldTransactionID, t.ID)
	return nil
}

// DeleteTransaction removes the transaction with the given id. Deleting an
// unknown id is not an error.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.ListTransactions(ctx)
	if err != nil {
		return err
	}
	if _, ok := FindTransaction(txs, id); !ok {
		return nil
	}
	if err := s.save(ctx, storage.SlotTransactions, RemoveTransaction(txs, id)); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "Transaction deleted", log.FieldTransactionID, id)
	return nil
}

// ListBudgets returns the stored budgets in store order.
func (s *Store) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	budgets := []core.Budget{}
	if err := s.load(ctx, storage.SlotBudgets, &budgets); err != nil {
		return nil, err
	}
	return budgets, nil
}

// UpsertBudget stores b, overwriting the budget with the same id or, failing
// that, the one with the same month and category.
func (s *Store) UpsertBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	budgets, err := s.ListBudgets(ctx)
	if err != nil {
		return err
	}
	if err := s.save(ctx, storage.SlotBudgets, UpsertBudget(budgets, b)); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "Budget saved", log.FieldBudgetID, b.ID, log.FieldMonth, b.Month.String())
	return nil
}

// DeleteBudget removes the budget with the given id.
func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	budgets, err := s.ListBudgets(ctx)
	if err != nil {
		return err
	}
	if _, ok := FindBudget(budgets, id); !ok {
		return nil
	}
	return s.save(ctx, storage.SlotBudgets, RemoveBudget(budgets, id))
}

// GetSettings returns the stored settings, or the first-run defaults when
// none were written.
func (s *Store) GetSettings(ctx context.Context) (core.Settings, error) {
	settings := s.settings
	if err := s.load(ctx, storage.SlotSettings, &settings); err != nil {
		return core.Settings{}, err
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings core.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, storage.SlotSettings, settings)
}

// Reset removes every slot, the initialization marker included, and runs
// Bootstrap again.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.slots.Delete(ctx, storage.AllSlots...); err != nil {
		return storeErr(log.OpReset, err)
	}
	s.logger.InfoContext(ctx, "Ledger reset")
	return s.bootstrapLocked(ctx)
}

func (s *Store) Close() error {
	return s.slots.Close()
}

func (s *Store) load(ctx context.Context, slot string, v any) error {
	data, found, err := s.slots.Load(ctx, slot)
	if err != nil {
		return storeErr(log.OpList, fmt.Errorf("load %s: %w", slot, err))
	}
	if !found {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return storeErr(log.OpList, fmt.Errorf("decode %s: %w", slot, err))
	}
	return nil
}

func (s *Store) save(ctx context.Context, slot string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return storeErr(log.OpUpsert, fmt.Errorf("encode %s: %w", slot, err))
	}
	if err := s.slots.Save(ctx, map[string][]byte{slot: data}); err != nil {
		s.logger.ErrorContext(ctx, "Ledger write failed", log.FieldSlot, slot, log.FieldError, err)
		return storeErr(log.OpUpsert, fmt.Errorf("save %s: %w", slot, err))
	}
	return nil
}
