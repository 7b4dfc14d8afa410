package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/notify"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

var fixedNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

var errQuota = errors.New("quota exceeded")

// scriptedStore lets tests hold writes in flight, fail selected writes and
// slow down loads.
type scriptedStore struct {
	*memory.Store

	mu       sync.Mutex
	gate     chan struct{}
	loadGate chan struct{}
	failWhen func(slots map[string][]byte) bool
	loadFail string
	loads    map[string]int
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{Store: memory.New(), loads: map[string]int{}}
}

// hold blocks every following write until the returned func is called.
func (s *scriptedStore) hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *scriptedStore) holdLoads() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.loadGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.loadGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// failSavesContaining fails every write whose payload mentions one of ids.
func (s *scriptedStore) failSavesContaining(ids ...string) {
	needles := make([][]byte, len(ids))
	for i, id := range ids {
		needles[i] = []byte(fmt.Sprintf(`"id":%q`, id))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWhen = func(slots map[string][]byte) bool {
		for _, payload := range slots {
			for _, needle := range needles {
				if bytes.Contains(payload, needle) {
					return true
				}
			}
		}
		return false
	}
}

// failLoads makes every following load of slot fail.
func (s *scriptedStore) failLoads(slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadFail = slot
}

func (s *scriptedStore) Load(ctx context.Context, slot string) ([]byte, bool, error) {
	s.mu.Lock()
	s.loads[slot]++
	gate, failing := s.loadGate, s.loadFail == slot
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if failing {
		return nil, false, errQuota
	}
	return s.Store.Load(ctx, slot)
}

func (s *scriptedStore) loadCount(slot string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[slot]
}

func (s *scriptedStore) Save(ctx context.Context, slots map[string][]byte) error {
	s.mu.Lock()
	gate, failWhen := s.gate, s.failWhen
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failWhen != nil && failWhen(slots) {
		return errQuota
	}
	return s.Store.Save(ctx, slots)
}

// countingRecorder counts summary cache lookups and rollbacks.
type countingRecorder struct {
	hits, misses, rollbacks atomic.Int64
	latency                 atomic.Int64
}

func (r *countingRecorder) MutationSettled(_, _ string, d time.Duration) { r.latency.Store(int64(d)) }
func (r *countingRecorder) StoreFetch(string, error) {}
func (r *countingRecorder) PendingOps(string, int) {}
func (r *countingRecorder) Rollback(string) { r.rollbacks.Add(1) }
func (r *countingRecorder) SummaryLookup(hit bool) {
	if hit {
		r.hits.Add(1)
	} else {
		r.misses.Add(1)
	}
}

type harness struct {
	svc     *FinanceService
	slots   *scriptedStore
	ledger  *ledger.Store
	notes   *notify.Recorder
	metrics *countingRecorder
	now     atomic.Pointer[time.Time]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		slots:   newScriptedStore(),
		notes:   &notify.Recorder{},
		metrics: &countingRecorder{},
	}
	start := fixedNow
	h.now.Store(&start)
	clock := func() time.Time { return *h.now.Load() }

	h.ledger = ledger.NewStore(h.slots, ledger.Options{Now: clock})
	svc, err := New(context.Background(), Options{
		Store:    h.ledger,
		Notifier: h.notes,
		Metrics:  h.metrics,
		Now:      clock,
	})
	require.NoError(t, err)
	h.svc = svc
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return h
}

func (h *harness) setNow(t time.Time) { h.now.Store(&t) }

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTx(t *testing.T, id, date, amount string, kind core.Kind, category string) core.Transaction {
	t.Helper()
	d, err := core.ParseDate(date)
	require.NoError(t, err)
	tx, err := core.NewTransaction(id, d, core.MustAmount(amount), kind, category, "")
	require.NoError(t, err)
	return tx
}

func newBudget(t *testing.T, id, month, category string, limit int64) core.Budget {
	t.Helper()
	m, err := core.ParseMonth(month)
	require.NoError(t, err)
	b, err := core.NewBudget(id, m, category, decimal.NewFromInt(limit))
	require.NoError(t, err)
	return b
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

// mustSettle takes a submit call's results and waits for the mutation.
func mustSettle(t *testing.T) func(*Mutation, error) {
	t.Helper()
	return func(m *Mutation, err error) {
		t.Helper()
		require.NoError(t, err)
		require.NoError(t, m.Wait(waitCtx(t)))
	}
}

func TestFinanceService_OptimisticWrite(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	release := h.slots.hold()
	defer release()

	tx := newTx(t, "tx-1", "2024-03-10", "42.50", core.Expense, "food")
	m, err := h.svc.SubmitTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, Pending, m.State())

	got, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-1"}, ids(got), "write visible before the store confirms it")

	stored, err := h.ledger.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	release()
	require.NoError(t, m.Wait(ctx))
	assert.Equal(t, Succeeded, m.State())
	assert.NoError(t, m.Err())

	stored, err = h.ledger.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-1"}, ids(stored))

	assert.Equal(t, 1, h.notes.Count(notify.Success, m.ID()))
	n := h.notes.All()[0]
	assert.Equal(t, "Success", n.Title)
	assert.Equal(t, "Transaction saved successfully.", n.Message)
	assert.Equal(t, fixedNow, n.At)
}

func TestFinanceService_SettlementLatencyUsesServiceClock(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	release := h.slots.hold()
	m, err := h.svc.SubmitTransaction(ctx, newTx(t, "tx-1", "2024-03-10", "5", core.Expense, "food"))
	require.NoError(t, err)

	h.setNow(fixedNow.Add(3 * time.Second))
	release()
	require.NoError(t, m.Wait(ctx))
	assert.Equal(t, 3*time.Second, time.Duration(h.metrics.latency.Load()))
}

func TestFinanceService_RollbackRestoresList(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-a", "2024-03-10", "25", core.Expense, "food")))
	before, err := h.svc.Transactions(ctx)
	require.NoError(t, err)

	h.slots.failSavesContaining("tx-b")
	release := h.slots.hold()
	m, err := h.svc.SubmitTransaction(ctx, newTx(t, "tx-b", "2024-03-11", "30", core.Expense, "transport"))
	require.NoError(t, err)

	during, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-b", "tx-a"}, ids(during))

	release()
	err = m.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStoreFailure)
	assert.ErrorIs(t, err, errQuota)
	assert.Equal(t, Failed, m.State())

	after, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.True(t, transactionsEqual(before, after), "got %v", ids(after))

	assert.Equal(t, 1, h.notes.Count(notify.Failure, m.ID()))
	assert.Equal(t, 0, h.notes.Count(notify.Success, m.ID()))
	for _, n := range h.notes.All() {
		if n.MutationID == m.ID() {
			assert.Equal(t, "Error", n.Title)
			assert.Equal(t, "Failed to save transaction. Please try again.", n.Message)
			assert.ErrorIs(t, n.Err, errQuota)
		}
	}
	assert.EqualValues(t, 1, h.metrics.rollbacks.Load())
}

func TestFinanceService_RollbackKeepsLaterMutations(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	h.slots.failSavesContaining("tx-b")
	release := h.slots.hold()

	ma, err := h.svc.SubmitTransaction(ctx, newTx(t, "tx-a", "2024-03-01", "10", core.Expense, "food"))
	require.NoError(t, err)
	mb, err := h.svc.SubmitTransaction(ctx, newTx(t, "tx-b", "2024-03-02", "20", core.Expense, "food"))
	require.NoError(t, err)
	mc, err := h.svc.SubmitTransaction(ctx, newTx(t, "tx-c", "2024-03-03", "30", core.Expense, "food"))
	require.NoError(t, err)

	got, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-c", "tx-b", "tx-a"}, ids(got))

	release()
	require.NoError(t, ma.Wait(ctx))
	require.Error(t, mb.Wait(ctx))
	require.NoError(t, mc.Wait(ctx))

	got, err = h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-c", "tx-a"}, ids(got))

	stored, err := h.ledger.ListTransactions(ctx)
	require.NoError(t, err)
	assert.True(t, transactionsEqual(stored, got))

	assert.Equal(t, 2, h.notes.Count(notify.Success, ""))
	assert.Equal(t, 1, h.notes.Count(notify.Failure, ""))
}

func TestFinanceService_RollbackSurvivesFailedRefetch(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	h.slots.failSavesContaining("tx-1", "tx-2")
	release := h.slots.hold()
	m1, err := h.svc.SubmitTransaction(ctx, newTx(t, "tx-1", "2024-03-01", "10", core.Expense, "food"))
	require.NoError(t, err)
	m2, err := h.svc.SubmitTransaction(ctx, newTx(t, "tx-2", "2024-03-02", "20", core.Expense, "food"))
	require.NoError(t, err)

	h.slots.failLoads(storage.SlotTransactions)
	release()
	require.Error(t, m1.Wait(ctx))
	require.Error(t, m2.Wait(ctx))

	got, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "no failed write may stay visible")

	stored, _, err := h.slots.Store.Load(ctx, storage.SlotTransactions)
	require.NoError(t, err)
	assert.NotContains(t, string(stored), "tx-1")
	assert.EqualValues(t, 2, h.metrics.rollbacks.Load())
}

func TestFinanceService_InterleavedFailuresKeepCacheAndStoreEqual(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-00", "2024-03-01", "5", core.Expense, "food")))
	mustSettle(t)(h.svc.SubmitBudget(ctx, newBudget(t, "b-food", "2024-03", "food", 300)))

	h.slots.failSavesContaining("tx-03", "tx-06", "tx-07", "b-bills")
	release := h.slots.hold()

	var mutations []*Mutation
	track := func(m *Mutation, err error) {
		t.Helper()
		require.NoError(t, err)
		mutations = append(mutations, m)
	}
	for i := 1; i <= 8; i++ {
		track(h.svc.SubmitTransaction(ctx, newTx(t, fmt.Sprintf("tx-%02d", i), "2024-03-05", "1", core.Expense, "food")))
		if i%3 == 0 {
			track(h.svc.DeleteTransaction(ctx, fmt.Sprintf("tx-%02d", i-1)))
		}
	}
	track(h.svc.SubmitBudget(ctx, newBudget(t, "b-bills", "2024-03", "bills", 100)))
	track(h.svc.SubmitBudget(ctx, newBudget(t, "b-food", "2024-03", "food", 350)))

	release()
	failed := 0
	for _, m := range mutations {
		if m.Wait(ctx) != nil {
			failed++
		}
	}
	assert.Positive(t, failed)

	got, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	stored, err := h.ledger.ListTransactions(ctx)
	require.NoError(t, err)
	assert.True(t, transactionsEqual(stored, got), "cache %v, store %v", ids(got), ids(stored))

	budgets, err := h.svc.Budgets(ctx)
	require.NoError(t, err)
	storedBudgets, err := h.ledger.ListBudgets(ctx)
	require.NoError(t, err)
	assert.True(t, budgetsEqual(storedBudgets, budgets))
	require.Len(t, budgets, 1)
	assert.Equal(t, "350", budgets[0].Limit.String())
}

func TestFinanceService_ValidationRejectsBeforeCache(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	writes := h.slots.Writes()

	bad := core.Transaction{
		ID:         "tx-bad",
		Date:       core.NewDate(2024, time.March, 1),
		Amount:     decimal.Zero,
		Kind:       core.Expense,
		CategoryID: "food",
	}
	m, err := h.svc.SubmitTransaction(ctx, bad)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, core.ErrValidation)

	got, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, writes, h.slots.Writes())
	assert.Empty(t, h.notes.All())
}

func TestFinanceService_DeleteTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-1", "2024-03-10", "5", core.Expense, "food")))
	mustSettle(t)(h.svc.DeleteTransaction(ctx, "tx-1"))

	got, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = h.svc.DeleteTransaction(ctx, "tx-1")
	assert.ErrorIs(t, err, ErrUnknownTransaction)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = h.svc.DeleteTransaction(ctx, "")
	assert.ErrorIs(t, err, ErrMissingID)

	deleted := 0
	for _, n := range h.notes.All() {
		if n.Operation == notify.OpDeleteTransaction {
			deleted++
			assert.Equal(t, "Deleted", n.Title)
			assert.Equal(t, "Transaction removed.", n.Message)
		}
	}
	assert.Equal(t, 1, deleted)
}

func TestFinanceService_ConcurrentMutations(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	const n = 25
	mutations := make([]*Mutation, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := newTx(t, fmt.Sprintf("tx-%02d", i), "2024-03-05", "1", core.Expense, "food")
			m, err := h.svc.SubmitTransaction(ctx, tx)
			assert.NoError(t, err)
			mutations[i] = m
		}(i)
	}
	wg.Wait()

	for _, m := range mutations {
		require.NotNil(t, m)
		require.NoError(t, m.Wait(ctx))
	}

	got, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Len(t, got, n)

	stored, err := h.ledger.ListTransactions(ctx)
	require.NoError(t, err)
	assert.True(t, transactionsEqual(stored, got), "cache and store agree once settled")
	assert.Equal(t, n, h.notes.Count(notify.Success, ""))
}

func TestFinanceService_FirstReadSharesOneFetch(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	release := h.slots.holdLoads()
	defer release()

	const readers = 8
	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.svc.Transactions(ctx)
			assert.NoError(t, err)
			assert.NotNil(t, got)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("readers returned before the first load finished")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	<-done
	assert.Equal(t, 1, h.slots.loadCount(storage.SlotTransactions))

	t.Run("Cancelled_Reader_Gives_Up", func(t *testing.T) {
		h := newHarness(t)
		release := h.slots.holdLoads()
		defer release()

		cctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := h.svc.Budgets(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFinanceService_MonthlySummary(t *testing.T) {
	march := core.NewMonth(2024, time.March)

	t.Run("Reflects_Pending_Mutations", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-1", "2024-03-05", "100", core.Expense, "food")))
		sum, err := h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.Equal(t, "100", sum.TotalExpenses.String())

		release := h.slots.hold()
		m, err := h.svc.SubmitTransaction(ctx, newTx(t, "tx-2", "2024-03-06", "50", core.Expense, "food"))
		require.NoError(t, err)

		sum, err = h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.Equal(t, "150", sum.TotalExpenses.String())

		release()
		require.NoError(t, m.Wait(ctx))
		sum, err = h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.Equal(t, "150", sum.TotalExpenses.String())
	})

	t.Run("Rollback_Restores_Summary", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		h.slots.failSavesContaining("tx-x")
		m, err := h.svc.SubmitTransaction(ctx, newTx(t, "tx-x", "2024-03-05", "80", core.Expense, "food"))
		require.NoError(t, err)
		require.Error(t, m.Wait(ctx))

		sum, err := h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.True(t, sum.TotalExpenses.IsZero())
	})

	t.Run("Cached_Until_Month_Touched", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		_, err := h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		_, err = h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.EqualValues(t, 1, h.metrics.misses.Load())
		assert.EqualValues(t, 1, h.metrics.hits.Load())

		// January affects January and February only.
		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-jan", "2024-01-05", "10", core.Expense, "food")))
		_, err = h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.EqualValues(t, 2, h.metrics.hits.Load())

		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-mar", "2024-03-05", "10", core.Expense, "food")))
		_, err = h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.EqualValues(t, 2, h.metrics.misses.Load())
	})

	t.Run("Previous_Month_Change_Updates_Delta", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-feb", "2024-02-10", "100", core.Expense, "food")))
		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-mar", "2024-03-10", "100", core.Expense, "food")))

		sum, err := h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, sum.VsLastMonth.Expenses, 1e-9)

		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-feb-2", "2024-02-11", "100", core.Expense, "food")))
		sum, err = h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.InDelta(t, -50.0, sum.VsLastMonth.Expenses, 1e-9)
	})

	t.Run("Day_Change_Recomputes", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-1", "2024-03-16", "20", core.Expense, "food")))
		sum, err := h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.Len(t, sum.DailySpending, 15)

		h.setNow(fixedNow.AddDate(0, 0, 1))
		sum, err = h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.Len(t, sum.DailySpending, 16)
		assert.Equal(t, "20", sum.DailySpending[15].Amount.String())
	})

	t.Run("Invalid_Month", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.MonthlySummary(waitCtx(t), core.Month{Year: 2024, Month: 13})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("Returned_Value_Is_A_Copy", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-1", "2024-03-05", "100", core.Expense, "food")))
		sum, err := h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		require.NotEmpty(t, sum.CategoryBreakdown)
		sum.CategoryBreakdown[0].CategoryID = "tampered"

		again, err := h.svc.MonthlySummary(ctx, march)
		require.NoError(t, err)
		assert.Equal(t, "food", again.CategoryBreakdown[0].CategoryID)
	})
}

func TestFinanceService_Budgets(t *testing.T) {
	t.Run("Same_Month_And_Category_Replaces", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.SubmitBudget(ctx, newBudget(t, "b-1", "2024-03", "food", 400)))
		mustSettle(t)(h.svc.SubmitBudget(ctx, newBudget(t, "b-2", "2024-03", "food", 500)))

		got, err := h.svc.Budgets(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b-2", got[0].ID)
		assert.Equal(t, "500", got[0].Limit.String())

		stored, err := h.ledger.ListBudgets(ctx)
		require.NoError(t, err)
		assert.True(t, budgetsEqual(stored, got))

		n := h.notes.All()[1]
		assert.Equal(t, "Budget updated", n.Title)
		assert.Equal(t, "Your budget has been saved.", n.Message)
	})

	t.Run("Category_Of_Existing_Budget_Is_Fixed", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.SubmitBudget(ctx, newBudget(t, "b-1", "2024-03", "food", 400)))
		writes := h.slots.Writes()

		_, err := h.svc.SubmitBudget(ctx, newBudget(t, "b-1", "2024-03", "transport", 400))
		assert.ErrorIs(t, err, ErrBudgetCategoryChange)
		assert.ErrorIs(t, err, core.ErrValidation)
		assert.Equal(t, writes, h.slots.Writes())

		got, err := h.svc.Budgets(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "food", got[0].CategoryID)
	})

	t.Run("Moving_Onto_A_Taken_Key_Replaces_It", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-1", "2024-03-05", "25", core.Expense, "food")))
		mustSettle(t)(h.svc.SubmitBudget(ctx, newBudget(t, "a", "2024-04", "food", 100)))
		mustSettle(t)(h.svc.SubmitBudget(ctx, newBudget(t, "b", "2024-03", "food", 200)))
		mustSettle(t)(h.svc.SubmitBudget(ctx, newBudget(t, "a", "2024-03", "food", 50)))

		got, err := h.svc.Budgets(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ID)
		assert.Equal(t, "50", got[0].Limit.String())

		stored, err := h.ledger.ListBudgets(ctx)
		require.NoError(t, err)
		assert.True(t, budgetsEqual(stored, got))

		sum, err := h.svc.MonthlySummary(ctx, core.NewMonth(2024, time.March))
		require.NoError(t, err)
		assert.InDelta(t, 50.0, sum.BudgetUsage, 1e-9)
	})

	t.Run("Create_Refuses_Duplicate", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.CreateBudget(ctx, newBudget(t, "b-1", "2024-03", "food", 400)))
		_, err := h.svc.CreateBudget(ctx, newBudget(t, "b-2", "2024-03", "food", 100))
		assert.ErrorIs(t, err, ErrDuplicateBudget)

		mustSettle(t)(h.svc.CreateBudget(ctx, newBudget(t, "b-3", "2024-04", "food", 100)))
		got, err := h.svc.Budgets(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Delete", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.SubmitBudget(ctx, newBudget(t, "b-1", "2024-03", "food", 400)))
		mustSettle(t)(h.svc.DeleteBudget(ctx, "b-1"))

		got, err := h.svc.Budgets(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)

		_, err = h.svc.DeleteBudget(ctx, "b-1")
		assert.ErrorIs(t, err, ErrUnknownBudget)
	})

	t.Run("Budget_Usage_Follows_Budgets", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)

		mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-1", "2024-03-05", "100", core.Expense, "food")))
		sum, err := h.svc.MonthlySummary(ctx, core.NewMonth(2024, time.March))
		require.NoError(t, err)
		assert.Zero(t, sum.BudgetUsage)

		mustSettle(t)(h.svc.SubmitBudget(ctx, newBudget(t, "b-1", "2024-03", "food", 400)))
		sum, err = h.svc.MonthlySummary(ctx, core.NewMonth(2024, time.March))
		require.NoError(t, err)
		assert.InDelta(t, 25.0, sum.BudgetUsage, 1e-9)
	})
}

func TestFinanceService_Settings(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	got, err := h.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultSettings(), got)

	eur, err := core.NewSettings("EUR", "€", time.Monday)
	require.NoError(t, err)
	mustSettle(t)(h.svc.SubmitSettings(ctx, eur))

	got, err = h.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, eur, got)

	stored, err := h.ledger.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, eur, stored)

	_, err = h.svc.SubmitSettings(ctx, core.Settings{CurrencyCode: "EURO"})
	assert.ErrorIs(t, err, core.ErrValidation)

	n := h.notes.All()[0]
	assert.Equal(t, "Settings saved", n.Title)
	assert.Equal(t, "Your settings have been updated.", n.Message)
}

func TestFinanceService_Reset(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	mustSettle(t)(h.svc.SubmitTransaction(ctx, newTx(t, "tx-1", "2024-03-05", "100", core.Expense, "food")))
	sum, err := h.svc.MonthlySummary(ctx, core.NewMonth(2024, time.March))
	require.NoError(t, err)
	require.False(t, sum.TotalExpenses.IsZero())

	require.NoError(t, h.svc.Reset(ctx))

	got, err := h.svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	sum, err = h.svc.MonthlySummary(ctx, core.NewMonth(2024, time.March))
	require.NoError(t, err)
	assert.True(t, sum.TotalExpenses.IsZero())
}

func TestFinanceService_Close(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	release := h.slots.hold()
	var mutations []*Mutation
	for i := 0; i < 3; i++ {
		m, err := h.svc.SubmitTransaction(ctx, newTx(t, fmt.Sprintf("tx-%d", i), "2024-03-05", "1", core.Expense, "food"))
		require.NoError(t, err)
		mutations = append(mutations, m)
	}
	time.AfterFunc(20*time.Millisecond, release)

	require.NoError(t, h.svc.Close(ctx))
	for _, m := range mutations {
		assert.Equal(t, Succeeded, m.State(), "close drains queued writes")
	}

	stored, err := h.ledger.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	_, err = h.svc.SubmitTransaction(ctx, newTx(t, "tx-late", "2024-03-05", "1", core.Expense, "food"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.svc.Transactions(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.svc.Reset(ctx), ErrClosed)
	assert.ErrorIs(t, h.svc.Close(ctx), ErrClosed)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}

func TestNew_BootstrapFailure(t *testing.T) {
	slots := memory.New()
	slots.FailWrites(nil)
	_, err := New(context.Background(), Options{Store: ledger.NewStore(slots, ledger.Options{})})
	assert.ErrorIs(t, err, ledger.ErrStoreFailure)
}
