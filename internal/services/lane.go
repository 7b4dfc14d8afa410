package services

import (
	"context"
	"sync"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/worker"
)

// lane owns one cached collection and the queue that writes it.
type lane[V any] struct {
	name  string
	coll  *cache.Collection[V]
	queue *worker.WriteQueue

	// mu keeps apply order and queue order identical.
	mu sync.Mutex

	fetch func(ctx context.Context) (V, error)
	equal func(a, b V) bool
	// derived is set when summaries are computed from this collection.
	derived bool
}

func newLane[V any](name string, fetch func(context.Context) (V, error), equal func(a, b V) bool, derived bool, logger *log.Logger) *lane[V] {
	return &lane[V]{
		name:    name,
		coll:    cache.NewCollection[V](),
		queue:   worker.NewWriteQueue(name, logger),
		fetch:   fetch,
		equal:   equal,
		derived: derived,
	}
}

// change describes one optimistic mutation of a lane.
type change[V any] struct {
	op notify.Operation
	// check runs on the current view before anything is applied.
	check func(view V) error
	apply func(V) V
	write func(ctx context.Context) error
	// months lists the summary months affected, given the view before apply.
	months func(before V) []core.Month
}

// ensure populates the collection on first use. Concurrent callers share a
// single store fetch and all block until it lands.
func (l *lane[V]) ensure(ctx context.Context, s *FinanceService) error {
	if l.coll.Loaded() {
		return nil
	}
	ch := s.group.DoChan(l.name, func() (any, error) {
		if l.coll.Loaded() {
			return nil, nil
		}
		v, err := l.fetch(s.ctx)
		s.metrics.StoreFetch(l.name, err)
		if err != nil {
			s.logger.Error("Failed to load collection",
				log.FieldCollection, l.name,
				log.FieldError, err)
			return nil, err
		}
		l.coll.Populate(v)
		s.logger.Debug("Collection loaded", log.FieldCollection, l.name)
		return nil, nil
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lane[V]) get(ctx context.Context, s *FinanceService) (V, error) {
	var zero V
	if s.isClosed() {
		return zero, ErrClosed
	}
	if err := l.ensure(ctx, s); err != nil {
		return zero, err
	}
	v, _ := l.coll.Get()
	return v, nil
}

func (l *lane[V]) submit(ctx context.Context, s *FinanceService, c change[V]) (*Mutation, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if err := l.ensure(ctx, s); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s.isClosed() {
		return nil, ErrClosed
	}

	if c.check != nil {
		view, _ := l.coll.Get()
		if err := c.check(view); err != nil {
			return nil, err
		}
	}

	m := newMutation(c.op, l.name, s.now())
	before, _, err := l.coll.Apply(m.id, c.apply)
	if err != nil {
		return nil, err
	}
	var months []core.Month
	if c.months != nil {
		months = c.months(before)
	}
	s.invalidate(months)
	s.metrics.PendingOps(l.name, l.coll.Pending())

	job := worker.Job{
		Name: string(c.op),
		Run:  c.write,
		Done: func(err error) { l.settle(s, m, months, err) },
	}
	if err := l.queue.Submit(job); err != nil {
		l.coll.Rollback(m.id)
		s.invalidate(months)
		s.metrics.PendingOps(l.name, l.coll.Pending())
		return nil, ErrClosed
	}

	s.logger.Debug("Mutation applied", log.NewFields().
		WithMutation(m.id, l.name, string(c.op)).ToSlice()...)
	return m, nil
}

// settle runs on the queue goroutine once the store write of m returned.
func (l *lane[V]) settle(s *FinanceService, m *Mutation, months []core.Month, err error) {
	var remaining int
	if err == nil {
		remaining, _ = l.coll.Confirm(m.id)
	} else {
		_, _, remaining, _ = l.coll.Rollback(m.id)
		s.metrics.Rollback(l.name)
		s.logger.Warn("Mutation rolled back", log.NewFields().
			WithMutation(m.id, l.name, string(m.op)).
			WithOperation(log.OpRollback).
			WithError(err).ToSlice()...)
	}
	s.invalidate(months)
	s.metrics.PendingOps(l.name, remaining)

	if remaining == 0 {
		l.refetch(s)
	}

	outcome := log.OutcomeSuccess
	n := notify.Succeeded(m.op, m.id)
	if err != nil {
		outcome = log.OutcomeFailure
		n = notify.Failed(m.op, m.id, err)
	}
	settledAt := s.now()
	n.At = settledAt
	s.metrics.MutationSettled(string(m.op), outcome, settledAt.Sub(m.started))
	s.notifier.Notify(s.ctx, n)

	m.complete(err)
}

// refetch reconciles the collection with the store once nothing is pending.
// A newer optimistic op wins over the fetched value.
func (l *lane[V]) refetch(s *FinanceService) {
	version := l.coll.Version()
	v, err := l.fetch(s.ctx)
	s.metrics.StoreFetch(l.name, err)
	if err != nil {
		s.logger.Warn("Refetch failed",
			log.FieldCollection, l.name,
			log.FieldOperation, log.OpRefetch,
			log.FieldError, err)
		return
	}
	old, ok := l.coll.Replace(v, version)
	if !ok {
		return
	}
	if l.derived && !l.equal(old, v) {
		s.logger.Info("Store diverged from cache, reloading summaries",
			log.FieldCollection, l.name,
			log.FieldOperation, log.OpRefetch)
		s.purgeSummaries()
	}
}

// reload replaces the confirmed value after a store reset.
func (l *lane[V]) reload(ctx context.Context, s *FinanceService) error {
	v, err := l.fetch(ctx)
	s.metrics.StoreFetch(l.name, err)
	if err != nil {
		return err
	}
	l.coll.Rebase(v)
	return nil
}
