package services

import (
	"context"
	"sync/atomic"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/notify"
)

// MutationState is the lifecycle position of one optimistic mutation.
type MutationState int32

const (
	Pending MutationState = iota
	Succeeded
	Failed
)

func (s MutationState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Mutation is the handle of a submitted write. Its effect is already visible
// in the service's reads; the handle reports how the store write settled.
// Settlement is final.
type Mutation struct {
	id         string
	op         notify.Operation
	collection string
	started    time.Time

	state atomic.Int32
	err   error
	done  chan struct{}
}

func newMutation(op notify.Operation, collection string, started time.Time) *Mutation {
	return &Mutation{
		id:         core.NewID(),
		op:         op,
		collection: collection,
		started:    started,
		done:       make(chan struct{}),
	}
}

func (m *Mutation) ID() string                  { return m.id }
func (m *Mutation) Operation() notify.Operation { return m.op }
func (m *Mutation) State() MutationState        { return MutationState(m.state.Load()) }

// Done is closed once the mutation settled.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation settles or ctx ends. It returns nil on
// success and the StoreFailure on failure. Giving up on the wait does not
// cancel the write.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the settlement error, nil while pending or on success.
func (m *Mutation) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

func (m *Mutation) complete(err error) {
	m.err = err
	if err != nil {
		m.state.Store(int32(Failed))
	} else {
		m.state.Store(int32(Succeeded))
	}
	close(m.done)
}
