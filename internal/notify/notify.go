// Package notify delivers the outcome of settled mutations to the user.
package notify

import (
	"context"
	"sync"
	"time"

	"fintrack/internal/log"
)

// Kind tells successful and failed settlements apart.
type Kind string

const (
	Success Kind = "success"
	Failure Kind = "failure"
)

// Operation names the mutation a notification is about.
type Operation string

const (
	OpSaveTransaction   Operation = "save_transaction"
	OpDeleteTransaction Operation = "delete_transaction"
	OpSaveBudget        Operation = "save_budget"
	OpDeleteBudget      Operation = "delete_budget"
	OpSaveSettings      Operation = "save_settings"
)

type text struct {
	successTitle, successMessage, failureMessage string
}

var texts = map[Operation]text{
	OpSaveTransaction:   {"Success", "Transaction saved successfully.", "Failed to save transaction. Please try again."},
	OpDeleteTransaction: {"Deleted", "Transaction removed.", "Failed to delete transaction. Please try again."},
	OpSaveBudget:        {"Budget updated", "Your budget has been saved.", "Failed to save budget. Please try again."},
	OpDeleteBudget:      {"Deleted", "Budget removed.", "Failed to delete budget. Please try again."},
	OpSaveSettings:      {"Settings saved", "Your settings have been updated.", "Failed to save settings. Please try again."},
}

// Notification is emitted once for every settled mutation.
type Notification struct {
	Kind       Kind
	Operation  Operation
	MutationID string
	Title      string
	Message    string
	Err        error
	At         time.Time
}

// Succeeded builds the success notification of op.
func Succeeded(op Operation, mutationID string) Notification {
	t := texts[op]
	return Notification{
		Kind:       Success,
		Operation:  op,
		MutationID: mutationID,
		Title:      t.successTitle,
		Message:    t.successMessage,
		At:         time.Now(),
	}
}

// Failed builds the failure notification of op.
func Failed(op Operation, mutationID string, err error) Notification {
	return Notification{
		Kind:       Failure,
		Operation:  op,
		MutationID: mutationID,
		Title:      "Error",
		Message:    texts[op].failureMessage,
		Err:        err,
		At:         time.Now(),
	}
}

// Notifier receives settlement notifications. Implementations must not block
// for long: they run on the write path.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// Logger writes notifications to a structured logger.
type Logger struct {
	logger *log.Logger
}

func NewLogger(logger *log.Logger) *Logger {
	return &Logger{logger: log.OrDiscard(logger).WithComponent(log.ComponentService)}
}

func (l *Logger) Notify(ctx context.Context, n Notification) {
	args := []any{
		log.FieldOperation, string(n.Operation),
		log.FieldMutationID, n.MutationID,
		log.FieldOutcome, string(n.Kind),
	}
	if n.Kind == Failure {
		l.logger.WarnContext(ctx, n.Message, append(args, log.FieldError, n.Err)...)
		return
	}
	l.logger.InfoContext(ctx, n.Message, args...)
}

// Recorder keeps every notification it receives. It is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
}

// All returns the notifications received so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}

// Count returns how many notifications of kind were received for mutationID.
// An empty mutationID counts every mutation.
func (r *Recorder) Count(kind Kind, mutationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.list {
		if x.Kind == kind && (mutationID == "" || x.MutationID == mutationID) {
			n++
		}
	}
	return n
}
