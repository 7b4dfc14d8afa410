package storage

import (
	"context"
	"errors"
)

// Slot names of the persisted ledger. Each slot holds one JSON document.
const (
	SlotTransactions = "finance_transactions"
	SlotBudgets      = "finance_budgets"
	SlotSettings     = "finance_settings"
	SlotInitialized  = "finance_initialized"
)

// AllSlots lists every slot the ledger writes.
var AllSlots = []string{SlotTransactions, SlotBudgets, SlotSettings, SlotInitialized}

var ErrClosed = errors.New("slot store closed")

// Ports for outbound adapters.
type (
	// SlotStore is a durable key-value store of named JSON documents.
	SlotStore interface {
		// Load returns the payload stored under slot. found is false when the
		// slot was never written.
		Load(ctx context.Context, slot string) (payload []byte, found bool, err error)

		// Save writes every slot in one all-or-nothing step.
		Save(ctx context.Context, slots map[string][]byte) error

		// Delete removes the given slots in one all-or-nothing step.
		Delete(ctx context.Context, slots ...string) error

		Close() error
	}
)
