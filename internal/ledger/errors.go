package ledger

import (
	"errors"
	"fmt"
)

// ErrStoreFailure matches every error caused by the persistence layer.
var ErrStoreFailure = errors.New("store failure")

// StoreError reports a read or write the slot store could not complete.
// The ledger is left as it was before the call.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrStoreFailure.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
