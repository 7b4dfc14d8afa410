package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"fintrack/internal/storage"
)

// ErrInjected is returned by writes when failure injection is on and no
// explicit error was given.
var ErrInjected = errors.New("memory store: injected write failure")

// Store keeps slots in process memory. It is the backend for tests and for
// throwaway sessions; writes can be made to fail on demand.
type Store struct {
	mu    sync.Mutex
	slots map[string][]byte

	failErr   error
	failAll   bool
	failCount int
	writes    int
	closed    bool
}

var _ storage.SlotStore = (*Store)(nil)

func New() *Store {
	return &Store{slots: make(map[string][]byte)}
}

// NewFromDir preloads every slot that has a <slot>.json file in base. Missing
// files are skipped.
func NewFromDir(base string) *Store {
	s := New()
	for _, slot := range storage.AllSlots {
		data, err := os.ReadFile(filepath.Join(base, slot+".json"))
		if err != nil {
			continue
		}
		s.slots[slot] = data
	}
	return s
}

// Load implements storage.SlotStore.
func (s *Store) Load(_ context.Context, slot string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, storage.ErrClosed
	}
	payload, ok := s.slots[slot]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

// Save implements storage.SlotStore.
func (s *Store) Save(ctx context.Context, slots map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWrite(ctx); err != nil {
		return err
	}
	for name, payload := range slots {
		s.slots[name] = append([]byte(nil), payload...)
	}
	return nil
}

// Delete implements storage.SlotStore.
func (s *Store) Delete(ctx context.Context, slots ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWrite(ctx); err != nil {
		return err
	}
	for _, name := range slots {
		delete(s.slots, name)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailWrites makes every following write fail with err (ErrInjected when nil)
// until Heal is called.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = true
	s.failErr = err
}

// FailNextWrites makes the next n writes fail with err (ErrInjected when nil).
func (s *Store) FailNextWrites(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCount = n
	s.failErr = err
}

// Heal turns failure injection off.
func (s *Store) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = false
	s.failCount = 0
	s.failErr = nil
}

// Writes returns how many writes were attempted, failed ones included.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) checkWrite(ctx context.Context) error {
	s.writes++
	if s.closed {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failAll || s.failCount > 0 {
		if s.failCount > 0 {
			s.failCount--
		}
		if s.failErr != nil {
			return s.failErr
		}
		return ErrInjected
	}
	return nil
}
