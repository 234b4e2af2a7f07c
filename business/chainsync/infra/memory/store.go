// Package memory provides an in-process StateStore.
package memory

import (
	"context"
	"sync"

	"github.com/fd1az/socialpay-sync/business/chainsync/app"
	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
)

var _ app.StateStore = (*Store)(nil)

// Store is an in-memory implementation of app.StateStore.
type Store struct {
	mu   sync.Mutex
	data map[string]domain.ChainState // keyed by contract address
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]domain.ChainState)}
}

// FindByAddress returns a copy of the stored state. Returns ErrNotFound if absent.
func (s *Store) FindByAddress(_ context.Context, address string) (*domain.ChainState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.data[address]
	if !ok {
		return nil, app.ErrNotFound
	}
	out := st.Clone()
	return &out, nil
}

// Create inserts a new record. Returns ErrDuplicateKey if the address exists.
func (s *Store) Create(_ context.Context, state domain.ChainState) (*domain.ChainState, error) {
	if state.ContractAddress == "" {
		return nil, app.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[state.ContractAddress]; exists {
		return nil, app.ErrDuplicateKey
	}
	s.data[state.ContractAddress] = state.Clone()

	out := state.Clone()
	return &out, nil
}

// Update merges patch into the stored record under the store lock.
func (s *Store) Update(_ context.Context, address string, patch domain.Patch) (*domain.ChainState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.data[address]
	if !ok {
		return nil, app.ErrNotFound
	}
	st = st.Clone()
	st.Apply(patch)
	s.data[address] = st

	out := st.Clone()
	return &out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
