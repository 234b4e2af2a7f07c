// Package pebble provides an embedded StateStore backed by cockroachdb/pebble.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fd1az/socialpay-sync/business/chainsync/app"
	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
)

const keyPrefix = "chainstate/"

// ErrClosed is returned for operations on a closed store.
var ErrClosed = errors.New("pebble store is closed")

var _ app.StateStore = (*Store)(nil)

// Store keeps one msgpack-encoded ChainState per contract address.
type Store struct {
	db     *pebble.DB
	closed bool
	mu     sync.RWMutex
	// writeMu serializes read-modify-write cycles.
	writeMu sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(8 << 20),
		MemTableSize: 4 << 20,
	}
	defer opts.Cache.Unref()

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func key(address string) []byte {
	return []byte(keyPrefix + address)
}

// FindByAddress returns ErrNotFound if the address has no record.
func (s *Store) FindByAddress(_ context.Context, address string) (*domain.ChainState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.get(address)
}

func (s *Store) get(address string) (*domain.ChainState, error) {
	value, closer, err := s.db.Get(key(address))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, app.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", address, err)
	}
	defer closer.Close()

	var st domain.ChainState
	if err := msgpack.Unmarshal(value, &st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", address, err)
	}
	return &st, nil
}

func (s *Store) put(st domain.ChainState) error {
	value, err := msgpack.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode %s: %w", st.ContractAddress, err)
	}
	return s.db.Set(key(st.ContractAddress), value, pebble.Sync)
}

// Create returns ErrDuplicateKey if the address already has a record.
func (s *Store) Create(_ context.Context, state domain.ChainState) (*domain.ChainState, error) {
	if state.ContractAddress == "" {
		return nil, app.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.get(state.ContractAddress); err == nil {
		return nil, app.ErrDuplicateKey
	} else if !errors.Is(err, app.ErrNotFound) {
		return nil, err
	}

	if err := s.put(state); err != nil {
		return nil, err
	}
	out := state.Clone()
	return &out, nil
}

// Update merges patch into the stored record.
func (s *Store) Update(_ context.Context, address string, patch domain.Patch) (*domain.ChainState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	st, err := s.get(address)
	if err != nil {
		return nil, err
	}
	if !st.Apply(patch) {
		return st, nil
	}
	if err := s.put(*st); err != nil {
		return nil, err
	}
	return st, nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close flushes and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
