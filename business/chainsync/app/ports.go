// Package app contains the application services for the chain synchronization context.
package app

import (
	"context"
	"errors"

	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
)

// Store errors. Implementations wrap these so callers can use errors.Is.
var (
	ErrNotFound     = errors.New("chain state not found")
	ErrDuplicateKey = errors.New("chain state already exists")
	ErrInvalidInput = errors.New("invalid chain state input")
)

// ChainInfoProvider reads live chain and contract metadata.
// A partial FieldSet is valid data; an error means the whole fetch failed.
type ChainInfoProvider interface {
	GetChainInfo(ctx context.Context) (domain.FieldSet, error)
	GetContractInfo(ctx context.Context, contractAddress string) (domain.FieldSet, error)
}

// StateStore persists one ChainState per contract address.
type StateStore interface {
	// FindByAddress returns ErrNotFound when no record exists.
	FindByAddress(ctx context.Context, contractAddress string) (*domain.ChainState, error)
	// Create returns ErrDuplicateKey when a record for the address already exists.
	Create(ctx context.Context, state domain.ChainState) (*domain.ChainState, error)
	// Update merges patch into the stored record atomically and returns the result.
	// It returns ErrNotFound when no record exists.
	Update(ctx context.Context, contractAddress string, patch domain.Patch) (*domain.ChainState, error)
	Ping(ctx context.Context) error
	Close() error
}

// Publisher receives every state the reconciler persists.
type Publisher interface {
	Publish(state domain.ChainState)
}
