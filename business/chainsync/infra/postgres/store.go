package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fd1az/socialpay-sync/business/chainsync/app"
	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
)

var _ app.StateStore = (*Store)(nil)

// Store is a PostgreSQL implementation of app.StateStore.
type Store struct {
	pool *Pool
}

// NewStore creates a store over pool. The store owns the pool and closes it.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*domain.ChainState, error) {
	var (
		st                    domain.ChainState
		chainRaw, contractRaw []byte
	)
	if err := row.Scan(&st.ContractAddress, &chainRaw, &contractRaw, &st.UpdatedAt, &st.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(chainRaw, &st.ChainFields); err != nil {
		return nil, fmt.Errorf("decode chain_fields: %w", err)
	}
	if err := json.Unmarshal(contractRaw, &st.ContractFields); err != nil {
		return nil, fmt.Errorf("decode contract_fields: %w", err)
	}
	if st.ChainFields == nil {
		st.ChainFields = domain.Fields{}
	}
	if st.ContractFields == nil {
		st.ContractFields = domain.Fields{}
	}
	return &st, nil
}

func encodeFields(f domain.Fields) (string, error) {
	if f == nil {
		f = domain.Fields{}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FindByAddress returns ErrNotFound if the address has no record.
func (s *Store) FindByAddress(ctx context.Context, address string) (*domain.ChainState, error) {
	query := `
		SELECT contract_address, chain_fields, contract_fields, updated_at, created_at
		FROM chain_states
		WHERE contract_address = $1
	`
	st, err := scanState(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, app.ErrNotFound
		}
		return nil, fmt.Errorf("find chain state: %w", err)
	}
	return st, nil
}

// Create inserts a new record. Returns ErrDuplicateKey if the address exists.
func (s *Store) Create(ctx context.Context, state domain.ChainState) (*domain.ChainState, error) {
	if state.ContractAddress == "" {
		return nil, app.ErrInvalidInput
	}

	chainJSON, err := encodeFields(state.ChainFields)
	if err != nil {
		return nil, fmt.Errorf("encode chain_fields: %w", err)
	}
	contractJSON, err := encodeFields(state.ContractFields)
	if err != nil {
		return nil, fmt.Errorf("encode contract_fields: %w", err)
	}

	query := `
		INSERT INTO chain_states (contract_address, chain_fields, contract_fields, updated_at, created_at)
		VALUES ($1, $2::jsonb, $3::jsonb, $4, $5)
		RETURNING contract_address, chain_fields, contract_fields, updated_at, created_at
	`
	st, err := scanState(s.pool.QueryRow(ctx, query,
		state.ContractAddress, chainJSON, contractJSON, state.UpdatedAt, state.CreatedAt,
	))
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, app.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert chain state: %w", err)
	}
	return st, nil
}

// Update locks the row, merges patch and writes the result in one transaction.
func (s *Store) Update(ctx context.Context, address string, patch domain.Patch) (*domain.ChainState, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	st, err := scanState(tx.QueryRow(ctx, `
		SELECT contract_address, chain_fields, contract_fields, updated_at, created_at
		FROM chain_states
		WHERE contract_address = $1
		FOR UPDATE
	`, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, app.ErrNotFound
		}
		return nil, fmt.Errorf("lock chain state: %w", err)
	}

	if !st.Apply(patch) {
		return st, nil
	}

	chainJSON, err := encodeFields(st.ChainFields)
	if err != nil {
		return nil, fmt.Errorf("encode chain_fields: %w", err)
	}
	contractJSON, err := encodeFields(st.ContractFields)
	if err != nil {
		return nil, fmt.Errorf("encode contract_fields: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE chain_states
		SET chain_fields = $2::jsonb, contract_fields = $3::jsonb, updated_at = $4
		WHERE contract_address = $1
	`, address, chainJSON, contractJSON, st.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update chain state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return st, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
