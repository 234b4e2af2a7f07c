package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fd1az/socialpay-sync/business/chainsync/app"
	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
)

// setupTestStore starts a PostgreSQL container and applies migrations.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn, 10*time.Second)
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations must be rerunnable")

	s := NewStore(pool)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateFindUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.FindByAddress(ctx, "0xabc")
	require.ErrorIs(t, err, app.ErrNotFound)

	created, err := s.Create(ctx, domain.NewChainState("0xabc", domain.Patch{
		Chain:      domain.FieldSet{domain.FieldBlockNumber: "100"},
		Contract:   domain.FieldSet{domain.FieldHashtag: "#a"},
		ObservedAt: t0,
	}))
	require.NoError(t, err)
	assert.Equal(t, "100", created.ChainFields[domain.FieldBlockNumber].Value)

	_, err = s.Create(ctx, domain.NewChainState("0xabc", domain.Patch{ObservedAt: t0}))
	require.ErrorIs(t, err, app.ErrDuplicateKey)

	st, err := s.Update(ctx, "0xabc", domain.Patch{
		Chain:      domain.FieldSet{domain.FieldBlockNumber: "101"},
		ObservedAt: t0.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, "101", st.ChainFields[domain.FieldBlockNumber].Value)
	assert.Equal(t, "#a", st.ContractFields[domain.FieldHashtag].Value)

	found, err := s.FindByAddress(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, found.UpdatedAt.Equal(t0.Add(time.Minute)))
	assert.True(t, found.CreatedAt.Equal(t0))

	_, err = s.Update(ctx, "0xmissing", domain.Patch{ObservedAt: t0})
	require.ErrorIs(t, err, app.ErrNotFound)
	require.NoError(t, s.Ping(ctx))
}

func TestStore_ConcurrentUpdatesKeepLatest(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Create(ctx, domain.NewChainState("0xabc", domain.Patch{ObservedAt: t0}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, "0xabc", domain.Patch{
				Contract:   domain.FieldSet{domain.FieldRewardPerAction: time.Duration(i).String()},
				ObservedAt: t0.Add(time.Duration(i) * time.Second),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := s.FindByAddress(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(10).String(), st.ContractFields[domain.FieldRewardPerAction].Value)
}
