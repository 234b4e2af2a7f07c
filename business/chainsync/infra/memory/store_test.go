package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/socialpay-sync/business/chainsync/app"
	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestStore_CreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.FindByAddress(ctx, "0xabc")
	require.ErrorIs(t, err, app.ErrNotFound)

	_, err = s.Create(ctx, domain.NewChainState("0xabc", domain.Patch{Chain: domain.FieldSet{"block_number": "1"}, ObservedAt: t0}))
	require.NoError(t, err)

	_, err = s.Create(ctx, domain.NewChainState("0xabc", domain.Patch{ObservedAt: t0}))
	require.ErrorIs(t, err, app.ErrDuplicateKey)

	updated, err := s.Update(ctx, "0xabc", domain.Patch{Contract: domain.FieldSet{"hashtag": "#x"}, ObservedAt: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "1", updated.ChainFields["block_number"].Value)
	assert.Equal(t, "#x", updated.ContractFields["hashtag"].Value)

	_, err = s.Update(ctx, "0xmissing", domain.Patch{ObservedAt: t0})
	require.ErrorIs(t, err, app.ErrNotFound)

	_, err = s.Create(ctx, domain.ChainState{})
	require.ErrorIs(t, err, app.ErrInvalidInput)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.Create(ctx, domain.NewChainState("0xabc", domain.Patch{Chain: domain.FieldSet{"block_number": "1"}, ObservedAt: t0}))
	require.NoError(t, err)

	got, err := s.FindByAddress(ctx, "0xabc")
	require.NoError(t, err)
	got.ChainFields["block_number"] = domain.Field{Value: "mutated"}

	again, err := s.FindByAddress(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "1", again.ChainFields["block_number"].Value)
}

func TestStore_ConcurrentUpdatesConverge(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.Create(ctx, domain.NewChainState("0xabc", domain.Patch{ObservedAt: t0}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Update(ctx, "0xabc", domain.Patch{
				Chain:      domain.FieldSet{"block_number": time.Duration(i).String()},
				ObservedAt: t0.Add(time.Duration(i) * time.Second),
			})
		}(i)
	}
	wg.Wait()

	got, err := s.FindByAddress(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(50).String(), got.ChainFields["block_number"].Value)
	assert.Equal(t, t0.Add(50*time.Second), got.UpdatedAt)
	assert.Equal(t, 1, s.Len())
}
