package app

import (
	"context"
	"errors"
	"time"

	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/cache"
	"github.com/fd1az/socialpay-sync/internal/logger"
)

const defaultCacheTTL = time.Minute

// ServiceConfig configures the read service.
type ServiceConfig struct {
	ContractAddress string
	CacheTTL        time.Duration
	StaleAfter      time.Duration
	RewardDecimals  int32
}

// ChainStateService gives consumers read access to the synchronized state.
type ChainStateService struct {
	store   StateStore
	updates <-chan domain.ChainState
	cache   *cache.Cache[string, domain.ChainState]
	cfg     ServiceConfig
	log     logger.LoggerInterface
}

// NewChainStateService creates the service. updates may be nil, in which case
// Run returns immediately and reads rely on the store and cache only.
func NewChainStateService(store StateStore, updates <-chan domain.ChainState, cfg ServiceConfig, log logger.LoggerInterface) *ChainStateService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &ChainStateService{
		store:   store,
		updates: updates,
		cache:   cache.New[string, domain.ChainState](cfg.CacheTTL),
		cfg:     cfg,
		log:     log,
	}
}

// Latest returns the last reconciled state for the configured contract.
func (s *ChainStateService) Latest(ctx context.Context) (*domain.ChainState, error) {
	if st, ok := s.cache.Get(ctx, s.cfg.ContractAddress); ok {
		out := st.Clone()
		return &out, nil
	}

	st, err := s.store.FindByAddress(ctx, s.cfg.ContractAddress)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NotFound(apperror.CodeChainStateNotFound, s.cfg.ContractAddress)
		}
		return nil, apperror.New(apperror.CodePersistenceError, apperror.WithContext("find"), apperror.WithCause(err))
	}

	s.cache.Set(ctx, s.cfg.ContractAddress, st.Clone(), s.cfg.CacheTTL)
	return st, nil
}

// Campaign returns the campaign parameters derived from the latest state.
func (s *ChainStateService) Campaign(ctx context.Context, now time.Time) (*domain.Campaign, error) {
	st, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}
	c := domain.NewCampaign(*st, s.cfg.RewardDecimals, s.cfg.StaleAfter, now)
	return &c, nil
}

// TimeUntilEligible computes the remaining wait for a user from the latest state.
// Only CONFIGURATION_UNAVAILABLE is expected to reach interactive callers.
func (s *ChainStateService) TimeUntilEligible(ctx context.Context, lastParticipatedAt *time.Time, now time.Time) (time.Duration, error) {
	if lastParticipatedAt == nil {
		return domain.TimeUntilEligible(nil, nil, now)
	}

	st, err := s.Latest(ctx)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeChainStateNotFound) {
			return 0, apperror.New(apperror.CodeConfigurationUnavailable,
				apperror.WithContext("chain state not yet reconciled"), apperror.WithCause(err))
		}
		return 0, err
	}

	cadence, err := domain.CadenceFromState(st)
	if err != nil {
		return 0, err
	}
	return domain.TimeUntilEligible(lastParticipatedAt, &cadence, now)
}

// Run refreshes the cache from broadcast updates until ctx ends or the channel closes.
func (s *ChainStateService) Run(ctx context.Context) {
	if s.updates == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-s.updates:
			if !ok {
				return
			}
			if st.ContractAddress != s.cfg.ContractAddress {
				continue
			}
			// overlapping runs can publish out of order
			if cur, ok := s.cache.Get(ctx, st.ContractAddress); ok && cur.UpdatedAt.After(st.UpdatedAt) {
				continue
			}
			s.cache.Set(ctx, st.ContractAddress, st, s.cfg.CacheTTL)
			s.log.Debug(ctx, "chain state cache refreshed",
				"contract_address", st.ContractAddress,
				"updated_at", st.UpdatedAt,
			)
		}
	}
}

// Close stops the cache janitor.
func (s *ChainStateService) Close() error {
	s.cache.Close()
	return nil
}
