// Package chainsync implements the chain state synchronization bounded context.
package chainsync

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/socialpay-sync/business/chainsync/app"
	syncDI "github.com/fd1az/socialpay-sync/business/chainsync/di"
	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
	"github.com/fd1az/socialpay-sync/business/chainsync/infra/ethereum"
	"github.com/fd1az/socialpay-sync/business/chainsync/infra/httpapi"
	"github.com/fd1az/socialpay-sync/business/chainsync/infra/memory"
	"github.com/fd1az/socialpay-sync/business/chainsync/infra/pebble"
	"github.com/fd1az/socialpay-sync/business/chainsync/infra/postgres"
	"github.com/fd1az/socialpay-sync/business/chainsync/infra/zilliqa"
	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/config"
	"github.com/fd1az/socialpay-sync/internal/di"
	"github.com/fd1az/socialpay-sync/internal/logger"
	"github.com/fd1az/socialpay-sync/internal/monolith"
)

const subscriberBuffer = 16

// Module implements the chainsync bounded context.
type Module struct{}

// RegisterServices registers all chainsync services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, syncDI.Provider, func(sr di.ServiceRegistry) app.ChainInfoProvider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		provider, err := newProvider(sr, cfg, log)
		if err != nil {
			panic("failed to create chain provider: " + err.Error())
		}
		return provider
	})

	di.RegisterToken(c, syncDI.Store, func(sr di.ServiceRegistry) app.StateStore {
		cfg := sr.Get("config").(*config.Config)

		store, err := newStore(context.Background(), cfg.Storage)
		if err != nil {
			panic("failed to open chain state store: " + err.Error())
		}
		return store
	})

	di.RegisterToken(c, syncDI.Broadcaster, func(di.ServiceRegistry) *app.Broadcaster {
		return app.NewBroadcaster()
	})

	di.RegisterToken(c, syncDI.Reconciler, func(sr di.ServiceRegistry) *app.Reconciler {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		r, err := app.NewReconciler(syncDI.GetProvider(sr), syncDI.GetStore(sr), log,
			app.WithFetchTimeout(cfg.Chain.FetchTimeout),
			app.WithPublisher(syncDI.GetBroadcaster(sr)),
		)
		if err != nil {
			panic("failed to create reconciler: " + err.Error())
		}
		return r
	})

	di.RegisterToken(c, syncDI.Scheduler, func(sr di.ServiceRegistry) *app.Scheduler {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.NewScheduler(syncDI.GetReconciler(sr), cfg.Chain.ContractAddress, app.SchedulerConfig{
			Interval:      cfg.Scheduler.Interval,
			ShutdownGrace: cfg.Scheduler.ShutdownGrace,
			RunOnStart:    cfg.Scheduler.RunOnStart,
		}, log)
	})

	di.RegisterToken(c, syncDI.ChainStateService, func(sr di.ServiceRegistry) *app.ChainStateService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		// the broadcaster closes the channel on shutdown, ending Run
		updates, _ := syncDI.GetBroadcaster(sr).Subscribe(subscriberBuffer)
		return app.NewChainStateService(syncDI.GetStore(sr), updates, app.ServiceConfig{
			ContractAddress: cfg.Chain.ContractAddress,
			CacheTTL:        cfg.Service.CacheTTL,
			StaleAfter:      cfg.Service.StaleAfter,
			RewardDecimals:  cfg.Chain.RewardDecimals,
		}, log)
	})

	di.RegisterToken(c, syncDI.Handler, func(sr di.ServiceRegistry) *httpapi.Handler {
		log := sr.Get("logger").(logger.LoggerInterface)
		return httpapi.NewHandler(syncDI.GetChainStateService(sr), log)
	})

	return nil
}

func newProvider(sr di.ServiceRegistry, cfg *config.Config, log logger.LoggerInterface) (app.ChainInfoProvider, error) {
	switch cfg.Chain.Provider {
	case config.ProviderEthereum:
		client := sr.Get("ethClient").(*ethclient.Client)
		p, err := ethereum.NewProvider(client, ethereum.Config{
			BlockTime:         cfg.Chain.BlockTime,
			RequestsPerMinute: cfg.Chain.RequestsPerMinute,
		}, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderZilliqa:
		p, err := zilliqa.NewProvider(zilliqa.Config{
			RPCURL:            cfg.Chain.RPCURL,
			RequestTimeout:    cfg.Chain.FetchTimeout,
			RequestsPerMinute: cfg.Chain.RequestsPerMinute,
			BlockTime:         cfg.Chain.BlockTime,
		}, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown chain provider %q", cfg.Chain.Provider)
	}
}

func newStore(ctx context.Context, cfg config.StorageConfig) (app.StateStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewStore(pool), nil
	case config.DriverPebble:
		store, err := pebble.Open(cfg.PebblePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Startup mounts routes and health checks, then starts the cache consumer,
// the update log and the scheduler.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	sr := mono.Services()

	store := syncDI.GetStore(sr)
	svc := syncDI.GetChainStateService(sr)

	hs := mono.Health()
	hs.RegisterCheck("store", func(ctx context.Context) (bool, string) {
		if err := store.Ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, cfg.Storage.Driver
	})
	hs.RegisterCheck("chain_state", func(ctx context.Context) (bool, string) {
		c, err := svc.Campaign(ctx, time.Now())
		switch {
		case apperror.HasCode(err, apperror.CodeChainStateNotFound):
			return true, "awaiting first reconciliation"
		case err != nil:
			return false, err.Error()
		case c.Stale:
			return false, "stale since " + c.UpdatedAt.UTC().Format(time.RFC3339)
		default:
			return true, "updated " + c.UpdatedAt.UTC().Format(time.RFC3339)
		}
	})
	syncDI.GetHandler(sr).Register(hs)

	go svc.Run(ctx)
	go logUpdates(ctx, syncDI.GetBroadcaster(sr), log)

	if err := syncDI.GetScheduler(sr).Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	log.Info(ctx, "chainsync module started",
		"provider", cfg.Chain.Provider,
		"storage", cfg.Storage.Driver,
		"contract_address", cfg.Chain.ContractAddress,
	)
	return nil
}

// Shutdown stops the scheduler within its grace period.
func (m *Module) Shutdown(mono monolith.Monolith) error {
	err := syncDI.GetScheduler(mono.Services()).Stop()
	if apperror.HasCode(err, apperror.CodeShutdownTimeout) {
		mono.Logger().Warn(context.Background(), "forced scheduler stop", "error", err)
		return nil
	}
	return err
}

// logUpdates records every reconciled state until the broadcaster closes.
func logUpdates(ctx context.Context, b *app.Broadcaster, log logger.LoggerInterface) {
	updates, cancel := b.Subscribe(subscriberBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			log.Info(ctx, "chain state update",
				"contract_address", st.ContractAddress,
				"updated_at", st.UpdatedAt,
				"block_number", fieldValue(st.ChainFields, domain.FieldBlockNumber),
				"chain_fields", st.ChainFields.Keys(),
				"contract_fields", st.ContractFields.Keys(),
			)
		}
	}
}

func fieldValue(f domain.Fields, key string) string {
	if v, ok := f[key]; ok {
		return v.Value
	}
	return ""
}
