// Package monolith provides the application container and module interface.
package monolith

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/config"
	"github.com/fd1az/socialpay-sync/internal/di"
	"github.com/fd1az/socialpay-sync/internal/health"
	"github.com/fd1az/socialpay-sync/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	// EthClient is nil unless the chain provider is ethereum.
	EthClient() *ethclient.Client
	Health() *health.Server
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	ethClient *ethclient.Client
	health    *health.Server
	container di.Container
}

// New creates a new Monolith instance. The Ethereum client is dialed only for
// the ethereum provider.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface, hs *health.Server) (*app, error) {
	container := di.NewContainer()

	// Register global services
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("health", hs)

	a := &app{
		config:    cfg,
		logger:    log,
		health:    hs,
		container: container,
	}

	if cfg.Chain.Provider == config.ProviderEthereum {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Chain.FetchTimeout)
		defer cancel()

		ethClient, err := ethclient.DialContext(dialCtx, cfg.Chain.RPCURL)
		if err != nil {
			return nil, apperror.New(apperror.CodeRPCConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext(cfg.Chain.RPCURL))
		}
		a.ethClient = ethClient
		container.Register("ethClient", ethClient)
	}

	return a, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) EthClient() *ethclient.Client {
	return a.ethClient
}

func (a *app) Health() *health.Server {
	return a.health
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes resolved services and the Ethereum client.
func (a *app) Close() error {
	err := a.container.Close()
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return err
}
