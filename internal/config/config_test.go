package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x1F98431c8aD98523631AE4a59f267346ea31F984"

func validConfig() Config {
	return Config{
		Chain: ChainConfig{
			Provider:        ProviderEthereum,
			RPCURL:          "http://localhost:8545",
			ContractAddress: testContract,
			FetchTimeout:    time.Second,
			RewardDecimals:  12,
		},
		Scheduler: SchedulerConfig{Interval: time.Minute, ShutdownGrace: time.Second},
		Storage:   StorageConfig{Driver: DriverMemory},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing rpc", mutate: func(c *Config) { c.Chain.RPCURL = "" }, wantErr: "chain.rpc_url"},
		{name: "missing contract", mutate: func(c *Config) { c.Chain.ContractAddress = "" }, wantErr: "chain.contract_address"},
		{name: "bad eth address", mutate: func(c *Config) { c.Chain.ContractAddress = "zil1abc" }, wantErr: "invalid chain.contract_address"},
		{name: "zilliqa bech32 accepted", mutate: func(c *Config) {
			c.Chain.Provider = ProviderZilliqa
			c.Chain.ContractAddress = "zil1abc"
		}},
		{name: "unknown provider", mutate: func(c *Config) { c.Chain.Provider = "solana" }, wantErr: "unsupported chain.provider"},
		{name: "zero interval", mutate: func(c *Config) { c.Scheduler.Interval = 0 }, wantErr: "scheduler.interval"},
		{name: "postgres needs dsn", mutate: func(c *Config) { c.Storage.Driver = DriverPostgres }, wantErr: "postgres_dsn"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: "unsupported storage.driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
chain:
  rpc_url: http://node:8545
  contract_address: ` + testContract + `
scheduler:
  interval: 30s
storage:
  driver: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SYNC_FETCH_TIMEOUT", "3s")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/sync")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://node:8545", cfg.Chain.RPCURL)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 3*time.Second, cfg.Chain.FetchTimeout)
	assert.Equal(t, "postgres://u:p@db/sync", cfg.Storage.PostgresDSN)
	assert.Equal(t, int32(12), cfg.Chain.RewardDecimals)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.ShutdownGrace)
	assert.True(t, cfg.Scheduler.RunOnStart)
	assert.Equal(t, ProviderEthereum, cfg.Chain.Provider)
}

func TestLoad_MissingRequired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: memory\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
