package zilliqa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/logger"
)

type rpcReq struct {
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newTestProvider(t *testing.T, cfg Config, handler func(t *testing.T, req rpcReq) string) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		body := handler(t, req)
		_, _ = w.Write([]byte(`{"id":"` + req.ID + `","jsonrpc":"2.0",` + body + `}`))
	}))
	t.Cleanup(srv.Close)

	cfg.RPCURL = srv.URL
	p, err := NewProvider(cfg, logger.NewNop())
	require.NoError(t, err)
	return p
}

func TestGetChainInfo(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want domain.FieldSet
	}{
		{
			name: "block time derived from tx block rate",
			want: domain.FieldSet{
				domain.FieldBlockNumber:      "589778",
				domain.FieldDSBlockNumber:    "5898",
				domain.FieldTxRate:           "0.12",
				domain.FieldBlockTimeSeconds: "40",
			},
		},
		{
			name: "configured block time wins",
			cfg:  Config{BlockTime: 30 * time.Second},
			want: domain.FieldSet{
				domain.FieldBlockNumber:      "589778",
				domain.FieldDSBlockNumber:    "5898",
				domain.FieldTxRate:           "0.12",
				domain.FieldBlockTimeSeconds: "30",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, tt.cfg, func(t *testing.T, req rpcReq) string {
				assert.Equal(t, methodGetBlockchainInfo, req.Method)
				return `"result":{"CurrentDSEpoch":"5898","NumTxBlocks":"589778","TransactionRate":0.12,"TxBlockRate":0.025,"NumPeers":2400}`
			})

			fields, err := p.GetChainInfo(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, fields)
		})
	}
}

func TestGetChainInfo_RPCError(t *testing.T) {
	p := newTestProvider(t, Config{}, func(*testing.T, rpcReq) string {
		return `"error":{"code":-32603,"message":"internal error"}`
	})

	fields, err := p.GetChainInfo(context.Background())
	require.Error(t, err)
	assert.Nil(t, fields)
	assert.True(t, apperror.HasCode(err, apperror.CodeRPCError))

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
	assert.Equal(t, "GetBlockchainInfo", appErr.Context)
}

func TestGetContractInfo(t *testing.T) {
	p := newTestProvider(t, Config{}, func(t *testing.T, req rpcReq) string {
		assert.Equal(t, methodGetSmartContractInit, req.Method)
		require.Len(t, req.Params, 1)
		var addr string
		require.NoError(t, json.Unmarshal(req.Params[0], &addr))
		assert.Equal(t, "b1f7c5ee1c6f26e5fc7ad3b8b1aaf3e51b3e6f47", addr)

		return `"result":[
			{"vname":"_scilla_version","type":"Uint32","value":"0"},
			{"vname":"owner","type":"ByStr20","value":"0x1234"},
			{"vname":"hashtag","type":"String","value":"#zilliqa"},
			{"vname":"zils_per_tweet","type":"Uint128","value":"1000000000000"},
			{"vname":"blocks_per_day","type":"Uint32","value":"2500"},
			{"vname":"flags","type":"List Bool","value":[true,false]}
		]`
	})

	fields, err := p.GetContractInfo(context.Background(), "0xB1F7C5EE1C6F26E5FC7AD3B8B1AAF3E51B3E6F47")
	require.NoError(t, err)
	assert.Equal(t, domain.FieldSet{
		"owner":                     "0x1234",
		domain.FieldHashtag:         "#zilliqa",
		domain.FieldRewardPerAction: "1000000000000",
		domain.FieldCadenceBlocks:   "2500",
		"flags":                     "[true,false]",
	}, fields)
}

func TestGetContractInfo_EmptyAddress(t *testing.T) {
	called := false
	p := newTestProvider(t, Config{}, func(*testing.T, rpcReq) string {
		called = true
		return `"result":[]`
	})

	_, err := p.GetContractInfo(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidContractAddress))
	assert.False(t, called)
}

func TestGetContractInfo_BreakerOpens(t *testing.T) {
	p := newTestProvider(t, Config{}, func(*testing.T, rpcReq) string {
		return `"error":{"code":-5,"message":"Address not contract address"}`
	})

	var err error
	for range 6 {
		_, err = p.GetContractInfo(context.Background(), "0xabc")
	}
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeCircuitOpen))
}
