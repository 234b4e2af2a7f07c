package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/logger"
)

const contractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type rpcReq struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers the handful of eth_* methods the provider issues.
type fakeNode struct {
	t         *testing.T
	abi       abi.ABI
	failChain atomic.Bool
	noCadence atomic.Bool
	callsSeen atomic.Int64
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcReq
	require.NoError(n.t, json.NewDecoder(r.Body).Decode(&req))
	n.callsSeen.Add(1)

	reply := func(result any) {
		b, _ := json.Marshal(result)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + string(b) + `}`))
	}
	fail := func(msg string) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32000,"message":"` + msg + `"}}`))
	}

	switch req.Method {
	case "eth_blockNumber":
		if n.failChain.Load() {
			fail("node syncing")
			return
		}
		reply("0x64")
	case "eth_chainId":
		if n.failChain.Load() {
			fail("node syncing")
			return
		}
		reply("0x1")
	case "eth_gasPrice":
		if n.failChain.Load() {
			fail("node syncing")
			return
		}
		reply("0x3b9aca00")
	case "eth_call":
		var msg struct {
			Input hexutil.Bytes `json:"input"`
			Data  hexutil.Bytes `json:"data"`
		}
		require.NoError(n.t, json.Unmarshal(req.Params[0], &msg))
		input := msg.Input
		if len(input) == 0 {
			input = msg.Data
		}
		n.answerCall(input, reply, fail)
	default:
		fail("method not found")
	}
}

func (n *fakeNode) answerCall(input []byte, reply func(any), fail func(string)) {
	method, err := n.abi.MethodById(input[:4])
	if err != nil {
		fail("execution reverted")
		return
	}

	var out []byte
	switch method.Name {
	case "rewardPerAction":
		out, err = method.Outputs.Pack(big.NewInt(1_500_000_000_000))
	case "hashtag":
		out, err = method.Outputs.Pack("#socialpay")
	case "cadenceSeconds":
		if n.noCadence.Load() {
			fail("execution reverted")
			return
		}
		out, err = method.Outputs.Pack(big.NewInt(86400))
	}
	require.NoError(n.t, err)
	reply(hexutil.Encode(out))
}

func newTestProvider(t *testing.T, cfg Config) (*Provider, *fakeNode) {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(CampaignABI))
	require.NoError(t, err)

	node := &fakeNode{t: t, abi: parsed}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	client, err := ethclient.DialContext(context.Background(), srv.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	p, err := NewProvider(client, cfg, logger.NewNop())
	require.NoError(t, err)
	return p, node
}

func TestGetChainInfo(t *testing.T) {
	p, _ := newTestProvider(t, Config{BlockTime: 12 * time.Second})

	fields, err := p.GetChainInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.FieldSet{
		domain.FieldBlockNumber:      "100",
		domain.FieldChainID:          "1",
		domain.FieldGasPrice:         "1000000000",
		domain.FieldBlockTimeSeconds: "12",
	}, fields)
}

func TestGetChainInfo_AllCallsFail(t *testing.T) {
	p, node := newTestProvider(t, Config{BlockTime: 12 * time.Second})
	node.failChain.Store(true)

	fields, err := p.GetChainInfo(context.Background())
	require.Error(t, err)
	assert.Nil(t, fields)
	assert.True(t, apperror.HasCode(err, apperror.CodeRPCError))

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
}

func TestGetContractInfo(t *testing.T) {
	p, _ := newTestProvider(t, Config{})

	fields, err := p.GetContractInfo(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.FieldSet{
		domain.FieldRewardPerAction: "1500000000000",
		domain.FieldHashtag:         "#socialpay",
		domain.FieldCadenceSeconds:  "86400",
	}, fields)
}

func TestGetContractInfo_PartialViews(t *testing.T) {
	p, node := newTestProvider(t, Config{})
	node.noCadence.Store(true)

	fields, err := p.GetContractInfo(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Len(t, fields, 2)
	_, ok := fields[domain.FieldCadenceSeconds]
	assert.False(t, ok)
}

func TestGetContractInfo_InvalidAddress(t *testing.T) {
	p, node := newTestProvider(t, Config{})

	_, err := p.GetContractInfo(context.Background(), "zil1notanevmaddress")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidContractAddress))
	assert.Zero(t, node.callsSeen.Load())
}

func TestCampaignABI_Selectors(t *testing.T) {
	parsed, err := abi.JSON(bytes.NewReader([]byte(CampaignABI)))
	require.NoError(t, err)
	for _, view := range contractViews {
		m, ok := parsed.Methods[view.method]
		require.True(t, ok, view.method)
		assert.Empty(t, m.Inputs)
		assert.Len(t, m.Outputs, 1)
	}
}
