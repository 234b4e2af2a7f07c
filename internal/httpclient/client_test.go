package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *InstrumentedClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]ClientOption{WithBaseURL(srv.URL), WithProviderName("test")}, opts...)
	c, err := NewInstrumentedClient(opts...)
	require.NoError(t, err)
	return c
}

func TestPostJSON_DecodesResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Default"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, WithHeaders(map[string]string{"X-Default": "yes"}))

	var out struct {
		OK bool `json:"ok"`
	}
	resp, err := c.PostJSON(context.Background(), "/api", map[string]int{"a": 1}, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.OK)
}

func TestPostJSON_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := c.PostJSON(context.Background(), "", struct{}{}, nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestPostJSON_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithRequestTimeout(50*time.Millisecond))

	_, err := c.PostJSON(context.Background(), "", struct{}{}, nil)
	require.Error(t, err)
}

func TestRPCClient_Call(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)

		switch req.Method {
		case "GetBlockchainInfo":
			_, _ = w.Write([]byte(`{"id":"` + req.ID + `","jsonrpc":"2.0","result":{"NumTxBlocks":"42"}}`))
		default:
			_, _ = w.Write([]byte(`{"id":"` + req.ID + `","jsonrpc":"2.0","error":{"code":-32601,"message":"method not found"}}`))
		}
	})
	rpc := NewRPCClient(c, "")

	var info struct {
		NumTxBlocks string `json:"NumTxBlocks"`
	}
	require.NoError(t, rpc.Call(context.Background(), "GetBlockchainInfo", []string{""}, &info))
	assert.Equal(t, "42", info.NumTxBlocks)

	err := rpc.Call(context.Background(), "Nope", nil, &info)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
}
