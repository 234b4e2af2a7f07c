package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
)

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	ID      string          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCClient issues JSON-RPC 2.0 calls over an InstrumentedClient.
type RPCClient struct {
	http   *InstrumentedClient
	path   string
	nextID atomic.Uint64
}

// NewRPCClient posts every call to path relative to the client's base URL.
func NewRPCClient(client *InstrumentedClient, path string) *RPCClient {
	return &RPCClient{http: client, path: path}
}

// Call invokes method and decodes the result into result.
// A JSON-RPC error object is returned as *RPCError.
func (c *RPCClient) Call(ctx context.Context, method string, params any, result any) error {
	if params == nil {
		params = []any{}
	}
	req := rpcRequest{
		ID:      strconv.FormatUint(c.nextID.Add(1), 10),
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}

	var resp rpcResponse
	if _, err := c.http.PostJSON(ctx, c.path, req, &resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if result == nil {
		return nil
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return fmt.Errorf("%s: empty result", method)
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}
