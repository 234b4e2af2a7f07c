package zilliqa

import (
	"encoding/json"

	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
)

// JSON-RPC method names.
const (
	methodGetBlockchainInfo    = "GetBlockchainInfo"
	methodGetSmartContractInit = "GetSmartContractInit"
)

// blockchainInfo is the subset of GetBlockchainInfo the provider reads.
type blockchainInfo struct {
	NumTxBlocks     string      `json:"NumTxBlocks"`
	CurrentDSEpoch  string      `json:"CurrentDSEpoch"`
	TransactionRate json.Number `json:"TransactionRate"`
	TxBlockRate     json.Number `json:"TxBlockRate"`
}

// initParam is one immutable contract parameter returned by GetSmartContractInit.
type initParam struct {
	VName string          `json:"vname"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// text returns the parameter value as a string. Scalar values arrive JSON
// quoted; ADT values are kept as raw JSON.
func (p initParam) text() string {
	var s string
	if err := json.Unmarshal(p.Value, &s); err == nil {
		return s
	}
	return string(p.Value)
}

// initAliases maps campaign init parameter names to contract field keys.
var initAliases = map[string]string{
	"zils_per_tweet": domain.FieldRewardPerAction,
	"blocks_per_day": domain.FieldCadenceBlocks,
}
