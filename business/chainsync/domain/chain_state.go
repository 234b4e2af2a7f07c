// Package domain contains the core domain types for the chain synchronization context.
package domain

import (
	"sort"
	"time"
)

// Well-known chain field keys.
const (
	FieldBlockNumber      = "block_number"
	FieldChainID          = "chain_id"
	FieldGasPrice         = "gas_price"
	FieldDSBlockNumber    = "ds_block_number"
	FieldTxRate           = "tx_rate"
	FieldBlockTimeSeconds = "block_time_seconds"
)

// Well-known contract field keys.
const (
	FieldRewardPerAction = "reward_per_action"
	FieldHashtag         = "hashtag"
	FieldCadenceSeconds  = "cadence_seconds"
	FieldCadenceBlocks   = "cadence_blocks"
)

// Field is a single observed value and the reconciliation time that wrote it.
type Field struct {
	Value      string    `json:"value" msgpack:"value"`
	ObservedAt time.Time `json:"observed_at" msgpack:"observed_at"`
}

// Fields maps attribute keys to their latest observed values.
type Fields map[string]Field

// FieldSet is the raw result of one fetch. A nil FieldSet means the fetch failed.
type FieldSet map[string]string

// Patch carries the outcome of one reconciliation run.
type Patch struct {
	Chain      FieldSet
	Contract   FieldSet
	ObservedAt time.Time
}

// HasData reports whether at least one of the two fetches succeeded.
func (p Patch) HasData() bool {
	return p.Chain != nil || p.Contract != nil
}

// ChainState is the last-known chain and contract facts for one contract address.
type ChainState struct {
	ContractAddress string    `json:"contract_address" msgpack:"contract_address"`
	ChainFields     Fields    `json:"chain_fields" msgpack:"chain_fields"`
	ContractFields  Fields    `json:"contract_fields" msgpack:"contract_fields"`
	UpdatedAt       time.Time `json:"updated_at" msgpack:"updated_at"`
	CreatedAt       time.Time `json:"created_at" msgpack:"created_at"`
}

// NewChainState seeds a record from a patch merged over an empty baseline.
func NewChainState(address string, p Patch) ChainState {
	s := ChainState{
		ContractAddress: address,
		ChainFields:     Fields{},
		ContractFields:  Fields{},
		CreatedAt:       p.ObservedAt,
	}
	s.Apply(p)
	return s
}

// Apply merges p into s with last-writer-wins per field, ordered by ObservedAt.
// Keys absent from p keep their values. It reports whether anything changed.
func (s *ChainState) Apply(p Patch) bool {
	if s.ChainFields == nil {
		s.ChainFields = Fields{}
	}
	if s.ContractFields == nil {
		s.ContractFields = Fields{}
	}

	changed := s.ChainFields.merge(p.Chain, p.ObservedAt)
	if s.ContractFields.merge(p.Contract, p.ObservedAt) {
		changed = true
	}
	if p.ObservedAt.After(s.UpdatedAt) {
		s.UpdatedAt = p.ObservedAt
		changed = true
	}
	return changed
}

func (f Fields) merge(set FieldSet, at time.Time) bool {
	changed := false
	for k, v := range set {
		cur, ok := f[k]
		if ok && cur.ObservedAt.After(at) {
			continue
		}
		if ok && cur.Value == v && cur.ObservedAt.Equal(at) {
			continue
		}
		f[k] = Field{Value: v, ObservedAt: at}
		changed = true
	}
	return changed
}

// Superseded lists the keys of p for which s holds a newer observation than
// p.ObservedAt, as "chain.<key>" or "contract.<key>", sorted.
func (s *ChainState) Superseded(p Patch) []string {
	var out []string
	for _, k := range s.ChainFields.newerThan(p.Chain, p.ObservedAt) {
		out = append(out, "chain."+k)
	}
	for _, k := range s.ContractFields.newerThan(p.Contract, p.ObservedAt) {
		out = append(out, "contract."+k)
	}
	return out
}

func (f Fields) newerThan(set FieldSet, at time.Time) []string {
	var keys []string
	for k := range set {
		if cur, ok := f[k]; ok && cur.ObservedAt.After(at) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of s.
func (s ChainState) Clone() ChainState {
	out := s
	out.ChainFields = s.ChainFields.clone()
	out.ContractFields = s.ContractFields.clone()
	return out
}

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Values strips the per-field metadata.
func (f Fields) Values() FieldSet {
	out := make(FieldSet, len(f))
	for k, v := range f {
		out[k] = v.Value
	}
	return out
}

// Keys returns the field keys in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Chain returns the value of a chain field.
func (s *ChainState) Chain(key string) (string, bool) {
	f, ok := s.ChainFields[key]
	return f.Value, ok
}

// Contract returns the value of a contract field.
func (s *ChainState) Contract(key string) (string, bool) {
	f, ok := s.ContractFields[key]
	return f.Value, ok
}
