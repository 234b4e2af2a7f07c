package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRewardDecimals is the base-unit exponent of the reward token (Qa per ZIL).
const DefaultRewardDecimals int32 = 12

// Campaign is the consumer view of the reward campaign parameters.
type Campaign struct {
	ContractAddress string          `json:"contract_address"`
	RewardPerAction decimal.Decimal `json:"reward_per_action"`
	RewardRaw       string          `json:"reward_raw,omitempty"`
	Hashtag         string          `json:"hashtag,omitempty"`
	Cadence         *time.Duration  `json:"-"`
	CadenceSeconds  *float64        `json:"cadence_seconds,omitempty"`
	BlockNumber     uint64          `json:"block_number"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Stale           bool            `json:"stale"`
}

// NewCampaign builds the campaign view from state.
// Stale is set when the last reconciliation is older than staleAfter (zero disables).
func NewCampaign(s ChainState, rewardDecimals int32, staleAfter time.Duration, now time.Time) Campaign {
	c := Campaign{
		ContractAddress: s.ContractAddress,
		RewardPerAction: decimal.Zero,
		UpdatedAt:       s.UpdatedAt,
		Stale:           staleAfter > 0 && now.Sub(s.UpdatedAt) > staleAfter,
	}

	if raw, ok := s.Contract(FieldRewardPerAction); ok {
		c.RewardRaw = raw
		if d, err := decimal.NewFromString(raw); err == nil {
			c.RewardPerAction = d.Shift(-rewardDecimals)
		}
	}
	if tag, ok := s.Contract(FieldHashtag); ok {
		c.Hashtag = tag
	}
	if raw, ok := s.Chain(FieldBlockNumber); ok {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			c.BlockNumber = n
		}
	}
	if cadence, err := CadenceFromState(&s); err == nil {
		secs := cadence.Seconds()
		c.Cadence = &cadence
		c.CadenceSeconds = &secs
	}
	return c
}
