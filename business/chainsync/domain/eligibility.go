package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/socialpay-sync/internal/apperror"
)

// TimeUntilEligible returns how long a user must still wait before participating again.
//
// A nil lastParticipatedAt means the user never participated and is eligible
// immediately. A nil or negative cadence fails with CONFIGURATION_UNAVAILABLE.
func TimeUntilEligible(lastParticipatedAt *time.Time, cadence *time.Duration, now time.Time) (time.Duration, error) {
	if lastParticipatedAt == nil {
		return 0, nil
	}
	if cadence == nil || *cadence < 0 {
		return 0, apperror.New(apperror.CodeConfigurationUnavailable, apperror.WithContext("cadence"))
	}

	next := lastParticipatedAt.Add(*cadence)
	if !next.After(now) {
		return 0, nil
	}
	return next.Sub(now), nil
}

// CadenceFromState derives the participation cadence from synchronized state.
// cadence_seconds wins; otherwise cadence_blocks * block_time_seconds.
func CadenceFromState(s *ChainState) (time.Duration, error) {
	if s == nil {
		return 0, cadenceUnavailable("no chain state")
	}

	if raw, ok := s.Contract(FieldCadenceSeconds); ok {
		secs, err := parseNonNegative(raw)
		if err != nil {
			return 0, cadenceUnavailable(FieldCadenceSeconds)
		}
		d, ok := toDuration(secs)
		if !ok {
			return 0, cadenceUnavailable(FieldCadenceSeconds)
		}
		return d, nil
	}

	rawBlocks, ok := s.Contract(FieldCadenceBlocks)
	if !ok {
		return 0, cadenceUnavailable(FieldCadenceSeconds)
	}
	rawBlockTime, ok := s.Chain(FieldBlockTimeSeconds)
	if !ok {
		return 0, cadenceUnavailable(FieldBlockTimeSeconds)
	}

	blocks, err := parseNonNegative(rawBlocks)
	if err != nil {
		return 0, cadenceUnavailable(FieldCadenceBlocks)
	}
	blockTime, err := parseNonNegative(rawBlockTime)
	if err != nil {
		return 0, cadenceUnavailable(FieldBlockTimeSeconds)
	}
	d, ok := toDuration(blocks.Mul(blockTime))
	if !ok {
		return 0, cadenceUnavailable(FieldCadenceBlocks)
	}
	return d, nil
}

func parseNonNegative(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, apperror.New(apperror.CodeInvalidInput)
	}
	return d, nil
}

// maxCadenceSeconds is the largest whole-second count a time.Duration holds.
var maxCadenceSeconds = decimal.NewFromInt(math.MaxInt64 / int64(time.Second))

// toDuration reports false when seconds does not fit in a time.Duration.
func toDuration(seconds decimal.Decimal) (time.Duration, bool) {
	if seconds.GreaterThan(maxCadenceSeconds) {
		return 0, false
	}
	return time.Duration(seconds.Mul(decimal.NewFromInt(int64(time.Second))).IntPart()), true
}

func cadenceUnavailable(field string) error {
	return apperror.New(apperror.CodeConfigurationUnavailable, apperror.WithContext(field))
}
