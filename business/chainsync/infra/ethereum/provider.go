// Package ethereum implements the ChainInfoProvider for EVM chains using go-ethereum.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/socialpay-sync/business/chainsync/app"
	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/circuitbreaker"
	"github.com/fd1az/socialpay-sync/internal/logger"
	"github.com/fd1az/socialpay-sync/internal/ratelimit"
)

const (
	tracerName = "ethereum"
	meterName  = "ethereum"
)

var _ app.ChainInfoProvider = (*Provider)(nil)

// Client is the subset of ethclient.Client the provider uses.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config holds provider settings.
type Config struct {
	// BlockTime is reported as block_time_seconds when positive.
	BlockTime         time.Duration
	RequestsPerMinute int
}

type providerMetrics struct {
	callsTotal  metric.Int64Counter
	callLatency metric.Float64Histogram
	callErrors  metric.Int64Counter
}

// Provider reads chain metadata and campaign contract views over JSON-RPC.
type Provider struct {
	client      Client
	campaignABI abi.ABI
	blockTime   time.Duration

	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[string]
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewProvider creates a provider over an already dialed client.
func NewProvider(client Client, cfg Config, log logger.LoggerInterface) (*Provider, error) {
	parsedABI, err := abi.JSON(strings.NewReader(CampaignABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse campaign ABI: %w", err)
	}

	p := &Provider{
		client:      client,
		campaignABI: parsedABI,
		blockTime:   cfg.BlockTime,
		limiter:     ratelimit.New(cfg.RequestsPerMinute),
		cb:          circuitbreaker.New[string](circuitbreaker.DefaultConfig("ethereum-rpc")),
		logger:      log,
		tracer:      otel.Tracer(tracerName),
	}

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return p, nil
}

func (p *Provider) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	p.metrics = &providerMetrics{}

	p.metrics.callsTotal, err = meter.Int64Counter(
		"ethereum_rpc_calls_total",
		metric.WithDescription("Total RPC calls by operation"),
	)
	if err != nil {
		return err
	}

	p.metrics.callLatency, err = meter.Float64Histogram(
		"ethereum_rpc_call_latency_ms",
		metric.WithDescription("RPC call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.metrics.callErrors, err = meter.Int64Counter(
		"ethereum_rpc_call_errors_total",
		metric.WithDescription("Failed RPC calls by operation"),
	)
	return err
}

// GetChainInfo returns block_number, chain_id and gas_price. Individual call
// failures are dropped; the fetch fails only when every call fails.
func (p *Provider) GetChainInfo(ctx context.Context) (domain.FieldSet, error) {
	ctx, span := p.tracer.Start(ctx, "ethereum.get_chain_info")
	defer span.End()

	calls := []struct {
		field string
		fn    func(context.Context) (string, error)
	}{
		{domain.FieldBlockNumber, func(ctx context.Context) (string, error) {
			n, err := p.client.BlockNumber(ctx)
			return strconv.FormatUint(n, 10), err
		}},
		{domain.FieldChainID, func(ctx context.Context) (string, error) {
			id, err := p.client.ChainID(ctx)
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}},
		{domain.FieldGasPrice, func(ctx context.Context) (string, error) {
			price, err := p.client.SuggestGasPrice(ctx)
			if err != nil {
				return "", err
			}
			return price.String(), nil
		}},
	}

	fields := domain.FieldSet{}
	var errs []error
	for _, c := range calls {
		v, err := p.call(ctx, c.field, c.fn)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.field, err))
			continue
		}
		fields[c.field] = v
	}

	if len(fields) == 0 {
		err := apperror.External(apperror.CodeRPCError, "chain info", errors.Join(errs...))
		span.RecordError(err)
		span.SetStatus(codes.Error, "all chain calls failed")
		return nil, err
	}

	if p.blockTime > 0 {
		fields[domain.FieldBlockTimeSeconds] = strconv.FormatFloat(p.blockTime.Seconds(), 'f', -1, 64)
	}
	if len(errs) > 0 {
		p.logger.Warn(ctx, "partial chain info", "error", errors.Join(errs...))
	}

	span.SetAttributes(attribute.Int("fields", len(fields)))
	span.SetStatus(codes.Ok, "chain info fetched")
	return fields, nil
}

// GetContractInfo calls every campaign view on contractAddress. A view the
// contract does not implement is skipped; the fetch fails only when all fail.
func (p *Provider) GetContractInfo(ctx context.Context, contractAddress string) (domain.FieldSet, error) {
	ctx, span := p.tracer.Start(ctx, "ethereum.get_contract_info",
		trace.WithAttributes(attribute.String("contract", contractAddress)),
	)
	defer span.End()

	if !common.IsHexAddress(contractAddress) {
		err := apperror.Validation(apperror.CodeInvalidContractAddress, contractAddress)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid address")
		return nil, err
	}
	to := common.HexToAddress(contractAddress)

	fields := domain.FieldSet{}
	var errs []error
	for _, view := range contractViews {
		v, err := p.call(ctx, view.method, func(ctx context.Context) (string, error) {
			return p.callView(ctx, to, view.method)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", view.method, err))
			continue
		}
		fields[view.field] = v
	}

	if len(fields) == 0 {
		err := apperror.External(apperror.CodeContractCallFailed, contractAddress, errors.Join(errs...))
		span.RecordError(err)
		span.SetStatus(codes.Error, "all contract calls failed")
		return nil, err
	}
	if len(errs) > 0 {
		p.logger.Warn(ctx, "partial contract info", "contract", contractAddress, "error", errors.Join(errs...))
	}

	span.SetAttributes(attribute.Int("fields", len(fields)))
	span.SetStatus(codes.Ok, "contract info fetched")
	return fields, nil
}

func (p *Provider) callView(ctx context.Context, to common.Address, method string) (string, error) {
	data, err := p.campaignABI.Pack(method)
	if err != nil {
		return "", fmt.Errorf("pack: %w", err)
	}

	raw, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return "", err
	}

	out, err := p.campaignABI.Unpack(method, raw)
	if err != nil {
		return "", fmt.Errorf("unpack: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("empty output")
	}

	switch v := out[0].(type) {
	case *big.Int:
		return v.String(), nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

// call rate-limits fn and runs it behind the breaker.
func (p *Provider) call(ctx context.Context, op string, fn func(context.Context) (string, error)) (string, error) {
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("operation", op))
	p.metrics.callsTotal.Add(ctx, 1, attrs)

	if err := p.limiter.Wait(ctx); err != nil {
		p.metrics.callErrors.Add(ctx, 1, attrs)
		return "", err
	}

	v, err := p.cb.Execute(func() (string, error) {
		return fn(ctx)
	})
	p.metrics.callLatency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	if err != nil {
		p.metrics.callErrors.Add(ctx, 1, attrs)
		if circuitbreaker.IsOpen(err) {
			return "", apperror.New(apperror.CodeCircuitOpen, apperror.WithContext(p.cb.Name()), apperror.WithCause(err))
		}
		return "", err
	}
	return v, nil
}
