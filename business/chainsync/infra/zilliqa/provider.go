// Package zilliqa implements the ChainInfoProvider for the Zilliqa JSON-RPC API.
package zilliqa

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/socialpay-sync/business/chainsync/app"
	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/circuitbreaker"
	"github.com/fd1az/socialpay-sync/internal/httpclient"
	"github.com/fd1az/socialpay-sync/internal/logger"
	"github.com/fd1az/socialpay-sync/internal/ratelimit"
)

const (
	tracerName = "zilliqa"
	meterName  = "zilliqa"
)

var _ app.ChainInfoProvider = (*Provider)(nil)

// Config holds provider settings.
type Config struct {
	RPCURL            string
	RequestTimeout    time.Duration
	RequestsPerMinute int
	// BlockTime overrides the block time derived from TxBlockRate when positive.
	BlockTime time.Duration
}

type providerMetrics struct {
	requestsTotal metric.Int64Counter
	requestErrors metric.Int64Counter
}

// Provider reads Zilliqa chain info and contract init parameters.
type Provider struct {
	rpc       *httpclient.RPCClient
	blockTime time.Duration

	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[any]
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewProvider creates a provider talking to cfg.RPCURL.
func NewProvider(cfg Config, log logger.LoggerInterface) (*Provider, error) {
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithBaseURL(cfg.RPCURL),
		httpclient.WithProviderName("zilliqa"),
		httpclient.WithRequestTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	p := &Provider{
		rpc:       httpclient.NewRPCClient(client, ""),
		blockTime: cfg.BlockTime,
		limiter:   ratelimit.New(cfg.RequestsPerMinute),
		cb:        circuitbreaker.New[any](circuitbreaker.DefaultConfig("zilliqa-rpc")),
		logger:    log,
		tracer:    otel.Tracer(tracerName),
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

	p.metrics.requestsTotal, err = meter.Int64Counter(
		"zilliqa_rpc_requests_total",
		metric.WithDescription("Total JSON-RPC requests by method"),
	)
	if err != nil {
		return err
	}

	p.metrics.requestErrors, err = meter.Int64Counter(
		"zilliqa_rpc_request_errors_total",
		metric.WithDescription("Failed JSON-RPC requests by method"),
	)
	return err
}

// GetChainInfo maps GetBlockchainInfo onto chain fields. Empty values are omitted.
func (p *Provider) GetChainInfo(ctx context.Context) (domain.FieldSet, error) {
	ctx, span := p.tracer.Start(ctx, "zilliqa.get_chain_info")
	defer span.End()

	var info blockchainInfo
	if err := p.call(ctx, methodGetBlockchainInfo, nil, &info); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "GetBlockchainInfo failed")
		return nil, err
	}

	fields := domain.FieldSet{}
	if info.NumTxBlocks != "" {
		fields[domain.FieldBlockNumber] = info.NumTxBlocks
	}
	if info.CurrentDSEpoch != "" {
		fields[domain.FieldDSBlockNumber] = info.CurrentDSEpoch
	}
	if info.TransactionRate != "" {
		fields[domain.FieldTxRate] = info.TransactionRate.String()
	}

	switch {
	case p.blockTime > 0:
		fields[domain.FieldBlockTimeSeconds] = strconv.FormatFloat(p.blockTime.Seconds(), 'f', -1, 64)
	case info.TxBlockRate != "":
		if rate, err := decimal.NewFromString(info.TxBlockRate.String()); err == nil && rate.IsPositive() {
			fields[domain.FieldBlockTimeSeconds] = decimal.NewFromInt(1).DivRound(rate, 3).String()
		}
	}

	span.SetAttributes(attribute.Int("fields", len(fields)))
	span.SetStatus(codes.Ok, "chain info fetched")
	return fields, nil
}

// GetContractInfo maps GetSmartContractInit parameters onto contract fields.
// Known campaign parameters are aliased, other names pass through and
// underscore-prefixed system parameters are skipped.
func (p *Provider) GetContractInfo(ctx context.Context, contractAddress string) (domain.FieldSet, error) {
	ctx, span := p.tracer.Start(ctx, "zilliqa.get_contract_info",
		trace.WithAttributes(attribute.String("contract", contractAddress)),
	)
	defer span.End()

	addr := normalizeAddress(contractAddress)
	if addr == "" {
		err := apperror.Validation(apperror.CodeInvalidContractAddress, contractAddress)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid address")
		return nil, err
	}

	var params []initParam
	if err := p.call(ctx, methodGetSmartContractInit, []string{addr}, &params); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "GetSmartContractInit failed")
		return nil, err
	}

	fields := domain.FieldSet{}
	for _, param := range params {
		if param.VName == "" || strings.HasPrefix(param.VName, "_") {
			continue
		}
		key := param.VName
		if alias, ok := initAliases[key]; ok {
			key = alias
		}
		fields[key] = param.text()
	}

	span.SetAttributes(attribute.Int("fields", len(fields)))
	span.SetStatus(codes.Ok, "contract info fetched")
	return fields, nil
}

// call rate-limits and runs one JSON-RPC request behind the breaker.
func (p *Provider) call(ctx context.Context, method string, params, result any) error {
	attrs := metric.WithAttributes(attribute.String("method", method))
	p.metrics.requestsTotal.Add(ctx, 1, attrs)

	if err := p.limiter.Wait(ctx); err != nil {
		p.metrics.requestErrors.Add(ctx, 1, attrs)
		return err
	}

	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.rpc.Call(ctx, method, params, result)
	})
	if err == nil {
		return nil
	}

	p.metrics.requestErrors.Add(ctx, 1, attrs)
	if circuitbreaker.IsOpen(err) {
		return apperror.New(apperror.CodeCircuitOpen, apperror.WithContext(p.cb.Name()), apperror.WithCause(err))
	}
	return apperror.External(apperror.CodeRPCError, method, err)
}

// normalizeAddress strips an optional 0x prefix and lowercases hex addresses.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return strings.ToLower(addr[2:])
	}
	return addr
}
