package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/logger"
)

const (
	tracerName = "chainsync"
	meterName  = "chainsync"

	defaultFetchTimeout = 10 * time.Second
)

// Run outcome labels.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// ReconcileResult describes one reconciliation run.
type ReconcileResult struct {
	State       *domain.ChainState
	Created     bool
	Partial     bool
	ChainErr    error
	ContractErr error
	// Superseded lists fetched fields the store kept because it already held
	// a newer observation.
	Superseded []string
	ObservedAt time.Time
	Duration   time.Duration
}

// Status returns the run outcome label.
func (r *ReconcileResult) Status() string {
	switch {
	case r == nil || r.State == nil:
		return StatusFailed
	case r.Partial:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

type reconcilerMetrics struct {
	runs        metric.Int64Counter
	duration    metric.Float64Histogram
	fetchErrors metric.Int64Counter
	superseded  metric.Int64Counter
}

// Reconciler fetches chain and contract state and merges it into the store.
type Reconciler struct {
	provider     ChainInfoProvider
	store        StateStore
	publisher    Publisher
	log          logger.LoggerInterface
	now          func() time.Time
	fetchTimeout time.Duration

	tracer  trace.Tracer
	metrics *reconcilerMetrics
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithFetchTimeout bounds each of the two provider fetches.
func WithFetchTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithClock overrides the reconciliation time source.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithPublisher sets the observer notified after each persisted run.
func WithPublisher(p Publisher) ReconcilerOption {
	return func(r *Reconciler) {
		r.publisher = p
	}
}

// NewReconciler creates a new Reconciler.
func NewReconciler(provider ChainInfoProvider, store StateStore, log logger.LoggerInterface, opts ...ReconcilerOption) (*Reconciler, error) {
	r := &Reconciler{
		provider:     provider,
		store:        store,
		log:          log,
		now:          func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		fetchTimeout: defaultFetchTimeout,
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return r, nil
}

func (r *Reconciler) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &reconcilerMetrics{}

	r.metrics.runs, err = meter.Int64Counter(
		"chainsync_reconcile_runs_total",
		metric.WithDescription("Reconciliation runs by outcome"),
	)
	if err != nil {
		return err
	}

	r.metrics.duration, err = meter.Float64Histogram(
		"chainsync_reconcile_duration_ms",
		metric.WithDescription("Reconciliation run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	r.metrics.fetchErrors, err = meter.Int64Counter(
		"chainsync_fetch_errors_total",
		metric.WithDescription("Failed provider fetches by source"),
	)
	if err != nil {
		return err
	}

	r.metrics.superseded, err = meter.Int64Counter(
		"chainsync_superseded_fields_total",
		metric.WithDescription("Fetched fields dropped because the stored observation was newer"),
	)
	return err
}

// Reconcile runs one fetch-then-merge cycle for contractAddress.
//
// The two fetches run concurrently, each under its own timeout. If both fail
// nothing is written and a TRANSPORT_ERROR is returned. Otherwise the record is
// created or merged with exactly one effective write and the result published.
func (r *Reconciler) Reconcile(ctx context.Context, contractAddress string) (*ReconcileResult, error) {
	ctx, span := r.tracer.Start(ctx, "chainsync.reconcile",
		trace.WithAttributes(attribute.String("contract_address", contractAddress)),
	)
	defer span.End()

	start := time.Now()
	result := &ReconcileResult{}

	if strings.TrimSpace(contractAddress) == "" {
		err := apperror.Validation(apperror.CodeInvalidContractAddress, "contract address is empty")
		r.finish(ctx, span, result, start, err)
		return nil, err
	}

	patch := r.fetch(ctx, contractAddress, result)
	chainErr, contractErr := result.ChainErr, result.ContractErr

	if !patch.HasData() {
		err := apperror.New(apperror.CodeTransportError,
			apperror.WithContext("chain and contract fetches failed"),
			apperror.WithCause(errors.Join(chainErr, contractErr)),
		)
		r.finish(ctx, span, result, start, err)
		return result, err
	}

	patch.ObservedAt = r.now()
	result.ObservedAt = patch.ObservedAt
	result.Partial = chainErr != nil || contractErr != nil

	state, created, err := r.persist(ctx, contractAddress, patch)
	if err != nil {
		r.finish(ctx, span, result, start, err)
		return result, err
	}
	result.State = state
	result.Created = created

	if stale := state.Superseded(patch); len(stale) > 0 {
		result.Superseded = stale
		r.metrics.superseded.Add(ctx, int64(len(stale)))
		r.log.Debug(ctx, "stored observations newer than this run",
			"contract_address", contractAddress,
			"observed_at", patch.ObservedAt,
			"updated_at", state.UpdatedAt,
			"fields", stale,
		)
	}

	if r.publisher != nil {
		r.publisher.Publish(state.Clone())
	}

	r.finish(ctx, span, result, start, nil)
	return result, nil
}

// fetch issues both provider reads concurrently. A failed fetch leaves its
// FieldSet nil and never cancels its sibling.
func (r *Reconciler) fetch(ctx context.Context, address string, result *ReconcileResult) domain.Patch {
	var (
		g     errgroup.Group
		patch domain.Patch
	)

	g.Go(func() error {
		patch.Chain, result.ChainErr = r.fetchOne(ctx, "chain", func(fctx context.Context) (domain.FieldSet, error) {
			return r.provider.GetChainInfo(fctx)
		})
		return nil
	})
	g.Go(func() error {
		patch.Contract, result.ContractErr = r.fetchOne(ctx, "contract", func(fctx context.Context) (domain.FieldSet, error) {
			return r.provider.GetContractInfo(fctx, address)
		})
		return nil
	})
	_ = g.Wait()

	return patch
}

type fetchResult struct {
	set domain.FieldSet
	err error
}

func (r *Reconciler) fetchOne(ctx context.Context, source string, fn func(context.Context) (domain.FieldSet, error)) (domain.FieldSet, error) {
	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	ch := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- fetchResult{err: fmt.Errorf("provider panic: %v", p)}
			}
		}()
		set, err := fn(fctx)
		ch <- fetchResult{set: set, err: err}
	}()

	var res fetchResult
	select {
	case res = <-ch:
	case <-fctx.Done():
		res = fetchResult{err: fctx.Err()}
	}

	if res.err != nil {
		r.metrics.fetchErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
		r.log.Warn(ctx, "fetch failed", "source", source, "error", res.err)
		return nil, apperror.New(apperror.CodeTransportError,
			apperror.WithContext(source+" info"),
			apperror.WithCause(res.err),
		)
	}
	if res.set == nil {
		res.set = domain.FieldSet{}
	}
	return res.set, nil
}

// persist performs the create-or-merge write.
func (r *Reconciler) persist(ctx context.Context, address string, patch domain.Patch) (*domain.ChainState, bool, error) {
	_, err := r.store.FindByAddress(ctx, address)
	switch {
	case err == nil:
		state, err := r.store.Update(ctx, address, patch)
		if err != nil {
			return nil, false, persistenceError("update", err)
		}
		return state, false, nil

	case errors.Is(err, ErrNotFound):
		created := true
		if _, err := r.store.Create(ctx, domain.NewChainState(address, patch)); err != nil {
			if !errors.Is(err, ErrDuplicateKey) {
				return nil, false, persistenceError("create", err)
			}
			r.log.Debug(ctx, "chain state created concurrently", "contract_address", address)
			created = false
		}

		state, err := r.store.FindByAddress(ctx, address)
		if err != nil {
			return nil, false, persistenceError("re-read after create", err)
		}
		if created {
			return state, true, nil
		}

		state, err = r.store.Update(ctx, address, patch)
		if err != nil {
			return nil, false, persistenceError("update", err)
		}
		return state, false, nil

	default:
		return nil, false, persistenceError("find", err)
	}
}

func persistenceError(op string, err error) error {
	return apperror.New(apperror.CodePersistenceError, apperror.WithContext(op), apperror.WithCause(err))
}

func (r *Reconciler) finish(ctx context.Context, span trace.Span, result *ReconcileResult, start time.Time, err error) {
	result.Duration = time.Since(start)
	status := result.Status()
	if err != nil {
		status = StatusFailed
	}

	attrs := metric.WithAttributes(attribute.String("status", status))
	r.metrics.runs.Add(ctx, 1, attrs)
	r.metrics.duration.Record(ctx, float64(result.Duration.Milliseconds()), attrs)

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Bool("created", result.Created),
		attribute.Bool("partial", result.Partial),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, status)

	r.log.Info(ctx, "chain state reconciled",
		"contract_address", result.State.ContractAddress,
		"status", status,
		"created", result.Created,
		"chain_fields", len(result.State.ChainFields),
		"contract_fields", len(result.State.ContractFields),
		"duration_ms", result.Duration.Milliseconds(),
	)
}
