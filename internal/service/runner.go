// Package service runs domain operations inside units of work: validation,
// storage, audit and commit happen together or not at all.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/plugbook/internal/config"
	"github.com/wolfeidau/plugbook/internal/logger"
	"github.com/wolfeidau/plugbook/internal/store"
	"github.com/wolfeidau/plugbook/internal/telemetry"
	"github.com/wolfeidau/plugbook/internal/uow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/wolfeidau/plugbook/internal/service"

// RetryPolicy bounds retries of retryable failures.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// RetryPolicyFrom derives the retry policy from configuration.
func RetryPolicyFrom(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.LockRetryCount,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// Operation names a unit of work and the identity it runs under.
type Operation struct {
	Name  string
	Scope store.Scope

	// RetryOnConflict allows a Conflict to be retried. Only set it when fn
	// reads every version it writes, so a retry re-reads fresh state.
	RetryOnConflict bool
}

// Runner executes operations in units of work.
type Runner struct {
	uow     *uow.Manager
	retry   RetryPolicy
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

// NewRunner creates a runner over mgr.
func NewRunner(mgr *uow.Manager, retry RetryPolicy) *Runner {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Runner{
		uow:     mgr,
		retry:   retry,
		tracer:  otel.Tracer(tracerName),
		metrics: telemetry.GetMetrics(),
	}
}

// Execute runs fn in a unit of work and commits it. The unit rolls back on
// any error or panic. Transient storage failures, and conflicts when the
// operation allows it, are retried in a fresh unit with exponential backoff.
// Validation and not-found errors are returned on the first attempt.
func (r *Runner) Execute(ctx context.Context, op Operation, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := op.Scope.Validate(); err != nil {
		return err
	}

	ctx = logger.ForOperation(ctx, op.Name, op.Scope.OrgID, op.Scope.ActorID)
	ctx, span := r.tracer.Start(ctx, op.Name, trace.WithAttributes(
		attribute.String("plugbook.org_id", op.Scope.OrgID.String()),
	))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("operation", op.Name))
	started := time.Now()
	attempt := 0

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			r.metrics.RetriesTotal.Add(ctx, 1, attrs)
		}

		err := r.uow.Do(ctx, fn)
		if err == nil {
			r.metrics.CommitsTotal.Add(ctx, 1, attrs)
			return struct{}{}, nil
		}

		r.metrics.RollbacksTotal.Add(ctx, 1, attrs)
		switch {
		case errors.Is(err, store.ErrConflict):
			r.metrics.ConflictsTotal.Add(ctx, 1, attrs)
		case errors.Is(err, store.ErrResourceExhausted):
			r.metrics.ExhaustedTotal.Add(ctx, 1, attrs)
		}

		if !shouldRetry(op, err) {
			return struct{}{}, backoff.Permanent(err)
		}

		zerolog.Ctx(ctx).Debug().Err(err).Int("attempt", attempt).Msg("Retrying operation")
		return struct{}{}, err
	},
		backoff.WithBackOff(r.retry.backOff()),
		backoff.WithMaxTries(uint(r.retry.MaxAttempts)), // #nosec G115 - clamped to >= 1
	)

	span.SetAttributes(attribute.Int("plugbook.attempts", attempt))
	r.metrics.OperationDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err != nil {
		err = translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(store.KindOf(err)))
		logFailure(ctx, err, attempt)
		return err
	}

	zerolog.Ctx(ctx).Debug().Int("attempts", attempt).Dur("duration", time.Since(started)).Msg("Operation committed")
	return nil
}

func shouldRetry(op Operation, err error) bool {
	switch {
	case store.IsTransient(err):
		return true
	case errors.Is(err, store.ErrConflict):
		return op.RetryOnConflict && store.IsRetryable(err)
	default:
		return false
	}
}

// translate makes sure every failure leaving the service carries a kind.
// Cancellation is passed through so callers can match context errors.
func translate(err error) error {
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return store.Storage("operation failed", false, err)
}

func logFailure(ctx context.Context, err error, attempts int) {
	ev := zerolog.Ctx(ctx).Warn()
	switch store.KindOf(err) {
	case store.KindValidation, store.KindNotFound:
		ev = zerolog.Ctx(ctx).Debug()
	case store.KindStorage, store.KindInvalidState:
		ev = zerolog.Ctx(ctx).Error()
	}
	ev.Err(err).Str("kind", string(store.KindOf(err))).Int("attempts", attempts).Msg("Operation failed")
}
