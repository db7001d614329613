package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/pronunciation-gateway/internal/config"
	"github.com/lexiqai/pronunciation-gateway/internal/observability"
	"github.com/lexiqai/pronunciation-gateway/internal/resilience"
)

// Resilient wraps a backend with a per-call timeout, retries for transient
// network errors and a circuit breaker, and records metrics for every call.
type Resilient struct {
	next    Transcriber
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	timeout time.Duration
	logger  zerolog.Logger
}

// NewResilient wraps next using the resilience settings from cfg
func NewResilient(next Transcriber, cfg *config.Config, logger zerolog.Logger) *Resilient {
	breaker := resilience.NewCircuitBreaker(
		next.Name(),
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().
			Str("backend", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Transcription circuit breaker changed state")
	})
	observability.UpdateCircuitBreakerState(next.Name(), int(resilience.StateClosed))

	return &Resilient{
		next:    next,
		breaker: breaker,
		retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
		timeout: time.Duration(cfg.TranscribeTimeout) * time.Second,
		logger:  logger,
	}
}

// Name implements Transcriber
func (r *Resilient) Name() string {
	return r.next.Name()
}

// Transcribe implements Transcriber
func (r *Resilient) Transcribe(ctx context.Context, audioPath, formatHint string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	var text string
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		// Unreadable or unsupported audio is the caller's problem and must not trip the breaker
		return r.breaker.ExecuteWith(func() error {
			var err error
			text, err = r.next.Transcribe(ctx, audioPath, formatHint)
			return err
		}, resilience.IsRetryableNetworkError)
	}, r.retry, resilience.IsRetryableNetworkError)

	observability.RecordTranscription(r.Name(), start, err)
	if err != nil {
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			observability.RecordError("circuit_open", "stt")
		case resilience.IsRetryableNetworkError(err):
			observability.IncrementCircuitBreakerFailures(r.Name())
			observability.RecordError("backend", "stt")
		default:
			observability.RecordError("transcription", "stt")
		}
		return "", wrapError(r.Name(), err)
	}
	return text, nil
}

// Ready fails unless the circuit breaker is closed
func (r *Resilient) Ready(context.Context) error {
	stats := r.breaker.Stats()
	switch stats.State {
	case resilience.StateClosed:
		return nil
	case resilience.StateOpen:
		return fmt.Errorf("%w: %d of %d calls failed, last at %s",
			resilience.ErrCircuitOpen, stats.Failures, stats.Requests, stats.LastFailure.UTC().Format(time.RFC3339))
	default:
		return fmt.Errorf("circuit breaker %s: waiting for a trial call to succeed (%d of %d calls failed)",
			stats.State, stats.Failures, stats.Requests)
	}
}
