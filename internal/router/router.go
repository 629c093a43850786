// Package router fronts the model providers with retry, exponential backoff,
// and a per-provider circuit breaker. Retryable provider failures are
// absorbed up to the attempt cap and then surfaced as
// ModelProviderExhaustedError; breaker-open aborts immediately.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/Shivay00001/aria-runtime/internal/breaker"
	"github.com/Shivay00001/aria-runtime/internal/observability"
	"github.com/Shivay00001/aria-runtime/internal/providers"
	"github.com/Shivay00001/aria-runtime/pkg/models"
)

const maxAttempts = 3

// Router dispatches prompt requests to named providers.
type Router struct {
	providers map[string]providers.Provider
	breakers  map[string]*breaker.CircuitBreaker
	policy    BackoffPolicy
	logger    *observability.Logger
	metrics   *observability.Metrics

	// sleep is swapped in tests to avoid real delays.
	sleep func(time.Duration)
}

// New creates a router over the given providers. At least one is required.
func New(provs []providers.Provider, logger *observability.Logger, metrics *observability.Metrics) (*Router, error) {
	if len(provs) == 0 {
		return nil, errors.New("router requires at least one provider")
	}
	if logger == nil {
		logger = observability.Nop()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	r := &Router{
		providers: map[string]providers.Provider{},
		breakers:  map[string]*breaker.CircuitBreaker{},
		policy:    defaultBackoff(),
		logger:    logger,
		metrics:   metrics,
		sleep:     time.Sleep,
	}
	for _, p := range provs {
		r.providers[p.Name()] = p
		r.breakers[p.Name()] = breaker.New(p.Name(), breaker.Config{})
	}
	return r, nil
}

// Provider returns the named provider, if registered.
func (r *Router) Provider(name string) (providers.Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// BreakerStats reports every breaker's state for diagnostics.
func (r *Router) BreakerStats() []breaker.Stats {
	out := make([]breaker.Stats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb.Stats())
	}
	return out
}

// Call routes the request to its provider with breaker and retry handling.
func (r *Router) Call(ctx context.Context, req models.PromptRequest) (models.RawModelResponse, error) {
	provider, ok := r.providers[req.Provider]
	if !ok {
		return models.RawModelResponse{}, &models.UnknownProviderError{Provider: req.Provider}
	}
	cb := r.breakers[req.Provider]

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := cb.AllowRequest(); err != nil {
			// Breaker-open aborts immediately; it is not a retry failure.
			r.logger.Warn("circuit_breaker_open", "provider", req.Provider, "session_id", req.SessionID)
			return models.RawModelResponse{}, err
		}

		r.logger.Info("model_call_attempt",
			"provider", req.Provider, "model", req.Model,
			"attempt", attempt, "session_id", req.SessionID)

		started := time.Now()
		resp, err := provider.Call(ctx, req)
		r.metrics.ModelRequestDuration.WithLabelValues(req.Provider, req.Model).Observe(time.Since(started).Seconds())

		if err == nil {
			cb.RecordSuccess()
			r.metrics.ModelRequestCounter.WithLabelValues(req.Provider, req.Model, "success").Inc()
			r.metrics.ModelTokensUsed.WithLabelValues(req.Provider, req.Model, "input").Add(float64(resp.InputTokens))
			r.metrics.ModelTokensUsed.WithLabelValues(req.Provider, req.Model, "output").Add(float64(resp.OutputTokens))
			return resp, nil
		}

		r.metrics.ModelRequestCounter.WithLabelValues(req.Provider, req.Model, "error").Inc()

		var outputErr *models.ModelOutputValidationError
		if errors.As(err, &outputErr) {
			// The provider reached the model but the response is unusable.
			// Retrying the same prompt will not help.
			cb.RecordFailure()
			return models.RawModelResponse{}, err
		}

		if !isRetryable(err) {
			return models.RawModelResponse{}, err
		}

		cb.RecordFailure()
		lastErr = err
		r.logger.Warn("model_call_retry",
			"attempt", attempt, "error_type", models.ErrorTypeName(err),
			"error", err.Error(), "session_id", req.SessionID)

		if attempt < maxAttempts {
			r.sleep(ComputeBackoff(r.policy, attempt))
		}
	}

	return models.RawModelResponse{}, &models.ModelProviderExhaustedError{
		Provider: req.Provider,
		Attempts: maxAttempts,
		Last:     lastErr,
	}
}

func isRetryable(err error) bool {
	var pe *models.ModelProviderError
	var rl *models.ModelRateLimitError
	var to *models.ModelTimeoutError
	return errors.As(err, &pe) || errors.As(err, &rl) || errors.As(err, &to)
}
