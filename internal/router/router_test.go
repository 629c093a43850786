package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivay00001/aria-runtime/internal/providers"
	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// scriptedProvider returns canned responses or errors in order, then repeats
// the last entry.
type scriptedProvider struct {
	name  string
	steps []func() (models.RawModelResponse, error)
	calls int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Call(ctx context.Context, req models.PromptRequest) (models.RawModelResponse, error) {
	i := p.calls
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	p.calls++
	return p.steps[i]()
}

func (p *scriptedProvider) EstimateTokens(req models.PromptRequest) int { return 0 }

func okResponse() (models.RawModelResponse, error) {
	return models.RawModelResponse{
		Action:          models.ActionFinalAnswer,
		FinalAnswer:     "done",
		Provider:        "fake",
		RawResponseHash: models.SHA256Hex("x"),
	}, nil
}

func rateLimited() (models.RawModelResponse, error) {
	return models.RawModelResponse{}, &models.ModelRateLimitError{Provider: "fake", Reason: "429"}
}

func serverError() (models.RawModelResponse, error) {
	return models.RawModelResponse{}, &models.ModelProviderError{Provider: "fake", StatusCode: 500, Reason: "boom"}
}

func newTestRouter(t *testing.T, p providers.Provider) *Router {
	t.Helper()
	r, err := New([]providers.Provider{p}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	r.sleep = func(time.Duration) {} // no real delays in tests
	return r
}

func req(provider string) models.PromptRequest {
	return models.PromptRequest{Provider: provider, Model: "m", SessionID: "s1"}
}

func TestCallSucceedsThirdAttempt(t *testing.T) {
	p := &scriptedProvider{name: "fake", steps: []func() (models.RawModelResponse, error){
		rateLimited, rateLimited, okResponse,
	}}
	r := newTestRouter(t, p)

	resp, err := r.Call(context.Background(), req("fake"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.FinalAnswer != "done" {
		t.Fatalf("answer = %q", resp.FinalAnswer)
	}
	if p.calls != 3 {
		t.Fatalf("calls = %d, want 3", p.calls)
	}
}

func TestCallExhaustsAfterThreeAttempts(t *testing.T) {
	p := &scriptedProvider{name: "fake", steps: []func() (models.RawModelResponse, error){serverError}}
	r := newTestRouter(t, p)

	_, err := r.Call(context.Background(), req("fake"))
	var exhausted *models.ModelProviderExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("want ModelProviderExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", exhausted.Attempts)
	}
	var last *models.ModelProviderError
	if !errors.As(exhausted, &last) || last.StatusCode != 500 {
		t.Fatalf("exhausted error does not wrap the last failure: %v", err)
	}
	if p.calls != 3 {
		t.Fatalf("calls = %d, want 3", p.calls)
	}
}

func TestUnknownProvider(t *testing.T) {
	p := &scriptedProvider{name: "fake", steps: []func() (models.RawModelResponse, error){okResponse}}
	r := newTestRouter(t, p)

	_, err := r.Call(context.Background(), req("nonexistent"))
	var unknown *models.UnknownProviderError
	if !errors.As(err, &unknown) {
		t.Fatalf("want UnknownProviderError, got %v", err)
	}
}

func TestOutputValidationNotRetried(t *testing.T) {
	p := &scriptedProvider{name: "fake", steps: []func() (models.RawModelResponse, error){
		func() (models.RawModelResponse, error) {
			return models.RawModelResponse{}, &models.ModelOutputValidationError{Reason: "empty"}
		},
	}}
	r := newTestRouter(t, p)

	_, err := r.Call(context.Background(), req("fake"))
	var ove *models.ModelOutputValidationError
	if !errors.As(err, &ove) {
		t.Fatalf("want ModelOutputValidationError, got %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("calls = %d, want 1 (not retryable)", p.calls)
	}
}

func TestBreakerOpenAbortsImmediately(t *testing.T) {
	p := &scriptedProvider{name: "fake", steps: []func() (models.RawModelResponse, error){serverError}}
	r := newTestRouter(t, p)

	// Exhaust once: three failures trip the default threshold.
	if _, err := r.Call(context.Background(), req("fake")); err == nil {
		t.Fatal("expected exhaustion")
	}
	callsBefore := p.calls

	_, err := r.Call(context.Background(), req("fake"))
	var open *models.CircuitBreakerOpenError
	if !errors.As(err, &open) {
		t.Fatalf("want CircuitBreakerOpenError, got %v", err)
	}
	if p.calls != callsBefore {
		t.Fatal("provider must not be reached while the breaker is open")
	}
}

func TestComputeBackoff(t *testing.T) {
	policy := defaultBackoff()
	tests := []struct {
		attempt int
		random  float64
		want    time.Duration
	}{
		{1, 0, 2000 * time.Millisecond},
		{1, 0.5, 2500 * time.Millisecond},
		{2, 0, 4000 * time.Millisecond},
		{3, 0, 8000 * time.Millisecond},
		{5, 0, 30000 * time.Millisecond}, // clamped to cap
		{5, 1.0, 30000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := ComputeBackoffWithRand(policy, tt.attempt, tt.random); got != tt.want {
			t.Errorf("attempt=%d random=%.1f: got %v, want %v", tt.attempt, tt.random, got, tt.want)
		}
	}
}
