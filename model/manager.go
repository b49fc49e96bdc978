package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conciergekit/concierge/logging"
	"github.com/conciergekit/concierge/metrics"
)

// Attempt records one failed provider attempt for diagnostics.
type Attempt struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error"`
}

// AllProvidersUnavailable is returned when the fallback chain is exhausted
// without a successful generation. It carries the ordered list of individual
// failures.
type AllProvidersUnavailable struct {
	Attempts []Attempt
}

// Error implements the error interface.
func (e *AllProvidersUnavailable) Error() string {
	if len(e.Attempts) == 0 {
		return "no capability providers available"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %s", a.Provider, a.Error)
	}
	return "all capability providers failed: " + strings.Join(parts, "; ")
}

// ManagerOptions configures a Manager instance.
type ManagerOptions struct {
	// CallTimeout bounds each individual provider call. Zero disables the
	// per-call deadline (the caller's context still applies).
	CallTimeout time.Duration
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Manager holds an ordered list of capability providers and implements the
// fallback chain: the first available provider is tried first, transient
// failures fall through to the next, non-transient failures abort
// immediately. At most one successful generation is returned per call.
//
// The provider order is fixed at construction (operator preference first,
// deterministic tiebreak) and never reshuffled at runtime.
type Manager struct {
	providers   []Provider
	callTimeout time.Duration
	logger      logging.Logger
}

// NewManager constructs a Manager over the given preference-ordered
// providers.
func NewManager(providers []Provider, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		CallTimeout: 60 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		providers:   providers,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
	}
}

// Providers returns provider metadata in preference order, for read-only
// capability introspection.
func (m *Manager) Providers() []Info {
	infos := make([]Info, 0, len(m.providers))
	for _, p := range m.providers {
		infos = append(infos, p.Info())
	}
	return infos
}

// Generate runs the fallback chain for the given request. On success the
// Result records which provider answered and any failed attempts that
// preceded it. If every available provider fails transiently (or none is
// available) the returned error is *AllProvidersUnavailable.
func (m *Manager) Generate(ctx context.Context, req Request) (*Result, error) {
	var attempts []Attempt

	for _, p := range m.providers {
		info := p.Info()
		if !p.Available() {
			attempts = append(attempts, Attempt{
				Provider: info.Provider,
				Model:    info.Name,
				Code:     "unavailable",
				Error:    "provider not available (missing credential or configuration)",
			})
			continue
		}

		result, err := m.generateOne(ctx, p, req)
		if err == nil {
			result.Provider = info.Provider
			result.Attempts = attempts
			metrics.ProviderAttemptsTotal.WithLabelValues(info.Provider, "success").Inc()
			return result, nil
		}

		logging.LogProviderCall(m.logger, info.Provider, info.Name, 0, err)

		var perr *ProviderError
		if errors.As(err, &perr) {
			metrics.ProviderAttemptsTotal.WithLabelValues(info.Provider, perr.Code).Inc()
			attempts = append(attempts, Attempt{
				Provider: info.Provider,
				Model:    info.Name,
				Code:     perr.Code,
				Error:    perr.Error(),
			})
			if !perr.Transient {
				// Client-side fault: retrying on another provider would
				// resend the same invalid request.
				return nil, perr
			}
			continue
		}

		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		// Unclassified failures (network faults, SDK errors) are treated as
		// transient so a healthy provider further down can still answer.
		metrics.ProviderAttemptsTotal.WithLabelValues(info.Provider, "error").Inc()
		attempts = append(attempts, Attempt{
			Provider: info.Provider,
			Model:    info.Name,
			Error:    err.Error(),
		})
	}

	return nil, &AllProvidersUnavailable{Attempts: attempts}
}

func (m *Manager) generateOne(ctx context.Context, p Provider, req Request) (*Result, error) {
	if m.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.callTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := p.Generate(ctx, req)
	dur := time.Since(start)

	info := p.Info()
	metrics.ProviderLatency.WithLabelValues(info.Provider, info.Name).Observe(dur.Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewTransientError(info.Provider, "timeout", err)
		}
		return nil, err
	}

	logging.LogProviderCall(m.logger, info.Provider, info.Name, dur, nil)
	if result.Usage != nil {
		metrics.ProviderTokensTotal.WithLabelValues(info.Provider, "input").Add(float64(result.Usage.PromptTokens))
		metrics.ProviderTokensTotal.WithLabelValues(info.Provider, "output").Add(float64(result.Usage.CompletionTokens))
	}
	return result, nil
}
