package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/platform/observability"
)

// ErrAllProvidersFailed is returned when every attempted provider errored.
var ErrAllProvidersFailed = errors.New("all LLM providers failed")

// Registry manages LLM providers with fallback support.
type Registry struct {
	mu              sync.RWMutex
	providers       map[ProviderName]Provider
	order           []ProviderName // Priority order (highest first)
	circuitBreakers map[ProviderName]*CircuitBreaker
	logger          *zerolog.Logger
}

// NewRegistry creates a new provider registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		providers:       make(map[ProviderName]Provider),
		order:           make([]ProviderName, 0),
		circuitBreakers: make(map[ProviderName]*CircuitBreaker),
		logger:          logger,
	}
}

// Register adds a provider to the registry. Registering a name twice
// replaces the earlier provider.
func (r *Registry) Register(p Provider, cfg CircuitBreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.providers[name] = p
	r.circuitBreakers[name] = NewCircuitBreaker(cfg, r.logger)

	r.sortProvidersByPriority()

	available := MetricValueUnavailable
	if p.IsAvailable() {
		available = MetricValueAvailable
	}

	observability.LLMProviderAvailable.WithLabelValues(string(name)).Set(available)

	r.logger.Info().
		Str(logKeyProvider, string(name)).
		Int("priority", p.Priority()).
		Msg("registered LLM provider")
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// Chat implements Client. The provider owning model is tried first; the
// others follow in priority order with their own default model.
func (r *Registry) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	return executeWithFallback(r, model, func(p Provider, m string) (string, error) {
		return p.Chat(ctx, m, messages)
	})
}

// providerModel pairs a provider with the model it should be asked for.
type providerModel struct {
	Provider ProviderName
	Model    string
}

// chainFor returns the attempt order for a requested model.
func (r *Registry) chainFor(model string) []providerModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := make([]providerModel, 0, len(r.order))
	owner := ownerOf(model)

	if _, ok := r.providers[owner]; ok {
		chain = append(chain, providerModel{Provider: owner, Model: model})
	}

	for _, name := range r.order {
		if name == owner {
			continue
		}

		fallbackModel := ""
		if name == ProviderMock {
			fallbackModel = model
		}

		chain = append(chain, providerModel{Provider: name, Model: fallbackModel})
	}

	return chain
}

// executeWithFallback walks the chain until one provider answers.
func executeWithFallback[T any](r *Registry, model string, fn func(Provider, string) (T, error)) (T, error) {
	var zero T

	chain := r.chainFor(model)
	if len(chain) == 0 {
		return zero, coreerrors.ErrNoProviders
	}

	var (
		lastErr       error
		firstProvider ProviderName
	)

	for _, pm := range chain {
		result, attempted, err := tryProviderExec(r, pm, fn)
		if err != nil {
			lastErr = err
		}

		if attempted && firstProvider == "" {
			firstProvider = pm.Provider
		}

		if err != nil || !attempted {
			continue
		}

		if firstProvider != pm.Provider {
			observability.LLMFallbacks.WithLabelValues(string(firstProvider), string(pm.Provider)).Inc()

			r.logger.Info().
				Str(logKeyProvider, string(pm.Provider)).
				Str("from_provider", string(firstProvider)).
				Msg("used fallback LLM provider")
		}

		return result, nil
	}

	if lastErr != nil {
		return zero, errors.Join(ErrAllProvidersFailed, lastErr)
	}

	return zero, coreerrors.ErrNoProviders
}

// tryProviderExec runs fn against one provider. attempted is false when the
// provider was skipped; an open circuit is reported as ErrCircuitBreakerOpen.
func tryProviderExec[T any](r *Registry, pm providerModel, fn func(Provider, string) (T, error)) (result T, attempted bool, err error) {
	r.mu.RLock()
	p, exists := r.providers[pm.Provider]
	cb := r.circuitBreakers[pm.Provider]
	r.mu.RUnlock()

	if !exists || !p.IsAvailable() {
		return result, false, nil
	}

	if !cb.CanAttempt() {
		observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueUnavailable)

		r.logger.Debug().
			Str(logKeyProvider, string(pm.Provider)).
			Msg(logMsgCircuitBreakerOpen)

		return result, false, fmt.Errorf("%s: %w", pm.Provider, coreerrors.ErrCircuitBreakerOpen)
	}

	start := time.Now()
	result, err = fn(p, pm.Model)
	duration := time.Since(start)

	observability.LLMRequestLatency.WithLabelValues(string(pm.Provider), pm.Model).Observe(duration.Seconds())

	if err != nil {
		observability.LLMRequests.WithLabelValues(string(pm.Provider), pm.Model, observability.StatusError).Inc()

		if cb.RecordFailure(pm.Provider) {
			observability.LLMCircuitBreakerOpens.WithLabelValues(string(pm.Provider)).Inc()
			observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueUnavailable)
		}

		r.logger.Warn().
			Err(err).
			Str(logKeyProvider, string(pm.Provider)).
			Str(logKeyModel, pm.Model).
			Float64("duration_seconds", duration.Seconds()).
			Msg("LLM provider failed, trying fallback")

		return result, true, err
	}

	cb.RecordSuccess()

	observability.LLMRequests.WithLabelValues(string(pm.Provider), pm.Model, observability.StatusSuccess).Inc()
	observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueAvailable)

	return result, true, nil
}

// sortProvidersByPriority sorts providers by priority in descending order.
func (r *Registry) sortProvidersByPriority() {
	sort.SliceStable(r.order, func(i, j int) bool {
		return r.providers[r.order[i]].Priority() > r.providers[r.order[j]].Priority()
	})
}

// ProviderStatus holds status information for a provider.
type ProviderStatus struct {
	Name             ProviderName
	Priority         int
	Available        bool
	CircuitBreakerOK bool
}

// ProviderStatuses returns status information for all registered providers.
func (r *Registry) ProviderStatuses() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ProviderStatus, 0, len(r.order))

	for _, name := range r.order {
		p := r.providers[name]

		statuses = append(statuses, ProviderStatus{
			Name:             name,
			Priority:         p.Priority(),
			Available:        p.IsAvailable(),
			CircuitBreakerOK: r.circuitBreakers[name].CanAttempt(),
		})
	}

	return statuses
}

// Ensure Registry implements Client interface.
var _ Client = (*Registry)(nil)
