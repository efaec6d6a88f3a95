package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/models"
)

// historyLimit is how many trailing history messages a provider forwards
// downstream; older turns are dropped.
const historyLimit = 10

// ErrNoProviderAvailable is returned by Select when no enabled provider is
// registered.
var ErrNoProviderAvailable = errors.New("no provider available")

// HealthState orders provider health from best to worst; disabled sits
// outside the ordering and never degrades an aggregate.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthDisabled  HealthState = "disabled"
)

// HealthStatus is one provider's health report.
type HealthStatus struct {
	Status HealthState `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// Provider is the capability set every backend variant implements.
type Provider interface {
	Name() string
	Enabled() bool
	Process(ctx context.Context, req *models.EnhancedRequest) (*models.Response, error)
	HealthCheck(ctx context.Context) HealthStatus
	Close() error
}

// Registry holds the configured providers in priority order. Registration
// happens at startup; a misconfigured provider fails registration with a
// typed error instead of silently vanishing.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	priority  []string
	logger    *logrus.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// NewRegistryFromConfig constructs and registers every configured endpoint.
// Construction errors are returned per endpoint name so the caller can
// decide whether a partial registry is acceptable.
func NewRegistryFromConfig(cfg *config.ProvidersConfig, logger *logrus.Logger) (*Registry, map[string]error) {
	registry := NewRegistry(logger)
	failures := make(map[string]error)

	for i := range cfg.Endpoints {
		endpoint := &cfg.Endpoints[i]

		var (
			p   Provider
			err error
		)
		switch endpoint.Type {
		case "openai":
			p, err = NewOpenAIProvider(endpoint, logger)
		case "anthropic":
			p, err = NewAnthropicProvider(endpoint, logger)
		default:
			err = fmt.Errorf("unknown provider type %q", endpoint.Type)
		}

		if err != nil {
			failures[endpoint.Name] = err
			logger.WithError(err).WithField("provider", endpoint.Name).Error("Failed to construct provider")
			continue
		}

		if err := registry.Register(p); err != nil {
			failures[endpoint.Name] = err
		}
	}

	return registry, failures
}

// Register adds a provider at the end of the priority order.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}

	r.providers[p.Name()] = p
	r.priority = append(r.priority, p.Name())

	r.logger.WithFields(logrus.Fields{
		"provider": p.Name(),
		"enabled":  p.Enabled(),
	}).Info("Registered provider")
	return nil
}

// Select returns the first enabled provider in priority order. The
// application hint is accepted for future routing policies; today every
// application shares the priority list.
func (r *Registry) Select(application models.Application) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.priority {
		p := r.providers[name]
		if p.Enabled() {
			return p, nil
		}
	}
	return nil, ErrNoProviderAvailable
}

// Get returns a registered provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(r.priority[:0:0], r.priority...)
}

// HealthAll checks every registered provider concurrently and aggregates
// the overall state as the worst individual report.
func (r *Registry) HealthAll(ctx context.Context) (HealthState, map[string]HealthStatus) {
	r.mu.RLock()
	providers := make(map[string]Provider, len(r.providers))
	for name, p := range r.providers {
		providers[name] = p
	}
	r.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reports = make(map[string]HealthStatus, len(providers))
	)

	for name, p := range providers {
		wg.Add(1)
		go func(name string, p Provider) {
			defer wg.Done()
			status := p.HealthCheck(ctx)
			mu.Lock()
			reports[name] = status
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	overall := HealthHealthy
	enabled := 0
	for _, status := range reports {
		if status.Status == HealthDisabled {
			continue
		}
		enabled++
		if healthRank(status.Status) > healthRank(overall) {
			overall = status.Status
		}
	}
	if enabled == 0 {
		overall = HealthUnhealthy
	}

	return overall, reports
}

// CloseAll closes every provider, logging failures.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, p := range r.providers {
		if err := p.Close(); err != nil {
			r.logger.WithError(err).WithField("provider", name).Error("Failed to close provider")
		}
	}
}

func healthRank(s HealthState) int {
	switch s {
	case HealthHealthy:
		return 0
	case HealthDegraded:
		return 1
	default:
		return 2
	}
}

// truncateHistory keeps the trailing historyLimit messages.
func truncateHistory(history []models.Message) []models.Message {
	if len(history) <= historyLimit {
		return history
	}
	return history[len(history)-historyLimit:]
}
