// Package quota enforces per-tenant execution limits: a ceiling on
// concurrently running steps and an optional dispatch rate.
package quota

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// TenantConfig holds the limits applied to a single tenant.
type TenantConfig struct {
	// MaxConcurrentSteps caps steps running at once across all of the
	// tenant's workflows. Zero means use the manager default.
	MaxConcurrentSteps int

	// StepsPerSecond rate-limits step dispatch. Zero disables rate
	// limiting for the tenant.
	StepsPerSecond float64

	// Burst is the rate limiter burst size. Defaults to
	// MaxConcurrentSteps when zero.
	Burst int
}

type tenantState struct {
	cfg     TenantConfig
	sem     chan struct{}
	limiter *rate.Limiter
}

// Manager tracks per-tenant step slots. Acquire blocks until a slot and
// a rate token are available; every successful Acquire must be paired
// with a Release.
type Manager struct {
	mu       sync.Mutex
	defaults TenantConfig
	tenants  map[string]*tenantState
}

// NewManager returns a Manager using defaultMax concurrent steps for
// tenants without explicit configuration.
func NewManager(defaultMax int) *Manager {
	if defaultMax <= 0 {
		defaultMax = 1
	}
	return &Manager{
		defaults: TenantConfig{MaxConcurrentSteps: defaultMax},
		tenants:  make(map[string]*tenantState),
	}
}

// SetTenantConfig overrides the limits for one tenant. Slots already
// held are unaffected; the new ceiling applies to subsequent Acquires.
func (m *Manager) SetTenantConfig(tenantID string, cfg TenantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[tenantID] = m.newState(cfg)
}

func (m *Manager) newState(cfg TenantConfig) *tenantState {
	if cfg.MaxConcurrentSteps <= 0 {
		cfg.MaxConcurrentSteps = m.defaults.MaxConcurrentSteps
	}
	st := &tenantState{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrentSteps),
	}
	if cfg.StepsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.MaxConcurrentSteps
		}
		st.limiter = rate.NewLimiter(rate.Limit(cfg.StepsPerSecond), burst)
	}
	return st
}

func (m *Manager) state(tenantID string) *tenantState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.tenants[tenantID]
	if !ok {
		st = m.newState(m.defaults)
		m.tenants[tenantID] = st
	}
	return st
}

// Acquire blocks until the tenant has a free step slot (and a rate
// token when rate limiting is configured) or ctx is done.
func (m *Manager) Acquire(ctx context.Context, tenantID string) error {
	st := m.state(tenantID)
	select {
	case st.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if st.limiter != nil {
		if err := st.limiter.Wait(ctx); err != nil {
			<-st.sem
			return err
		}
	}
	return nil
}

// TryAcquire attempts to take a slot without blocking. It does not
// consult the rate limiter.
func (m *Manager) TryAcquire(tenantID string) bool {
	st := m.state(tenantID)
	select {
	case st.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (m *Manager) Release(tenantID string) {
	st := m.state(tenantID)
	select {
	case <-st.sem:
	default:
		// Release without a matching Acquire is a caller bug; ignore
		// rather than corrupt the semaphore.
	}
}

// ActiveCount reports how many slots the tenant currently holds.
func (m *Manager) ActiveCount(tenantID string) int {
	return len(m.state(tenantID).sem)
}
