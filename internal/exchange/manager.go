package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradecore/internal/config"
)

// OrderRequest is the abstract order the gateway hands to a client.
type OrderRequest struct {
	Symbol        string
	Side          string
	Size          decimal.Decimal
	Type          string
	Price         *decimal.Decimal
	ClientOrderID string
}

// OrderAck is the exchange acknowledgement for an accepted order.
type OrderAck struct {
	ExchangeOrderID string
	Raw             json.RawMessage
}

// Client is a live connection to one exchange.
type Client interface {
	// Probe performs a cheap read-only call to verify connectivity.
	Probe(ctx context.Context) error
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
}

// Factory builds a fresh client for the named exchange. It returns
// *ConfigError when required credentials are missing.
type Factory func(name string) (Client, error)

type handle struct {
	client          Client
	lastHealthCheck time.Time
}

// Manager hands out healthy exchange clients. It reuses one client per
// exchange, probes it on a fixed interval, rebuilds it after a failed
// probe, and opens a circuit breaker after repeated failures.
//
// The mutex guards the handle and breaker maps only. Probes and order
// calls run outside of it.
type Manager struct {
	cfg     config.ExchangeConfig
	factory Factory
	logger  *zap.Logger

	mu       sync.Mutex
	handles  map[string]*handle
	breakers map[string]*breaker

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(cfg config.ExchangeConfig, factory Factory, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		factory:  factory,
		logger:   logger,
		handles:  make(map[string]*handle),
		breakers: make(map[string]*breaker),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func (m *Manager) maxRetries() int {
	if m.cfg.MaxRetries > 0 {
		return m.cfg.MaxRetries
	}
	return 3
}

// GetClient returns a healthy client for the named exchange, retrying
// transient failures with exponential backoff. Configuration errors are
// returned immediately.
func (m *Manager) GetClient(ctx context.Context, name string) (Client, error) {
	var lastErr error
	for attempt := 0; attempt < m.maxRetries(); attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
		}

		client, err := m.acquire(ctx, name)
		if err == nil {
			return client, nil
		}
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		lastErr = err
		m.logger.Warn("exchange acquisition failed",
			zap.String("exchange", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", m.maxRetries()),
			zap.String("error_class", classifyNetwork(err)),
			zap.Error(err))
	}
	return nil, lastErr
}

// Execute runs op against a healthy client with the same bounded retry
// policy as GetClient and records the outcome with the breaker. Unlike
// acquisition, op failures of any class are retried until the attempts
// run out; the gateway decides afterwards whether a resend is safe.
func (m *Manager) Execute(ctx context.Context, name string, op func(ctx context.Context, c Client) error) error {
	var lastErr error
	for attempt := 0; attempt < m.maxRetries(); attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, backoff(attempt)); err != nil {
				return err
			}
		}

		client, err := m.acquire(ctx, name)
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				return err
			}
			lastErr = err
			continue
		}

		if err := op(ctx, client); err != nil {
			lastErr = err
			m.recordFailure(name, err)
			continue
		}
		m.recordSuccess(name)
		return nil
	}
	return lastErr
}

// IsCircuitOpen reports the breaker state without side effects beyond
// the time-based reset. Exposed for readiness reporting.
func (m *Manager) IsCircuitOpen(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[name]
	if !ok {
		return false
	}
	return b.isOpen(m.now(), m.cfg.BreakerResetTime)
}

// acquire performs a single pass: breaker check, handle lookup or
// creation, and an interval-gated health probe. The probe itself runs
// with the mutex released.
func (m *Manager) acquire(ctx context.Context, name string) (Client, error) {
	m.mu.Lock()

	if m.breakerLocked(name).isOpen(m.now(), m.cfg.BreakerResetTime) {
		m.mu.Unlock()
		return nil, &CircuitOpenError{Exchange: name}
	}

	h, ok := m.handles[name]
	if !ok {
		client, err := m.factory(name)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		h = &handle{client: client, lastHealthCheck: m.now()}
		m.handles[name] = h
		m.mu.Unlock()
		return h.client, nil
	}

	if m.now().Sub(h.lastHealthCheck) <= m.cfg.HealthCheckInterval {
		client := h.client
		m.mu.Unlock()
		return client, nil
	}

	client := h.client
	m.mu.Unlock()

	probeCtx := ctx
	var cancel context.CancelFunc
	if m.cfg.Timeout > 0 {
		probeCtx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	probeErr := client.Probe(probeCtx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if probeErr == nil {
		if cur := m.handles[name]; cur != nil && cur.client == client {
			cur.lastHealthCheck = m.now()
		}
		if m.breakerLocked(name).recordSuccess() {
			m.logger.Info("circuit breaker closed", zap.String("exchange", name))
		}
		return client, nil
	}

	m.logger.Warn("exchange health check failed",
		zap.String("exchange", name),
		zap.String("error_class", classifyNetwork(probeErr)),
		zap.Error(probeErr))
	m.recordFailureLocked(name, probeErr)

	// Another caller may have already swapped the handle while the
	// probe was in flight. Use theirs instead of rebuilding twice.
	if cur := m.handles[name]; cur != nil && cur.client != client {
		return cur.client, nil
	}

	fresh, err := m.factory(name)
	if err != nil {
		delete(m.handles, name)
		return nil, err
	}
	m.handles[name] = &handle{client: fresh, lastHealthCheck: m.now()}
	m.logger.Info("exchange client rebuilt after failed health check", zap.String("exchange", name))
	return fresh, nil
}

func (m *Manager) recordFailure(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Warn("exchange operation failed",
		zap.String("exchange", name),
		zap.String("error_class", classifyNetwork(err)),
		zap.Error(err))
	m.recordFailureLocked(name, err)
}

func (m *Manager) recordFailureLocked(name string, err error) {
	b := m.breakerLocked(name)
	if b.recordFailure(m.now(), m.breakerThreshold()) {
		m.logger.Warn("circuit breaker opened",
			zap.String("exchange", name),
			zap.Int("failure_count", b.failureCount))
	}
}

func (m *Manager) recordSuccess(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerLocked(name).recordSuccess() {
		m.logger.Info("circuit breaker closed", zap.String("exchange", name))
	}
}

func (m *Manager) breakerLocked(name string) *breaker {
	b, ok := m.breakers[name]
	if !ok {
		b = &breaker{}
		m.breakers[name] = b
	}
	return b
}

func (m *Manager) breakerThreshold() int {
	if m.cfg.BreakerThreshold > 0 {
		return m.cfg.BreakerThreshold
	}
	return 5
}

// backoff returns the delay before retry attempt n: 1s, 2s, 4s, ...
func backoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
