// Package session keeps one isolated session per tenant and serializes the
// tenant's tasks through it.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	coordinatorx "github.com/tanpawarit/clubhouse/agent/coordinator"
	logx "github.com/tanpawarit/clubhouse/pkg/logger"
)

type Config struct {
	IdleTimeout time.Duration `split_words:"true" default:"30m"`
	SweepSpec   string        `split_words:"true" default:"@every 1m"`
	QueueLimit  int           `split_words:"true" default:"64"`
	MemorySize  int           `split_words:"true" default:"50"`
}

type Manager struct {
	cfg     Config
	factory coordinatorx.Factory
	now     func() time.Time
	logger  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	retiring map[string]*Session
	closed   bool
	wg       sync.WaitGroup

	cron *cron.Cron
}

func NewManager(cfg Config, factory coordinatorx.Factory) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if strings.TrimSpace(cfg.SweepSpec) == "" {
		cfg.SweepSpec = "@every 1m"
	}
	if factory == nil {
		factory = coordinatorx.NewFactory()
	}
	return &Manager{
		cfg:      cfg,
		factory:  factory,
		now:      time.Now,
		logger:   logx.Component("session"),
		sessions: make(map[string]*Session),
		retiring: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for tenantID, creating it with fresh
// memory and a fresh coordinator when none exists. It fails with
// ErrSessionClosed once the manager is closed.
func (m *Manager) GetOrCreate(tenantID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(tenantID)
}

func (m *Manager) getOrCreateLocked(tenantID string) (*Session, error) {
	if m.closed {
		return nil, fmt.Errorf("%w: manager is shut down", ErrSessionClosed)
	}
	if s, ok := m.sessions[tenantID]; ok {
		return s, nil
	}

	s := newSession(tenantID, m.factory(tenantID), m.cfg.MemorySize, m.cfg.QueueLimit, m.now(), m.logger)
	prev := m.retiring[tenantID]
	delete(m.retiring, tenantID)
	m.sessions[tenantID] = s

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.run(prev, func() { m.forget(s) })
	}()

	m.logger.Debug().Str("tenant_id", tenantID).Msg("session_created")
	return s, nil
}

// Submit queues job on the tenant's session, creating the session if needed.
// Lookup and enqueue happen under one lock so a concurrent sweep cannot
// retire the session in between.
func (m *Manager) Submit(tenantID string, job Job) (*Session, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", contractx.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getOrCreateLocked(tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(job); err != nil {
		return nil, err
	}
	return s, nil
}

// Touch resets the tenant's inactivity clock.
func (m *Manager) Touch(tenantID string) {
	m.mu.Lock()
	s, ok := m.sessions[tenantID]
	m.mu.Unlock()
	if ok {
		s.touch(m.now())
	}
}

// Evict removes the tenant's session from the lookup table. Queued and
// running jobs still finish against it; the coordinator is closed after.
func (m *Manager) Evict(tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked(tenantID)
}

func (m *Manager) evictLocked(tenantID string) bool {
	s, ok := m.sessions[tenantID]
	if !ok {
		return false
	}
	delete(m.sessions, tenantID)
	m.retiring[tenantID] = s
	s.close()
	m.logger.Debug().Str("tenant_id", tenantID).Msg("session_evicted")
	return true
}

// Sweep evicts sessions idle for longer than the configured timeout. Sessions
// with queued or running work are never swept.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for tenantID, s := range m.sessions {
		if s.idleSince(cutoff) && m.evictLocked(tenantID) {
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start schedules the idle sweep.
func (m *Manager) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(m.cfg.SweepSpec, func() {
		if n := m.Sweep(); n > 0 {
			m.logger.Info().Int("evicted", n).Int("live", m.Len()).Msg("session_sweep")
		}
	}); err != nil {
		return fmt.Errorf("%w: sweep schedule %q: %v", contractx.ErrValidation, m.cfg.SweepSpec, err)
	}
	c.Start()

	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	return nil
}

// Close stops the sweep, evicts every session and waits for their workers to
// drain, or for ctx to end. Later submissions fail with ErrSessionClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	for tenantID := range m.sessions {
		m.evictLocked(tenantID)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	if m.retiring[s.tenantID] == s {
		delete(m.retiring, s.tenantID)
	}
	m.mu.Unlock()
}
