package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	coordinatorx "github.com/tanpawarit/clubhouse/agent/coordinator"
)

var (
	ErrQueueFull     = errors.New("session queue is full")
	ErrSessionClosed = errors.New("session closed")
)

// Job runs on the session's worker. Jobs of one session never overlap.
type Job func(s *Session)

// Session is one tenant's conversation memory plus its coordinator. A
// single worker goroutine drains its FIFO queue.
type Session struct {
	tenantID    string
	memory      *Memory
	coordinator *coordinatorx.Coordinator
	queueLimit  int
	logger      zerolog.Logger

	mu         sync.Mutex
	queue      []Job
	running    bool
	closed     bool
	lastActive time.Time

	notify chan struct{}
	done   chan struct{}
}

func newSession(tenantID string, coordinator *coordinatorx.Coordinator, memorySize, queueLimit int, now time.Time, logger zerolog.Logger) *Session {
	return &Session{
		tenantID:    tenantID,
		memory:      NewMemory(memorySize),
		coordinator: coordinator,
		queueLimit:  queueLimit,
		logger:      logger.With().Str("tenant_id", tenantID).Logger(),
		lastActive:  now,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

func (s *Session) TenantID() string {
	return s.tenantID
}

// Memory must only be used from a Job.
func (s *Session) Memory() *Memory {
	return s.memory
}

func (s *Session) Coordinator() *coordinatorx.Coordinator {
	return s.coordinator
}

// Done is closed once the worker has drained the queue after eviction.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) enqueue(job Job) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: tenant=%s", ErrSessionClosed, s.tenantID)
	}
	if s.queueLimit > 0 && len(s.queue) >= s.queueLimit {
		s.mu.Unlock()
		return fmt.Errorf("%w: tenant=%s limit=%d", ErrQueueFull, s.tenantID, s.queueLimit)
	}
	s.queue = append(s.queue, job)
	s.mu.Unlock()

	s.wake()
	return nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// idleSince reports whether the session has no pending or running work and
// has not been touched since cutoff.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.running && len(s.queue) == 0 && !s.lastActive.After(cutoff)
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// run drains jobs until the session is closed and empty. When prev is set
// the worker waits for the evicted predecessor so a tenant's jobs stay serial.
func (s *Session) run(prev *Session, onExit func()) {
	defer close(s.done)
	defer onExit()
	defer s.coordinator.Close()

	if prev != nil {
		<-prev.done
	}

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.notify
			continue
		}
		job := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.running = true
		s.mu.Unlock()

		s.runJob(job)

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}
}

func (s *Session) runJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("session_job_panic")
		}
	}()
	job(s)
}
