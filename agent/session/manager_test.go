package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func closeManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func mustSession(t *testing.T, m *Manager, tenantID string) *Session {
	t.Helper()
	s, err := m.GetOrCreate(tenantID)
	if err != nil {
		t.Fatalf("GetOrCreate(%q) error = %v", tenantID, err)
	}
	return s
}

func TestGetOrCreateReusesSession(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer closeManager(t, m)

	a := mustSession(t, m, "team-1")
	b := mustSession(t, m, "team-1")
	c := mustSession(t, m, "team-2")
	if a != b {
		t.Fatal("GetOrCreate() returned a new session for the same tenant")
	}
	if a == c || a.Memory() == c.Memory() || a.Coordinator() == c.Coordinator() {
		t.Fatal("tenants must not share session state")
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}

func TestSubmitSerializesPerTenant(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer closeManager(t, m)

	var (
		mu      sync.Mutex
		order   []int
		active  int
		overlap bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		i := i
		if _, err := m.Submit("team-1", func(s *Session) {
			defer wg.Done()
			mu.Lock()
			active++
			if active > 1 {
				overlap = true
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)
			s.Memory().Append(Entry{TaskID: "t", Operation: "x"})

			mu.Lock()
			order = append(order, i)
			active--
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()

	if overlap {
		t.Fatal("jobs for one tenant ran concurrently")
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, want FIFO order", i, got)
		}
	}
}

func TestSubmitQueueLimit(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{QueueLimit: 1}, nil)
	defer closeManager(t, m)

	release := make(chan struct{})
	started := make(chan struct{})
	if _, err := m.Submit("team-1", func(*Session) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started

	if _, err := m.Submit("team-1", func(*Session) {}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	_, err := m.Submit("team-1", func(*Session) {})
	close(release)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit() error = %v, want ErrQueueFull", err)
	}
}

func TestSubmitRequiresTenant(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer closeManager(t, m)

	if _, err := m.Submit(" ", func(*Session) {}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Submit() error = %v, want ErrValidation", err)
	}
}

func TestEvictLetsInFlightJobFinish(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	defer closeManager(t, m)

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan *Session, 1)
	old, err := m.Submit("team-1", func(s *Session) {
		close(started)
		<-release
		s.Memory().Append(Entry{TaskID: "late"})
		finished <- s
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started

	if !m.Evict("team-1") {
		t.Fatal("Evict() = false, want true")
	}
	if m.Evict("team-1") {
		t.Fatal("second Evict() = true, want false")
	}

	fresh := mustSession(t, m, "team-1")
	if fresh == old {
		t.Fatal("GetOrCreate() after Evict() returned the evicted session")
	}

	ran := make(chan struct{})
	if _, err := m.Submit("team-1", func(*Session) { close(ran) }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case <-ran:
		t.Fatal("new session ran before the evicted session drained")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if s := <-finished; s != old || s.Memory().Len() != 1 {
		t.Fatal("in-flight job did not complete against its captured session")
	}
	<-ran
	<-old.Done()
	if !old.Coordinator().Closed() {
		t.Fatal("evicted coordinator not closed")
	}
	if fresh.Memory().Len() != 0 {
		t.Fatal("fresh session inherited memory")
	}
}

func TestSweepEvictsOnlyIdle(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{IdleTimeout: time.Minute}, nil)
	defer closeManager(t, m)

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	var clock sync.Mutex
	m.now = func() time.Time {
		clock.Lock()
		defer clock.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		clock.Lock()
		now = now.Add(d)
		clock.Unlock()
	}

	idle := mustSession(t, m, "idle")
	mustSession(t, m, "busy")
	release := make(chan struct{})
	started := make(chan struct{})
	if _, err := m.Submit("busy", func(*Session) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started

	advance(30 * time.Second)
	mustSession(t, m, "fresh")
	m.Touch("fresh")
	advance(45 * time.Second)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	close(release)
	<-idle.Done()
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{SweepSpec: "not a schedule"}, nil)
	defer closeManager(t, m)

	if err := m.Start(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Start() error = %v, want ErrValidation", err)
	}
}

func TestStartAndClose(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{SweepSpec: "@every 1h"}, nil)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s := mustSession(t, m, "team-1")
	closeManager(t, m)

	select {
	case <-s.Done():
	default:
		t.Fatal("Close() returned before the worker exited")
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
}

func TestSubmitAfterCloseIsRejected(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, nil)
	mustSession(t, m, "team-1")
	closeManager(t, m)

	if _, err := m.Submit("late", func(*Session) {}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Submit() error = %v, want ErrSessionClosed", err)
	}
	if _, err := m.GetOrCreate("team-1"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("GetOrCreate() error = %v, want ErrSessionClosed", err)
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
}

func TestJobPanicIsLoggedAndWorkerSurvives(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	m := NewManager(Config{}, nil)
	m.logger = zerolog.New(&buf)
	defer closeManager(t, m)

	if _, err := m.Submit("team-1", func(*Session) { panic("boom") }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ran := make(chan struct{})
	if _, err := m.Submit("team-1", func(*Session) { close(ran) }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-ran

	out := buf.String()
	if !strings.Contains(out, `"message":"session_job_panic"`) || !strings.Contains(out, `"tenant_id":"team-1"`) {
		t.Fatalf("log = %s", out)
	}
}
