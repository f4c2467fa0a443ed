package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	sessionx "github.com/tanpawarit/clubhouse/agent/session"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	msgs []contractx.InboundMessage
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, msg contractx.InboundMessage) (string, <-chan contractx.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", nil, f.err
	}
	f.msgs = append(f.msgs, msg)
	return fmt.Sprintf("task-%d", len(f.msgs)), make(chan contractx.ExecutionResult, 1), nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeDeduper struct {
	mu      sync.Mutex
	seen    map[string]bool
	err     error
	deleted []string
}

func (f *fakeDeduper) SetNX(_ context.Context, key, _ string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeDeduper) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeVerifier struct {
	valid string
}

func (f fakeVerifier) Verify(signature string, _ []byte, _ string) error {
	if signature != f.valid {
		return errors.New("bad signature")
	}
	return nil
}

const validBody = `{"tenant_id":"team-1","channel_kind":"primary","sender_identity":"+1","raw_text":"/list"}`

func post(t *testing.T, h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &fakeSubmitter{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPostMessageAccepted(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	s := New(Config{}, sub)
	rec := post(t, s.Handler(), validBody, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "task-1", out["task_id"])
	require.Len(t, sub.msgs, 1)
	require.Equal(t, "team-1", sub.msgs[0].TenantID)
	require.Equal(t, "/list", sub.msgs[0].RawText)
}

func TestPostMessageErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		body string
		want int
	}{
		{name: "bad json", body: "{", want: http.StatusBadRequest},
		{name: "validation", body: validBody, err: fmt.Errorf("%w: tenant_id is required", contractx.ErrValidation), want: http.StatusBadRequest},
		{name: "queue full", body: validBody, err: sessionx.ErrQueueFull, want: http.StatusServiceUnavailable},
		{name: "other", body: validBody, err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := New(Config{}, &fakeSubmitter{err: tc.err})
			rec := post(t, s.Handler(), tc.body, nil)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestPostMessageBodyTooLarge(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxBodyBytes: 16}, &fakeSubmitter{})
	rec := post(t, s.Handler(), validBody, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRateLimitPerSender(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	s := New(Config{RateLimit: 0.001, RateBurst: 2}, sub)
	h := s.Handler()

	require.Equal(t, http.StatusAccepted, post(t, h, validBody, nil).Code)
	require.Equal(t, http.StatusAccepted, post(t, h, validBody, nil).Code)
	require.Equal(t, http.StatusTooManyRequests, post(t, h, validBody, nil).Code)

	other := strings.Replace(validBody, `"+1"`, `"+2"`, 1)
	require.Equal(t, http.StatusAccepted, post(t, h, other, nil).Code)
	require.Equal(t, 3, sub.count())
}

func TestSignatureVerification(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	s := New(Config{}, sub, WithVerifier(fakeVerifier{valid: "good"}))
	h := s.Handler()

	require.Equal(t, http.StatusUnauthorized, post(t, h, validBody, nil).Code)
	require.Equal(t, http.StatusUnauthorized, post(t, h, validBody, map[string]string{signatureHeader: "forged"}).Code)
	require.Equal(t, http.StatusAccepted, post(t, h, validBody, map[string]string{signatureHeader: "good"}).Code)
	require.Equal(t, 1, sub.count())
}

func TestDuplicateDeliveryIgnored(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	s := New(Config{RateBurst: 10}, sub, WithDeduper(&fakeDeduper{}))
	h := s.Handler()
	headers := map[string]string{messageIDHeader: "msg_1"}

	require.Equal(t, http.StatusAccepted, post(t, h, validBody, headers).Code)
	rec := post(t, h, validBody, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"duplicate"}`, rec.Body.String())
	require.Equal(t, 1, sub.count())

	// No id, no dedupe.
	require.Equal(t, http.StatusAccepted, post(t, h, validBody, nil).Code)
	require.Equal(t, 2, sub.count())
}

func TestDedupeReleasedWhenSubmitFails(t *testing.T) {
	t.Parallel()

	dedupe := &fakeDeduper{}
	s := New(Config{}, &fakeSubmitter{err: sessionx.ErrQueueFull}, WithDeduper(dedupe))
	rec := post(t, s.Handler(), validBody, map[string]string{messageIDHeader: "msg_2"})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, []string{"inbound:msg_2"}, dedupe.deleted)
}

func TestDedupeStoreDownStillAccepts(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	s := New(Config{}, sub, WithDeduper(&fakeDeduper{err: errors.New("unreachable")}))
	rec := post(t, s.Handler(), validBody, map[string]string{messageIDHeader: "msg_3"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, sub.count())
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := New(Config{Addr: "127.0.0.1:0"}, &fakeSubmitter{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
}
