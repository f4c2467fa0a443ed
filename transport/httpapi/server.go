// Package httpapi is the inbound webhook surface: it accepts chat messages
// over HTTP and hands them to the dispatcher.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	sessionx "github.com/tanpawarit/clubhouse/agent/session"
	logx "github.com/tanpawarit/clubhouse/pkg/logger"
)

const (
	signatureHeader = "Upstash-Signature"
	messageIDHeader = "Upstash-Message-Id"

	maxLimiters = 10000
)

type Config struct {
	Addr            string        `split_words:"true" default:":8080"`
	RateLimit       float64       `split_words:"true" default:"1"`
	RateBurst       int           `split_words:"true" default:"5"`
	MaxBodyBytes    int64         `split_words:"true" default:"65536"`
	DedupeTTL       time.Duration `split_words:"true" default:"24h"`
	PublicURL       string        `split_words:"true"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

// Submitter queues one inbound message and returns its task id.
type Submitter interface {
	Submit(ctx context.Context, msg contractx.InboundMessage) (string, <-chan contractx.ExecutionResult, error)
}

// Verifier checks a delivery signature over the raw body.
type Verifier interface {
	Verify(signature string, body []byte, url string) error
}

// Deduper remembers delivery ids. SetNX reports whether key was new.
type Deduper interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

type Option func(*Server)

// WithVerifier rejects deliveries whose signature does not verify.
func WithVerifier(v Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

// WithDeduper drops redelivered messages that carry an already seen id.
func WithDeduper(d Deduper) Option {
	return func(s *Server) {
		s.deduper = d
	}
}

type Server struct {
	cfg        Config
	dispatcher Submitter
	verifier   Verifier
	deduper    Deduper
	logger     zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(cfg Config, dispatcher Submitter, opts ...Option) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logx.Component("httpapi"),
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/messages", s.handleMessage)
	return mux
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http_listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("http_stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if s.verifier != nil {
		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" {
			writeError(w, http.StatusUnauthorized, "missing signature")
			return
		}
		if err := s.verifier.Verify(signature, body, s.cfg.PublicURL); err != nil {
			s.logger.Warn().Err(err).Msg("signature_rejected")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var msg contractx.InboundMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if !s.limiter(msg.TenantID + "/" + msg.SenderIdentity).Allow() {
		s.logger.Warn().Str("tenant_id", msg.TenantID).Str("sender", msg.SenderIdentity).Msg("rate_limited")
		writeError(w, http.StatusTooManyRequests, "slow down")
		return
	}

	dedupeKey := ""
	if id := strings.TrimSpace(r.Header.Get(messageIDHeader)); id != "" && s.deduper != nil {
		dedupeKey = "inbound:" + id
		fresh, err := s.deduper.SetNX(r.Context(), dedupeKey, msg.TenantID, s.cfg.DedupeTTL)
		switch {
		case err != nil:
			// Accept rather than drop when the dedupe store is unreachable.
			s.logger.Warn().Err(err).Str("message_id", id).Msg("dedupe_unavailable")
			dedupeKey = ""
		case !fresh:
			s.logger.Info().Str("message_id", id).Msg("duplicate_delivery")
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	taskID, _, err := s.dispatcher.Submit(r.Context(), msg)
	if err != nil {
		if dedupeKey != "" {
			if delErr := s.deduper.Del(r.Context(), dedupeKey); delErr != nil {
				s.logger.Warn().Err(delErr).Msg("dedupe_release_failed")
			}
		}
		switch {
		case errors.Is(err, contractx.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, sessionx.ErrQueueFull), errors.Is(err, sessionx.ErrSessionClosed):
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, "busy, retry later")
		default:
			s.logger.Error().Err(err).Msg("submit_failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// limiter returns the token bucket for one sender, creating it on first use.
func (s *Server) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.limiters[key]; ok {
		return l
	}
	if len(s.limiters) >= maxLimiters {
		s.limiters = make(map[string]*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	s.limiters[key] = l
	return l
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
