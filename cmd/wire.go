package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	capabilityx "github.com/tanpawarit/clubhouse/agent/capability"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	coordinatorx "github.com/tanpawarit/clubhouse/agent/coordinator"
	dispatchx "github.com/tanpawarit/clubhouse/agent/dispatch"
	"github.com/tanpawarit/clubhouse/agent/executor/finance"
	"github.com/tanpawarit/clubhouse/agent/executor/help"
	"github.com/tanpawarit/clubhouse/agent/executor/roster"
	"github.com/tanpawarit/clubhouse/agent/executor/schedule"
	llmx "github.com/tanpawarit/clubhouse/agent/llm"
	sessionx "github.com/tanpawarit/clubhouse/agent/session"
	storex "github.com/tanpawarit/clubhouse/agent/store"
	configx "github.com/tanpawarit/clubhouse/pkg/config"
	qstashx "github.com/tanpawarit/clubhouse/pkg/qstash"
	upstashx "github.com/tanpawarit/clubhouse/pkg/upstash"
	"github.com/tanpawarit/clubhouse/transport/httpapi"
	"github.com/tanpawarit/clubhouse/transport/outbound"
)

type teamConfig struct {
	Timezone string `default:"UTC"`
}

type appConfig struct {
	Team     teamConfig
	Dispatch dispatchx.Config
	Session  sessionx.Config
	LLM      llmx.Config
	Store    storex.Config
	HTTP     httpapi.Config
	QStash   qstashx.Config
	Upstash  upstashx.Config
}

func loadConfig() (appConfig, error) {
	var cfg appConfig
	err := errors.Join(
		into("TEAM", &cfg.Team),
		into("DISPATCH", &cfg.Dispatch),
		into("SESSION", &cfg.Session),
		into("LLM", &cfg.LLM),
		into("STORE", &cfg.Store),
		into("HTTP", &cfg.HTTP),
		into("QSTASH", &cfg.QStash),
		into("UPSTASH", &cfg.Upstash),
	)
	return cfg, err
}

func into[T any](prefix string, dst *T) error {
	conf, err := configx.New[T](prefix)
	if err != nil {
		return err
	}
	*dst = *conf
	return nil
}

// app holds everything a command needs after wiring.
type app struct {
	repo       storex.Repository
	sessions   *sessionx.Manager
	dispatcher *dispatchx.Dispatcher
}

func wireApp(ctx context.Context, cfg appConfig) (*app, error) {
	registry, err := capabilityx.Default()
	if err != nil {
		return nil, fmt.Errorf("load capability catalog: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Team.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: team timezone %q: %v", contractx.ErrValidation, cfg.Team.Timezone, err)
	}

	understander, err := llmx.NewUnderstander(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("wire language understanding: %w", err)
	}
	if understander == nil {
		log.Warn().Msg("llm backend disabled; free text will ask for clarification")
	}

	repo, err := storex.New(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("wire store: %w", err)
	}

	marker := cfg.Dispatch.CommandMarker
	factory := coordinatorx.NewFactory(
		roster.New(repo, marker),
		schedule.New(repo, marker, schedule.WithLocation(loc)),
		finance.New(repo, marker),
		help.New(registry, marker),
	)
	sessions := sessionx.NewManager(cfg.Session, factory)

	out, err := wireOutbound(cfg.QStash)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	dispatcher, err := dispatchx.New(ctx, cfg.Dispatch, dispatchx.Deps{
		Registry:      registry,
		Understander:  understander,
		Registrations: repo,
		Sessions:      sessions,
		Outbound:      out,
	})
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("wire dispatcher: %w", err)
	}

	return &app{
		repo:       repo,
		sessions:   sessions,
		dispatcher: dispatcher,
	}, nil
}

func wireOutbound(cfg qstashx.Config) (contractx.Outbound, error) {
	logOut := outbound.NewLog()
	if !cfg.Enabled() {
		return logOut, nil
	}
	client, err := qstashx.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire qstash outbound: %w", err)
	}
	return outbound.Tee{logOut, outbound.NewQStash(client)}, nil
}

// httpOptions turns the optional Upstash services on when configured.
func httpOptions(cfg appConfig) ([]httpapi.Option, error) {
	var opts []httpapi.Option
	if cfg.QStash.VerifiesSignatures() {
		opts = append(opts, httpapi.WithVerifier(qstashx.NewVerifier(cfg.QStash.CurrentSigningKey, cfg.QStash.NextSigningKey)))
	}
	if cfg.Upstash.Enabled() {
		client, err := upstashx.New(cfg.Upstash)
		if err != nil {
			return nil, fmt.Errorf("wire upstash dedupe: %w", err)
		}
		opts = append(opts, httpapi.WithDeduper(client))
	}
	return opts, nil
}

// Close drains every session, then releases the store.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.sessions.Close(ctx), a.repo.Close())
}
