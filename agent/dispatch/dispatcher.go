// Package dispatch turns each inbound message into a Task, routes it and
// returns exactly one ExecutionResult for it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	accessx "github.com/tanpawarit/clubhouse/agent/access"
	capabilityx "github.com/tanpawarit/clubhouse/agent/capability"
	commandx "github.com/tanpawarit/clubhouse/agent/command"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	intentx "github.com/tanpawarit/clubhouse/agent/intent"
	sessionx "github.com/tanpawarit/clubhouse/agent/session"
	logx "github.com/tanpawarit/clubhouse/pkg/logger"
)

var ErrExecutorPanic = errors.New("executor panicked")

const outboundTimeout = 10 * time.Second

type Config struct {
	CommandMarker string        `split_words:"true" default:"/"`
	TaskTimeout   time.Duration `split_words:"true" default:"300s"`
	MinConfidence float64       `split_words:"true" default:"0.55"`
	// MemoryWindow bounds the recent entries shown to the classifier and
	// used for continuity.
	MemoryWindow int `split_words:"true" default:"10"`
}

type Deps struct {
	Registry      *capabilityx.Registry
	Understander  contractx.Understander
	Registrations contractx.RegistrationStore
	Sessions      *sessionx.Manager
	Outbound      contractx.Outbound
}

type Dispatcher struct {
	cfg           Config
	registry      *capabilityx.Registry
	validator     *accessx.Validator
	registrations contractx.RegistrationStore
	sessions      *sessionx.Manager
	outbound      contractx.Outbound
	router        compose.Runnable[routeInput, contractx.RoutingDecision]

	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

func New(ctx context.Context, cfg Config, deps Deps) (*Dispatcher, error) {
	if deps.Registry == nil {
		return nil, errors.New("capability registry is required")
	}
	if !deps.Registry.Frozen() {
		return nil, fmt.Errorf("%w: capability registry must be frozen", contractx.ErrValidation)
	}
	if deps.Registrations == nil {
		return nil, errors.New("registration store is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if strings.TrimSpace(cfg.CommandMarker) == "" {
		cfg.CommandMarker = commandx.DefaultMarker
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 300 * time.Second
	}
	if cfg.MemoryWindow <= 0 {
		cfg.MemoryWindow = 10
	}

	parser := commandx.NewParser(deps.Registry, cfg.CommandMarker)
	classifier := intentx.NewClassifier(deps.Understander, deps.Registry, cfg.MinConfidence)
	router, err := compileRoutingGraph(ctx, parser, classifier)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		cfg:           cfg,
		registry:      deps.Registry,
		validator:     accessx.NewValidator(deps.Registry),
		registrations: deps.Registrations,
		sessions:      deps.Sessions,
		outbound:      deps.Outbound,
		router:        router,
		now:           time.Now,
		newID:         uuid.NewString,
		logger:        logx.Component("dispatch"),
	}, nil
}

// Submit queues msg on its tenant's session and returns at once. The channel
// receives the task's single ExecutionResult. Cancelling ctx does not cancel
// the task; only its deadline does.
func (d *Dispatcher) Submit(ctx context.Context, msg contractx.InboundMessage) (string, <-chan contractx.ExecutionResult, error) {
	kind, err := validateInbound(msg)
	if err != nil {
		return "", nil, err
	}

	results := make(chan contractx.ExecutionResult, 1)
	base := context.WithoutCancel(ctx)
	task := newTask(d.newID(), msg, kind, d.now(), d.cfg.TaskTimeout)

	// A rejected submission never reaches the task log.
	if _, err := d.sessions.Submit(msg.TenantID, func(s *sessionx.Session) {
		results <- d.run(base, task, s)
	}); err != nil {
		return "", nil, err
	}
	logger := d.taskLogger(task)
	logger.Debug().Str("channel_kind", string(kind)).Msg("task_created")
	return task.ID, results, nil
}

// Handle submits msg and waits for its result.
func (d *Dispatcher) Handle(ctx context.Context, msg contractx.InboundMessage) (contractx.ExecutionResult, error) {
	_, results, err := d.Submit(ctx, msg)
	if err != nil {
		return contractx.ExecutionResult{}, err
	}
	select {
	case res := <-results:
		return res, nil
	case <-ctx.Done():
		return contractx.ExecutionResult{}, ctx.Err()
	}
}

func validateInbound(msg contractx.InboundMessage) (contractx.ChannelKind, error) {
	if strings.TrimSpace(msg.TenantID) == "" {
		return "", fmt.Errorf("%w: tenant_id is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(msg.SenderIdentity) == "" {
		return "", fmt.Errorf("%w: sender_identity is required", contractx.ErrValidation)
	}
	return contractx.ParseChannelKind(msg.ChannelKind)
}
