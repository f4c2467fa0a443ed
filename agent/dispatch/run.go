package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	accessx "github.com/tanpawarit/clubhouse/agent/access"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	coordinatorx "github.com/tanpawarit/clubhouse/agent/coordinator"
	sessionx "github.com/tanpawarit/clubhouse/agent/session"
)

var errDeadline = errors.New("task deadline exceeded")

type invokeResult struct {
	reply string
	err   error
}

// run drives task to a terminal state on the tenant's worker and reports it.
// It is the catch-all boundary: nothing it calls can escape as a panic.
func (d *Dispatcher) run(base context.Context, task *Task, s *sessionx.Session) (result contractx.ExecutionResult) {
	ctx, cancel := context.WithDeadline(base, task.Deadline)
	defer cancel()

	logger := d.taskLogger(task)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("task_finish_panic")
			task.abort()
			result = contractx.ExecutionResult{TaskID: task.ID, Status: contractx.StatusError, ReplyText: failedReply}
		}
	}()

	reply := d.execute(ctx, task, s, logger)
	return d.finish(base, task, s, reply, logger)
}

func (d *Dispatcher) execute(ctx context.Context, task *Task, s *sessionx.Session, logger zerolog.Logger) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("state", string(task.State())).Msg("task_panic")
			task.abort()
			reply = failedReply
		}
	}()

	status, err := d.registrations.RegistrationStatus(ctx, task.TenantID, task.Sender.Identity)
	if err != nil && contractx.IsTransient(err) && ctx.Err() == nil {
		logger.Warn().Err(err).Msg("registration_lookup_retry")
		status, err = d.registrations.RegistrationStatus(ctx, task.TenantID, task.Sender.Identity)
	}
	if err != nil {
		logger.Error().Err(err).Msg("registration_lookup_failed")
		d.advance(task, StateFailed, logger)
		return failedReply
	}
	task.Sender.Status = status
	task.Entity = accessx.ResolveEntity(task.Channel.Kind, status)

	memory := s.Memory()
	decision, err := d.router.Invoke(ctx, routeInput{
		Text:         task.RawMessage,
		Channel:      task.Channel,
		Entity:       task.Entity,
		RecentMemory: summaries(memory.Recent(d.cfg.MemoryWindow)),
		RecentRoles:  memory.RolesUsedBy(task.Sender.Identity, d.cfg.MemoryWindow),
	})
	if err != nil {
		logger.Error().Err(err).Msg("routing_failed")
		d.advance(task, StateFailed, logger)
		return failedReply
	}
	task.Decision = decision
	d.advance(task, StateClassified, logger)
	logger.Debug().
		Str("operation", decision.Operation).
		Str("source", string(decision.Source)).
		Float64("confidence", decision.Confidence).
		Str("entity", string(task.Entity)).
		Msg("task_classified")

	if check := d.validator.Check(decision.Operation, task.Entity); !check.Allowed {
		logger.Warn().Str("operation", decision.Operation).Str("entity", string(task.Entity)).Str("reason", check.Reason).Msg("permission_denied")
		d.advance(task, StateDenied, logger)
		return d.deniedReply(decision.Operation, task.Entity)
	}
	d.advance(task, StatePermissionChecked, logger)

	d.advance(task, StateDispatched, logger)
	reply, err = d.invoke(ctx, s.Coordinator(), task)
	switch {
	case err == nil:
		d.advance(task, StateCompleted, logger)
		return reply
	case errors.Is(err, errDeadline):
		logger.Warn().Str("operation", decision.Operation).Msg("task_timed_out")
		d.advance(task, StateTimedOut, logger)
		return timeoutReply
	default:
		logger.Error().Err(err).Str("operation", decision.Operation).Msg("executor_failed")
		d.advance(task, StateFailed, logger)
		return failedReply
	}
}

// invoke runs the executor off the worker so the deadline can abandon it.
// On expiry the executor's context is cancelled and its result discarded.
func (d *Dispatcher) invoke(ctx context.Context, coordinator *coordinatorx.Coordinator, task *Task) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		done <- callExecutor(ctx, coordinator, task)
	}()

	select {
	case res := <-done:
		// A result that lands after the deadline is discarded like a late one.
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", errDeadline, err)
		}
		return res.reply, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", errDeadline, ctx.Err())
	}
}

// callExecutor retries once, with unchanged arguments, when the executor
// marks its failure transient.
func callExecutor(ctx context.Context, coordinator *coordinatorx.Coordinator, task *Task) (res invokeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = invokeResult{err: fmt.Errorf("%w: %v", ErrExecutorPanic, r)}
		}
	}()

	ambient := task.ambient()
	reply, err := coordinator.Invoke(ctx, task.Decision, ambient)
	if err != nil && contractx.IsTransient(err) && ctx.Err() == nil {
		reply, err = coordinator.Invoke(ctx, task.Decision, ambient)
	}
	return invokeResult{reply: reply, err: err}
}

func (d *Dispatcher) finish(base context.Context, task *Task, s *sessionx.Session, reply string, logger zerolog.Logger) contractx.ExecutionResult {
	result := contractx.ExecutionResult{
		TaskID:    task.ID,
		Status:    task.State().ResultStatus(),
		ReplyText: reply,
	}

	s.Memory().Append(sessionx.Entry{
		TaskID:       task.ID,
		SenderID:     task.Sender.Identity,
		ExecutorRole: task.Decision.ExecutorRole,
		Operation:    task.Decision.Operation,
		Status:       result.Status,
		Text:         task.RawMessage,
		Reply:        reply,
		At:           d.now(),
	})
	d.sessions.Touch(task.TenantID)

	if err := d.send(base, task, result); err != nil {
		logger.Warn().Err(err).Msg("outbound_failed")
	}

	logger.Info().
		Str("state", string(task.State())).
		Interface("history", task.History()).
		Str("operation", task.Decision.Operation).
		Dur("elapsed", d.now().Sub(task.CreatedAt)).
		Msg("task_finished")
	return result
}

// send delivers the reply. A panicking outbound is reported as an error so
// the task still yields its result.
func (d *Dispatcher) send(base context.Context, task *Task, result contractx.ExecutionResult) (err error) {
	if d.outbound == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbound panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(base, outboundTimeout)
	defer cancel()
	return d.outbound.Send(ctx, contractx.OutboundMessage{
		TenantID:    task.TenantID,
		ChannelKind: task.Channel.Kind,
		TaskID:      task.ID,
		Status:      result.Status,
		ReplyText:   result.ReplyText,
		SentAt:      d.now(),
	})
}

func (d *Dispatcher) advance(task *Task, to State, logger zerolog.Logger) {
	if err := task.transition(to); err != nil {
		logger.Error().Err(err).Msg("task_transition_rejected")
	}
}

func (d *Dispatcher) taskLogger(task *Task) zerolog.Logger {
	return d.logger.With().Str("task_id", task.ID).Str("tenant_id", task.TenantID).Logger()
}

func summaries(entries []sessionx.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Summary())
	}
	return out
}
