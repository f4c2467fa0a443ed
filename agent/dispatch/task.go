package dispatch

import (
	"errors"
	"fmt"
	"slices"
	"time"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

type State string

const (
	StateCreated           State = "created"
	StateClassified        State = "classified"
	StatePermissionChecked State = "permission_checked"
	StateDispatched        State = "dispatched"
	StateCompleted         State = "completed"
	StateDenied            State = "denied"
	StateFailed            State = "failed"
	StateTimedOut          State = "timed_out"
)

var ErrInvalidTransition = errors.New("invalid task transition")

// transitions lists the states reachable from each state. Failed is reachable
// early only when the registration store cannot be read.
var transitions = map[State][]State{
	StateCreated:           {StateClassified, StateFailed},
	StateClassified:        {StatePermissionChecked, StateDenied, StateFailed},
	StatePermissionChecked: {StateDispatched},
	StateDispatched:        {StateCompleted, StateFailed, StateTimedOut},
}

func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateDenied, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

// ResultStatus maps a terminal state onto the status sent to the channel.
func (s State) ResultStatus() contractx.ResultStatus {
	switch s {
	case StateCompleted:
		return contractx.StatusOK
	case StateDenied:
		return contractx.StatusDenied
	case StateTimedOut:
		return contractx.StatusTimeout
	default:
		return contractx.StatusError
	}
}

// Task is one inbound message on its way to a reply.
type Task struct {
	ID         string
	TenantID   string
	Sender     contractx.Sender
	Channel    contractx.ChannelContext
	RawMessage string
	CreatedAt  time.Time
	Deadline   time.Time

	Entity   contractx.EntityType
	Decision contractx.RoutingDecision

	state   State
	history []State
}

func newTask(id string, msg contractx.InboundMessage, kind contractx.ChannelKind, now time.Time, timeout time.Duration) *Task {
	return &Task{
		ID:       id,
		TenantID: msg.TenantID,
		Sender: contractx.Sender{
			TenantID:    msg.TenantID,
			Identity:    msg.SenderIdentity,
			DisplayName: msg.SenderDisplayName,
		},
		Channel:    contractx.ChannelContext{TenantID: msg.TenantID, Kind: kind},
		RawMessage: msg.RawText,
		CreatedAt:  now,
		Deadline:   now.Add(timeout),
		state:      StateCreated,
		history:    []State{StateCreated},
	}
}

func (t *Task) State() State {
	return t.state
}

// History returns every state the task has been in, in order.
func (t *Task) History() []State {
	return slices.Clone(t.history)
}

func (t *Task) transition(to State) error {
	if !slices.Contains(transitions[t.state], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, to)
	}
	t.state = to
	t.history = append(t.history, to)
	return nil
}

// abort moves a task that panicked mid-flight straight to Failed.
func (t *Task) abort() {
	if t.state.Terminal() {
		return
	}
	t.state = StateFailed
	t.history = append(t.history, StateFailed)
}

func (t *Task) ambient() contractx.Ambient {
	return contractx.Ambient{
		TaskID:  t.ID,
		Tenant:  t.TenantID,
		Sender:  t.Sender,
		Channel: t.Channel,
		Entity:  t.Entity,
	}
}
