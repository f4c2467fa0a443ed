package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

func freshTask() *Task {
	return newTask("t-1", contractx.InboundMessage{TenantID: "team-1", SenderIdentity: "+1"}, contractx.ChannelPrimary, time.Unix(0, 0), time.Minute)
}

func TestTaskTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    []State
		wantErr bool
	}{
		{name: "completed", path: []State{StateClassified, StatePermissionChecked, StateDispatched, StateCompleted}},
		{name: "timed out", path: []State{StateClassified, StatePermissionChecked, StateDispatched, StateTimedOut}},
		{name: "executor failed", path: []State{StateClassified, StatePermissionChecked, StateDispatched, StateFailed}},
		{name: "denied after classification", path: []State{StateClassified, StateDenied}},
		{name: "registration lookup failed", path: []State{StateFailed}},
		{name: "routing failed", path: []State{StateClassified, StateFailed}},
		{name: "skip permission check", path: []State{StateClassified, StateDispatched}, wantErr: true},
		{name: "denied before classification", path: []State{StateDenied}, wantErr: true},
		{name: "denied after permission check", path: []State{StateClassified, StatePermissionChecked, StateDenied}, wantErr: true},
		{name: "leave terminal state", path: []State{StateClassified, StatePermissionChecked, StateDispatched, StateCompleted, StateDispatched}, wantErr: true},
		{name: "revisit classified", path: []State{StateClassified, StatePermissionChecked, StateClassified}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			task := freshTask()
			var err error
			applied := []State{StateCreated}
			for _, to := range tt.path {
				if err = task.transition(to); err != nil {
					break
				}
				applied = append(applied, to)
			}

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("transition() error = %v, want ErrInvalidTransition", err)
				}
			} else if err != nil {
				t.Fatalf("transition() error = %v", err)
			}
			if diff := cmp.Diff(applied, task.History()); diff != "" {
				t.Fatalf("History() mismatch (-want +got):\n%s", diff)
			}
			if got, want := task.State(), applied[len(applied)-1]; got != want {
				t.Fatalf("State() = %s, want %s", got, want)
			}
		})
	}
}

func TestTaskAbort(t *testing.T) {
	t.Parallel()

	task := freshTask()
	if err := task.transition(StateClassified); err != nil {
		t.Fatalf("transition() error = %v", err)
	}
	task.abort()
	if task.State() != StateFailed {
		t.Fatalf("State() = %s, want failed", task.State())
	}

	// A terminal task keeps its outcome.
	task.abort()
	want := []State{StateCreated, StateClassified, StateFailed}
	if diff := cmp.Diff(want, task.History()); diff != "" {
		t.Fatalf("History() mismatch (-want +got):\n%s", diff)
	}

	done := freshTask()
	for _, to := range []State{StateClassified, StateDenied} {
		if err := done.transition(to); err != nil {
			t.Fatalf("transition(%s) error = %v", to, err)
		}
	}
	done.abort()
	if done.State() != StateDenied {
		t.Fatalf("State() = %s, want denied", done.State())
	}
}

func TestHistoryIsACopy(t *testing.T) {
	t.Parallel()

	task := freshTask()
	h := task.History()
	h[0] = StateFailed
	if task.History()[0] != StateCreated {
		t.Fatal("History() exposed internal state")
	}
}
