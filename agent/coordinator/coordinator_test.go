package coordinator

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

type echoExecutor struct{ role string }

func (e echoExecutor) Role() string { return e.role }

func (e echoExecutor) Invoke(_ context.Context, op string, args contractx.Arguments, ambient contractx.Ambient) (string, error) {
	return ambient.Tenant + ":" + op + ":" + args.Raw, nil
}

func TestCoordinatorInvoke(t *testing.T) {
	t.Parallel()

	c := NewFactory(echoExecutor{role: "roster"})("team-1")
	decision := contractx.RoutingDecision{Operation: "roster.list_all", ExecutorRole: "roster", Arguments: contractx.Arguments{Raw: "x"}}

	got, err := c.Invoke(context.Background(), decision, contractx.Ambient{Tenant: "team-1"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "team-1:roster.list_all:x" {
		t.Fatalf("Invoke() = %q", got)
	}
}

func TestCoordinatorRejectsForeignTenant(t *testing.T) {
	t.Parallel()

	c := New("team-1", echoExecutor{role: "roster"})
	_, err := c.Invoke(context.Background(), contractx.RoutingDecision{ExecutorRole: "roster"}, contractx.Ambient{Tenant: "team-2"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Invoke() error = %v, want ErrValidation", err)
	}
}

func TestCoordinatorUnknownRoleAndClosed(t *testing.T) {
	t.Parallel()

	c := New("team-1")
	ambient := contractx.Ambient{Tenant: "team-1"}
	if _, err := c.Invoke(context.Background(), contractx.RoutingDecision{ExecutorRole: "finance"}, ambient); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("Invoke() error = %v, want ErrNotFound", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := c.Invoke(context.Background(), contractx.RoutingDecision{ExecutorRole: "finance"}, ambient); !errors.Is(err, ErrClosed) {
		t.Fatalf("Invoke() error = %v, want ErrClosed", err)
	}
}
