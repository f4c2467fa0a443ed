package executor

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

func TestExecutorInvoke(t *testing.T) {
	t.Parallel()

	e := New("roster", map[string]Handler{
		"roster.ping": func(_ context.Context, args contractx.Arguments, ambient contractx.Ambient) (string, error) {
			return "pong " + ambient.Sender.DisplayName + " " + args.Raw, nil
		},
		"roster.nil": nil,
	})

	out, err := e.Invoke(context.Background(), "roster.ping", contractx.Arguments{Raw: "x"}, contractx.Ambient{Sender: contractx.Sender{DisplayName: "Sam"}})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "pong Sam x" {
		t.Fatalf("Invoke() = %q", out)
	}
	if ops := e.Operations(); len(ops) != 1 || ops[0] != "roster.ping" {
		t.Fatalf("Operations() = %v", ops)
	}
}

func TestExecutorUnavailableOperation(t *testing.T) {
	t.Parallel()

	e := New("finance", nil)
	if _, err := e.Invoke(context.Background(), "finance.refund", contractx.Arguments{}, contractx.Ambient{}); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("Invoke() error = %v, want ErrNotFound", err)
	}
}

func TestMissing(t *testing.T) {
	t.Parallel()

	args := contractx.Arguments{Named: map[string]string{"name": "Sam", "phone": " "}}
	missing := Missing(args, "name", "phone", "venue")
	if len(missing) != 2 || missing[0] != "phone" || missing[1] != "venue" {
		t.Fatalf("Missing() = %v", missing)
	}
	if got := UsageReply("/addplayer <name> <phone>", missing); got != "Missing phone, venue. Usage: /addplayer <name> <phone>" {
		t.Fatalf("UsageReply() = %q", got)
	}
}
