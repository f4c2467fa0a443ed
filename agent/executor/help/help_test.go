package help

import (
	"context"
	"strings"
	"testing"

	capabilityx "github.com/tanpawarit/clubhouse/agent/capability"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

func TestHelpListsVisibleCommands(t *testing.T) {
	t.Parallel()

	e := New(capabilityx.MustDefault(), "/")

	member, err := e.Invoke(context.Background(), capabilityx.OpHelp, contractx.Arguments{}, contractx.Ambient{Entity: contractx.EntityMember})
	if err != nil {
		t.Fatalf("Invoke(help) error = %v", err)
	}
	if !strings.Contains(member, "/fixtures - ") || strings.Contains(member, "/addplayer") || strings.Contains(member, "/register") {
		t.Fatalf("member help:\n%s", member)
	}

	admin, _ := e.Invoke(context.Background(), capabilityx.OpHelp, contractx.Arguments{}, contractx.Ambient{Entity: contractx.EntityAdmin})
	if !strings.Contains(admin, "/addplayer <name> <phone> - ") {
		t.Fatalf("admin help:\n%s", admin)
	}

	guest, _ := e.Invoke(context.Background(), capabilityx.OpHelp, contractx.Arguments{}, contractx.Ambient{Entity: contractx.EntityUnregistered})
	if !strings.Contains(guest, "/register [name]") || strings.Contains(guest, "plain words") {
		t.Fatalf("unregistered help:\n%s", guest)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	e := New(capabilityx.MustDefault(), "/")

	args := contractx.Arguments{Named: map[string]string{"command": "lst", "suggestions": "list roster"}}
	out, _ := e.Invoke(context.Background(), capabilityx.OpUnknownCommand, args, contractx.Ambient{})
	if out != "I don't know the command /lst. Did you mean /list or /roster?" {
		t.Fatalf("reply = %q", out)
	}

	args = contractx.Arguments{Named: map[string]string{"command": "zzz"}}
	out, _ = e.Invoke(context.Background(), capabilityx.OpUnknownCommand, args, contractx.Ambient{})
	if !strings.HasSuffix(out, "Send /help to see what you can use.") {
		t.Fatalf("reply = %q", out)
	}
}

func TestFallbackReplies(t *testing.T) {
	t.Parallel()

	e := New(capabilityx.MustDefault(), "/")

	guide, _ := e.Invoke(context.Background(), capabilityx.OpRegistrationGuide, contractx.Arguments{}, contractx.Ambient{Sender: contractx.Sender{DisplayName: "Robin"}})
	if !strings.HasPrefix(guide, "Hi Robin!") || !strings.Contains(guide, "/register <your name>") {
		t.Fatalf("guide = %q", guide)
	}

	clarify, _ := e.Invoke(context.Background(), capabilityx.OpClarify, contractx.Arguments{}, contractx.Ambient{})
	if !strings.Contains(clarify, "/help") {
		t.Fatalf("clarify = %q", clarify)
	}
}
