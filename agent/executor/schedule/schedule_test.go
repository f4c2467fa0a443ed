package schedule

import (
	"context"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	storex "github.com/tanpawarit/clubhouse/agent/store"
)

var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func admin() contractx.Ambient {
	return contractx.Ambient{Tenant: "team-1", Sender: contractx.Sender{Identity: "+1"}}
}

func TestAddAndListFixtures(t *testing.T) {
	t.Parallel()

	repo := storex.NewMemory()
	e := New(repo, "/", WithClock(clock))

	args := contractx.Arguments{Named: map[string]string{"opponent": "Rovers", "kickoff": "2026-10-18 14:30", "venue": "Park Lane"}}
	out, err := e.Invoke(context.Background(), OpAddFixture, args, admin())
	if err != nil {
		t.Fatalf("Invoke(add_fixture) error = %v", err)
	}
	if out != "Scheduled vs Rovers on Sun 18 Oct 14:30." {
		t.Fatalf("add reply = %q", out)
	}

	out, err = e.Invoke(context.Background(), OpListFixtures, contractx.Arguments{}, admin())
	if err != nil {
		t.Fatalf("Invoke(list_fixtures) error = %v", err)
	}
	if !strings.Contains(out, "vs Rovers, Sun 18 Oct 14:30") || !strings.Contains(out, "from now") || !strings.Contains(out, "at Park Lane") {
		t.Fatalf("list reply = %q", out)
	}
}

func TestAddFixtureRejectsBadInput(t *testing.T) {
	t.Parallel()

	e := New(storex.NewMemory(), "/", WithClock(clock))

	cases := map[string]contractx.Arguments{
		"Missing kickoff":        {Named: map[string]string{"opponent": "Rovers"}},
		"could not read":         {Named: map[string]string{"opponent": "Rovers", "kickoff": "next tuesday"}},
		"kickoff time is in the": {Named: map[string]string{"opponent": "Rovers", "kickoff": "2025-01-01 10:00"}},
	}
	for want, args := range cases {
		out, err := e.Invoke(context.Background(), OpAddFixture, args, admin())
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if !strings.Contains(out, want) {
			t.Fatalf("reply %q does not contain %q", out, want)
		}
	}
}

func TestListFixturesEmpty(t *testing.T) {
	t.Parallel()

	e := New(storex.NewMemory(), "/", WithClock(clock))
	if out, _ := e.Invoke(context.Background(), OpListFixtures, contractx.Arguments{}, admin()); out != "No upcoming fixtures." {
		t.Fatalf("reply = %q", out)
	}
}
