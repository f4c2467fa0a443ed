// Package schedule manages a team's fixtures.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	executorx "github.com/tanpawarit/clubhouse/agent/executor"
	storex "github.com/tanpawarit/clubhouse/agent/store"
)

const Role = "schedule"

const (
	OpListFixtures = "schedule.list_fixtures"
	OpAddFixture   = "schedule.add_fixture"
)

const maxListed = 5

var kickoffLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
	"02/01/2006 15:04",
}

type Option func(*schedule)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *schedule) { s.now = now }
}

// WithLocation sets the zone kickoff times are read and shown in.
func WithLocation(loc *time.Location) Option {
	return func(s *schedule) {
		if loc != nil {
			s.loc = loc
		}
	}
}

type schedule struct {
	repo   storex.Repository
	marker string
	now    func() time.Time
	loc    *time.Location
}

func New(repo storex.Repository, marker string, opts ...Option) *executorx.Executor {
	s := &schedule{repo: repo, marker: marker, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return executorx.New(Role, map[string]executorx.Handler{
		OpListFixtures: s.listFixtures,
		OpAddFixture:   s.addFixture,
	})
}

func (s *schedule) listFixtures(ctx context.Context, _ contractx.Arguments, ambient contractx.Ambient) (string, error) {
	now := s.now()
	fixtures, err := s.repo.ListFixtures(ctx, ambient.Tenant, now)
	if err != nil {
		return "", err
	}
	if len(fixtures) == 0 {
		return "No upcoming fixtures.", nil
	}

	var b strings.Builder
	b.WriteString("Upcoming fixtures:")
	for i, f := range fixtures {
		if i == maxListed {
			fmt.Fprintf(&b, "\n...and %d more", len(fixtures)-maxListed)
			break
		}
		fmt.Fprintf(&b, "\n- vs %s, %s (%s)", f.Opponent, f.Kickoff.In(s.loc).Format("Mon 2 Jan 15:04"), humanize.RelTime(f.Kickoff, now, "ago", "from now"))
		if f.Venue != "" {
			fmt.Fprintf(&b, " at %s", f.Venue)
		}
	}
	return b.String(), nil
}

func (s *schedule) addFixture(ctx context.Context, args contractx.Arguments, ambient contractx.Ambient) (string, error) {
	usage := s.marker + `addmatch <opponent> "<YYYY-MM-DD HH:MM>" [venue]`
	if missing := executorx.Missing(args, "opponent", "kickoff"); len(missing) > 0 {
		return executorx.UsageReply(usage, missing), nil
	}

	kickoff, err := s.parseKickoff(args.Get("kickoff"))
	if err != nil {
		return fmt.Sprintf("I could not read the kickoff time %q. Usage: %s", args.Get("kickoff"), usage), nil
	}
	if kickoff.Before(s.now()) {
		return "That kickoff time is in the past.", nil
	}

	fixture := storex.Fixture{
		TenantID:  ambient.Tenant,
		Opponent:  args.Get("opponent"),
		Venue:     args.Get("venue"),
		Kickoff:   kickoff.UTC(),
		CreatedBy: ambient.Sender.Identity,
	}
	if err := s.repo.AddFixture(ctx, fixture); err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			return "That fixture could not be added: " + err.Error(), nil
		}
		return "", err
	}
	return fmt.Sprintf("Scheduled vs %s on %s.", fixture.Opponent, kickoff.In(s.loc).Format("Mon 2 Jan 15:04")), nil
}

func (s *schedule) parseKickoff(raw string) (time.Time, error) {
	for _, layout := range kickoffLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: kickoff %q", contractx.ErrValidation, raw)
}
