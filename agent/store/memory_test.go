package store

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

func TestMemoryMembers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	status, err := s.RegistrationStatus(ctx, "team-1", "+44700")
	if err != nil || status != contractx.Unregistered {
		t.Fatalf("RegistrationStatus() = %s, %v; want unregistered", status, err)
	}

	if err := s.AddMember(ctx, Member{TenantID: "team-1", Identity: " +44700 ", DisplayName: "Sam", Status: contractx.Pending}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if err := s.AddMember(ctx, Member{TenantID: "team-1", Identity: "+44700", DisplayName: "Sam", Status: contractx.Active}); !errors.Is(err, contractx.ErrConflict) {
		t.Fatalf("AddMember() error = %v, want ErrConflict", err)
	}
	if err := s.AddMember(ctx, Member{TenantID: "team-2", Identity: "+44700", DisplayName: "Sam", Status: contractx.Active}); err != nil {
		t.Fatalf("AddMember() other tenant error = %v", err)
	}

	if status, _ := s.RegistrationStatus(ctx, "team-1", "+44700"); status != contractx.Pending {
		t.Fatalf("RegistrationStatus() = %s, want pending", status)
	}
	if err := s.SetMemberStatus(ctx, "team-1", "+44700", contractx.Active); err != nil {
		t.Fatalf("SetMemberStatus() error = %v", err)
	}
	if err := s.SetMemberStatus(ctx, "team-1", "+44700", contractx.Unregistered); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("SetMemberStatus(unregistered) error = %v, want ErrValidation", err)
	}
	if m, _ := s.GetMember(ctx, "team-1", "+44700"); m.Status != contractx.Active {
		t.Fatalf("GetMember() status = %s, want active", m.Status)
	}

	members, _ := s.ListMembers(ctx, "team-1")
	if len(members) != 1 {
		t.Fatalf("ListMembers() = %d members, want 1", len(members))
	}

	if err := s.RemoveMember(ctx, "team-1", "+44700"); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if err := s.RemoveMember(ctx, "team-1", "+44700"); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("RemoveMember() error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetMember(ctx, "team-1", "+44700"); !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("GetMember() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryFixtures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	base := time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)

	for _, f := range []Fixture{
		{TenantID: "team-1", Opponent: "Late", Kickoff: base.Add(72 * time.Hour)},
		{TenantID: "team-1", Opponent: "Past", Kickoff: base.Add(-24 * time.Hour)},
		{TenantID: "team-1", Opponent: "Soon", Kickoff: base.Add(24 * time.Hour)},
	} {
		if err := s.AddFixture(ctx, f); err != nil {
			t.Fatalf("AddFixture() error = %v", err)
		}
	}
	if err := s.AddFixture(ctx, Fixture{TenantID: "team-1"}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("AddFixture() error = %v, want ErrValidation", err)
	}

	got, _ := s.ListFixtures(ctx, "team-1", base)
	if len(got) != 2 || got[0].Opponent != "Soon" || got[1].Opponent != "Late" {
		t.Fatalf("ListFixtures() = %+v", got)
	}
	if got[0].ID == "" {
		t.Fatal("fixture id not assigned")
	}
}

func TestMemoryPayments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	for _, p := range []Payment{
		{TenantID: "team-1", Identity: "a", AmountCents: 2500},
		{TenantID: "team-1", Identity: "b", AmountCents: 1000},
		{TenantID: "team-1", Identity: "a", AmountCents: 500},
	} {
		if err := s.RecordPayment(ctx, p); err != nil {
			t.Fatalf("RecordPayment() error = %v", err)
		}
	}
	if err := s.RecordPayment(ctx, Payment{TenantID: "team-1", Identity: "a"}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("RecordPayment() error = %v, want ErrValidation", err)
	}

	mine, _ := s.ListPayments(ctx, "team-1", "a")
	all, _ := s.ListPayments(ctx, "team-1", "")
	if len(mine) != 2 || len(all) != 3 {
		t.Fatalf("ListPayments() mine=%d all=%d, want 2 and 3", len(mine), len(all))
	}
}

func TestNewUnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{Backend: "mongo"}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("New() error = %v, want ErrValidation", err)
	}
	if _, err := NewPostgres(context.Background(), ""); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("NewPostgres() error = %v, want ErrValidation", err)
	}
}
