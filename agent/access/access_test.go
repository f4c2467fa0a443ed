package access

import (
	"testing"

	capabilityx "github.com/tanpawarit/clubhouse/agent/capability"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

func TestResolveEntity(t *testing.T) {
	t.Parallel()

	kinds := []contractx.ChannelKind{contractx.ChannelPrimary, contractx.ChannelLeadership, contractx.ChannelDirect}
	for _, kind := range kinds {
		for _, status := range []contractx.RegistrationStatus{contractx.Pending, contractx.Active} {
			want := contractx.EntityMember
			if kind == contractx.ChannelLeadership {
				want = contractx.EntityAdmin
			}
			if got := ResolveEntity(kind, status); got != want {
				t.Fatalf("ResolveEntity(%s, %s) = %s, want %s", kind, status, got, want)
			}
		}
		if got := ResolveEntity(kind, contractx.Unregistered); got != contractx.EntityUnregistered {
			t.Fatalf("ResolveEntity(%s, unregistered) = %s, want UNREGISTERED", kind, got)
		}
	}
}

func TestValidatorCheck(t *testing.T) {
	t.Parallel()

	v := NewValidator(capabilityx.MustDefault())

	cases := []struct {
		operation string
		entity    contractx.EntityType
		allowed   bool
	}{
		{"roster.list_all", contractx.EntityAdmin, true},
		{"roster.list_all", contractx.EntityMember, false},
		{"roster.add_player", contractx.EntityMember, false},
		{"roster.register", contractx.EntityUnregistered, true},
		{"roster.register", contractx.EntityAdmin, false},
		{capabilityx.OpClarify, contractx.EntityUnregistered, true},
		{"roster.teleport", contractx.EntityAdmin, false},
	}
	for _, tc := range cases {
		got := v.Check(tc.operation, tc.entity)
		if got.Allowed != tc.allowed {
			t.Fatalf("Check(%s, %s) allowed = %v, want %v", tc.operation, tc.entity, got.Allowed, tc.allowed)
		}
		if !got.Allowed && got.Reason == "" {
			t.Fatalf("Check(%s, %s) denied without reason", tc.operation, tc.entity)
		}
	}
}
