package session

import (
	"testing"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

func TestMemoryBounded(t *testing.T) {
	t.Parallel()

	m := NewMemory(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		m.Append(Entry{TaskID: id})
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
	recent := m.Recent(2)
	if len(recent) != 2 || recent[0].TaskID != "c" || recent[1].TaskID != "d" {
		t.Fatalf("Recent(2) = %+v", recent)
	}
	if all := m.Recent(0); len(all) != 3 || all[0].TaskID != "b" {
		t.Fatalf("Recent(0) = %+v", all)
	}
}

func TestMemoryRolesUsedBy(t *testing.T) {
	t.Parallel()

	m := NewMemory(10)
	m.Append(Entry{SenderID: "alice", ExecutorRole: "finance", Status: contractx.StatusOK})
	m.Append(Entry{SenderID: "bob", ExecutorRole: "schedule", Status: contractx.StatusOK})
	m.Append(Entry{SenderID: "alice", ExecutorRole: "roster", Status: contractx.StatusDenied})

	roles := m.RolesUsedBy("alice", 5)
	if !roles["finance"] || roles["schedule"] || roles["roster"] {
		t.Fatalf("RolesUsedBy(alice) = %v", roles)
	}
	if roles := m.RolesUsedBy("alice", 1); len(roles) != 0 {
		t.Fatalf("RolesUsedBy(alice, 1) = %v, want empty", roles)
	}
}
