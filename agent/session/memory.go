package session

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

const DefaultMemorySize = 50

// Entry records one finished task in a tenant's conversation memory.
type Entry struct {
	TaskID       string
	SenderID     string
	ExecutorRole string
	Operation    string
	Status       contractx.ResultStatus
	Text         string
	Reply        string
	At           time.Time
}

// Summary renders the entry for a language model prompt.
func (e Entry) Summary() string {
	return fmt.Sprintf("%s asked %q -> %s (%s)", e.SenderID, e.Text, e.Operation, e.Status)
}

// Memory is a bounded log of recent entries. It is only touched by the
// owning session's worker, so it carries no lock.
type Memory struct {
	entries []Entry
	limit   int
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMemorySize
	}
	return &Memory{limit: limit}
}

func (m *Memory) Append(e Entry) {
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.limit; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
}

func (m *Memory) Len() int {
	return len(m.entries)
}

// Recent returns up to n entries, oldest first.
func (m *Memory) Recent(n int) []Entry {
	if n <= 0 || n > len(m.entries) {
		n = len(m.entries)
	}
	out := make([]Entry, n)
	copy(out, m.entries[len(m.entries)-n:])
	return out
}

// RolesUsedBy returns executor roles that completed for sender within the
// last window entries.
func (m *Memory) RolesUsedBy(sender string, window int) map[string]bool {
	roles := make(map[string]bool)
	for _, e := range m.Recent(window) {
		if e.SenderID == sender && e.Status == contractx.StatusOK && e.ExecutorRole != "" {
			roles[e.ExecutorRole] = true
		}
	}
	return roles
}
