package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

type memberKey struct {
	tenantID string
	identity string
}

// Memory is an in-process Repository.
type Memory struct {
	mu       sync.RWMutex
	members  map[memberKey]Member
	fixtures map[string][]Fixture
	payments map[string][]Payment
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		members:  make(map[memberKey]Member),
		fixtures: make(map[string][]Fixture),
		payments: make(map[string][]Payment),
		now:      time.Now,
	}
}

func (s *Memory) RegistrationStatus(_ context.Context, tenantID, identity string) (contractx.RegistrationStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberKey{tenantID, normalizeIdentity(identity)}]
	if !ok {
		return contractx.Unregistered, nil
	}
	return m.Status, nil
}

func (s *Memory) AddMember(_ context.Context, m Member) error {
	if err := validateMember(m); err != nil {
		return err
	}
	m.Identity = normalizeIdentity(m.Identity)
	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{m.TenantID, m.Identity}
	if _, ok := s.members[key]; ok {
		return fmt.Errorf("%w: member %s", contractx.ErrConflict, m.Identity)
	}
	s.members[key] = m
	return nil
}

func (s *Memory) GetMember(_ context.Context, tenantID, identity string) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberKey{tenantID, normalizeIdentity(identity)}]
	if !ok {
		return Member{}, fmt.Errorf("%w: member %s", contractx.ErrNotFound, identity)
	}
	return m, nil
}

func (s *Memory) ListMembers(_ context.Context, tenantID string) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Member
	for key, m := range s.members {
		if key.tenantID == tenantID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].Identity < out[j].Identity
	})
	return out, nil
}

func (s *Memory) SetMemberStatus(_ context.Context, tenantID, identity string, status contractx.RegistrationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{tenantID, normalizeIdentity(identity)}
	m, ok := s.members[key]
	if !ok {
		return fmt.Errorf("%w: member %s", contractx.ErrNotFound, identity)
	}
	m.Status = status
	if err := validateMember(m); err != nil {
		return err
	}
	s.members[key] = m
	return nil
}

func (s *Memory) RemoveMember(_ context.Context, tenantID, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{tenantID, normalizeIdentity(identity)}
	if _, ok := s.members[key]; !ok {
		return fmt.Errorf("%w: member %s", contractx.ErrNotFound, identity)
	}
	delete(s.members, key)
	return nil
}

func (s *Memory) AddFixture(_ context.Context, f Fixture) error {
	if f.TenantID == "" || f.Opponent == "" || f.Kickoff.IsZero() {
		return fmt.Errorf("%w: fixture tenant, opponent and kickoff are required", contractx.ErrValidation)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures[f.TenantID] = append(s.fixtures[f.TenantID], f)
	return nil
}

func (s *Memory) ListFixtures(_ context.Context, tenantID string, from time.Time) ([]Fixture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Fixture
	for _, f := range s.fixtures[tenantID] {
		if !f.Kickoff.Before(from) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kickoff.Before(out[j].Kickoff) })
	return out, nil
}

func (s *Memory) RecordPayment(_ context.Context, p Payment) error {
	if p.TenantID == "" || normalizeIdentity(p.Identity) == "" || p.AmountCents <= 0 {
		return fmt.Errorf("%w: payment tenant, identity and a positive amount are required", contractx.ErrValidation)
	}
	p.Identity = normalizeIdentity(p.Identity)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.TenantID] = append(s.payments[p.TenantID], p)
	return nil
}

func (s *Memory) ListPayments(_ context.Context, tenantID, identity string) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity = normalizeIdentity(identity)
	var out []Payment
	for _, p := range s.payments[tenantID] {
		if identity == "" || p.Identity == identity {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Memory) Close() error {
	return nil
}
