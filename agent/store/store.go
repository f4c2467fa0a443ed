// Package store persists team records: members, fixtures and payments.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend string `default:"memory"`
	DSN     string `envconfig:"DSN"`
}

type Member struct {
	TenantID    string
	Identity    string
	DisplayName string
	Status      contractx.RegistrationStatus
	JoinedAt    time.Time
}

type Fixture struct {
	ID        string
	TenantID  string
	Opponent  string
	Venue     string
	Kickoff   time.Time
	CreatedBy string
	CreatedAt time.Time
}

type Payment struct {
	ID          string
	TenantID    string
	Identity    string
	AmountCents int64
	Note        string
	RecordedBy  string
	PaidAt      time.Time
}

// Repository is the team record store. It also answers registration lookups
// for the routing core.
type Repository interface {
	contractx.RegistrationStore

	AddMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, tenantID, identity string) (Member, error)
	ListMembers(ctx context.Context, tenantID string) ([]Member, error)
	SetMemberStatus(ctx context.Context, tenantID, identity string, status contractx.RegistrationStatus) error
	RemoveMember(ctx context.Context, tenantID, identity string) error

	AddFixture(ctx context.Context, f Fixture) error
	// ListFixtures returns fixtures kicking off at or after from, soonest first.
	ListFixtures(ctx context.Context, tenantID string, from time.Time) ([]Fixture, error)

	RecordPayment(ctx context.Context, p Payment) error
	// ListPayments returns payments oldest first; an empty identity lists the whole tenant.
	ListPayments(ctx context.Context, tenantID, identity string) ([]Payment, error)

	Close() error
}

// New opens the repository named by cfg.
func New(ctx context.Context, cfg Config) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendPostgres:
		pg, err := NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", contractx.ErrValidation, cfg.Backend)
	}
}

func normalizeIdentity(identity string) string {
	return strings.TrimSpace(identity)
}

func validateMember(m Member) error {
	if strings.TrimSpace(m.TenantID) == "" || normalizeIdentity(m.Identity) == "" {
		return fmt.Errorf("%w: member tenant and identity are required", contractx.ErrValidation)
	}
	switch m.Status {
	case contractx.Pending, contractx.Active:
		return nil
	default:
		return fmt.Errorf("%w: member status %q", contractx.ErrValidation, m.Status)
	}
}
