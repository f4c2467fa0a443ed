package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

type memberRow struct {
	bun.BaseModel `bun:"table:team_members,alias:m"`

	ID          int64     `bun:"id,pk,autoincrement"`
	TenantID    string    `bun:"tenant_id,notnull"`
	Identity    string    `bun:"identity,notnull"`
	DisplayName string    `bun:"display_name,notnull"`
	Status      string    `bun:"status,notnull"`
	JoinedAt    time.Time `bun:"joined_at,notnull"`
}

type fixtureRow struct {
	bun.BaseModel `bun:"table:fixtures,alias:f"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	Opponent  string    `bun:"opponent,notnull"`
	Venue     string    `bun:"venue"`
	Kickoff   time.Time `bun:"kickoff,notnull"`
	CreatedBy string    `bun:"created_by"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type paymentRow struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID          string    `bun:"id,pk"`
	TenantID    string    `bun:"tenant_id,notnull"`
	Identity    string    `bun:"identity,notnull"`
	AmountCents int64     `bun:"amount_cents,notnull"`
	Note        string    `bun:"note"`
	RecordedBy  string    `bun:"recorded_by"`
	PaidAt      time.Time `bun:"paid_at,notnull"`
}

// Postgres is a Repository backed by PostgreSQL through bun.
type Postgres struct {
	db  *bun.DB
	now func() time.Time
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", contractx.ErrValidation)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db, now: time.Now}, nil
}

// Migrate creates the tables and indexes when they do not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	for _, model := range []any{(*memberRow)(nil), (*fixtureRow)(nil), (*paymentRow)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model  any
		name   string
		unique bool
		cols   []string
	}{
		{(*memberRow)(nil), "team_members_tenant_identity_idx", true, []string{"tenant_id", "identity"}},
		{(*fixtureRow)(nil), "fixtures_tenant_kickoff_idx", false, []string{"tenant_id", "kickoff"}},
		{(*paymentRow)(nil), "payments_tenant_identity_idx", false, []string{"tenant_id", "identity"}},
	}
	for _, idx := range indexes {
		q := s.db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.cols...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (s *Postgres) RegistrationStatus(ctx context.Context, tenantID, identity string) (contractx.RegistrationStatus, error) {
	var status string
	err := s.db.NewSelect().
		Model((*memberRow)(nil)).
		Column("status").
		Where("tenant_id = ?", tenantID).
		Where("identity = ?", normalizeIdentity(identity)).
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Unregistered, nil
	}
	if err != nil {
		return "", readError("registration status", err)
	}
	return contractx.RegistrationStatus(status), nil
}

func (s *Postgres) AddMember(ctx context.Context, m Member) error {
	if err := validateMember(m); err != nil {
		return err
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.now().UTC()
	}

	row := &memberRow{
		TenantID:    m.TenantID,
		Identity:    normalizeIdentity(m.Identity),
		DisplayName: m.DisplayName,
		Status:      string(m.Status),
		JoinedAt:    m.JoinedAt,
	}
	res, err := s.db.NewInsert().Model(row).On("CONFLICT (tenant_id, identity) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: member %s", contractx.ErrConflict, row.Identity)
	}
	return nil
}

func (s *Postgres) GetMember(ctx context.Context, tenantID, identity string) (Member, error) {
	row := new(memberRow)
	err := s.db.NewSelect().
		Model(row).
		Where("tenant_id = ?", tenantID).
		Where("identity = ?", normalizeIdentity(identity)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, fmt.Errorf("%w: member %s", contractx.ErrNotFound, identity)
	}
	if err != nil {
		return Member{}, readError("select member", err)
	}
	return row.toMember(), nil
}

func (s *Postgres) ListMembers(ctx context.Context, tenantID string) ([]Member, error) {
	var rows []memberRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Order("display_name ASC", "identity ASC").
		Scan(ctx); err != nil {
		return nil, readError("list members", err)
	}

	out := make([]Member, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toMember())
	}
	return out, nil
}

func (s *Postgres) SetMemberStatus(ctx context.Context, tenantID, identity string, status contractx.RegistrationStatus) error {
	if status != contractx.Pending && status != contractx.Active {
		return fmt.Errorf("%w: member status %q", contractx.ErrValidation, status)
	}
	res, err := s.db.NewUpdate().
		Model((*memberRow)(nil)).
		Set("status = ?", string(status)).
		Where("tenant_id = ?", tenantID).
		Where("identity = ?", normalizeIdentity(identity)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update member status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: member %s", contractx.ErrNotFound, identity)
	}
	return nil
}

func (s *Postgres) RemoveMember(ctx context.Context, tenantID, identity string) error {
	res, err := s.db.NewDelete().
		Model((*memberRow)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("identity = ?", normalizeIdentity(identity)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: member %s", contractx.ErrNotFound, identity)
	}
	return nil
}

func (s *Postgres) AddFixture(ctx context.Context, f Fixture) error {
	if f.TenantID == "" || f.Opponent == "" || f.Kickoff.IsZero() {
		return fmt.Errorf("%w: fixture tenant, opponent and kickoff are required", contractx.ErrValidation)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}

	row := &fixtureRow{
		ID:        f.ID,
		TenantID:  f.TenantID,
		Opponent:  f.Opponent,
		Venue:     f.Venue,
		Kickoff:   f.Kickoff,
		CreatedBy: f.CreatedBy,
		CreatedAt: f.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert fixture: %w", err)
	}
	return nil
}

func (s *Postgres) ListFixtures(ctx context.Context, tenantID string, from time.Time) ([]Fixture, error) {
	var rows []fixtureRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("kickoff >= ?", from).
		Order("kickoff ASC").
		Scan(ctx); err != nil {
		return nil, readError("list fixtures", err)
	}

	out := make([]Fixture, 0, len(rows))
	for _, row := range rows {
		out = append(out, Fixture{
			ID:        row.ID,
			TenantID:  row.TenantID,
			Opponent:  row.Opponent,
			Venue:     row.Venue,
			Kickoff:   row.Kickoff,
			CreatedBy: row.CreatedBy,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

func (s *Postgres) RecordPayment(ctx context.Context, p Payment) error {
	if p.TenantID == "" || normalizeIdentity(p.Identity) == "" || p.AmountCents <= 0 {
		return fmt.Errorf("%w: payment tenant, identity and a positive amount are required", contractx.ErrValidation)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = s.now().UTC()
	}

	row := &paymentRow{
		ID:          p.ID,
		TenantID:    p.TenantID,
		Identity:    normalizeIdentity(p.Identity),
		AmountCents: p.AmountCents,
		Note:        p.Note,
		RecordedBy:  p.RecordedBy,
		PaidAt:      p.PaidAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *Postgres) ListPayments(ctx context.Context, tenantID, identity string) ([]Payment, error) {
	var rows []paymentRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Order("paid_at ASC")
	if identity = normalizeIdentity(identity); identity != "" {
		q = q.Where("identity = ?", identity)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, readError("list payments", err)
	}

	out := make([]Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, Payment{
			ID:          row.ID,
			TenantID:    row.TenantID,
			Identity:    row.Identity,
			AmountCents: row.AmountCents,
			Note:        row.Note,
			RecordedBy:  row.RecordedBy,
			PaidAt:      row.PaidAt,
		})
	}
	return out, nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

// readError wraps a failed read. Reads are safe to repeat, so failures of the
// connection rather than the query are marked transient.
func readError(op string, err error) error {
	if connectionFailure(err) {
		return fmt.Errorf("%w: %s: %v", contractx.ErrTransient, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func connectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		code := pgErr.Field('C')
		// 08: connection exception. 40001/40P01: serialization or deadlock.
		// 57P01: admin shutdown. 53300: too many connections.
		switch {
		case strings.HasPrefix(code, "08"), code == "40001", code == "40P01", code == "57P01", code == "53300":
			return true
		}
	}
	return false
}

func (r memberRow) toMember() Member {
	return Member{
		TenantID:    r.TenantID,
		Identity:    r.Identity,
		DisplayName: r.DisplayName,
		Status:      contractx.RegistrationStatus(r.Status),
		JoinedAt:    r.JoinedAt,
	}
}
