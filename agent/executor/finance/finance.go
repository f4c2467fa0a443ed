// Package finance records subscription payments.
package finance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	executorx "github.com/tanpawarit/clubhouse/agent/executor"
	storex "github.com/tanpawarit/clubhouse/agent/store"
)

const Role = "finance"

const (
	OpMyPayments    = "finance.my_payments"
	OpRecordPayment = "finance.record_payment"
	OpSummary       = "finance.summary"
)

type finance struct {
	repo   storex.Repository
	marker string
}

func New(repo storex.Repository, marker string) *executorx.Executor {
	f := &finance{repo: repo, marker: marker}
	return executorx.New(Role, map[string]executorx.Handler{
		OpMyPayments:    f.myPayments,
		OpRecordPayment: f.recordPayment,
		OpSummary:       f.summary,
	})
}

func (f *finance) myPayments(ctx context.Context, _ contractx.Arguments, ambient contractx.Ambient) (string, error) {
	payments, err := f.repo.ListPayments(ctx, ambient.Tenant, ambient.Sender.Identity)
	if err != nil {
		return "", err
	}
	if len(payments) == 0 {
		return "No payments recorded for you yet.", nil
	}

	var b strings.Builder
	for _, p := range payments {
		fmt.Fprintf(&b, "\n- %s on %s", FormatAmount(p.AmountCents), p.PaidAt.Format("2 Jan 2006"))
		if p.Note != "" {
			fmt.Fprintf(&b, " (%s)", p.Note)
		}
	}
	total := lo.SumBy(payments, func(p storex.Payment) int64 { return p.AmountCents })
	return fmt.Sprintf("Your payments, total %s:%s", FormatAmount(total), b.String()), nil
}

func (f *finance) recordPayment(ctx context.Context, args contractx.Arguments, ambient contractx.Ambient) (string, error) {
	if missing := executorx.Missing(args, "identity", "amount"); len(missing) > 0 {
		return executorx.UsageReply(f.marker+"paid <identity> <amount> [note]", missing), nil
	}

	identity := args.Get("identity")
	cents, err := ParseAmount(args.Get("amount"))
	if err != nil {
		return fmt.Sprintf("%q is not a valid amount.", args.Get("amount")), nil
	}

	member, err := f.repo.GetMember(ctx, ambient.Tenant, identity)
	if errors.Is(err, contractx.ErrNotFound) {
		return fmt.Sprintf("No player with identity %s.", identity), nil
	}
	if err != nil {
		return "", err
	}

	if err := f.repo.RecordPayment(ctx, storex.Payment{
		TenantID:    ambient.Tenant,
		Identity:    member.Identity,
		AmountCents: cents,
		Note:        args.Get("note"),
		RecordedBy:  ambient.Sender.Identity,
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Recorded %s from %s.", FormatAmount(cents), member.DisplayName), nil
}

func (f *finance) summary(ctx context.Context, _ contractx.Arguments, ambient contractx.Ambient) (string, error) {
	members, err := f.repo.ListMembers(ctx, ambient.Tenant)
	if err != nil {
		return "", err
	}
	payments, err := f.repo.ListPayments(ctx, ambient.Tenant, "")
	if err != nil {
		return "", err
	}

	totals := make(map[string]int64, len(members))
	for _, p := range payments {
		totals[p.Identity] += p.AmountCents
	}
	names := lo.Associate(members, func(m storex.Member) (string, string) { return m.Identity, m.DisplayName })

	identities := lo.Keys(totals)
	for _, m := range members {
		if _, ok := totals[m.Identity]; !ok && m.Status == contractx.Active {
			identities = append(identities, m.Identity)
		}
	}
	if len(identities) == 0 {
		return "No fees recorded yet.", nil
	}
	sort.Slice(identities, func(i, j int) bool {
		if totals[identities[i]] != totals[identities[j]] {
			return totals[identities[i]] > totals[identities[j]]
		}
		return identities[i] < identities[j]
	})

	var b strings.Builder
	grand := lo.Sum(lo.Values(totals))
	fmt.Fprintf(&b, "Fees collected: %s", FormatAmount(grand))
	for _, id := range identities {
		name := names[id]
		if name == "" {
			name = id
		}
		fmt.Fprintf(&b, "\n- %s: %s", name, FormatAmount(totals[id]))
	}
	return b.String(), nil
}

// MaxAmountCents caps a single payment at one million.
const MaxAmountCents int64 = 100_000_000

// ParseAmount reads a positive amount like "25", "25.5" or "£1,200.00" into
// cents. Amounts that round to zero cents or exceed MaxAmountCents are invalid.
func ParseAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "£$€")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: amount %q", contractx.ErrValidation, raw)
	}
	cents := math.Round(v * 100)
	if cents < 1 || cents > float64(MaxAmountCents) {
		return 0, fmt.Errorf("%w: amount %q out of range", contractx.ErrValidation, raw)
	}
	return int64(cents), nil
}

// FormatAmount renders cents with thousands separators and two decimals.
func FormatAmount(cents int64) string {
	return humanize.FormatFloat("#,###.##", float64(cents)/100)
}
