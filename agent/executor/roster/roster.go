// Package roster manages who is on a team.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	executorx "github.com/tanpawarit/clubhouse/agent/executor"
	storex "github.com/tanpawarit/clubhouse/agent/store"
)

const Role = "roster"

const (
	OpListAll      = "roster.list_all"
	OpListActive   = "roster.list_active"
	OpAddPlayer    = "roster.add_player"
	OpRemovePlayer = "roster.remove_player"
	OpApprove      = "roster.approve"
	OpRegister     = "roster.register"
	OpMyStatus     = "roster.my_status"
)

type roster struct {
	repo   storex.Repository
	marker string
}

func New(repo storex.Repository, marker string) *executorx.Executor {
	r := &roster{repo: repo, marker: marker}
	return executorx.New(Role, map[string]executorx.Handler{
		OpListAll:      r.listAll,
		OpListActive:   r.listActive,
		OpAddPlayer:    r.addPlayer,
		OpRemovePlayer: r.removePlayer,
		OpApprove:      r.approve,
		OpRegister:     r.register,
		OpMyStatus:     r.myStatus,
	})
}

func (r *roster) listAll(ctx context.Context, _ contractx.Arguments, ambient contractx.Ambient) (string, error) {
	members, err := r.repo.ListMembers(ctx, ambient.Tenant)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return fmt.Sprintf("The roster is empty. Add players with %saddplayer <name> <phone>.", r.marker), nil
	}

	pending := lo.CountBy(members, func(m storex.Member) bool { return m.Status == contractx.Pending })
	var b strings.Builder
	fmt.Fprintf(&b, "Full roster (%d, %d pending):", len(members), pending)
	for _, m := range members {
		fmt.Fprintf(&b, "\n- %s (%s) %s", m.DisplayName, m.Identity, m.Status)
	}
	return b.String(), nil
}

func (r *roster) listActive(ctx context.Context, _ contractx.Arguments, ambient contractx.Ambient) (string, error) {
	members, err := r.repo.ListMembers(ctx, ambient.Tenant)
	if err != nil {
		return "", err
	}
	active := lo.Filter(members, func(m storex.Member, _ int) bool { return m.Status == contractx.Active })
	if len(active) == 0 {
		return "No active players yet.", nil
	}

	names := lo.Map(active, func(m storex.Member, _ int) string { return "- " + m.DisplayName })
	return fmt.Sprintf("Active players (%d):\n%s", len(active), strings.Join(names, "\n")), nil
}

func (r *roster) addPlayer(ctx context.Context, args contractx.Arguments, ambient contractx.Ambient) (string, error) {
	if missing := executorx.Missing(args, "name", "phone"); len(missing) > 0 {
		return executorx.UsageReply(r.marker+"addplayer <name> <phone>", missing), nil
	}

	name, phone := args.Get("name"), args.Get("phone")
	err := r.repo.AddMember(ctx, storex.Member{
		TenantID:    ambient.Tenant,
		Identity:    phone,
		DisplayName: name,
		Status:      contractx.Active,
	})
	switch {
	case errors.Is(err, contractx.ErrConflict):
		return fmt.Sprintf("%s is already on the roster.", phone), nil
	case errors.Is(err, contractx.ErrValidation):
		return "That player could not be added: " + err.Error(), nil
	case err != nil:
		return "", err
	}
	return fmt.Sprintf("Added %s (%s) to the roster.", name, phone), nil
}

func (r *roster) removePlayer(ctx context.Context, args contractx.Arguments, ambient contractx.Ambient) (string, error) {
	if missing := executorx.Missing(args, "identity"); len(missing) > 0 {
		return executorx.UsageReply(r.marker+"removeplayer <identity>", missing), nil
	}

	identity := args.Get("identity")
	if err := r.repo.RemoveMember(ctx, ambient.Tenant, identity); err != nil {
		if errors.Is(err, contractx.ErrNotFound) {
			return fmt.Sprintf("No player with identity %s.", identity), nil
		}
		return "", err
	}
	return fmt.Sprintf("Removed %s from the roster.", identity), nil
}

func (r *roster) approve(ctx context.Context, args contractx.Arguments, ambient contractx.Ambient) (string, error) {
	if missing := executorx.Missing(args, "identity"); len(missing) > 0 {
		return executorx.UsageReply(r.marker+"approve <identity>", missing), nil
	}

	identity := args.Get("identity")
	m, err := r.repo.GetMember(ctx, ambient.Tenant, identity)
	if errors.Is(err, contractx.ErrNotFound) {
		return fmt.Sprintf("No registration from %s.", identity), nil
	}
	if err != nil {
		return "", err
	}
	if m.Status == contractx.Active {
		return fmt.Sprintf("%s is already active.", m.DisplayName), nil
	}
	if err := r.repo.SetMemberStatus(ctx, ambient.Tenant, identity, contractx.Active); err != nil {
		return "", err
	}
	return fmt.Sprintf("Approved %s. Welcome to the team!", m.DisplayName), nil
}

func (r *roster) register(ctx context.Context, args contractx.Arguments, ambient contractx.Ambient) (string, error) {
	name := args.Get("name")
	if name == "" {
		name = strings.TrimSpace(ambient.Sender.DisplayName)
	}
	if name == "" {
		return executorx.UsageReply(r.marker+"register <your name>", []string{"name"}), nil
	}

	err := r.repo.AddMember(ctx, storex.Member{
		TenantID:    ambient.Tenant,
		Identity:    ambient.Sender.Identity,
		DisplayName: name,
		Status:      contractx.Pending,
	})
	switch {
	case errors.Is(err, contractx.ErrConflict):
		return "You have already asked to join. Team leadership will approve you soon.", nil
	case err != nil:
		return "", err
	}
	return fmt.Sprintf("Thanks %s! Your request to join has been sent to team leadership.", name), nil
}

func (r *roster) myStatus(ctx context.Context, _ contractx.Arguments, ambient contractx.Ambient) (string, error) {
	m, err := r.repo.GetMember(ctx, ambient.Tenant, ambient.Sender.Identity)
	if errors.Is(err, contractx.ErrNotFound) {
		return "You are not on the roster.", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%s): %s, joined %s.", m.DisplayName, m.Identity, m.Status, m.JoinedAt.Format("2 Jan 2006")), nil
}
