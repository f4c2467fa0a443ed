package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	llmx "github.com/tanpawarit/clubhouse/agent/llm"
	storex "github.com/tanpawarit/clubhouse/agent/store"
)

type routeOptions struct {
	tenant  string
	channel string
	sender  string
	name    string
	status  string
	offline bool
	timeout time.Duration
}

func newRouteCmd() *cobra.Command {
	opts := routeOptions{}

	cmd := &cobra.Command{
		Use:   "route <message text>",
		Short: "Route one message locally and print its result",
		Example: `  clubhouse route --channel leadership --status active "/list"
  clubhouse route --offline "hello"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.offline {
				cfg.LLM.Backend = llmx.BackendNone
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			a, err := wireApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Close(closeCtx)
			}()

			if opts.status != "" {
				if err := seedSender(ctx, a.repo, opts); err != nil {
					return err
				}
			}

			res, err := a.dispatcher.Handle(ctx, contractx.InboundMessage{
				TenantID:          opts.tenant,
				ChannelKind:       opts.channel,
				SenderIdentity:    opts.sender,
				SenderDisplayName: opts.name,
				RawText:           strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&opts.tenant, "tenant", "local-team", "tenant id")
	cmd.Flags().StringVar(&opts.channel, "channel", string(contractx.ChannelPrimary), "channel kind: primary, leadership or direct")
	cmd.Flags().StringVar(&opts.sender, "sender", "+10000000000", "sender identity")
	cmd.Flags().StringVar(&opts.name, "name", "Local User", "sender display name")
	cmd.Flags().StringVar(&opts.status, "status", "", "register the sender first with this status: active or pending")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "skip the language model; free text asks for clarification")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall time limit")
	return cmd
}

func seedSender(ctx context.Context, repo storex.Repository, opts routeOptions) error {
	status := contractx.RegistrationStatus(strings.ToLower(strings.TrimSpace(opts.status)))
	err := repo.AddMember(ctx, storex.Member{
		TenantID:    opts.tenant,
		Identity:    opts.sender,
		DisplayName: opts.name,
		Status:      status,
		JoinedAt:    time.Now(),
	})
	if err != nil && !errors.Is(err, contractx.ErrConflict) {
		return fmt.Errorf("seed sender: %w", err)
	}
	return nil
}
