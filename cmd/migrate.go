package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	storex "github.com/tanpawarit/clubhouse/agent/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Backend != storex.BackendPostgres {
				return fmt.Errorf("%w: migrate needs STORE_BACKEND=%s", contractx.ErrValidation, storex.BackendPostgres)
			}

			pg, err := storex.NewPostgres(cmd.Context(), cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info().Msg("migrate_done")
			return nil
		},
	}
}
