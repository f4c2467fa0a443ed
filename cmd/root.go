package cmd

import (
	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/clubhouse/pkg/config"
	logx "github.com/tanpawarit/clubhouse/pkg/logger"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "clubhouse",
		Short:         "Chat assistant for running a sports team",
		Long:          "clubhouse routes chat messages from a team's group, leadership and direct chats to roster, schedule and finance operations.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			configx.SetEnvFile(envFile)
			conf, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return err
			}
			logx.Init(*conf)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to an env file (default ./.env when present)")

	rootCmd.AddCommand(
		newServeCmd(),
		newRouteCmd(),
		newCapabilitiesCmd(),
		newMigrateCmd(),
	)
	return rootCmd
}
