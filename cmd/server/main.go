package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ophtha-dss/internal/config"
	"ophtha-dss/internal/platform/logging"
)

const serviceName = "ophtha-dss"

var (
	cfg *config.Config

	treePath string

	rootCmd = &cobra.Command{
		Use:           "server",
		Short:         "Ophthalmology diagnostic consultation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			logging.Init(serviceName, cfg.Server.Env, cfg.Server.LogLevel)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE:      runMigrate,
	}

	treeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Validate a decision tree file and list the diagnoses it can reach",
		Args:  cobra.NoArgs,
		RunE:  runTree,
	}
)

func init() {
	treeCmd.Flags().StringVar(&treePath, "path", "", "tree file (defaults to KNOWLEDGE_BASE_PATH)")

	rootCmd.AddCommand(serveCmd, migrateCmd, treeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
