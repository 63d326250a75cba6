package main

import (
	"errors"

	"github.com/spf13/cobra"

	"ophtha-dss/internal/platform/postgres"
)

func runMigrate(_ *cobra.Command, args []string) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required for migrations")
	}
	direction := "up"
	if len(args) == 1 {
		direction = args[0]
	}
	return postgres.Migrate(cfg.Database.URL, direction)
}
