package main

import (
	"context"
	"fmt"
	"time"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/spf13/cobra"
)

var migrateTimeout time.Duration

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply the embedded schema migrations, including the Row-Level Security
policies that read the tenancy session key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer loggerService.Shutdown()

		ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
		defer cancel()

		if err := database.Migrate(ctx, &log, cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().DurationVar(&migrateTimeout, "timeout", 2*time.Minute, "maximum time to spend migrating")
}
