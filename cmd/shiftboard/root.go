package main

import (
	"fmt"
	"os"

	"github.com/deppfellow/shiftboard/internal/config"
	"github.com/deppfellow/shiftboard/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Set in PersistentPreRunE.
	cfg           *config.Config
	log           zerolog.Logger
	loggerService *logger.LoggerService
)

var rootCmd = &cobra.Command{
	Use:   "shiftboard",
	Short: "Multi-tenant shift scheduling API",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		loggerService = logger.NewLoggerService(cfg.Observability)
		log = logger.NewLoggerWithService(cfg.Observability, loggerService)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
