package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/deppfellow/shiftboard/internal/handler"
	"github.com/deppfellow/shiftboard/internal/repository"
	"github.com/deppfellow/shiftboard/internal/router"
	"github.com/deppfellow/shiftboard/internal/server"
	"github.com/deppfellow/shiftboard/internal/service"
	"github.com/spf13/cobra"
)

var (
	serveMigrate         bool
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveMigrate {
			if err := database.Migrate(ctx, &log, cfg); err != nil {
				loggerService.Shutdown()
				return fmt.Errorf("migration failed: %w", err)
			}
		}

		// From here on srv.Shutdown owns the logger service.
		srv, err := server.New(cfg, &log, loggerService)
		if err != nil {
			loggerService.Shutdown()
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		services, err := service.NewServices(srv, repository.NewRepositories(srv))
		if err != nil {
			return fmt.Errorf("could not create services: %w", err)
		}

		srv.SetupHTTPServer(router.NewRouter(srv, handler.NewHandlers(srv, services)))

		serveErr := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		var runErr error
		select {
		case runErr = <-serveErr:
			if runErr != nil {
				log.Error().Err(runErr).Msg("server stopped")
			}
		case <-ctx.Done():
			log.Info().Msg("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Join(runErr, fmt.Errorf("server forced to shutdown: %w", err))
		}
		if runErr != nil {
			return runErr
		}

		log.Info().Msg("server exited properly")
		return nil
	},
}

func init() {
	f := serveCmd.Flags()
	f.BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
	f.DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "how long in-flight requests get to finish")
}
