package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/deppfellow/shiftboard/internal/middleware"
	"github.com/deppfellow/shiftboard/internal/server"
	"github.com/labstack/echo/v4"
)

const defaultHealthCheckTimeout = 5 * time.Second

type HealthHandler struct {
	Handler
}

func NewHealthHandler(s *server.Server) *HealthHandler {
	return &HealthHandler{
		Handler: NewHandler(s),
	}
}

type checkResult struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

type healthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Environment string                 `json:"environment"`
	Checks      map[string]checkResult `json:"checks"`
}

// CheckHealth probes the database with SELECT 1 and, when configured, pings
// Redis. Only a failing database makes the service unhealthy: Redis just
// fans out cache invalidations.
//
// observability.health_checks picks the probes and their timeout; with
// checks disabled the endpoint only reports liveness.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()
	logger := middleware.GetLogger(c).With().Str("operation", "health_check").Logger()

	settings := h.server.Config.Observability.HealthChecks
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	enabled := func(name string) bool {
		return settings.Enabled && (len(settings.Checks) == 0 || slices.Contains(settings.Checks, name))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	response := healthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Environment: h.server.Config.Primary.Env,
		Checks:      map[string]checkResult{},
	}

	if enabled("database") {
		db := h.check(ctx, "database", func(ctx context.Context) error {
			_, err := h.server.DB.Query(ctx, "SELECT 1")
			return err
		})
		response.Checks["database"] = db
		if db.Status != "healthy" {
			response.Status = "unhealthy"
		}
	}

	if h.server.Redis != nil && enabled("redis") {
		response.Checks["redis"] = h.check(ctx, "redis", func(ctx context.Context) error {
			return h.server.Redis.Ping(ctx).Err()
		})
	}

	if response.Status != "healthy" {
		logger.Warn().Dur("total_duration", time.Since(start)).Msg("health check failed")
		return c.JSON(http.StatusServiceUnavailable, response)
	}

	logger.Debug().Dur("total_duration", time.Since(start)).Msg("health check passed")
	return c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) check(ctx context.Context, name string, probe func(context.Context) error) checkResult {
	start := time.Now()
	err := probe(ctx)
	elapsed := time.Since(start)

	if err == nil {
		return checkResult{Status: "healthy", ResponseTime: elapsed.String()}
	}

	h.server.Logger.Error().
		Err(err).
		Str("check_type", name).
		Dur("response_time", elapsed).
		Msg("health check failed")

	if app := h.server.LoggerService.GetApplication(); app != nil {
		app.RecordCustomEvent("HealthCheckError", map[string]any{
			"check_type":       name,
			"error_type":       name + "_unhealthy",
			"response_time_ms": elapsed.Milliseconds(),
			"error_message":    err.Error(),
		})
	}

	return checkResult{Status: "unhealthy", ResponseTime: elapsed.String(), Error: err.Error()}
}
