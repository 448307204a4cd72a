package router

import (
	"github.com/deppfellow/shiftboard/internal/handler"
	"github.com/labstack/echo/v4"
)

// registerSystemRoutes registers routes that sit outside authentication.
func registerSystemRoutes(r *echo.Echo, h *handler.Handlers) {
	r.GET("/status", h.Health.CheckHealth)
}
