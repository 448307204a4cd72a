// Package router builds the echo instance: global middleware, the error
// handler and every route group.
package router

import (
	"net/http"

	"github.com/deppfellow/shiftboard/internal/handler"
	"github.com/deppfellow/shiftboard/internal/middleware"
	"github.com/deppfellow/shiftboard/internal/server"
	"github.com/labstack/echo/v4"
)

func NewRouter(s *server.Server, h *handler.Handlers) *echo.Echo {
	middlewares := middleware.NewMiddlewares(s)

	router := echo.New()
	router.HideBanner = true
	router.HTTPErrorHandler = middlewares.Global.GlobalErrorHandler

	router.Use(
		middleware.RequestID(),
		middlewares.Tracing.NewRelicMiddleware(),
		middlewares.Tracing.EnhanceTracing(),
		middlewares.ContextEnhancer.EnhanceContext(),
		middlewares.Global.CORS(),
		middlewares.Global.Secure(),
		middlewares.Global.RequestLogger(),
		middlewares.Global.Recover(),
	)

	registerSystemRoutes(router, h)

	v1 := router.Group("/v1", middlewares.Auth.RequireAuth, middlewares.Tenant.RequireOrg)
	registerOrganizationRoutes(v1, h, middlewares)

	return router
}

func registerOrganizationRoutes(g *echo.Group, h *handler.Handlers, m *middleware.Middlewares) {
	org := g.Group("/organization")

	org.GET("", handler.Handle(h.Organization.GetOrganization, http.StatusOK))
	org.GET("/members", handler.Handle(h.Organization.ListMembers, http.StatusOK))
	org.PATCH("/members/:user_id",
		handler.Handle(h.Organization.UpdateMemberRole, http.StatusOK),
		m.Tenant.RequireRole("admin"),
	)
}
