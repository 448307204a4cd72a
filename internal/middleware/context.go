package middleware

import (
	"github.com/deppfellow/shiftboard/internal/logger"
	"github.com/deppfellow/shiftboard/internal/orgctx"
	"github.com/deppfellow/shiftboard/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

// Keys used with echo.Context Set/Get.
const (
	UserIDKey  = "user_id"
	OrgIDKey   = "org_id"
	OrgRoleKey = "org_role"
	LoggerKey  = "logger"
)

// ContextEnhancer attaches a request scoped logger carrying the request id,
// route, trace ids and, when known, the user and organization.
type ContextEnhancer struct {
	server *server.Server
}

func NewContextEnhancer(s *server.Server) *ContextEnhancer {
	return &ContextEnhancer{server: s}
}

func (ce *ContextEnhancer) EnhanceContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			contextLogger := ce.server.Logger.With().
				Str("request_id", GetRequestID(c)).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Str("ip", c.RealIP()).
				Logger()

			if txn := newrelic.FromContext(c.Request().Context()); txn != nil {
				contextLogger = logger.WithTraceContext(contextLogger, txn)
			}

			if userID := GetUserID(c); userID != "" {
				contextLogger = contextLogger.With().Str("user_id", userID).Logger()
			}

			setLogger(c, contextLogger)
			return next(c)
		}
	}
}

// setLogger stores l on the echo context and on the request context, where
// code without access to echo reads it with zerolog.Ctx.
func setLogger(c echo.Context, l zerolog.Logger) {
	c.Set(LoggerKey, &l)
	c.SetRequest(c.Request().WithContext(l.WithContext(c.Request().Context())))
}

func GetUserID(c echo.Context) string {
	if userID, ok := c.Get(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetOrgContext returns what RequireOrg resolved for this request.
func GetOrgContext(c echo.Context) (orgctx.OrgContext, bool) {
	orgID, _ := c.Get(OrgIDKey).(string)
	role, _ := c.Get(OrgRoleKey).(string)
	if orgID == "" {
		return orgctx.OrgContext{}, false
	}
	return orgctx.OrgContext{OrgID: orgID, Role: role}, true
}

// GetLogger returns the request scoped logger, or a no-op logger when
// EnhanceContext did not run.
func GetLogger(c echo.Context) *zerolog.Logger {
	if l, ok := c.Get(LoggerKey).(*zerolog.Logger); ok {
		return l
	}
	l := zerolog.Nop()
	return &l
}
