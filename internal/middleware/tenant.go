package middleware

import (
	"slices"

	"github.com/deppfellow/shiftboard/internal/errs"
	"github.com/deppfellow/shiftboard/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// TenantMiddleware resolves the caller's organization. It must run after
// RequireAuth.
type TenantMiddleware struct {
	server *server.Server
}

func NewTenantMiddleware(s *server.Server) *TenantMiddleware {
	return &TenantMiddleware{server: s}
}

// RequireOrg stores the caller's organization id and role under OrgIDKey and
// OrgRoleKey, and rejects users without a membership with 403.
func (t *TenantMiddleware) RequireOrg(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		pool, err := t.server.DB.Pool(ctx)
		if err != nil {
			return err
		}

		org, err := t.server.OrgContext.Get(ctx, pool, GetUserID(c))
		if err != nil {
			return err
		}

		c.Set(OrgIDKey, org.OrgID)
		c.Set(OrgRoleKey, org.Role)
		setLogger(c, GetLogger(c).With().Str("org_id", org.OrgID).Str("org_role", org.Role).Logger())

		if txn := newrelic.FromContext(ctx); txn != nil {
			txn.AddAttribute("org.id", org.OrgID)
			txn.AddAttribute("org.role", org.Role)
		}

		return next(c)
	}
}

// RequireRole allows only callers whose organization role is one of roles.
// It must run after RequireOrg.
func (t *TenantMiddleware) RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			org, ok := GetOrgContext(c)
			if !ok {
				return errs.NewForbiddenError("organization context is required", false)
			}
			if !slices.Contains(roles, org.Role) {
				return errs.NewForbiddenError("insufficient role for this operation", true)
			}
			return next(c)
		}
	}
}
