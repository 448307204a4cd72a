package handler

import (
	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/deppfellow/shiftboard/internal/errs"
	"github.com/deppfellow/shiftboard/internal/middleware"
	"github.com/deppfellow/shiftboard/internal/orgctx"
	"github.com/deppfellow/shiftboard/internal/server"
	"github.com/deppfellow/shiftboard/internal/service"
	"github.com/deppfellow/shiftboard/internal/validation"
	"github.com/labstack/echo/v4"
)

type OrganizationHandler struct {
	Handler
	service *service.OrganizationService
}

func NewOrganizationHandler(s *server.Server, svc *service.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{
		Handler: NewHandler(s),
		service: svc,
	}
}

type GetOrganizationRequest struct{}

func (r *GetOrganizationRequest) Validate() error { return nil }

type ListMembersRequest struct{}

func (r *ListMembersRequest) Validate() error { return nil }

type UpdateMemberRoleRequest struct {
	UserID string `param:"user_id" validate:"required,max=255"`
	Role   string `json:"role" validate:"required,oneof=admin manager member"`
}

func (r *UpdateMemberRoleRequest) Validate() error {
	return validation.Struct(r)
}

func orgFrom(c echo.Context) (orgctx.OrgContext, error) {
	org, ok := middleware.GetOrgContext(c)
	if !ok {
		return orgctx.OrgContext{}, errs.NewForbiddenError("organization context is required", false)
	}
	return org, nil
}

func (h *OrganizationHandler) GetOrganization(c echo.Context, _ *GetOrganizationRequest) (*service.Organization, error) {
	org, err := orgFrom(c)
	if err != nil {
		return nil, err
	}
	return h.service.Current(c.Request().Context(), org)
}

func (h *OrganizationHandler) ListMembers(c echo.Context, _ *ListMembersRequest) ([]*database.Row, error) {
	org, err := orgFrom(c)
	if err != nil {
		return nil, err
	}
	return h.service.ListMembers(c.Request().Context(), org)
}

func (h *OrganizationHandler) UpdateMemberRole(c echo.Context, req *UpdateMemberRoleRequest) (*database.Row, error) {
	org, err := orgFrom(c)
	if err != nil {
		return nil, err
	}
	return h.service.ChangeMemberRole(c.Request().Context(), org, req.UserID, req.Role)
}
