package service

import (
	"context"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/deppfellow/shiftboard/internal/errs"
	"github.com/deppfellow/shiftboard/internal/orgctx"
	"github.com/deppfellow/shiftboard/internal/repository"
	"github.com/deppfellow/shiftboard/internal/server"
	"github.com/rs/zerolog"
)

const RoleAdmin = "admin"

// Organization is the caller's organization together with their role in it.
type Organization struct {
	Organization *database.Row `json:"organization"`
	Role         string        `json:"role"`
}

type OrganizationService struct {
	server *server.Server
	repo   *repository.OrganizationRepository
}

func NewOrganizationService(s *server.Server, repo *repository.OrganizationRepository) *OrganizationService {
	return &OrganizationService{
		server: s,
		repo:   repo,
	}
}

func (s *OrganizationService) Current(ctx context.Context, org orgctx.OrgContext) (*Organization, error) {
	var out *Organization
	err := s.server.DB.WithOrgContext(ctx, org.OrgID, func(ctx context.Context, q database.Querier) error {
		row, err := s.repo.Get(ctx, q, org.OrgID)
		if err != nil {
			return err
		}
		out = &Organization{Organization: row, Role: org.Role}
		return nil
	})
	return out, err
}

func (s *OrganizationService) ListMembers(ctx context.Context, org orgctx.OrgContext) ([]*database.Row, error) {
	var members []*database.Row
	err := s.server.DB.WithOrgContext(ctx, org.OrgID, func(ctx context.Context, q database.Querier) error {
		rows, err := s.repo.ListMembers(ctx, q, org.OrgID)
		members = rows
		return err
	})
	return members, err
}

// ChangeMemberRole sets userID's role in the caller's organization. The last
// admin cannot be demoted. On success the member's cached org context is
// dropped so their next request sees the new role.
func (s *OrganizationService) ChangeMemberRole(ctx context.Context, org orgctx.OrgContext, userID, role string) (*database.Row, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("org_id", org.OrgID).
		Str("member_id", userID).
		Str("role", role).
		Logger()

	var updated *database.Row
	err := s.server.DB.WithOrgTransaction(ctx, org.OrgID, func(ctx context.Context, q database.Querier) error {
		member, err := s.repo.GetMember(ctx, q, org.OrgID, userID)
		if err != nil {
			return err
		}

		if member.Value("role").String() == RoleAdmin && role != RoleAdmin {
			admins, err := s.repo.CountByRole(ctx, q, org.OrgID, RoleAdmin)
			if err != nil {
				return err
			}
			if admins <= 1 {
				code := "LAST_ADMIN"
				return errs.NewConflictError("an organization needs at least one admin", true, &code)
			}
		}

		updated, err = s.repo.UpdateMemberRole(ctx, q, org.OrgID, userID, role)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The local entry is gone even when publishing fails; other instances
	// catch up when their entry expires.
	if err := s.server.OrgContext.Clear(ctx, userID); err != nil {
		logger.Warn().Err(err).Msg("failed to publish org context invalidation")
	}
	logger.Info().Msg("member role changed")

	return updated, nil
}
