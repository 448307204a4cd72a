package repository

import (
	"context"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/deppfellow/shiftboard/internal/postgrest"
	"github.com/rs/zerolog"
)

const (
	organizationsTable = "organizations"
	membersTable       = "organization_members"
)

type OrganizationRepository struct {
	log zerolog.Logger
}

func NewOrganizationRepository(log zerolog.Logger) *OrganizationRepository {
	return &OrganizationRepository{log: log}
}

func (r *OrganizationRepository) client(q database.Querier) *postgrest.Client {
	return postgrest.New(q, postgrest.WithRelations(Relations), postgrest.WithLogger(r.log))
}

func (r *OrganizationRepository) Get(ctx context.Context, q database.Querier, orgID string) (*database.Row, error) {
	return r.client(q).
		From(organizationsTable).
		Select("id, name, created_at").
		Eq("id", orgID).
		Single(ctx).
		Require("organization")
}

// ListMembers returns the organization's members with their user profile
// embedded under "user", oldest first.
func (r *OrganizationRepository) ListMembers(ctx context.Context, q database.Querier, orgID string) ([]*database.Row, error) {
	res := r.client(q).
		From(membersTable).
		Select("user_id, role, created_at, user:users(id, email, full_name)").
		Eq("org_id", orgID).
		Order("created_at").
		Execute(ctx)
	return res.Data, res.Error
}

func (r *OrganizationRepository) GetMember(ctx context.Context, q database.Querier, orgID, userID string) (*database.Row, error) {
	return r.client(q).
		From(membersTable).
		Select("user_id, role").
		Eq("org_id", orgID).
		Eq("user_id", userID).
		Single(ctx).
		Require("member")
}

// CountByRole counts the organization's members holding role without
// reading any row.
func (r *OrganizationRepository) CountByRole(ctx context.Context, q database.Querier, orgID, role string) (int, error) {
	res := r.client(q).
		From(membersTable).
		Select("*", postgrest.WithCount(postgrest.CountExact), postgrest.Head()).
		Eq("org_id", orgID).
		Eq("role", role).
		Execute(ctx)
	if res.Error != nil {
		return 0, res.Error
	}
	return *res.Count, nil
}

func (r *OrganizationRepository) UpdateMemberRole(ctx context.Context, q database.Querier, orgID, userID, role string) (*database.Row, error) {
	return r.client(q).
		From(membersTable).
		Update(postgrest.Record{"role": role}).
		Eq("org_id", orgID).
		Eq("user_id", userID).
		Select("user_id, role").
		Single(ctx).
		Require("member")
}
