package repository

import (
	"github.com/deppfellow/shiftboard/internal/server"
)

type Repositories struct {
	Organization *OrganizationRepository
}

func NewRepositories(s *server.Server) *Repositories {
	return &Repositories{
		Organization: NewOrganizationRepository(s.Logger.With().Str("component", "repository").Logger()),
	}
}
