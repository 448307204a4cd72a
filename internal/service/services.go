package service

import (
	"github.com/deppfellow/shiftboard/internal/repository"
	"github.com/deppfellow/shiftboard/internal/server"
)

type Services struct {
	Auth         *AuthService
	Organization *OrganizationService
}

func NewServices(s *server.Server, repos *repository.Repositories) (*Services, error) {
	return &Services{
		Auth:         NewAuthService(s),
		Organization: NewOrganizationService(s, repos.Organization),
	}, nil
}
