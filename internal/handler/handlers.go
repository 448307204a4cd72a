package handler

import (
	"github.com/deppfellow/shiftboard/internal/server"
	"github.com/deppfellow/shiftboard/internal/service"
)

type Handlers struct {
	Health       *HealthHandler
	Organization *OrganizationHandler
}

func NewHandlers(s *server.Server, services *service.Services) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(s),
		Organization: NewOrganizationHandler(s, services.Organization),
	}
}
