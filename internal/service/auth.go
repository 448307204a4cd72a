package service

import (
	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/deppfellow/shiftboard/internal/server"
)

// AuthService configures the Clerk SDK. Sessions are verified by the auth
// middleware; issuing tokens is Clerk's job.
type AuthService struct {
	server *server.Server
}

func NewAuthService(s *server.Server) *AuthService {
	clerk.SetKey(s.Config.Auth.SecretKey)
	return &AuthService{
		server: s,
	}
}
