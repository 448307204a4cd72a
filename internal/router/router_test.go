package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deppfellow/shiftboard/internal/database/dbtest"
	"github.com/deppfellow/shiftboard/internal/errs"
	"github.com/deppfellow/shiftboard/internal/handler"
	"github.com/deppfellow/shiftboard/internal/orgctx"
	"github.com/deppfellow/shiftboard/internal/repository"
	"github.com/deppfellow/shiftboard/internal/server"
	"github.com/deppfellow/shiftboard/internal/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, pool *dbtest.Pool) http.Handler {
	t.Helper()

	logger := zerolog.Nop()
	s := &server.Server{
		Config:     dbtest.Config(),
		Logger:     &logger,
		DB:         dbtest.NewDatabase(t, pool),
		OrgContext: orgctx.New(nil),
	}

	services, err := service.NewServices(s, repository.NewRepositories(s))
	require.NoError(t, err)
	return NewRouter(s, handler.NewHandlers(s, services))
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestStatusRoute(t *testing.T) {
	pool := dbtest.NewPool()
	rec := serve(newTestRouter(t, pool), http.MethodGet, "/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, 1, pool.Count("SELECT 1"))
}

func TestUnknownRoute(t *testing.T) {
	rec := serve(newTestRouter(t, dbtest.NewPool()), http.MethodGet, "/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body errs.HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Route not found", body.Message)
}

func TestOrganizationRoutesRequireAuth(t *testing.T) {
	pool := dbtest.NewPool()
	rec := serve(newTestRouter(t, pool), http.MethodGet, "/v1/organization")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, pool.SQL())
}
