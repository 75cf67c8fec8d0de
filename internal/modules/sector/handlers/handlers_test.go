package handlers

import (
	"net/http"
	"testing"

	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/modules/sector"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	fx    *testingpkg.Fixtures
	staff http.Handler
	user  http.Handler
}

func newEnv(t *testing.T) *env {
	db, _ := testingpkg.NewTestDB(t, "sector")
	conn := db.Conn()
	fx := testingpkg.NewFixtures(t, conn)
	staffID := fx.User("staff@example.com", testingpkg.UserOptions{Staff: true})
	userID := fx.User("user@example.com", testingpkg.UserOptions{})

	log := zerolog.Nop()
	svc := sector.NewService(sector.NewRepository(conn, log), log)
	h := NewHandler(svc, apiutil.Paginator{DefaultSize: 10, MaxSize: 100}, log)

	build := func(p *auth.Principal) http.Handler {
		r := chi.NewRouter()
		r.Use(testingpkg.Authenticate(p))
		h.RegisterRoutes(r)
		return r
	}
	return &env{
		fx:    fx,
		staff: build(testingpkg.Staff(staffID)),
		user:  build(&auth.Principal{UserID: userID, Email: "user@example.com", IsActive: true}),
	}
}

func TestDirectionCRUD(t *testing.T) {
	e := newEnv(t)

	rec := testingpkg.DoJSON(t, e.staff, http.MethodPost, "/sector/directions/", map[string]string{"name": "  DIRETORIA ADMINISTRATIVA "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Message string           `json:"message"`
		Data    sector.Direction `json:"data"`
	}
	testingpkg.DecodeJSON(t, rec, &created)
	assert.Equal(t, "DIRETORIA ADMINISTRATIVA", created.Data.Name)
	require.NotNil(t, created.Data.CreatedBy)
	assert.Equal(t, "staff@example.com", created.Data.CreatedBy.Email)

	rec = testingpkg.DoJSON(t, e.staff, http.MethodPost, "/sector/directions/create", map[string]string{"name": "DIRETORIA ADMINISTRATIVA"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")

	rec = testingpkg.DoJSON(t, e.staff, http.MethodPatch, "/sector/directions/update/1", map[string]string{"name": "DIRETORIA FINANCEIRA"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = testingpkg.DoJSON(t, e.user, http.MethodGet, "/sector/directions/?search=financ", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Count   int                `json:"count"`
		Results []sector.Direction `json:"results"`
	}
	testingpkg.DecodeJSON(t, rec, &page)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, "DIRETORIA FINANCEIRA", page.Results[0].Name)

	rec = testingpkg.DoJSON(t, e.staff, http.MethodDelete, "/sector/directions/1/delete", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = testingpkg.DoJSON(t, e.user, http.MethodGet, "/sector/directions/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWritesRequireStaff(t *testing.T) {
	e := newEnv(t)
	rec := testingpkg.DoJSON(t, e.user, http.MethodPost, "/sector/directions/", map[string]string{"name": "DIRETORIA"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestManagementValidationAndRestrictedDelete(t *testing.T) {
	e := newEnv(t)
	dir := e.fx.Direction("DIRETORIA")

	rec := testingpkg.DoJSON(t, e.staff, http.MethodPost, "/sector/managements/", map[string]interface{}{"name": "GERENCIA"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "direction")

	rec = testingpkg.DoJSON(t, e.staff, http.MethodPost, "/sector/managements/", map[string]interface{}{"name": "GERENCIA", "direction": 999})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testingpkg.DoJSON(t, e.staff, http.MethodPost, "/sector/managements/", map[string]interface{}{"name": "GERENCIA", "direction": dir})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = testingpkg.DoJSON(t, e.staff, http.MethodDelete, "/sector/directions/1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCoordinationFilters(t *testing.T) {
	e := newEnv(t)
	d1 := e.fx.Direction("D1")
	d2 := e.fx.Direction("D2")
	m1 := e.fx.Management("M1", d1)
	m2 := e.fx.Management("M2", d2)
	e.fx.Coordination("C1", m1)
	e.fx.Coordination("C2", m2)
	e.fx.Coordination("C3", m2)

	rec := testingpkg.DoJSON(t, e.user, http.MethodGet, "/sector/coordinations/?direction=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Count   int                   `json:"count"`
		Results []sector.Coordination `json:"results"`
	}
	testingpkg.DecodeJSON(t, rec, &page)
	assert.Equal(t, 2, page.Count)
	for _, c := range page.Results {
		assert.Equal(t, "D2", c.Management.Direction.Name)
	}

	rec = testingpkg.DoJSON(t, e.user, http.MethodGet, "/sector/coordinations/?management=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
