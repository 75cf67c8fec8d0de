package handlers

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/modules/employee"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	fx      *testingpkg.Fixtures
	build   func(p *auth.Principal) http.Handler
	admin   http.Handler
	dir     int64
	mgmt    int64
	coord   int64
	other   int64
	manager http.Handler
}

func newEnv(t *testing.T) *env {
	db, _ := testingpkg.NewTestDB(t, "employee")
	conn := db.Conn()
	fx := testingpkg.NewFixtures(t, conn)
	adminID := fx.User("admin@example.com", testingpkg.UserOptions{Staff: true, Superuser: true})

	log := zerolog.Nop()
	h := NewHandler(employee.NewService(employee.NewRepository(conn, log), log), apiutil.Paginator{DefaultSize: 10, MaxSize: 100}, log)
	resolver := access.NewResolver(conn, log)
	build := func(p *auth.Principal) http.Handler {
		r := chi.NewRouter()
		r.Use(testingpkg.Authenticate(p))
		r.Use(resolver.Middleware)
		h.RegisterRoutes(r)
		return r
	}

	e := &env{fx: fx, build: build, admin: build(testingpkg.Superuser(adminID))}
	e.dir = fx.Direction("DIRETORIA")
	e.mgmt = fx.Management("GERENCIA", e.dir)
	e.coord = fx.Coordination("COORDENACAO", e.mgmt)
	e.other = fx.Management("OUTRA GERENCIA", e.dir)

	mgrEmp := fx.Employee("Gerente", "gerente@example.com", "11144477735", nil, &e.mgmt, nil)
	mgrUser := fx.User("gerente@example.com", testingpkg.UserOptions{EmployeeID: &mgrEmp})
	e.manager = build(&auth.Principal{UserID: mgrUser, Email: "gerente@example.com", IsActive: true, EmployeeID: &mgrEmp})
	return e
}

func TestCreateEmployee(t *testing.T) {
	e := newEnv(t)

	body := map[string]interface{}{
		"full_name":    "Maria Souza",
		"email":        "maria@EXAMPLE.com",
		"cpf":          "529.982.247-25",
		"management":   e.mgmt,
		"coordination": e.coord,
	}
	rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/employee/", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data employee.Employee `json:"data"`
	}
	testingpkg.DecodeJSON(t, rec, &created)
	assert.Equal(t, "maria@example.com", created.Data.Email)
	assert.Equal(t, "52998224725", created.Data.CPF)
	assert.Equal(t, employee.StatusActive, created.Data.Status)
	require.NotNil(t, created.Data.Coordination)
	assert.Equal(t, "COORDENACAO", created.Data.Coordination.Name)

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPost, "/employee/create", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cpf"`)
	assert.Contains(t, rec.Body.String(), `"email"`)
}

func TestCreateEmployee_Validation(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name  string
		body  map[string]interface{}
		field string
	}{
		{"bad cpf", map[string]interface{}{"full_name": "A", "email": "a@example.com", "cpf": "12345678900"}, "cpf"},
		{"bad email", map[string]interface{}{"full_name": "A", "email": "not-an-email", "cpf": "12345678909"}, "email"},
		{"bad status", map[string]interface{}{"full_name": "A", "email": "a@example.com", "cpf": "12345678909", "status": "X"}, "status"},
		{"coordination outside management", map[string]interface{}{
			"full_name": "A", "email": "a@example.com", "cpf": "12345678909", "management": e.other, "coordination": e.coord,
		}, "coordination"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/employee/", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"`+tt.field+`"`)
		})
	}
}

func TestManagerScope(t *testing.T) {
	e := newEnv(t)
	inside := e.fx.Employee("Dentro", "dentro@example.com", "12345678909", nil, nil, &e.coord)
	outside := e.fx.Employee("Fora", "fora@example.com", "52998224725", nil, &e.other, nil)

	rec := testingpkg.DoJSON(t, e.manager, http.MethodGet, "/employee/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Count   int                 `json:"count"`
		Results []employee.Employee `json:"results"`
	}
	testingpkg.DecodeJSON(t, rec, &page)
	assert.Equal(t, 2, page.Count) // the manager and the coordination member

	rec = testingpkg.DoJSON(t, e.manager, http.MethodGet, "/employee/"+strconv.FormatInt(outside, 10), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testingpkg.DoJSON(t, e.manager, http.MethodPatch, "/employee/"+strconv.FormatInt(inside, 10)+"/update", map[string]string{"position": "Analista"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = testingpkg.DoJSON(t, e.manager, http.MethodPatch, "/employee/"+strconv.FormatInt(inside, 10), map[string]interface{}{"management": e.other, "coordination": nil})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testingpkg.DoJSON(t, e.manager, http.MethodGet, "/employee/"+strconv.FormatInt(inside, 10)+"/aids", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestDeleteEmployee(t *testing.T) {
	e := newEnv(t)
	id := e.fx.Employee("Alguem", "alguem@example.com", "12345678909", &e.dir, nil, nil)

	rec := testingpkg.DoJSON(t, e.admin, http.MethodDelete, "/employee/"+strconv.FormatInt(id, 10)+"/delete", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = testingpkg.DoJSON(t, e.admin, http.MethodGet, "/employee/"+strconv.FormatInt(id, 10), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
