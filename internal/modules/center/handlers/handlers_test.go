package handlers

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/modules/center"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	fx    *testingpkg.Fixtures
	build func(p *auth.Principal) http.Handler
	admin http.Handler
}

func newEnv(t *testing.T) *env {
	db, _ := testingpkg.NewTestDB(t, "center")
	conn := db.Conn()
	fx := testingpkg.NewFixtures(t, conn)
	adminID := fx.User("admin@example.com", testingpkg.UserOptions{Staff: true, Superuser: true})

	log := zerolog.Nop()
	h := NewHandler(center.NewService(center.NewRepository(conn, log), log), apiutil.Paginator{DefaultSize: 10, MaxSize: 100}, log)
	resolver := access.NewResolver(conn, log)

	build := func(p *auth.Principal) http.Handler {
		r := chi.NewRouter()
		r.Use(testingpkg.Authenticate(p))
		r.Use(resolver.Middleware)
		h.RegisterRoutes(r)
		return r
	}
	return &env{fx: fx, build: build, admin: build(testingpkg.Superuser(adminID))}
}

type page[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

func TestManagementCenterCRUD(t *testing.T) {
	e := newEnv(t)

	rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/center/management-centers/", map[string]string{"name": "CG-01", "description": "Sede"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPost, "/center/management-centers/", map[string]string{"name": "CG-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name"`)

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPut, "/center/management-centers/1/update", map[string]string{"description": "Filial"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated struct {
		Data center.ManagementCenter `json:"data"`
	}
	testingpkg.DecodeJSON(t, rec, &updated)
	assert.Equal(t, "CG-01", updated.Data.Name)
	assert.Equal(t, "Filial", updated.Data.Description)

	e.fx.RequestingCenter(1, "CS-01")
	rec = testingpkg.DoJSON(t, e.admin, http.MethodDelete, "/center/management-centers/1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequestingCenterUniquePerManagementCenter(t *testing.T) {
	e := newEnv(t)
	mc1 := e.fx.ManagementCenter("CG-01")
	mc2 := e.fx.ManagementCenter("CG-02")

	body := map[string]interface{}{"name": "CS-01", "management_center": mc1}
	rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/center/requesting-centers/", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPost, "/center/requesting-centers/", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPost, "/center/requesting-centers/", map[string]interface{}{"name": "CS-01", "management_center": mc2})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHierarchyValidation(t *testing.T) {
	e := newEnv(t)
	mc := e.fx.ManagementCenter("CG-01")
	dir := e.fx.Direction("DIRETORIA")

	rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/center/hierarchies/", map[string]interface{}{"management_center": mc})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "non_field_errors")

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPost, "/center/hierarchies/", map[string]interface{}{"management_center": mc, "management": 77})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"management"`)

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPost, "/center/hierarchies/", map[string]interface{}{"management_center": mc, "direction": dir})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data center.Hierarchy `json:"data"`
	}
	testingpkg.DecodeJSON(t, rec, &created)
	require.NotNil(t, created.Data.Direction)
	assert.Equal(t, "DIRETORIA", created.Data.Direction.Name)
	assert.Nil(t, created.Data.Management)

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPost, "/center/hierarchies/", map[string]interface{}{"management_center": mc, "direction": dir})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListsAreScoped(t *testing.T) {
	e := newEnv(t)
	dir := e.fx.Direction("DIRETORIA")
	visible := e.fx.ManagementCenter("CG-VISIVEL")
	hidden := e.fx.ManagementCenter("CG-OCULTO")
	e.fx.Hierarchy(visible, &dir, nil, nil)
	e.fx.RequestingCenter(visible, "CS-A")
	hiddenRC := e.fx.RequestingCenter(hidden, "CS-B")

	emp := e.fx.Employee("Diretor", "diretor@example.com", "52998224725", &dir, nil, nil)
	userID := e.fx.User("diretor@example.com", testingpkg.UserOptions{EmployeeID: &emp})
	director := e.build(&auth.Principal{UserID: userID, Email: "diretor@example.com", IsActive: true, EmployeeID: &emp})

	rec := testingpkg.DoJSON(t, director, http.MethodGet, "/center/management-centers/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mcs page[center.ManagementCenter]
	testingpkg.DecodeJSON(t, rec, &mcs)
	require.Equal(t, 1, mcs.Count)
	assert.Equal(t, "CG-VISIVEL", mcs.Results[0].Name)

	rec = testingpkg.DoJSON(t, director, http.MethodGet, "/center/requesting-centers/", nil)
	var rcs page[center.RequestingCenter]
	testingpkg.DecodeJSON(t, rec, &rcs)
	require.Equal(t, 1, rcs.Count)
	assert.Equal(t, "CS-A", rcs.Results[0].Name)

	rec = testingpkg.DoJSON(t, director, http.MethodGet, "/center/requesting-centers/"+itoa(hiddenRC), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testingpkg.DoJSON(t, director, http.MethodPost, "/center/requesting-centers/", map[string]interface{}{"name": "X", "management_center": hidden})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
