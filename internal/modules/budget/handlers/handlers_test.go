package handlers

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/modules/budget"
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
	mc    int64
}

func newEnv(t *testing.T) *env {
	db, _ := testingpkg.NewTestDB(t, "budget_handlers")
	conn := db.Conn()
	fx := testingpkg.NewFixtures(t, conn)
	adminID := fx.User("admin@example.com", testingpkg.UserOptions{Superuser: true})

	log := zerolog.Nop()
	svc := budget.NewService(budget.NewRepository(conn, log), nil, log)
	h := NewHandler(svc, apiutil.Paginator{DefaultSize: 10, MaxSize: 100}, log)
	resolver := access.NewResolver(conn, log)

	build := func(p *auth.Principal) http.Handler {
		r := chi.NewRouter()
		r.Use(testingpkg.Authenticate(p))
		r.Use(resolver.Middleware)
		h.RegisterRoutes(r)
		return r
	}
	return &env{fx: fx, build: build, admin: build(testingpkg.Superuser(adminID)), mc: fx.ManagementCenter("CG-01")}
}

type page[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

func TestBudgetCRUD(t *testing.T) {
	e := newEnv(t)

	rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/budget/budgets/create", map[string]interface{}{
		"year": 2025, "category": "OPEX", "management_center": e.mc, "total_amount": "1000.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data budget.Budget `json:"data"`
	}
	testingpkg.DecodeJSON(t, rec, &created)
	id := strconv.FormatInt(created.Data.ID, 10)
	assert.Equal(t, "1000.00", created.Data.AvailableAmount.StringFixed(2))

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPatch, "/budget/budgets/"+id+"/update", map[string]interface{}{"total_amount": 1500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"available_amount":"1500"`)

	rec = testingpkg.DoJSON(t, e.admin, http.MethodGet, "/budget/budgets/?year=2025&category=opex", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list page[budget.Budget]
	testingpkg.DecodeJSON(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	e.fx.BudgetLine(created.Data.ID, nil, "10")
	rec = testingpkg.DoJSON(t, e.admin, http.MethodDelete, "/budget/budgets/"+id+"/delete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "budget line")
}

func TestBudgetScope(t *testing.T) {
	e := newEnv(t)
	dir := e.fx.Direction("Diretoria")
	other := e.fx.ManagementCenter("CG-OUTRO")
	e.fx.Hierarchy(e.mc, &dir, nil, nil)
	visible := e.fx.Budget(2025, "OPEX", e.mc, "100")
	hidden := e.fx.Budget(2025, "OPEX", other, "100")
	emp := e.fx.Employee("Diretor", "diretor@example.com", "52998224725", &dir, nil, nil)
	userID := e.fx.User("diretor@example.com", testingpkg.UserOptions{EmployeeID: &emp})
	director := e.build(&auth.Principal{UserID: userID, EmployeeID: &emp})

	rec := testingpkg.DoJSON(t, director, http.MethodGet, "/budget/budgets/", nil)
	var list page[budget.Budget]
	testingpkg.DecodeJSON(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, visible, list.Results[0].ID)

	rec = testingpkg.DoJSON(t, director, http.MethodGet, "/budget/budgets/"+strconv.FormatInt(hidden, 10), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = testingpkg.DoJSON(t, director, http.MethodDelete, "/budget/budgets/"+strconv.FormatInt(hidden, 10), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testingpkg.DoJSON(t, director, http.MethodPost, "/budget/movements/", map[string]interface{}{
		"source": hidden, "destination": visible, "amount": "10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source"`)
}

func TestBudgetMovementHistoryAndSummary(t *testing.T) {
	e := newEnv(t)
	mc2 := e.fx.ManagementCenter("CG-02")
	a := e.fx.Budget(2025, "CAPEX", e.mc, "1000")
	b := e.fx.Budget(2025, "CAPEX", mc2, "1000")
	c := e.fx.Budget(2025, "OPEX", mc2, "1000")

	for _, body := range []map[string]interface{}{
		{"source": a, "destination": b, "amount": "100", "notes": "ajuste"},
		{"source": b, "destination": c, "amount": "50"},
	} {
		rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/budget/movements/", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := testingpkg.DoJSON(t, e.admin, http.MethodGet, "/budget/budgets/"+strconv.FormatInt(a, 10)+"/movements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history page[budget.Movement]
	testingpkg.DecodeJSON(t, rec, &history)
	assert.Equal(t, 1, history.Count)

	rec = testingpkg.DoJSON(t, e.admin, http.MethodGet, "/budget/budgets/"+strconv.FormatInt(b, 10), nil)
	var got budget.Budget
	testingpkg.DecodeJSON(t, rec, &got)
	assert.Equal(t, "1050.00", got.AvailableAmount.StringFixed(2))

	rec = testingpkg.DoJSON(t, e.admin, http.MethodGet, "/budget/budgets/summary?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary budget.Summary
	testingpkg.DecodeJSON(t, rec, &summary)
	require.Len(t, summary.Categories, 2)
	assert.Equal(t, 2, summary.Categories[0].Budgets)
	assert.Equal(t, "1950.00", summary.Categories[0].AvailableAmount.StringFixed(2))
}
