package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/modules/budget"
	"github.com/aristath/minerva/internal/modules/budgetline"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	fx      *testingpkg.Fixtures
	budgets *budget.Repository
	build   func(p *auth.Principal) http.Handler
	admin   http.Handler
	mc      int64
	budget  int64
}

func newEnv(t *testing.T) *env {
	db, _ := testingpkg.NewTestDB(t, "budgetline")
	conn := db.Conn()
	fx := testingpkg.NewFixtures(t, conn)
	adminID := fx.User("admin@example.com", testingpkg.UserOptions{Superuser: true})

	log := zerolog.Nop()
	h := NewHandler(budgetline.NewService(budgetline.NewRepository(conn, log), nil, log), apiutil.Paginator{DefaultSize: 10, MaxSize: 100}, log)
	resolver := access.NewResolver(conn, log)

	build := func(p *auth.Principal) http.Handler {
		r := chi.NewRouter()
		r.Use(testingpkg.Authenticate(p))
		r.Use(resolver.Middleware)
		h.RegisterRoutes(r)
		return r
	}
	mc := fx.ManagementCenter("CG-01")
	return &env{
		fx:      fx,
		budgets: budget.NewRepository(conn, log),
		build:   build,
		admin:   build(testingpkg.Superuser(adminID)),
		mc:      mc,
		budget:  fx.Budget(2025, "OPEX", mc, "1000"),
	}
}

func (e *env) available(t *testing.T) string {
	t.Helper()
	return e.availableOf(t, e.budget)
}

func (e *env) availableOf(t *testing.T, id int64) string {
	t.Helper()
	b, err := e.budgets.Get(t.Context(), access.FullScope(), id)
	require.NoError(t, err)
	return b.AvailableAmount.StringFixed(2)
}

func (e *env) lineBody(amount string) map[string]interface{} {
	return map[string]interface{}{
		"budget":                    e.budget,
		"expense_type":              "Base Principal",
		"probable_procurement_type": "LICITAÇÃO",
		"budgeted_amount":           amount,
		"summary_description":       "Licenças de software",
	}
}

func TestBudgetLineLifecycle(t *testing.T) {
	e := newEnv(t)

	rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/budgetline/budgetslines/", e.lineBody("250.50"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data budgetline.BudgetLine `json:"data"`
	}
	testingpkg.DecodeJSON(t, rec, &created)
	assert.Equal(t, "OPEX 2025 - CG-01", created.Data.Budget.Name)
	assert.Equal(t, "749.50", e.available(t))
	id := strconv.FormatInt(created.Data.ID, 10)

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPatch, "/budgetline/budgetlines/"+id+"/update",
		map[string]interface{}{"budgeted_amount": "300", "change_reason": "Reajuste"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "700.00", e.available(t))

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPut, "/budgetline/budgetslines/"+id, map[string]interface{}{"contract_status": "N/A"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = testingpkg.DoJSON(t, e.admin, http.MethodGet, "/budgetline/budgetslines/"+id+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []budgetline.Version
	testingpkg.DecodeJSON(t, rec, &versions)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].VersionNumber)
	assert.Equal(t, budgetline.DefaultChangeReason, versions[0].ChangeReason)
	assert.Equal(t, "Reajuste", versions[1].ChangeReason)
	assert.Contains(t, string(versions[0].Snapshot), `"contract_status":"N/A"`)
	assert.NotContains(t, string(versions[0].Snapshot), "change_reason")

	// Moving the line to another budget recomputes both budgets.
	capex := e.fx.Budget(2025, "CAPEX", e.mc, "500")
	rec = testingpkg.DoJSON(t, e.admin, http.MethodPatch, "/budgetline/budgetslines/"+id, map[string]interface{}{"budget": capex})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1000.00", e.available(t))
	assert.Equal(t, "200.00", e.availableOf(t, capex))

	rec = testingpkg.DoJSON(t, e.admin, http.MethodDelete, "/budgetline/budgetslines/"+id+"/delete", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, "1000.00", e.available(t))
	assert.Equal(t, "500.00", e.availableOf(t, capex))
}

func TestBudgetLineValidation(t *testing.T) {
	e := newEnv(t)
	other := e.fx.ManagementCenter("CG-02")
	rc := e.fx.RequestingCenter(other, "CS-02")

	body := e.lineBody("0")
	body["expense_type"] = "Outro"
	body["management_center"] = e.mc
	body["requesting_center"] = rc
	body["object"] = strings.Repeat("x", 81)
	rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/budgetline/budgetslines/", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	for _, field := range []string{"expense_type", "requesting_center", "object", "budgeted_amount"} {
		assert.Contains(t, rec.Body.String(), `"`+field+`"`)
	}
}

func TestBudgetLineDeleteProtectedByContract(t *testing.T) {
	e := newEnv(t)
	line := e.fx.BudgetLine(e.budget, nil, "100")
	a := e.fx.Employee("Fiscal A", "a@example.com", "52998224725", nil, nil, nil)
	b := e.fx.Employee("Fiscal B", "b@example.com", "11144477735", nil, nil, nil)
	e.fx.Contract(line, a, b, "CT-2025-000001", "100")

	rec := testingpkg.DoJSON(t, e.admin, http.MethodDelete, "/budgetline/budgetslines/"+strconv.FormatInt(line, 10), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 contract(s)")
}

func TestBudgetLineScopeUsesLineCenter(t *testing.T) {
	e := newEnv(t)
	dir := e.fx.Direction("Diretoria")
	own := e.fx.ManagementCenter("CG-PROPRIO")
	e.fx.Hierarchy(own, &dir, nil, nil)

	visible := e.fx.BudgetLine(e.budget, &own, "10")
	e.fx.BudgetLine(e.budget, nil, "10")
	emp := e.fx.Employee("Diretor", "diretor@example.com", "52998224725", &dir, nil, nil)
	director := e.build(&auth.Principal{UserID: 99, EmployeeID: &emp})

	rec := testingpkg.DoJSON(t, director, http.MethodGet, "/budgetline/budgetslines/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count   int                     `json:"count"`
		Results []budgetline.BudgetLine `json:"results"`
	}
	testingpkg.DecodeJSON(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, visible, list.Results[0].ID)
}

func TestBudgetLineMovements(t *testing.T) {
	e := newEnv(t)
	a := e.fx.BudgetLine(e.budget, nil, "100")
	b := e.fx.BudgetLine(e.budget, nil, "100")

	rec := testingpkg.DoJSON(t, e.admin, http.MethodPost, "/budgetline/budgetlinemovements/", map[string]interface{}{"movement_amount": "10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "non_field_errors")

	rec = testingpkg.DoJSON(t, e.admin, http.MethodPost, "/budgetline/budgetlinemovements/create",
		map[string]interface{}{"source_line": a, "destination_line": b, "movement_amount": "10", "movement_notes": "remanejamento"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = testingpkg.DoJSON(t, e.admin, http.MethodGet, "/budgetline/budgetlinemovements/?line="+strconv.FormatInt(b, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), "remanejamento")
}
