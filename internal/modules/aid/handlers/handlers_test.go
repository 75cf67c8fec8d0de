package handlers

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/modules/aid"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (http.Handler, int64, int64) {
	db, _ := testingpkg.NewTestDB(t, "aid_handlers")
	conn := db.Conn()
	fx := testingpkg.NewFixtures(t, conn)
	adminID := fx.User("admin@example.com", testingpkg.UserOptions{Superuser: true})

	log := zerolog.Nop()
	h := NewHandler(aid.NewService(aid.NewRepository(conn, log), log), apiutil.Paginator{DefaultSize: 10, MaxSize: 100}, log)

	r := chi.NewRouter()
	r.Use(testingpkg.Authenticate(testingpkg.Superuser(adminID)))
	r.Use(access.NewResolver(conn, log).Middleware)
	h.RegisterRoutes(r)

	mc := fx.ManagementCenter("CG-01")
	emp := fx.Employee("Beneficiário", "beneficiario@example.com", "52998224725", nil, nil, nil)
	return r, emp, fx.BudgetLine(fx.Budget(2025, "OPEX", mc, "10000"), nil, "5000")
}

func TestAidRoutes(t *testing.T) {
	router, emp, line := newRouter(t)

	rec := testingpkg.DoJSON(t, router, http.MethodPost, "/aid/aid/create", map[string]interface{}{
		"employee": emp, "budget_line": line, "type": "GRADUACAO", "total_amount": "1000",
		"installment_count": 3, "start_date": "2025-02-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"amount_per_installment":"333.33"`)
	var created struct {
		Data aid.Assistance `json:"data"`
	}
	testingpkg.DecodeJSON(t, rec, &created)
	id := strconv.FormatInt(created.Data.ID, 10)

	rec = testingpkg.DoJSON(t, router, http.MethodPut, "/aid/aid/update/"+id, map[string]interface{}{"status": "ATIVO"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"amount_per_installment":"333.33"`)

	rec = testingpkg.DoJSON(t, router, http.MethodPatch, "/aid/aid/"+id+"/update", map[string]interface{}{"total_amount": "1500"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"amount_per_installment":"500"`)

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/aid/aid/?status=ativo&type=graduacao&employee="+strconv.FormatInt(emp, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/aid/aid/?status=CANCELADO", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	rec = testingpkg.DoJSON(t, router, http.MethodDelete, "/aid/aid/"+id+"/delete", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/aid/aid/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
