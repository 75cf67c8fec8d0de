package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/modules/assistant"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoModel always proposes the same query and a fixed explanation.
type echoModel struct{}

func (echoModel) Generate(_ context.Context, system, _ string) (*assistant.Completion, error) {
	if strings.Contains(system, "JSON") {
		return &assistant.Completion{Text: `{"intent":"contar","sql":"SELECT COUNT(*) AS quantidade FROM budget_budget"}`}, nil
	}
	return &assistant.Completion{Text: "Nenhum orçamento cadastrado."}, nil
}

func newRouter(t *testing.T, principal func(userID int64) *auth.Principal) http.Handler {
	db, _ := testingpkg.NewTestDB(t, "alice_handlers")
	conn := db.Conn()
	fx := testingpkg.NewFixtures(t, conn)
	userID := fx.User("user@example.com", testingpkg.UserOptions{Superuser: true, Staff: true})

	log := zerolog.Nop()
	repo := assistant.NewRepository(conn, log)
	svc := assistant.NewService(repo, echoModel{}, assistant.NewExecutor(conn, 10, 5*time.Second, log),
		assistant.NewSchemaDescriber(conn, repo, log), nil, log)

	r := chi.NewRouter()
	r.Use(testingpkg.Authenticate(principal(userID)))
	r.Use(access.NewResolver(conn, log).Middleware)
	NewHandler(svc, log).RegisterRoutes(r)
	return r
}

func TestAliceSessionRoutes(t *testing.T) {
	router := newRouter(t, testingpkg.Superuser)

	rec := testingpkg.DoJSON(t, router, http.MethodPost, "/alice/chat", map[string]interface{}{"message": "Quantos orçamentos?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp assistant.ChatResponse
	testingpkg.DecodeJSON(t, rec, &resp)
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "Nenhum orçamento cadastrado.", resp.Response)
	require.NotEmpty(t, resp.SessionID)
	sid := resp.SessionID

	rec = testingpkg.DoJSON(t, router, http.MethodPost, "/alice/sessions/"+sid+"/send", map[string]interface{}{"message": "E agora?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/alice/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []assistant.Session
	testingpkg.DecodeJSON(t, rec, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, 4, sessions[0].MessageCount)

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/alice/sessions/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail assistant.SessionDetail
	testingpkg.DecodeJSON(t, rec, &detail)
	assert.Len(t, detail.Messages, 4)

	rec = testingpkg.DoJSON(t, router, http.MethodPost, "/alice/sessions/"+sid+"/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = testingpkg.DoJSON(t, router, http.MethodDelete, "/alice/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/alice/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAliceQuickAndStats(t *testing.T) {
	router := newRouter(t, testingpkg.Superuser)

	rec := testingpkg.DoJSON(t, router, http.MethodPost, "/alice/quick", map[string]interface{}{"question": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testingpkg.DoJSON(t, router, http.MethodPost, "/alice/quick", map[string]interface{}{"question": "Quantos orçamentos?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.NotContains(t, rec.Body.String(), `"session_id"`)

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/alice/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats assistant.Stats
	testingpkg.DecodeJSON(t, rec, &stats)
	assert.Equal(t, 1, stats.TotalQueries)
	assert.Equal(t, 1, stats.SuccessfulQueries)

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/alice/schema", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "contract_contract")

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/alice/schema/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tables []assistant.TableInfo
	testingpkg.DecodeJSON(t, rec, &tables)
	assert.Len(t, tables, len(assistant.SafeTables))
}

func TestAliceConfig(t *testing.T) {
	router := newRouter(t, testingpkg.Superuser)

	rec := testingpkg.DoJSON(t, router, http.MethodPut, "/alice/config", map[string]interface{}{"key": "temperature", "value": "0.2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"key":"temperature"`)

	rec = testingpkg.DoJSON(t, router, http.MethodGet, "/alice/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"value":"0.2"`)
}

func TestAliceRequiresFullScope(t *testing.T) {
	router := newRouter(t, testingpkg.Staff)

	rec := testingpkg.DoJSON(t, router, http.MethodPost, "/alice/chat", map[string]interface{}{"message": "oi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	anonymous := newRouter(t, func(int64) *auth.Principal { return nil })
	rec = testingpkg.DoJSON(t, anonymous, http.MethodGet, "/alice/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
