package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/events"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel answers calls in order; an entry with err set fails that call.
type scriptedModel struct {
	mu      sync.Mutex
	replies []scriptedReply
	prompts []string
}

type scriptedReply struct {
	text string
	err  error
}

func (m *scriptedModel) Generate(_ context.Context, _, prompt string) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &Completion{Text: r.text, Model: "scripted"}, nil
}

type env struct {
	svc    *Service
	model  *scriptedModel
	fx     *testingpkg.Fixtures
	userID int64
	sub    *events.Subscription
}

func newEnv(t *testing.T, replies ...scriptedReply) *env {
	db, _ := testingpkg.NewTestDB(t, "alice_service")
	conn := db.Conn()
	fx := testingpkg.NewFixtures(t, conn)
	userID := fx.User("presidente@example.com", testingpkg.UserOptions{Superuser: true})
	mc := fx.ManagementCenter("CG-01")
	fx.Budget(2025, "OPEX", mc, "1000")
	fx.Budget(2025, "CAPEX", mc, "2500")

	log := zerolog.Nop()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	sub := bus.Subscribe(16, events.AssistantQueryExecuted)

	repo := NewRepository(conn, log)
	model := &scriptedModel{replies: replies}
	svc := NewService(repo, model, NewExecutor(conn, 100, 5*time.Second, log),
		NewSchemaDescriber(conn, repo, log), events.NewManager(bus, log), log)
	return &env{svc: svc, model: model, fx: fx, userID: userID, sub: sub}
}

const countInterpretation = "```json\n" + `{"intent":"contar orçamentos","sql":"SELECT COUNT(*) AS quantidade FROM budget_budget","explanation":"conta","confidence":0.95,"tables_used":["budget_budget"]}` + "\n```"

func TestChat_CreatesSessionAndLogsQuery(t *testing.T) {
	e := newEnv(t,
		scriptedReply{text: countInterpretation},
		scriptedReply{text: "Existem 2 orçamentos cadastrados."},
	)
	ctx := context.Background()

	resp, err := e.svc.Chat(ctx, e.userID, ChatRequest{Message: "Quantos orçamentos existem?"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "Existem 2 orçamentos cadastrados.", resp.Response)
	assert.Equal(t, "SELECT COUNT(*) AS quantidade FROM budget_budget LIMIT 100", resp.SQLQuery)
	require.Len(t, resp.Data, 1)
	assert.EqualValues(t, 2, resp.Data[0]["quantidade"])
	assert.Equal(t, 1, resp.ResultCount)
	assert.Equal(t, "contar orçamentos", resp.Metadata["intent"])
	assert.Contains(t, e.model.prompts[0], "budget_budget")
	assert.Contains(t, e.model.prompts[0], "Quantos orçamentos existem?")

	detail, err := e.svc.Session(ctx, e.userID, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Quantos orçamentos existem?", detail.Title)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, MessageUser, detail.Messages[0].MessageType)
	assert.Equal(t, MessageAssistant, detail.Messages[1].MessageType)

	stats, err := e.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.TotalQueries)
	assert.Equal(t, 1, stats.SuccessfulQueries)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, "presidente@example.com", stats.MostActiveUser)
	require.Len(t, stats.PopularQuestions, 1)

	select {
	case ev := <-e.sub.Events():
		assert.Equal(t, StatusSuccess, ev.Data["status"])
	case <-time.After(time.Second):
		t.Fatal("expected an assistant query event")
	}
}

func TestChat_ReusesLatestSession(t *testing.T) {
	e := newEnv(t,
		scriptedReply{text: countInterpretation}, scriptedReply{text: "2"},
		scriptedReply{text: countInterpretation}, scriptedReply{text: "2"},
		scriptedReply{text: countInterpretation}, scriptedReply{text: "2"},
	)
	ctx := context.Background()

	first, err := e.svc.Chat(ctx, e.userID, ChatRequest{Message: "primeira"})
	require.NoError(t, err)
	second, err := e.svc.Chat(ctx, e.userID, ChatRequest{Message: "segunda"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	third, err := e.svc.Chat(ctx, e.userID, ChatRequest{Message: "terceira", CreateNewSession: true})
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, third.SessionID)

	sessions, err := e.svc.Sessions(ctx, e.userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestChat_RejectedQuery(t *testing.T) {
	e := newEnv(t, scriptedReply{text: `{"intent":"apagar","sql":"DELETE FROM budget_budget"}`})
	ctx := context.Background()

	resp, err := e.svc.Chat(ctx, e.userID, ChatRequest{Message: "apague tudo"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Apenas consultas SELECT são permitidas", resp.Error)
	assert.Empty(t, resp.Data)

	detail, err := e.svc.Session(ctx, e.userID, resp.SessionID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, MessageError, detail.Messages[1].MessageType)

	stats, err := e.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalQueries)
	assert.Equal(t, 0, stats.SuccessfulQueries)
}

func TestChat_UndecodableInterpretation(t *testing.T) {
	e := newEnv(t, scriptedReply{text: "não entendi"})
	resp, err := e.svc.Quick(context.Background(), e.userID, "???")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "failed to decode model response")
}

func TestQuick_FallsBackToSummary(t *testing.T) {
	e := newEnv(t,
		scriptedReply{text: countInterpretation},
		scriptedReply{err: errors.New("quota exceeded")},
	)
	resp, err := e.svc.Quick(context.Background(), e.userID, "Quantos orçamentos?")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "O resultado é 2.", resp.Response)
	assert.Empty(t, resp.SessionID)

	sessions, err := e.svc.Sessions(context.Background(), e.userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestChat_RequiresMessage(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Chat(context.Background(), e.userID, ChatRequest{Message: "  "})
	v, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "message")
}

func TestSessionOwnership(t *testing.T) {
	e := newEnv(t, scriptedReply{text: countInterpretation}, scriptedReply{text: "ok"})
	ctx := context.Background()
	resp, err := e.svc.Chat(ctx, e.userID, ChatRequest{Message: "oi"})
	require.NoError(t, err)

	other := e.fx.User("outro@example.com", testingpkg.UserOptions{Superuser: true})
	_, err = e.svc.Session(ctx, other, resp.SessionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, e.svc.Delete(ctx, other, resp.SessionID), domain.ErrNotFound)

	require.NoError(t, e.svc.Clear(ctx, e.userID, resp.SessionID))
	detail, err := e.svc.Session(ctx, e.userID, resp.SessionID)
	require.NoError(t, err)
	assert.Empty(t, detail.Messages)

	require.NoError(t, e.svc.Delete(ctx, e.userID, resp.SessionID))
	_, err = e.svc.Session(ctx, e.userID, resp.SessionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCleanupSessions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.repo.CreateSession(ctx, e.userID, "antiga")
	require.NoError(t, err)

	n, err := e.svc.CleanupSessions(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	e.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = e.svc.CleanupSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	latest, err := e.svc.repo.LatestActiveSession(ctx, e.userID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSaveConfig(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.svc.SaveConfig(ctx, ConfigurationInput{Key: " "})
	_, ok := domain.AsValidation(err)
	assert.True(t, ok)

	require.NoError(t, e.svc.SaveConfig(ctx, ConfigurationInput{Key: "max_rows", Value: "7", Description: "Limite"}))
	require.NoError(t, e.svc.SaveConfig(ctx, ConfigurationInput{Key: "max_rows", Value: "8"}))
	assert.Equal(t, 8, e.svc.executor.maxRows)

	v, err := e.svc.repo.Get("max_rows")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "8", *v)

	cfg, err := e.svc.repo.ListConfig(ctx)
	require.NoError(t, err)
	require.Len(t, cfg, 1)
	assert.Equal(t, "Limite", cfg[0].Description)

	inactive := false
	require.NoError(t, e.svc.SaveConfig(ctx, ConfigurationInput{Key: "max_rows", Value: "9", IsActive: &inactive}))
	v, err = e.svc.repo.Get("max_rows")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "Não encontrei resultados para sua pergunta.", Summarize(nil))
	assert.Equal(t, "O resultado é 42.", Summarize([]Row{{"quantidade": int64(42)}}))
	assert.Equal(t, "O resultado é R$ 1.234,50.", Summarize([]Row{{"valor_total": "1234.5"}}))
	assert.Equal(t, "O resultado é: ATIVO.", Summarize([]Row{{"status": "ATIVO"}}))
	assert.Equal(t, "Encontrei 1 resultado para sua pergunta.", Summarize([]Row{{"a": 1, "b": 2}}))
	assert.Equal(t, "Encontrei 3 resultados para sua pergunta.", Summarize([]Row{{"a": 1}, {"a": 2}, {"a": 3}}))
}

func TestResponseTimes(t *testing.T) {
	mean, p95 := responseTimes(nil)
	assert.Zero(t, mean)
	assert.Zero(t, p95)

	times := make([]float64, 0, 20)
	for i := 1; i <= 20; i++ {
		times = append(times, float64(i*10))
	}
	mean, p95 = responseTimes(times)
	assert.InDelta(t, 105, mean, 1e-9)
	assert.InDelta(t, 190, p95, 1e-9)
}

func TestSchemaDescriber(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tables, err := e.svc.schema.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, len(SafeTables))

	var budget *TableInfo
	for i := range tables {
		if tables[i].Name == "budget_budget" {
			budget = &tables[i]
		}
	}
	require.NotNil(t, budget)
	var category *SchemaColumn
	for i := range budget.Columns {
		if budget.Columns[i].ColumnName == "category" {
			category = &budget.Columns[i]
		}
	}
	require.NotNil(t, category)
	assert.False(t, category.IsNullable)
	assert.ElementsMatch(t, []string{"OPEX", "CAPEX"}, category.SampleValues)

	text := e.svc.schema.Describe(ctx)
	assert.Contains(t, text, "Tabela: budget_budget")

	n, err := e.svc.schema.SyncCatalog(ctx)
	require.NoError(t, err)
	assert.Positive(t, n)
	catalog, err := e.svc.repo.CatalogColumns(ctx)
	require.NoError(t, err)
	assert.Len(t, catalog, n)
}
