package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/events"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Service answers questions and manages conversations.
type Service struct {
	repo     *Repository
	model    Model
	executor *Executor
	schema   *SchemaDescriber
	events   *events.Manager
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a new assistant service.
func NewService(repo *Repository, model Model, executor *Executor, schema *SchemaDescriber, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		model:    model,
		executor: executor,
		schema:   schema,
		events:   eventManager,
		now:      time.Now,
		log:      log.With().Str("service", "assistant").Logger(),
	}
}

// Repository exposes the read side to handlers.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Schema exposes the schema describer to handlers.
func (s *Service) Schema() *SchemaDescriber {
	return s.schema
}

// Executor exposes the query executor so settings can adjust its limits.
func (s *Service) Executor() *Executor {
	return s.executor
}

func requireMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewValidationError("message", "This field is required.")
	}
	return text, nil
}

// Chat answers a question inside a session. Without a session id the user's
// latest active session is reused unless CreateNewSession is set.
func (s *Service) Chat(ctx context.Context, userID int64, req ChatRequest) (*ChatResponse, error) {
	text := req.Message
	if text == "" {
		text = req.Question
	}
	text, err := requireMessage(text)
	if err != nil {
		return nil, err
	}

	var session *Session
	switch {
	case req.SessionID != "":
		session, err = s.repo.GetSession(ctx, userID, req.SessionID)
	case !req.CreateNewSession:
		session, err = s.repo.LatestActiveSession(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	if session == nil {
		if session, err = s.repo.CreateSession(ctx, userID, text); err != nil {
			return nil, err
		}
	}
	return s.converse(ctx, userID, session, text)
}

// Send answers a question in an existing session.
func (s *Service) Send(ctx context.Context, userID int64, sid, text string) (*ChatResponse, error) {
	text, err := requireMessage(text)
	if err != nil {
		return nil, err
	}
	session, err := s.repo.GetSession(ctx, userID, sid)
	if err != nil {
		return nil, err
	}
	return s.converse(ctx, userID, session, text)
}

// Quick answers a question without recording a conversation.
func (s *Service) Quick(ctx context.Context, userID int64, question string) (*ChatResponse, error) {
	question, err := requireMessage(question)
	if err != nil {
		return nil, err
	}
	return s.answer(ctx, userID, nil, question), nil
}

func (s *Service) converse(ctx context.Context, userID int64, session *Session, text string) (*ChatResponse, error) {
	if err := s.repo.AddMessage(ctx, session.ID, MessageUser, text, nil); err != nil {
		return nil, err
	}

	resp := s.answer(ctx, userID, session, text)

	msgType := MessageAssistant
	if !resp.Success {
		msgType = MessageError
	}
	meta := map[string]interface{}{
		"sql_query":         resp.SQLQuery,
		"result_count":      resp.ResultCount,
		"execution_time_ms": resp.ExecutionTimeMs,
	}
	if err := s.repo.AddMessage(ctx, session.ID, msgType, resp.Response, meta); err != nil {
		return nil, err
	}
	if err := s.repo.TouchSession(ctx, session.ID, text); err != nil {
		return nil, err
	}
	resp.SessionID = session.SessionID
	return resp, nil
}

// answer interprets, guards, executes and explains one question. Failures
// are reported in the response rather than as errors.
func (s *Service) answer(ctx context.Context, userID int64, session *Session, question string) *ChatResponse {
	start := s.now()
	entry := &QueryLog{UserID: userID, UserQuestion: question}
	sid := ""
	if session != nil {
		entry.SessionID = &session.ID
		sid = session.SessionID
	}

	fail := func(reply string, err error) *ChatResponse {
		entry.ExecutionStatus = StatusError
		entry.ErrorMessage = err.Error()
		entry.ExecutionTimeMs = s.now().Sub(start).Milliseconds()
		s.record(ctx, entry, sid)
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("Assistant query failed")
		return &ChatResponse{
			Success:         false,
			Response:        reply,
			SQLQuery:        entry.GeneratedSQL,
			Data:            []Row{},
			ExecutionTimeMs: entry.ExecutionTimeMs,
			Error:           err.Error(),
		}
	}

	interp, raw, err := s.interpret(ctx, question)
	entry.ModelResponse = raw
	if err != nil {
		if errors.Is(err, ErrModelNotConfigured) {
			return fail("O assistente não está configurado no momento.", err)
		}
		return fail("Desculpe, não consegui entender sua pergunta. Pode reformulá-la?", err)
	}
	entry.InterpretedIntent = interp.Intent
	entry.GeneratedSQL = interp.SQL
	if interp.SQL == "" {
		return fail("Desculpe, não consegui gerar uma consulta para essa pergunta.", errors.New("model returned no SQL"))
	}

	rows, executed, err := s.executor.Run(ctx, interp.SQL)
	entry.GeneratedSQL = executed
	if err != nil {
		var guard *GuardError
		if errors.As(err, &guard) {
			return fail("A consulta gerada não é permitida por motivos de segurança.", err)
		}
		return fail("Ocorreu um erro ao executar a consulta.", err)
	}
	elapsed := s.now().Sub(start).Milliseconds()

	reply := s.humanize(ctx, question, executed, rows)

	entry.ExecutionStatus = StatusSuccess
	entry.ExecutionTimeMs = elapsed
	entry.ResultCount = len(rows)
	s.record(ctx, entry, sid)

	return &ChatResponse{
		Success:         true,
		Response:        reply,
		SQLQuery:        executed,
		Data:            rows,
		ExecutionTimeMs: elapsed,
		ResultCount:     len(rows),
		Metadata: map[string]interface{}{
			"intent":           interp.Intent,
			"explanation":      interp.Explanation,
			"confidence":       interp.Confidence,
			"tables_used":      interp.TablesUsed,
			"potential_issues": interp.PotentialIssues,
		},
	}
}

func (s *Service) record(ctx context.Context, entry *QueryLog, sid string) {
	if err := s.repo.LogQuery(ctx, entry); err != nil {
		s.log.Error().Err(err).Msg("Failed to write query log")
	}
	s.events.EmitTyped("assistant", &events.AssistantQueryData{
		UserID:          entry.UserID,
		SessionID:       sid,
		Status:          entry.ExecutionStatus,
		ResultCount:     entry.ResultCount,
		ExecutionTimeMs: entry.ExecutionTimeMs,
	})
}

// interpret asks the model for a query. The raw completion is returned for
// the query log even when it cannot be decoded.
func (s *Service) interpret(ctx context.Context, question string) (*Interpretation, json.RawMessage, error) {
	completion, err := s.model.Generate(ctx, interpretSystem, interpretPrompt(s.schema.Describe(ctx), question))
	if err != nil {
		return nil, nil, err
	}
	raw, _ := json.Marshal(completion)
	interp, err := parseInterpretation(completion.Text)
	if err != nil {
		return nil, raw, err
	}
	return interp, raw, nil
}

// humanize asks the model to explain rows, falling back to a fixed summary.
func (s *Service) humanize(ctx context.Context, question, query string, rows []Row) string {
	completion, err := s.model.Generate(ctx, humanizeSystem, humanizePrompt(question, query, rows))
	if err == nil && strings.TrimSpace(completion.Text) != "" {
		return strings.TrimSpace(completion.Text)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Humanized answer failed, using summary")
	}
	return Summarize(rows)
}

var moneyHints = []string{"valor", "value", "amount", "total", "saldo", "orcamento", "orçamento"}

// Summarize describes rows in Brazilian Portuguese without the model.
func Summarize(rows []Row) string {
	p := message.NewPrinter(language.BrazilianPortuguese)
	switch {
	case len(rows) == 0:
		return "Não encontrei resultados para sua pergunta."
	case len(rows) == 1 && len(rows[0]) == 1:
		for col, v := range rows[0] {
			n, ok := numeric(v)
			if !ok {
				return fmt.Sprintf("O resultado é: %v.", v)
			}
			f, _ := n.Float64()
			if isMoney(col) {
				return p.Sprintf("O resultado é R$ %.2f.", f)
			}
			if n.IsInteger() {
				return p.Sprintf("O resultado é %d.", n.IntPart())
			}
			return p.Sprintf("O resultado é %.2f.", f)
		}
	}
	if len(rows) == 1 {
		return "Encontrei 1 resultado para sua pergunta."
	}
	return p.Sprintf("Encontrei %d resultados para sua pergunta.", len(rows))
}

func isMoney(column string) bool {
	column = strings.ToLower(column)
	for _, hint := range moneyHints {
		if strings.Contains(column, hint) {
			return true
		}
	}
	return false
}

func numeric(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int64:
		return decimal.NewFromInt(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	}
	return decimal.Zero, false
}

// Sessions lists userID's conversations.
func (s *Service) Sessions(ctx context.Context, userID int64) ([]Session, error) {
	return s.repo.ListSessions(ctx, userID)
}

// Session returns a conversation with its messages.
func (s *Service) Session(ctx context.Context, userID int64, sid string) (*SessionDetail, error) {
	session, err := s.repo.GetSession(ctx, userID, sid)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.Messages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: *session, Messages: msgs}, nil
}

// Clear deletes a conversation's messages and keeps the session.
func (s *Service) Clear(ctx context.Context, userID int64, sid string) error {
	session, err := s.repo.GetSession(ctx, userID, sid)
	if err != nil {
		return err
	}
	return s.repo.ClearMessages(ctx, session.ID)
}

// Delete removes a conversation.
func (s *Service) Delete(ctx context.Context, userID int64, sid string) error {
	session, err := s.repo.GetSession(ctx, userID, sid)
	if err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, session.ID)
}

// CleanupSessions deactivates sessions idle for longer than retention.
func (s *Service) CleanupSessions(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.DeactivateIdle(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("sessions", n).Msg("Deactivated idle sessions")
	}
	return n, nil
}

// SaveConfig validates and stores a setting, applying row limits at once.
func (s *Service) SaveConfig(ctx context.Context, in ConfigurationInput) error {
	in.Key = strings.TrimSpace(in.Key)
	v := &domain.ValidationError{}
	if in.Key == "" {
		v.Add("key", "This field is required.")
	}
	domain.ValidateMaxLength(v, "key", in.Key, 100)
	if err := v.OrNil(); err != nil {
		return err
	}
	if err := s.repo.UpsertConfig(ctx, in); err != nil {
		return err
	}
	if in.Key == "max_rows" {
		if n, err := strconv.Atoi(in.Value); err == nil {
			s.executor.SetMaxRows(n)
		}
	}
	s.schema.Invalidate()
	s.log.Info().Str("key", in.Key).Msg("Assistant setting updated")
	return nil
}
