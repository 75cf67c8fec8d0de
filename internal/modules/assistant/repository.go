package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository handles Alice sessions, messages, query logs, configuration and
// the schema catalog.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new assistant repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "assistant").Logger(),
	}
}

const sessionSelect = `SELECT s.id, s.user_id, s.session_id, s.title, s.is_active, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM ai_assistant_conversationmessage m WHERE m.session_id = s.id)
	FROM ai_assistant_conversationsession s`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.SessionID, &s.Title, &s.IsActive,
		database.ScanTime(&s.CreatedAt), database.ScanTime(&s.UpdatedAt), &s.MessageCount)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession opens a new conversation for userID.
func (r *Repository) CreateSession(ctx context.Context, userID int64, title string) (*Session, error) {
	sid := uuid.NewString()
	now := database.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ai_assistant_conversationsession (user_id, session_id, title, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`, userID, sid, sessionTitle(title), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return r.GetSession(ctx, userID, sid)
}

// GetSession returns one of userID's sessions by its public id.
func (r *Repository) GetSession(ctx context.Context, userID int64, sid string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, sessionSelect+` WHERE s.session_id = ? AND s.user_id = ?`, sid, userID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("session %s", sid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// LatestActiveSession returns userID's most recently used active session, or nil.
func (r *Repository) LatestActiveSession(ctx context.Context, userID int64) (*Session, error) {
	row := r.db.QueryRowContext(ctx,
		sessionSelect+` WHERE s.user_id = ? AND s.is_active = 1 ORDER BY s.updated_at DESC, s.id DESC LIMIT 1`, userID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	return s, nil
}

// ListSessions returns userID's sessions, most recent first.
func (r *Repository) ListSessions(ctx context.Context, userID int64) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx,
		sessionSelect+` WHERE s.user_id = ? ORDER BY s.updated_at DESC, s.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()
	out := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// TouchSession bumps updated_at and sets the title when it is still empty.
func (r *Repository) TouchSession(ctx context.Context, id int64, title string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ai_assistant_conversationsession
		SET updated_at = ?, title = CASE WHEN title = '' THEN ? ELSE title END
		WHERE id = ?`, database.Now(), sessionTitle(title), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session and, by cascade, its messages.
func (r *Repository) DeleteSession(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ai_assistant_conversationsession WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return database.RequireAffected(res, "session", id)
}

// DeactivateIdle marks sessions not updated since before as inactive.
func (r *Repository) DeactivateIdle(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ai_assistant_conversationsession SET is_active = 0 WHERE is_active = 1 AND updated_at < ?`,
		database.FormatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return res.RowsAffected()
}

// AddMessage appends a message to a session.
func (r *Repository) AddMessage(ctx context.Context, sessionID int64, messageType, content string, metadata interface{}) error {
	meta := []byte("{}")
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode message metadata: %w", err)
		}
		meta = b
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ai_assistant_conversationmessage (session_id, message_type, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`, sessionID, messageType, content, string(meta), database.Now())
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

// Messages returns a session's messages in chronological order.
func (r *Repository) Messages(ctx context.Context, sessionID int64) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, message_type, content, metadata, created_at FROM ai_assistant_conversationmessage
		WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	out := []Message{}
	for rows.Next() {
		var m Message
		var meta string
		if err := rows.Scan(&m.ID, &m.MessageType, &m.Content, &meta, database.ScanTime(&m.CreatedAt)); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Metadata = json.RawMessage(meta)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearMessages deletes every message of a session.
func (r *Repository) ClearMessages(ctx context.Context, sessionID int64) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM ai_assistant_conversationmessage WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// LogQuery records an interpretation and execution attempt.
func (r *Repository) LogQuery(ctx context.Context, q *QueryLog) error {
	resp := q.ModelResponse
	if len(resp) == 0 {
		resp = json.RawMessage("{}")
	}
	if q.ExecutionStatus == "" {
		q.ExecutionStatus = StatusPending
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO ai_assistant_querylog (session_id, user_id, user_question, interpreted_intent, generated_sql,
		execution_status, execution_time_ms, result_count, error_message, model_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		database.NullInt64(q.SessionID), database.UserArg(q.UserID), q.UserQuestion, q.InterpretedIntent,
		q.GeneratedSQL, q.ExecutionStatus, q.ExecutionTimeMs, q.ResultCount, q.ErrorMessage, string(resp),
		database.Now())
	if err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}
	q.ID, _ = res.LastInsertId()
	return nil
}

// ListConfig returns every stored setting.
func (r *Repository) ListConfig(ctx context.Context) ([]Configuration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, key, value, description, is_active, updated_at FROM ai_assistant_aliceconfiguration ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list configuration: %w", err)
	}
	defer rows.Close()
	out := []Configuration{}
	for rows.Next() {
		var c Configuration
		if err := rows.Scan(&c.ID, &c.Key, &c.Value, &c.Description, &c.IsActive, database.ScanTime(&c.UpdatedAt)); err != nil {
			return nil, fmt.Errorf("failed to scan configuration: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns the value of an active setting, or nil when absent.
func (r *Repository) Get(key string) (*string, error) {
	var v string
	err := r.db.QueryRow(
		`SELECT value FROM ai_assistant_aliceconfiguration WHERE key = ? AND is_active = 1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &v, nil
}

// UpsertConfig creates or replaces a setting.
func (r *Repository) UpsertConfig(ctx context.Context, in ConfigurationInput) error {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ai_assistant_aliceconfiguration (key, value, description, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			description = CASE WHEN excluded.description = '' THEN description ELSE excluded.description END,
			is_active = excluded.is_active, updated_at = excluded.updated_at`,
		in.Key, in.Value, in.Description, active, database.Now())
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", in.Key, err)
	}
	return nil
}

// CatalogColumns returns the documented columns of the schema catalog.
func (r *Repository) CatalogColumns(ctx context.Context) ([]SchemaColumn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT table_name, column_name, data_type, is_nullable, column_default, column_description,
		business_meaning, sample_values FROM ai_assistant_databaseschema ORDER BY table_name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema catalog: %w", err)
	}
	defer rows.Close()
	var out []SchemaColumn
	for rows.Next() {
		var c SchemaColumn
		var samples string
		if err := rows.Scan(&c.TableName, &c.ColumnName, &c.DataType, &c.IsNullable, &c.ColumnDefault,
			&c.ColumnDescription, &c.BusinessMeaning, &samples); err != nil {
			return nil, fmt.Errorf("failed to scan schema column: %w", err)
		}
		if err := json.Unmarshal([]byte(samples), &c.SampleValues); err != nil {
			r.log.Debug().Err(err).Str("table", c.TableName).Str("column", c.ColumnName).Msg("Invalid sample values")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCatalogColumn stores a column's technical metadata, keeping any
// description and business meaning already recorded.
func (r *Repository) UpsertCatalogColumn(ctx context.Context, c SchemaColumn) error {
	samples, err := json.Marshal(c.SampleValues)
	if err != nil {
		return fmt.Errorf("failed to encode sample values: %w", err)
	}
	if c.SampleValues == nil {
		samples = []byte("[]")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO ai_assistant_databaseschema (table_name, column_name, data_type, is_nullable, column_default,
		column_description, business_meaning, sample_values, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, column_name) DO UPDATE SET data_type = excluded.data_type,
			is_nullable = excluded.is_nullable, column_default = excluded.column_default,
			sample_values = excluded.sample_values, updated_at = excluded.updated_at`,
		c.TableName, c.ColumnName, c.DataType, c.IsNullable, c.ColumnDefault, c.ColumnDescription,
		c.BusinessMeaning, string(samples), database.Now())
	if err != nil {
		return fmt.Errorf("failed to save schema column %s.%s: %w", c.TableName, c.ColumnName, err)
	}
	return nil
}

// usageCounts fills the counters of Stats.
func (r *Repository) usageCounts(ctx context.Context, s *Stats) error {
	err := r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM ai_assistant_conversationsession),
		(SELECT COUNT(*) FROM ai_assistant_conversationsession WHERE is_active = 1),
		(SELECT COUNT(*) FROM ai_assistant_conversationmessage),
		(SELECT COUNT(*) FROM ai_assistant_querylog),
		(SELECT COUNT(*) FROM ai_assistant_querylog WHERE execution_status = ?)`, StatusSuccess).
		Scan(&s.TotalSessions, &s.ActiveSessions, &s.TotalMessages, &s.TotalQueries, &s.SuccessfulQueries)
	if err != nil {
		return fmt.Errorf("failed to count assistant usage: %w", err)
	}
	return nil
}

// executionTimes returns the elapsed milliseconds of successful queries.
func (r *Repository) executionTimes(ctx context.Context) ([]float64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT execution_time_ms FROM ai_assistant_querylog WHERE execution_status = ?`, StatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to read execution times: %w", err)
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		out = append(out, float64(ms))
	}
	return out, rows.Err()
}

// mostActiveUser returns the email of the user with the most sessions.
func (r *Repository) mostActiveUser(ctx context.Context) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT u.email FROM ai_assistant_conversationsession s
		JOIN accounts_user u ON u.id = s.user_id
		GROUP BY u.id ORDER BY COUNT(*) DESC, u.id LIMIT 1`).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find most active user: %w", err)
	}
	return email, nil
}

// popularQuestions returns the most frequent questions.
func (r *Repository) popularQuestions(ctx context.Context, limit int) ([]QuestionCount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_question, COUNT(*) FROM ai_assistant_querylog
		GROUP BY user_question ORDER BY COUNT(*) DESC, user_question LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read popular questions: %w", err)
	}
	defer rows.Close()
	out := []QuestionCount{}
	for rows.Next() {
		var q QuestionCount
		if err := rows.Scan(&q.Question, &q.Count); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
