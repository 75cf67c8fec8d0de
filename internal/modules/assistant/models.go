// Package assistant implements Alice, which answers natural-language
// questions by generating, guarding and executing read-only SQL.
package assistant

import (
	"encoding/json"
	"time"
)

// Message types.
const (
	MessageUser      = "USER"
	MessageAssistant = "ASSISTANT"
	MessageSystem    = "SYSTEM"
	MessageError     = "ERROR"
)

// Query execution statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
	StatusPending = "PENDING"
)

// maxTitleLength bounds session titles taken from the first question.
const maxTitleLength = 50

// Session is a conversation between a user and Alice.
type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user"`
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	IsActive     bool      `json:"is_active"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionDetail is a session with its messages in chronological order.
type SessionDetail struct {
	Session
	Messages []Message `json:"messages"`
}

// Message is one turn of a conversation.
type Message struct {
	ID          int64           `json:"id"`
	MessageType string          `json:"message_type"`
	Content     string          `json:"content"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
}

// QueryLog records one interpretation and execution attempt.
type QueryLog struct {
	ID                int64
	SessionID         *int64
	UserID            int64
	UserQuestion      string
	InterpretedIntent string
	GeneratedSQL      string
	ExecutionStatus   string
	ExecutionTimeMs   int64
	ResultCount       int
	ErrorMessage      string
	ModelResponse     json.RawMessage
}

// Interpretation is the JSON document the model answers with.
type Interpretation struct {
	Intent          string   `json:"intent"`
	SQL             string   `json:"sql"`
	Explanation     string   `json:"explanation"`
	Confidence      float64  `json:"confidence"`
	TablesUsed      []string `json:"tables_used"`
	PotentialIssues []string `json:"potential_issues"`
}

// Row is one result row keyed by column name.
type Row map[string]interface{}

// ChatRequest is the body of the chat endpoints.
type ChatRequest struct {
	Message          string `json:"message"`
	Question         string `json:"question,omitempty"`
	SessionID        string `json:"session_id,omitempty"`
	CreateNewSession bool   `json:"create_new_session,omitempty"`
}

// ChatResponse is what every chat endpoint returns.
type ChatResponse struct {
	Success         bool                   `json:"success"`
	SessionID       string                 `json:"session_id,omitempty"`
	Response        string                 `json:"response"`
	SQLQuery        string                 `json:"sql_query,omitempty"`
	Data            []Row                  `json:"data"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	ResultCount     int                    `json:"result_count"`
	Error           string                 `json:"error,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// SchemaColumn is a catalogued column with its business meaning.
type SchemaColumn struct {
	TableName         string   `json:"table_name"`
	ColumnName        string   `json:"column_name"`
	DataType          string   `json:"data_type"`
	IsNullable        bool     `json:"is_nullable"`
	ColumnDefault     string   `json:"column_default"`
	ColumnDescription string   `json:"column_description"`
	BusinessMeaning   string   `json:"business_meaning"`
	SampleValues      []string `json:"sample_values"`
}

// TableInfo describes a queryable table.
type TableInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Columns     []SchemaColumn `json:"columns"`
}

// Configuration is a runtime setting of the assistant.
type Configuration struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConfigurationInput updates or creates a setting.
type ConfigurationInput struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

// QuestionCount is a frequently asked question.
type QuestionCount struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}

// Stats summarises assistant usage.
type Stats struct {
	TotalSessions     int             `json:"total_sessions"`
	ActiveSessions    int             `json:"active_sessions"`
	TotalMessages     int             `json:"total_messages"`
	TotalQueries      int             `json:"total_queries"`
	SuccessfulQueries int             `json:"successful_queries"`
	AvgResponseTimeMs float64         `json:"avg_response_time_ms"`
	P95ResponseTimeMs float64         `json:"p95_response_time_ms"`
	MostActiveUser    string          `json:"most_active_user"`
	PopularQuestions  []QuestionCount `json:"popular_questions"`
}

// sessionTitle derives a title from the first question.
func sessionTitle(question string) string {
	r := []rune(question)
	if len(r) > maxTitleLength {
		r = r[:maxTitleLength]
	}
	return string(r)
}
