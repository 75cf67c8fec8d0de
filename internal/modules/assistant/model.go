package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// ErrModelNotConfigured is returned when no API key is available.
var ErrModelNotConfigured = errors.New("assistant model is not configured")

// Completion is the text a model produced.
type Completion struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Model generates text from a system instruction and a prompt.
type Model interface {
	Generate(ctx context.Context, system, prompt string) (*Completion, error)
}

// ModelSettings are read before every call so that stored configuration
// takes effect without a restart.
type ModelSettings func() (model string, temperature float64)

// GeminiModel implements Model with the Gemini API.
type GeminiModel struct {
	client   *genai.Client
	settings ModelSettings
	log      zerolog.Logger
}

// NewGeminiModel creates a Gemini client. An empty key yields a model that
// always fails with ErrModelNotConfigured.
func NewGeminiModel(ctx context.Context, apiKey string, settings ModelSettings, log zerolog.Logger) (*GeminiModel, error) {
	m := &GeminiModel{
		settings: settings,
		log:      log.With().Str("client", "gemini").Logger(),
	}
	if apiKey == "" {
		m.log.Warn().Msg("GEMINI_API_KEY not set, assistant queries are disabled")
		return m, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	m.client = client
	return m, nil
}

// Generate implements Model.
func (m *GeminiModel) Generate(ctx context.Context, system, prompt string) (*Completion, error) {
	if m.client == nil {
		return nil, ErrModelNotConfigured
	}
	model, temperature := m.settings()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := m.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("Gemini generate failed: %w", err)
	}

	out := &Completion{Text: resp.Text(), Model: model}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
	}
	if out.Text == "" {
		return nil, fmt.Errorf("Gemini returned an empty response")
	}
	m.log.Debug().
		Str("model", model).
		Int("prompt_tokens", out.PromptTokens).
		Int("completion_tokens", out.CompletionTokens).
		Msg("Generated completion")
	return out, nil
}
