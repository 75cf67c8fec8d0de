package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterpretation(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain", `{"intent":"count","sql":"SELECT 1 FROM budget_budget","confidence":0.9}`},
		{"fenced", "```json\n{\"intent\":\"count\",\"sql\":\"SELECT 1 FROM budget_budget\",\"confidence\":0.9}\n```"},
		{"surrounding text", "Aqui está:\n{\"intent\":\"count\",\"sql\":\" SELECT 1 FROM budget_budget \",\"confidence\":0.9}\nObrigado"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInterpretation(tt.text)
			require.NoError(t, err)
			assert.Equal(t, "count", got.Intent)
			assert.Equal(t, "SELECT 1 FROM budget_budget", got.SQL)
			assert.InDelta(t, 0.9, got.Confidence, 1e-9)
		})
	}

	_, err := parseInterpretation("não sei")
	assert.Error(t, err)
}

func TestHumanizePromptTruncatesRows(t *testing.T) {
	rows := make([]Row, 25)
	for i := range rows {
		rows[i] = Row{"n": i}
	}
	prompt := humanizePrompt("quantos?", "SELECT n FROM t", rows)
	assert.Contains(t, prompt, "25 linhas, mostrando 20")
	assert.NotContains(t, prompt, `{"n":20}`)
}

func TestSessionTitle(t *testing.T) {
	long := "Quais contratos vencem no próximo mês e qual o valor total somado de todos eles?"
	assert.Len(t, []rune(sessionTitle(long)), maxTitleLength)
	assert.Equal(t, "curta", sessionTitle("curta"))
}
