package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSQL(t *testing.T) {
	tests := []struct {
		name  string
		query string
		err   string
	}{
		{"simple select", "SELECT * FROM contract_contract", ""},
		{"join", "select c.id from contract_contract c join budgetline_budgetline bl on bl.id = c.budget_line_id", ""},
		{"audit columns", "SELECT created_at, updated_at FROM budget_budget", ""},
		{"cte", "WITH t AS (SELECT id FROM budget_budget) SELECT * FROM t", ""},
		{"trailing semicolon", "SELECT * FROM budget_budget;", ""},
		{"keyword in literal", "SELECT 'DROP' AS word FROM budget_budget", ""},
		{"keyword in comment", "SELECT * FROM budget_budget -- DELETE everything", ""},
		{"subquery in from", "SELECT * FROM (SELECT id FROM budget_budget) x", ""},
		{"comma list", "SELECT * FROM budget_budget b, contract_contract c WHERE b.id = c.id", ""},
		{"empty", "   ", "Consulta SQL vazia"},
		{"delete", "DELETE FROM budget_budget", "Apenas consultas SELECT são permitidas"},
		{"stacked drop", "SELECT * FROM budget_budget; DROP TABLE budget_budget", "Comando DROP não é permitido"},
		{"second statement", "SELECT * FROM budget_budget; SELECT 1", "Apenas uma instrução SQL é permitida"},
		{"pragma", "SELECT * FROM pragma_table_info('x'); PRAGMA query_only", "Comando PRAGMA não é permitido"},
		{"system table", "SELECT * FROM sqlite_master", "Acesso à tabela sqlite_master não é permitido"},
		{"comma list outsider", "SELECT * FROM budget_budget b, ai_assistant_querylog q", "Acesso à tabela ai_assistant_querylog não é permitido"},
		{"subquery outsider", "SELECT (SELECT COUNT(*) FROM ai_assistant_querylog) FROM budget_budget", "Acesso à tabela ai_assistant_querylog não é permitido"},
		{"join outsider", "SELECT * FROM budget_budget b JOIN accounts_user_groups g ON g.user_id = b.created_by", "Acesso à tabela accounts_user_groups não é permitido"},
		{"quoted whitelisted", `SELECT "b"."year" FROM "budget_budget" AS "b" JOIN [contract_contract] c ON 1`, ""},
		{"quoted cte", `WITH "totais" (ano) AS (SELECT year FROM budget_budget) SELECT * FROM "totais"`, ""},
		{"subquery then comma", "SELECT * FROM (SELECT id FROM budget_budget) x, contract_contract c", ""},
		{"in list", "SELECT * FROM budget_budget WHERE status IN ('ATIVO', 'INATIVO')", ""},
		{"double quoted system table", `SELECT * FROM "sqlite_master"`, "Acesso à tabela sqlite_master não é permitido"},
		{"backtick system table", "SELECT * FROM `sqlite_master`", "Acesso à tabela sqlite_master não é permitido"},
		{"bracketed outsider", "SELECT * FROM [ai_assistant_querylog]", "Acesso à tabela ai_assistant_querylog não é permitido"},
		{"double quoted join outsider", `SELECT * FROM budget_budget b JOIN "accounts_user_groups" g ON g.user_id = b.created_by`, "Acesso à tabela accounts_user_groups não é permitido"},
		{"string as table", "SELECT * FROM 'sqlite_master'", "Nome de tabela inválido"},
		{"quoted alias before outsider", `SELECT * FROM budget_budget "b", sqlite_master`, "Acesso à tabela sqlite_master não é permitido"},
		{"outsider after subquery", "SELECT * FROM (SELECT id FROM budget_budget) x, sqlite_master", "Acesso à tabela sqlite_master não é permitido"},
		{"outsider after join constraint", "SELECT * FROM budget_budget b JOIN contract_contract c ON c.id = b.id, sqlite_master", "Acesso à tabela sqlite_master não é permitido"},
		{"parenthesised outsider", "SELECT * FROM (sqlite_master)", "Acesso à tabela sqlite_master não é permitido"},
		{"schema qualified", "SELECT * FROM main.budget_budget", "Acesso à tabela main não é permitido"},
		{"in table", "SELECT * FROM budget_budget WHERE id IN ai_assistant_querylog", "Acesso à tabela ai_assistant_querylog não é permitido"},
		{"window named like table", "WITH t AS (SELECT 1) SELECT count(*) OVER w FROM sqlite_master WINDOW w AS (), sqlite_master AS ()", "Acesso à tabela sqlite_master não é permitido"},
		{"quoted cte does not cover outsider", `WITH "t" AS (SELECT 1) SELECT * FROM t, [sqlite_master]`, "Acesso à tabela sqlite_master não é permitido"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSQL(tt.query)
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var guard *GuardError
			require.ErrorAs(t, err, &guard)
			assert.Equal(t, tt.err, guard.Reason)
		})
	}
}

func TestSafeTableNamesSorted(t *testing.T) {
	names := SafeTableNames()
	assert.Len(t, names, len(SafeTables))
	assert.IsIncreasing(t, names)
}
