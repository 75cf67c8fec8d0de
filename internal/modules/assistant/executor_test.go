package assistant

import (
	"context"
	"testing"
	"time"

	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorPrepare(t *testing.T) {
	e := NewExecutor(nil, 50, time.Second, zerolog.Nop())

	assert.Equal(t, "SELECT * FROM budget_budget LIMIT 50", e.Prepare("SELECT * FROM budget_budget;"))
	assert.Equal(t, "SELECT * FROM budget_budget limit 5", e.Prepare("SELECT * FROM budget_budget limit 5"))
	assert.Equal(t, "SELECT 'LIMIT 3' FROM budget_budget LIMIT 50", e.Prepare("SELECT 'LIMIT 3' FROM budget_budget"))
	assert.Equal(t, "SELECT * FROM budget_budget WHERE id IN (SELECT id FROM budget_budget LIMIT 2) LIMIT 50",
		e.Prepare("SELECT * FROM budget_budget WHERE id IN (SELECT id FROM budget_budget LIMIT 2)"))
	assert.Equal(t, `SELECT "limit" FROM budget_budget LIMIT 50`, e.Prepare(`SELECT "limit" FROM budget_budget`))
}

func TestExecutorRun(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "alice_executor")
	conn := db.Conn()
	conn.SetMaxOpenConns(1)
	fx := testingpkg.NewFixtures(t, conn)
	mc := fx.ManagementCenter("CG-01")
	fx.Budget(2025, "OPEX", mc, "1000")
	fx.Budget(2024, "CAPEX", mc, "500")

	e := NewExecutor(conn, 1, 5*time.Second, zerolog.Nop())
	ctx := context.Background()

	rows, executed, err := e.Run(ctx, "SELECT b.year, mc.name FROM budget_budget b JOIN center_management_center mc ON mc.id = b.management_center_id ORDER BY b.year")
	require.NoError(t, err)
	assert.Contains(t, executed, "LIMIT 1")
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2024, rows[0]["year"])
	assert.Equal(t, "CG-01", rows[0]["name"])

	rows, _, err = e.Run(ctx, "SELECT year FROM budget_budget LIMIT 100000")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "an explicit LIMIT cannot raise the row cap")

	_, _, err = e.Run(ctx, "DELETE FROM budget_budget")
	var guard *GuardError
	assert.ErrorAs(t, err, &guard)

	// The pooled connection must accept writes again afterwards.
	_, err = conn.ExecContext(ctx, "UPDATE budget_budget SET category = 'OPEX' WHERE year = 2024")
	assert.NoError(t, err)
}
