package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/shopspring/decimal"
)

// amountsQuery sums lines and movements. NUMERIC columns come back as REAL,
// so every sum is rounded to cents in SQL before it reaches decimal.
const amountsQuery = `SELECT b.total_amount,
	(SELECT COALESCE(ROUND(SUM(budgeted_amount), 2), 0) FROM budgetline_budgetline WHERE budget_id = b.id),
	(SELECT COALESCE(ROUND(SUM(amount), 2), 0) FROM budget_budgetmovement WHERE destination_id = b.id),
	(SELECT COALESCE(ROUND(SUM(amount), 2), 0) FROM budget_budgetmovement WHERE source_id = b.id)
	FROM budget_budget b WHERE b.id = ?`

// LoadAmounts reads the figures of one budget.
func LoadAmounts(ctx context.Context, q database.Querier, budgetID int64) (Amounts, error) {
	var a Amounts
	err := q.QueryRowContext(ctx, amountsQuery, budgetID).Scan(&a.Total, &a.Used, &a.Incoming, &a.Outgoing)
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.NotFoundf("budget %d", budgetID)
	}
	if err != nil {
		return a, fmt.Errorf("failed to load budget amounts: %w", err)
	}
	a.Total = domain.RoundMoney(a.Total)
	a.Used = domain.RoundMoney(a.Used)
	a.Incoming = domain.RoundMoney(a.Incoming)
	a.Outgoing = domain.RoundMoney(a.Outgoing)
	return a, nil
}

// Recalculate stores the derived available amount of a budget and returns it.
// Callers run it inside the transaction that changed the budget, its lines or
// its movements.
func Recalculate(ctx context.Context, q database.Querier, budgetID int64) (decimal.Decimal, error) {
	a, err := LoadAmounts(ctx, q, budgetID)
	if err != nil {
		return decimal.Zero, err
	}
	available := a.Available()
	if _, err := q.ExecContext(ctx, `UPDATE budget_budget SET available_amount = ?, updated_at = ? WHERE id = ?`,
		available, database.Now(), budgetID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to store available amount: %w", err)
	}
	return available, nil
}

// RecalculateAll recalculates each distinct non-zero id once.
func RecalculateAll(ctx context.Context, q database.Querier, budgetIDs ...int64) error {
	seen := make(map[int64]struct{}, len(budgetIDs))
	for _, id := range budgetIDs {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := Recalculate(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}
