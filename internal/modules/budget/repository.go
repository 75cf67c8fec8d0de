package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles budget database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new budget repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "budget").Logger(),
	}
}

// DB exposes the connection for transactional callers.
func (r *Repository) DB() *sql.DB {
	return r.db
}

const (
	budgetSelect = `SELECT b.id, b.year, b.category, mc.id, mc.name, b.total_amount, b.available_amount, b.status,
		(SELECT COALESCE(ROUND(SUM(budgeted_amount), 2), 0) FROM budgetline_budgetline WHERE budget_id = b.id),
		(SELECT COALESCE(ROUND(SUM(amount), 2), 0) FROM budget_budgetmovement WHERE destination_id = b.id),
		(SELECT COALESCE(ROUND(SUM(amount), 2), 0) FROM budget_budgetmovement WHERE source_id = b.id), `
	budgetFrom = "budget_budget b JOIN center_management_center mc ON mc.id = b.management_center_id"

	movementSelect = `SELECT m.id, src.id, src.year, src.category, smc.name, dst.id, dst.year, dst.category, dmc.name,
		m.amount, m.movement_date, m.notes, `
	movementFrom = `budget_budgetmovement m
		JOIN budget_budget src ON src.id = m.source_id
		JOIN center_management_center smc ON smc.id = src.management_center_id
		JOIN budget_budget dst ON dst.id = m.destination_id
		JOIN center_management_center dmc ON dmc.id = dst.management_center_id`
)

var (
	budgetOrdering = map[string]string{
		"id": "b.id", "year": "b.year", "category": "b.category", "status": "b.status",
		"total_amount": "b.total_amount", "available_amount": "b.available_amount",
		"management_center": "mc.name", "created_at": "b.created_at",
	}
	movementOrdering = map[string]string{
		"id": "m.id", "movement_date": "m.movement_date", "amount": "m.amount", "created_at": "m.created_at",
	}
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// List returns a page of visible budgets.
func (r *Repository) List(ctx context.Context, scope *access.Scope, p domain.ListParams, f ListFilter) ([]Budget, int, error) {
	var w database.Where
	scope.ApplyCenter(&w, "b.management_center_id")
	w.Search(p.Search, "mc.name", "b.category", "CAST(b.year AS TEXT)")
	if f.Year != nil {
		w.Add("b.year = ?", *f.Year)
	}
	if f.Category != "" {
		w.Add("b.category = ?", f.Category)
	}
	if f.Status != "" {
		w.Add("b.status = ?", f.Status)
	}
	if f.ManagementCenterID != nil {
		w.Add("b.management_center_id = ?", *f.ManagementCenterID)
	}

	total, err := database.Count(ctx, r.db, budgetFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, budgetSelect+database.AuditColumns("b")+" FROM "+budgetFrom+database.AuditJoins("b")+
		w.SQL()+database.OrderBy(p.Ordering, budgetOrdering, "b.year DESC, b.category ASC")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	out := make([]Budget, 0)
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

// Get returns one visible budget.
func (r *Repository) Get(ctx context.Context, scope *access.Scope, id int64) (*Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx,
		budgetSelect+database.AuditColumns("b")+" FROM "+budgetFrom+database.AuditJoins("b")+" WHERE b.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !scope.CanAccessCenter(b.ManagementCenter.ID)) {
		return nil, domain.NotFoundf("budget %d", id)
	}
	return b, err
}

func scanBudget(s scanner) (*Budget, error) {
	var b Budget
	var a database.AuditScan
	dest := []interface{}{
		&b.ID, &b.Year, &b.Category, &b.ManagementCenter.ID, &b.ManagementCenter.Name,
		&b.TotalAmount, &b.AvailableAmount, &b.Status, &b.UsedAmount, &b.IncomingAmount, &b.OutgoingAmount,
	}
	if err := s.Scan(append(dest, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan budget: %w", err)
	}
	b.Audit = a.Audit()
	amounts := Amounts{Total: b.TotalAmount, Used: b.UsedAmount, Incoming: b.IncomingAmount, Outgoing: b.OutgoingAmount}
	b.TotalAmount = domain.RoundMoney(b.TotalAmount)
	b.AvailableAmount = domain.RoundMoney(b.AvailableAmount)
	b.CalculatedAvailableAmount = amounts.Available()
	return &b, nil
}

// Exists reports whether (year, category, center) is taken by a budget other than excludeID.
func (r *Repository) Exists(ctx context.Context, year int, category string, centerID, excludeID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM budget_budget WHERE year = ? AND category = ? AND management_center_id = ? AND id <> ?`,
		year, category, centerID, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check budget uniqueness: %w", err)
	}
	return n > 0, nil
}

// CenterName returns the name of a management center.
func (r *Repository) CenterName(ctx context.Context, id int64) (string, bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT name FROM center_management_center WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load management center: %w", err)
	}
	return name, true, nil
}

// CenterOf returns the management center of a budget.
func (r *Repository) CenterOf(ctx context.Context, q database.Querier, budgetID int64) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT management_center_id FROM budget_budget WHERE id = ?`, budgetID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load budget center: %w", err)
	}
	return id, true, nil
}

func insertBudget(ctx context.Context, tx *sql.Tx, in Input, userID int64) (int64, error) {
	now := database.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO budget_budget (year, category, management_center_id, total_amount, available_amount, status, created_at, updated_at, created_by, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Year, in.Category, in.ManagementCenterID, in.TotalAmount, in.TotalAmount, in.Status,
		now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "budget")
	}
	return res.LastInsertId()
}

func updateBudget(ctx context.Context, tx *sql.Tx, id int64, in Input, userID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE budget_budget SET year = ?, category = ?, management_center_id = ?, total_amount = ?, status = ?, updated_at = ?, updated_by = ?
		 WHERE id = ?`,
		in.Year, in.Category, in.ManagementCenterID, in.TotalAmount, in.Status, database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "budget")
	}
	return database.RequireAffected(res, "budget", id)
}

// Delete removes a budget without lines or movements.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	var lines, movements int
	err := r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM budgetline_budgetline WHERE budget_id = ?),
		(SELECT COUNT(*) FROM budget_budgetmovement WHERE source_id = ? OR destination_id = ?)`, id, id, id).Scan(&lines, &movements)
	if err != nil {
		return fmt.Errorf("failed to check budget references: %w", err)
	}
	if lines > 0 {
		return domain.Conflictf("cannot delete budget %d: it has %d budget line(s)", id, lines)
	}
	if movements > 0 {
		return domain.Conflictf("cannot delete budget %d: it has %d movement(s)", id, movements)
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM budget_budget WHERE id = ?`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return domain.Conflictf("cannot delete budget %d: it is still referenced by other records", id)
		}
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	return database.RequireAffected(res, "budget", id)
}

// IDs returns every budget id, for reconciliation.
func (r *Repository) IDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM budget_budget ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan budget id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMovements returns a page of movements whose source or destination is visible.
func (r *Repository) ListMovements(ctx context.Context, scope *access.Scope, p domain.ListParams, f MovementFilter) ([]Movement, int, error) {
	var w database.Where
	scope.ApplyAnyCenter(&w, "src.management_center_id", "dst.management_center_id")
	w.Search(p.Search, "m.notes", "smc.name", "dmc.name")
	if f.SourceID != nil {
		w.Add("m.source_id = ?", *f.SourceID)
	}
	if f.DestinationID != nil {
		w.Add("m.destination_id = ?", *f.DestinationID)
	}
	if f.BudgetID != nil {
		w.Add("(m.source_id = ? OR m.destination_id = ?)", *f.BudgetID, *f.BudgetID)
	}

	total, err := database.Count(ctx, r.db, movementFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, movementSelect+database.AuditColumns("m")+" FROM "+movementFrom+database.AuditJoins("m")+
		w.SQL()+database.OrderBy(p.Ordering, movementOrdering, "m.movement_date DESC, m.id DESC")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list movements: %w", err)
	}
	defer rows.Close()

	out := make([]Movement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

// GetMovement returns one visible movement.
func (r *Repository) GetMovement(ctx context.Context, scope *access.Scope, id int64) (*Movement, error) {
	var w database.Where
	w.Add("m.id = ?", id)
	scope.ApplyAnyCenter(&w, "src.management_center_id", "dst.management_center_id")
	m, err := scanMovement(r.db.QueryRowContext(ctx,
		movementSelect+database.AuditColumns("m")+" FROM "+movementFrom+database.AuditJoins("m")+w.SQL(), w.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("movement %d", id)
	}
	return m, err
}

func scanMovement(s scanner) (*Movement, error) {
	var m Movement
	var a database.AuditScan
	var src, dst Budget
	dest := []interface{}{
		&m.ID, &src.ID, &src.Year, &src.Category, &src.ManagementCenter.Name,
		&dst.ID, &dst.Year, &dst.Category, &dst.ManagementCenter.Name,
		&m.Amount, &m.MovementDate, &m.Notes,
	}
	if err := s.Scan(append(dest, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan movement: %w", err)
	}
	m.Source = BudgetRef{ID: src.ID, Label: src.Label()}
	m.Destination = BudgetRef{ID: dst.ID, Label: dst.Label()}
	m.Amount = domain.RoundMoney(m.Amount)
	m.Audit = a.Audit()
	return &m, nil
}

func movementEnds(ctx context.Context, q database.Querier, id int64) (source, destination int64, err error) {
	err = q.QueryRowContext(ctx, `SELECT source_id, destination_id FROM budget_budgetmovement WHERE id = ?`, id).Scan(&source, &destination)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, domain.NotFoundf("movement %d", id)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load movement: %w", err)
	}
	return source, destination, nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, in MovementInput, date domain.Date, userID int64) (int64, error) {
	now := database.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO budget_budgetmovement (source_id, destination_id, amount, movement_date, notes, created_at, updated_at, created_by, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.SourceID, in.DestinationID, in.Amount, date, in.Notes, now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "movement")
	}
	return res.LastInsertId()
}

func updateMovement(ctx context.Context, tx *sql.Tx, id int64, in MovementInput, userID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE budget_budgetmovement SET source_id = ?, destination_id = ?, amount = ?, notes = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		in.SourceID, in.DestinationID, in.Amount, in.Notes, database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "movement")
	}
	return database.RequireAffected(res, "movement", id)
}

// LineAmounts returns the budgeted amounts of the lines of budgets in a
// category, optionally limited to one year and to visible centers.
func (r *Repository) LineAmounts(ctx context.Context, scope *access.Scope, year *int64, category domain.Category) ([]float64, error) {
	var w database.Where
	scope.ApplyCenter(&w, "b.management_center_id")
	w.Add("b.category = ?", string(category))
	if year != nil {
		w.Add("b.year = ?", *year)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT bl.budgeted_amount FROM budgetline_budgetline bl JOIN budget_budget b ON b.id = bl.budget_id`+w.SQL(), w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to load line amounts: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan line amount: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func mapWriteError(err error, entity string) error {
	switch {
	case database.IsUniqueViolation(err):
		return domain.NewValidationError(domain.NonFieldErrors, "A budget for this year, category and management center already exists.")
	case database.IsForeignKeyViolation(err):
		return domain.NewValidationError(domain.NonFieldErrors, "Invalid pk - object does not exist.")
	default:
		return fmt.Errorf("failed to write %s: %w", entity, err)
	}
}
