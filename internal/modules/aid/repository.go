package aid

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

// Repository handles assistance database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new assistance repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "aid").Logger(),
	}
}

const (
	aidSelect = `SELECT a.id, e.id, e.full_name, bl.id, bl.summary_description, a.type, a.total_amount,
		a.installment_count, a.amount_per_installment, a.start_date, a.end_date, a.notes, a.status, `
	aidFrom = `aid_assistance a
		JOIN employee_employee e ON e.id = a.employee_id
		JOIN budgetline_budgetline bl ON bl.id = a.budget_line_id
		JOIN budget_budget b ON b.id = bl.budget_id`
)

var aidOrdering = map[string]string{
	"id": "a.id", "employee": "e.full_name", "total_amount": "a.total_amount", "start_date": "a.start_date",
	"status": "a.status", "created_at": "a.created_at",
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// List returns a page of visible assistances.
func (r *Repository) List(ctx context.Context, scope *access.Scope, p domain.ListParams, f ListFilter) ([]Assistance, int, error) {
	var w database.Where
	scope.ApplyCenter(&w, access.LineCenter("bl", "b"))
	w.Search(p.Search, "e.full_name", "a.notes")
	if f.EmployeeID != nil {
		w.Add("a.employee_id = ?", *f.EmployeeID)
	}
	if f.BudgetLineID != nil {
		w.Add("a.budget_line_id = ?", *f.BudgetLineID)
	}
	if f.Status != "" {
		w.Add("a.status = ?", f.Status)
	}
	if f.Type != "" {
		w.Add("a.type = ?", f.Type)
	}

	total, err := database.Count(ctx, r.db, aidFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	out, err := r.query(ctx, &w, database.OrderBy(p.Ordering, aidOrdering, "a.created_at DESC, a.id DESC")+
		database.LimitOffset(p.Limit(), p.Offset()))
	return out, total, err
}

// ListForEmployee returns the visible assistances of an employee.
func (r *Repository) ListForEmployee(ctx context.Context, scope *access.Scope, employeeID int64) ([]Assistance, error) {
	var w database.Where
	scope.ApplyCenter(&w, access.LineCenter("bl", "b"))
	w.Add("a.employee_id = ?", employeeID)
	return r.query(ctx, &w, " ORDER BY a.start_date DESC, a.id DESC")
}

func (r *Repository) query(ctx context.Context, w *database.Where, tail string) ([]Assistance, error) {
	rows, err := r.db.QueryContext(ctx, aidSelect+database.AuditColumns("a")+" FROM "+aidFrom+database.AuditJoins("a")+
		w.SQL()+tail, w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assistances: %w", err)
	}
	defer rows.Close()

	out := make([]Assistance, 0)
	for rows.Next() {
		a, err := scanAssistance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Get returns one visible assistance.
func (r *Repository) Get(ctx context.Context, scope *access.Scope, id int64) (*Assistance, error) {
	var w database.Where
	w.Add("a.id = ?", id)
	scope.ApplyCenter(&w, access.LineCenter("bl", "b"))
	a, err := scanAssistance(r.db.QueryRowContext(ctx,
		aidSelect+database.AuditColumns("a")+" FROM "+aidFrom+database.AuditJoins("a")+w.SQL(), w.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("assistance %d", id)
	}
	return a, err
}

func scanAssistance(s scanner) (*Assistance, error) {
	var a Assistance
	var count sql.NullInt64
	var audit database.AuditScan
	dest := []interface{}{
		&a.ID, &a.Employee.ID, &a.Employee.Name, &a.BudgetLine.ID, database.ScanNullString(&a.BudgetLine.Name),
		database.ScanNullString(&a.Type), &a.TotalAmount, &count, &a.AmountPerInstallment, &a.StartDate, &a.EndDate,
		&a.Notes, &a.Status,
	}
	if err := s.Scan(append(dest, audit.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan assistance: %w", err)
	}
	if count.Valid {
		n := int(count.Int64)
		a.InstallmentCount = &n
	}
	a.TotalAmount = domain.RoundMoney(a.TotalAmount)
	if a.AmountPerInstallment.Valid {
		a.AmountPerInstallment.Decimal = domain.RoundMoney(a.AmountPerInstallment.Decimal)
	}
	a.Audit = audit.Audit()
	return &a, nil
}

// LineCenter returns the owning management center of a budget line.
func (r *Repository) LineCenter(ctx context.Context, lineID int64) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT `+access.LineCenter("bl", "b")+`
		FROM budgetline_budgetline bl JOIN budget_budget b ON b.id = bl.budget_id WHERE bl.id = ?`, lineID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load budget line center: %w", err)
	}
	return id, true, nil
}

// EmployeeExists reports whether an employee exists.
func (r *Repository) EmployeeExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM employee_employee WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check employee: %w", err)
	}
	return n > 0, nil
}

func args(in Input) []interface{} {
	var count interface{}
	if in.InstallmentCount != nil {
		count = *in.InstallmentCount
	}
	var per interface{}
	if in.AmountPerInstallment.Valid {
		per = in.AmountPerInstallment.Decimal
	}
	return []interface{}{
		in.EmployeeID, in.BudgetLineID, database.NullString(in.Type), in.TotalAmount, count, per,
		in.StartDate, in.EndDate, in.Notes, in.Status,
	}
}

// Create inserts an assistance.
func (r *Repository) Create(ctx context.Context, in Input, userID int64) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO aid_assistance (employee_id, budget_line_id, type, total_amount,
		installment_count, amount_per_installment, start_date, end_date, notes, status, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(args(in), now, now, database.UserArg(userID), database.UserArg(userID))...)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return res.LastInsertId()
}

// Update updates an assistance.
func (r *Repository) Update(ctx context.Context, id int64, in Input, userID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE aid_assistance SET employee_id = ?, budget_line_id = ?, type = ?,
		total_amount = ?, installment_count = ?, amount_per_installment = ?, start_date = ?, end_date = ?, notes = ?,
		status = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		append(args(in), database.Now(), database.UserArg(userID), id)...)
	if err != nil {
		return mapWriteError(err)
	}
	return database.RequireAffected(res, "assistance", id)
}

// Delete deletes an assistance.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM aid_assistance WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete assistance: %w", err)
	}
	return database.RequireAffected(res, "assistance", id)
}

func mapWriteError(err error) error {
	if database.IsForeignKeyViolation(err) {
		return domain.NewValidationError(domain.NonFieldErrors, "Invalid pk - object does not exist.")
	}
	return fmt.Errorf("failed to write assistance: %w", err)
}
