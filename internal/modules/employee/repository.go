package employee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles employee database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new employee repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "employee").Logger(),
	}
}

const (
	employeeSelect = `SELECT e.id, e.full_name, e.email, e.cpf, e.position, e.department,
		ed.id, ed.name, em.id, em.name, ec.id, ec.name, e.status, `
	employeeFrom = `employee_employee e
		LEFT JOIN sector_direction ed ON ed.id = e.direction_id
		LEFT JOIN sector_management em ON em.id = e.management_id
		LEFT JOIN sector_coordination ec ON ec.id = e.coordination_id`
)

var employeeOrdering = map[string]string{
	"id":         "e.id",
	"full_name":  "e.full_name",
	"email":      "e.email",
	"status":     "e.status",
	"created_at": "e.created_at",
}

// List returns a page of employees visible in scope.
func (r *Repository) List(ctx context.Context, scope *access.Scope, p domain.ListParams, f ListFilter) ([]Employee, int, error) {
	var w database.Where
	scope.ApplyEmployee(&w, "e")
	w.Search(p.Search, "e.full_name", "e.email", "e.cpf")
	if f.DirectionID != nil {
		w.Add("e.direction_id = ?", *f.DirectionID)
	}
	if f.ManagementID != nil {
		w.Add("e.management_id = ?", *f.ManagementID)
	}
	if f.CoordinationID != nil {
		w.Add("e.coordination_id = ?", *f.CoordinationID)
	}
	if f.Status != "" {
		w.Add("e.status = ?", f.Status)
	}

	total, err := database.Count(ctx, r.db, employeeFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, employeeSelect+database.AuditColumns("e")+" FROM "+employeeFrom+database.AuditJoins("e")+
		w.SQL()+database.OrderBy(p.Ordering, employeeOrdering, "e.full_name")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	out := make([]Employee, 0)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// Get returns one employee visible in scope.
func (r *Repository) Get(ctx context.Context, scope *access.Scope, id int64) (*Employee, error) {
	var w database.Where
	w.Add("e.id = ?", id)
	scope.ApplyEmployee(&w, "e")
	e, err := scanEmployee(r.db.QueryRowContext(ctx,
		employeeSelect+database.AuditColumns("e")+" FROM "+employeeFrom+database.AuditJoins("e")+w.SQL(), w.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("employee %d", id)
	}
	return e, err
}

func scanEmployee(s interface{ Scan(...interface{}) error }) (*Employee, error) {
	var e Employee
	var dir, mgmt, coord database.RefScan
	var a database.AuditScan
	dest := []interface{}{&e.ID, &e.FullName, &e.Email, &e.CPF, &e.Position, &e.Department}
	dest = append(dest, dir.Targets()...)
	dest = append(dest, mgmt.Targets()...)
	dest = append(dest, coord.Targets()...)
	dest = append(dest, &e.Status)
	if err := s.Scan(append(dest, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan employee: %w", err)
	}
	e.Direction, e.Management, e.Coordination = dir.Ref(), mgmt.Ref(), coord.Ref()
	e.Audit = a.Audit()
	return &e, nil
}

// Create inserts an employee.
func (r *Repository) Create(ctx context.Context, in Input, userID int64) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO employee_employee
		(full_name, email, cpf, position, department, direction_id, management_id, coordination_id, status, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.FullName, in.Email, in.CPF, in.Position, in.Department,
		database.NullInt64(in.DirectionID), database.NullInt64(in.ManagementID), database.NullInt64(in.CoordinationID),
		in.Status, now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err)
	}
	return res.LastInsertId()
}

// Update updates an employee.
func (r *Repository) Update(ctx context.Context, id int64, in Input, userID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE employee_employee SET
		full_name = ?, email = ?, cpf = ?, position = ?, department = ?, direction_id = ?, management_id = ?, coordination_id = ?,
		status = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		in.FullName, in.Email, in.CPF, in.Position, in.Department,
		database.NullInt64(in.DirectionID), database.NullInt64(in.ManagementID), database.NullInt64(in.CoordinationID),
		in.Status, database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err)
	}
	return database.RequireAffected(res, "employee", id)
}

// Delete deletes an employee that inspects no contract and receives no aid.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM employee_employee WHERE id = ?`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return domain.Conflictf("cannot delete employee %d: it is referenced by contracts or aid", id)
		}
		return fmt.Errorf("failed to delete employee: %w", err)
	}
	return database.RequireAffected(res, "employee", id)
}

// ExistsWith reports whether another employee already uses value in column.
func (r *Repository) ExistsWith(ctx context.Context, column, value string, excludeID int64) (bool, error) {
	if column != "email" && column != "cpf" {
		return false, fmt.Errorf("unsupported uniqueness column %q", column)
	}
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM employee_employee WHERE "+column+" = ? AND id <> ?", value, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check employee %s: %w", column, err)
	}
	return n > 0, nil
}

// ParentOf returns the parent id of an organizational unit: the direction of a
// management or the management of a coordination. found is false for unknown ids.
func (r *Repository) ParentOf(ctx context.Context, table string, id int64) (parent int64, found bool, err error) {
	var query string
	switch table {
	case "sector_management":
		query = `SELECT direction_id FROM sector_management WHERE id = ?`
	case "sector_coordination":
		query = `SELECT management_id FROM sector_coordination WHERE id = ?`
	case "sector_direction":
		query = `SELECT 0 FROM sector_direction WHERE id = ?`
	default:
		return 0, false, fmt.Errorf("unknown unit table %q", table)
	}
	err = r.db.QueryRowContext(ctx, query, id).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load %s %d: %w", table, id, err)
	}
	return parent, true, nil
}

// PlacementVisible reports whether an employee placed in the given units would
// be visible in scope.
func (r *Repository) PlacementVisible(ctx context.Context, scope *access.Scope, in Input) (bool, error) {
	if scope.All {
		return true, nil
	}
	var w database.Where
	scope.ApplyEmployee(&w, "p")
	args := append([]interface{}{
		database.NullInt64(in.DirectionID), database.NullInt64(in.ManagementID), database.NullInt64(in.CoordinationID),
	}, w.Args()...)
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT ? AS direction_id, ? AS management_id, ? AS coordination_id) p`+w.SQL(), args...).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check placement: %w", err)
	}
	return n > 0, nil
}

func mapWriteError(err error) error {
	switch {
	case database.IsUniqueViolation(err) && containsColumn(err, "cpf"):
		return domain.NewValidationError("cpf", "Employee with this cpf already exists.")
	case database.IsUniqueViolation(err):
		return domain.NewValidationError("email", "Employee with this email already exists.")
	case database.IsForeignKeyViolation(err):
		return domain.NewValidationError(domain.NonFieldErrors, "Invalid pk - object does not exist.")
	default:
		return fmt.Errorf("failed to write employee: %w", err)
	}
}

func containsColumn(err error, column string) bool {
	return strings.Contains(err.Error(), "employee_employee."+column)
}
