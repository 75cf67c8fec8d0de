package budgetline

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

// Repository handles budget line database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new budget line repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "budgetline").Logger(),
	}
}

const (
	lineSelect = `SELECT bl.id, b.id, b.category || ' ' || b.year || ' - ' || bmc.name, bl.category, bl.expense_type,
		lmc.id, lmc.name, rc.id, rc.name, bl.summary_description, bl.object, bl.budget_classification,
		mf.id, mf.full_name, sf.id, sf.full_name, bl.contract_type, bl.probable_procurement_type, bl.budgeted_amount,
		bl.process_status, bl.contract_status, bl.contract_notes, `
	lineFrom = `budgetline_budgetline bl
		JOIN budget_budget b ON b.id = bl.budget_id
		JOIN center_management_center bmc ON bmc.id = b.management_center_id
		LEFT JOIN center_management_center lmc ON lmc.id = bl.management_center_id
		LEFT JOIN center_requesting_center rc ON rc.id = bl.requesting_center_id
		LEFT JOIN employee_employee mf ON mf.id = bl.main_fiscal_id
		LEFT JOIN employee_employee sf ON sf.id = bl.secondary_fiscal_id`

	movementSelect = `SELECT m.id, sl.id, sl.summary_description, dl.id, dl.summary_description, m.movement_amount, m.movement_notes, `
	movementFrom   = `budgetline_budgetlinemovement m
		LEFT JOIN budgetline_budgetline sl ON sl.id = m.source_line_id
		LEFT JOIN budget_budget sb ON sb.id = sl.budget_id
		LEFT JOIN budgetline_budgetline dl ON dl.id = m.destination_line_id
		LEFT JOIN budget_budget db ON db.id = dl.budget_id`
)

var (
	lineOrdering = map[string]string{
		"id": "bl.id", "budget": "b.id", "budgeted_amount": "bl.budgeted_amount", "expense_type": "bl.expense_type",
		"summary_description": "bl.summary_description", "created_at": "bl.created_at", "updated_at": "bl.updated_at",
	}
	movementOrdering = map[string]string{
		"id": "m.id", "movement_amount": "m.movement_amount", "created_at": "m.created_at",
	}
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// List returns a page of visible budget lines.
func (r *Repository) List(ctx context.Context, scope *access.Scope, p domain.ListParams, f ListFilter) ([]BudgetLine, int, error) {
	var w database.Where
	scope.ApplyCenter(&w, access.LineCenter("bl", "b"))
	w.Search(p.Search, "bl.summary_description", "bl.object", "bl.contract_notes")
	if f.BudgetID != nil {
		w.Add("bl.budget_id = ?", *f.BudgetID)
	}
	if f.ManagementCenterID != nil {
		w.Add("bl.management_center_id = ?", *f.ManagementCenterID)
	}
	if f.RequestingCenterID != nil {
		w.Add("bl.requesting_center_id = ?", *f.RequestingCenterID)
	}
	if f.MainFiscalID != nil {
		w.Add("bl.main_fiscal_id = ?", *f.MainFiscalID)
	}
	for column, value := range map[string]string{
		"bl.category":        f.Category,
		"bl.expense_type":    f.ExpenseType,
		"bl.contract_status": f.ContractStatus,
		"bl.process_status":  f.ProcessStatus,
	} {
		if value != "" {
			w.Add(column+" = ?", value)
		}
	}

	total, err := database.Count(ctx, r.db, lineFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, lineSelect+database.AuditColumns("bl")+" FROM "+lineFrom+database.AuditJoins("bl")+
		w.SQL()+database.OrderBy(p.Ordering, lineOrdering, "bl.created_at DESC, bl.id DESC")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list budget lines: %w", err)
	}
	defer rows.Close()

	out := make([]BudgetLine, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

// Get returns one visible budget line.
func (r *Repository) Get(ctx context.Context, scope *access.Scope, id int64) (*BudgetLine, error) {
	var w database.Where
	w.Add("bl.id = ?", id)
	scope.ApplyCenter(&w, access.LineCenter("bl", "b"))
	l, err := scanLine(r.db.QueryRowContext(ctx,
		lineSelect+database.AuditColumns("bl")+" FROM "+lineFrom+database.AuditJoins("bl")+w.SQL(), w.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("budget line %d", id)
	}
	return l, err
}

func scanLine(s scanner) (*BudgetLine, error) {
	var l BudgetLine
	var mc, rc, mf, sf database.RefScan
	var a database.AuditScan
	dest := []interface{}{&l.ID, &l.Budget.ID, &l.Budget.Name, database.ScanNullString(&l.Category), &l.ExpenseType}
	dest = append(dest, mc.Targets()...)
	dest = append(dest, rc.Targets()...)
	dest = append(dest, database.ScanNullString(&l.SummaryDescription), database.ScanNullString(&l.Object), database.ScanNullString(&l.BudgetClassification))
	dest = append(dest, mf.Targets()...)
	dest = append(dest, sf.Targets()...)
	dest = append(dest, database.ScanNullString(&l.ContractType), &l.ProbableProcurementType, &l.BudgetedAmount,
		database.ScanNullString(&l.ProcessStatus), database.ScanNullString(&l.ContractStatus), database.ScanNullString(&l.ContractNotes))
	if err := s.Scan(append(dest, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan budget line: %w", err)
	}
	l.ManagementCenter, l.RequestingCenter = mc.Ref(), rc.Ref()
	l.MainFiscal, l.SecondaryFiscal = mf.Ref(), sf.Ref()
	l.BudgetedAmount = domain.RoundMoney(l.BudgetedAmount)
	l.Audit = a.Audit()
	return &l, nil
}

// OwningCenter returns the management center that owns a line: its own, or
// its budget's.
func (r *Repository) OwningCenter(ctx context.Context, lineID int64) (int64, bool, error) {
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

// BudgetCenter returns the management center of a budget.
func (r *Repository) BudgetCenter(ctx context.Context, budgetID int64) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT management_center_id FROM budget_budget WHERE id = ?`, budgetID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load budget: %w", err)
	}
	return id, true, nil
}

// RequestingCenterParent returns the management center of a requesting center.
func (r *Repository) RequestingCenterParent(ctx context.Context, id int64) (int64, bool, error) {
	var parent int64
	err := r.db.QueryRowContext(ctx, `SELECT management_center_id FROM center_requesting_center WHERE id = ?`, id).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load requesting center: %w", err)
	}
	return parent, true, nil
}

// Exists reports whether a row with id exists in table.
func (r *Repository) Exists(ctx context.Context, table string, id int64) (bool, error) {
	switch table {
	case "center_management_center", "employee_employee":
	default:
		return false, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	return n > 0, nil
}

func lineArgs(in Input) []interface{} {
	return []interface{}{
		in.BudgetID, database.NullString(in.Category), in.ExpenseType,
		database.NullInt64(in.ManagementCenterID), database.NullInt64(in.RequestingCenterID),
		database.NullString(in.SummaryDescription), database.NullString(in.Object), database.NullString(in.BudgetClassification),
		database.NullInt64(in.MainFiscalID), database.NullInt64(in.SecondaryFiscalID),
		database.NullString(in.ContractType), in.ProbableProcurementType, in.BudgetedAmount,
		database.NullString(in.ProcessStatus), database.NullString(in.ContractStatus), database.NullString(in.ContractNotes),
	}
}

func insertLine(ctx context.Context, tx *sql.Tx, in Input, userID int64) (int64, error) {
	now := database.Now()
	args := append(lineArgs(in), now, now, database.UserArg(userID), database.UserArg(userID))
	res, err := tx.ExecContext(ctx, `INSERT INTO budgetline_budgetline (budget_id, category, expense_type,
		management_center_id, requesting_center_id, summary_description, object, budget_classification,
		main_fiscal_id, secondary_fiscal_id, contract_type, probable_procurement_type, budgeted_amount,
		process_status, contract_status, contract_notes, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return 0, mapWriteError(err, "budget line")
	}
	return res.LastInsertId()
}

func updateLine(ctx context.Context, tx *sql.Tx, id int64, in Input, userID int64) error {
	args := append(lineArgs(in), database.Now(), database.UserArg(userID), id)
	res, err := tx.ExecContext(ctx, `UPDATE budgetline_budgetline SET budget_id = ?, category = ?, expense_type = ?,
		management_center_id = ?, requesting_center_id = ?, summary_description = ?, object = ?, budget_classification = ?,
		main_fiscal_id = ?, secondary_fiscal_id = ?, contract_type = ?, probable_procurement_type = ?, budgeted_amount = ?,
		process_status = ?, contract_status = ?, contract_notes = ?, updated_at = ?, updated_by = ?
		WHERE id = ?`, args...)
	if err != nil {
		return mapWriteError(err, "budget line")
	}
	return database.RequireAffected(res, "budget line", id)
}

func lineBudget(ctx context.Context, q database.Querier, id int64) (int64, error) {
	var budgetID int64
	err := q.QueryRowContext(ctx, `SELECT budget_id FROM budgetline_budgetline WHERE id = ?`, id).Scan(&budgetID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFoundf("budget line %d", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load budget line: %w", err)
	}
	return budgetID, nil
}

// references counts the contracts and assistances charged to a line.
func (r *Repository) references(ctx context.Context, id int64) (contracts, aids int, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM contract_contract WHERE budget_line_id = ?),
		(SELECT COUNT(*) FROM aid_assistance WHERE budget_line_id = ?)`, id, id).Scan(&contracts, &aids)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to check budget line references: %w", err)
	}
	return contracts, aids, nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, lineID int64, in Input, snapshot []byte, reason string, userID int64) (int, error) {
	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM budgetline_budgetlineversion WHERE budget_line_id = ?`, lineID).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute version number: %w", err)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO budgetline_budgetlineversion
		(budget_line_id, version_number, budgeted_amount, snapshot, change_reason, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lineID, next, in.BudgetedAmount, string(snapshot), reason, database.Now(), database.UserArg(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to insert budget line version: %w", err)
	}
	return next, nil
}

// Versions returns the versions of a line, newest first.
func (r *Repository) Versions(ctx context.Context, lineID int64) ([]Version, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT v.id, v.budget_line_id, v.version_number, v.budgeted_amount, v.snapshot,
		v.change_reason, v.created_at, v.created_by, u.email
		FROM budgetline_budgetlineversion v LEFT JOIN accounts_user u ON u.id = v.created_by
		WHERE v.budget_line_id = ? ORDER BY v.version_number DESC`, lineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget line versions: %w", err)
	}
	defer rows.Close()

	out := make([]Version, 0)
	for rows.Next() {
		var v Version
		var snapshot string
		var createdBy *int64
		var email sql.NullString
		if err := rows.Scan(&v.ID, &v.BudgetLineID, &v.VersionNumber, &v.BudgetedAmount, &snapshot, &v.ChangeReason,
			database.ScanTime(&v.CreatedAt), database.ScanNullInt64(&createdBy), &email); err != nil {
			return nil, fmt.Errorf("failed to scan budget line version: %w", err)
		}
		v.Snapshot = []byte(snapshot)
		v.BudgetedAmount = domain.RoundMoney(v.BudgetedAmount)
		if createdBy != nil {
			v.CreatedBy = &domain.UserRef{ID: *createdBy, Email: email.String}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repository) applyMovementScope(w *database.Where, scope *access.Scope) {
	scope.ApplyAnyCenter(w, access.LineCenter("sl", "sb"), access.LineCenter("dl", "db"))
}

// ListMovements returns a page of line movements with a visible end.
func (r *Repository) ListMovements(ctx context.Context, scope *access.Scope, p domain.ListParams, f MovementFilter) ([]Movement, int, error) {
	var w database.Where
	r.applyMovementScope(&w, scope)
	w.Search(p.Search, "m.movement_notes", "sl.summary_description", "dl.summary_description")
	if f.LineID != nil {
		w.Add("(m.source_line_id = ? OR m.destination_line_id = ?)", *f.LineID, *f.LineID)
	}

	total, err := database.Count(ctx, r.db, movementFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, movementSelect+database.AuditColumns("m")+" FROM "+movementFrom+database.AuditJoins("m")+
		w.SQL()+database.OrderBy(p.Ordering, movementOrdering, "m.created_at DESC, m.id DESC")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list budget line movements: %w", err)
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

// GetMovement returns one visible line movement.
func (r *Repository) GetMovement(ctx context.Context, scope *access.Scope, id int64) (*Movement, error) {
	var w database.Where
	w.Add("m.id = ?", id)
	r.applyMovementScope(&w, scope)
	m, err := scanMovement(r.db.QueryRowContext(ctx,
		movementSelect+database.AuditColumns("m")+" FROM "+movementFrom+database.AuditJoins("m")+w.SQL(), w.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("budget line movement %d", id)
	}
	return m, err
}

func scanMovement(s scanner) (*Movement, error) {
	var m Movement
	var src, dst database.RefScan
	var a database.AuditScan
	dest := []interface{}{&m.ID}
	dest = append(dest, src.Targets()...)
	dest = append(dest, dst.Targets()...)
	dest = append(dest, &m.MovementAmount, &m.MovementNotes)
	if err := s.Scan(append(dest, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan budget line movement: %w", err)
	}
	if ref := src.Ref(); ref != nil {
		m.SourceLine = &LineRef{ID: ref.ID, SummaryDescription: ref.Name}
	}
	if ref := dst.Ref(); ref != nil {
		m.DestinationLine = &LineRef{ID: ref.ID, SummaryDescription: ref.Name}
	}
	m.MovementAmount = domain.RoundMoney(m.MovementAmount)
	m.Audit = a.Audit()
	return &m, nil
}

// CreateMovement inserts a line movement.
func (r *Repository) CreateMovement(ctx context.Context, in MovementInput, userID int64) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx, `INSERT INTO budgetline_budgetlinemovement
		(source_line_id, destination_line_id, movement_amount, movement_notes, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		database.NullInt64(in.SourceLineID), database.NullInt64(in.DestinationLineID), in.MovementAmount, in.MovementNotes,
		now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "budget line movement")
	}
	return res.LastInsertId()
}

// UpdateMovement updates a line movement.
func (r *Repository) UpdateMovement(ctx context.Context, id int64, in MovementInput, userID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE budgetline_budgetlinemovement
		SET source_line_id = ?, destination_line_id = ?, movement_amount = ?, movement_notes = ?, updated_at = ?, updated_by = ?
		WHERE id = ?`,
		database.NullInt64(in.SourceLineID), database.NullInt64(in.DestinationLineID), in.MovementAmount, in.MovementNotes,
		database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "budget line movement")
	}
	return database.RequireAffected(res, "budget line movement", id)
}

// DeleteMovement deletes a line movement.
func (r *Repository) DeleteMovement(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgetline_budgetlinemovement WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete budget line movement: %w", err)
	}
	return database.RequireAffected(res, "budget line movement", id)
}

func mapWriteError(err error, entity string) error {
	if database.IsForeignKeyViolation(err) {
		return domain.NewValidationError(domain.NonFieldErrors, "Invalid pk - object does not exist.")
	}
	return fmt.Errorf("failed to write %s: %w", entity, err)
}
