package contract

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles contract, installment and amendment database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new contract repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "contract").Logger(),
	}
}

const (
	contractSelect = `SELECT c.id, bl.id, bl.summary_description, c.protocol_number, c.signing_date, c.expiration_date,
		mi.id, mi.full_name, si.id, si.full_name, c.payment_nature, c.description, c.original_value, c.current_value,
		c.start_date, c.end_date, c.status, `
	contractFrom = `contract_contract c
		JOIN budgetline_budgetline bl ON bl.id = c.budget_line_id
		JOIN budget_budget b ON b.id = bl.budget_id
		JOIN employee_employee mi ON mi.id = c.main_inspector_id
		JOIN employee_employee si ON si.id = c.substitute_inspector_id`

	installmentSelect = `SELECT i.id, c.id, c.protocol_number, i.number, i.value, i.due_date, i.payment_date, i.status, i.notes, `
	amendmentSelect   = `SELECT a.id, c.id, c.protocol_number, a.description, a.type, a.value, a.additional_term, `

	// childJoin reaches the owning center of a contract's children.
	childJoin = ` JOIN contract_contract c ON c.id = %s.contract_id
		JOIN budgetline_budgetline bl ON bl.id = c.budget_line_id
		JOIN budget_budget b ON b.id = bl.budget_id`
)

var (
	installmentFrom = "contract_contractinstallment i" + fmt.Sprintf(childJoin, "i")
	amendmentFrom   = "contract_contractamendment a" + fmt.Sprintf(childJoin, "a")

	contractOrdering = map[string]string{
		"id": "c.id", "protocol_number": "c.protocol_number", "start_date": "c.start_date", "end_date": "c.end_date",
		"current_value": "c.current_value", "status": "c.status", "created_at": "c.created_at",
	}
	installmentOrdering = map[string]string{
		"id": "i.id", "number": "i.number", "due_date": "i.due_date", "value": "i.value", "status": "i.status",
	}
	amendmentOrdering = map[string]string{
		"id": "a.id", "type": "a.type", "value": "a.value", "created_at": "a.created_at",
	}
)

type scanner interface {
	Scan(dest ...interface{}) error
}

func lineScope(w *database.Where, scope *access.Scope) {
	scope.ApplyCenter(w, access.LineCenter("bl", "b"))
}

// List returns a page of visible contracts.
func (r *Repository) List(ctx context.Context, scope *access.Scope, p domain.ListParams, f ListFilter) ([]Contract, int, error) {
	var w database.Where
	lineScope(&w, scope)
	w.Search(p.Search, "c.protocol_number", "c.description", "mi.full_name", "si.full_name")
	if f.BudgetLineID != nil {
		w.Add("c.budget_line_id = ?", *f.BudgetLineID)
	}
	if f.InspectorID != nil {
		w.Add("(c.main_inspector_id = ? OR c.substitute_inspector_id = ?)", *f.InspectorID, *f.InspectorID)
	}
	if f.Status != "" {
		w.Add("c.status = ?", f.Status)
	}
	if f.PaymentNature != "" {
		w.Add("c.payment_nature = ?", f.PaymentNature)
	}

	total, err := database.Count(ctx, r.db, contractFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	out, err := r.queryContracts(ctx, &w, database.OrderBy(p.Ordering, contractOrdering, "c.created_at DESC, c.id DESC")+
		database.LimitOffset(p.Limit(), p.Offset()))
	return out, total, err
}

// ListForInspector returns the visible contracts an employee inspects.
func (r *Repository) ListForInspector(ctx context.Context, scope *access.Scope, employeeID int64) ([]Contract, error) {
	var w database.Where
	lineScope(&w, scope)
	w.Add("(c.main_inspector_id = ? OR c.substitute_inspector_id = ?)", employeeID, employeeID)
	return r.queryContracts(ctx, &w, " ORDER BY c.start_date DESC, c.id DESC")
}

func (r *Repository) queryContracts(ctx context.Context, w *database.Where, tail string) ([]Contract, error) {
	rows, err := r.db.QueryContext(ctx, contractSelect+database.AuditColumns("c")+" FROM "+contractFrom+database.AuditJoins("c")+
		w.SQL()+tail, w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	out := make([]Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Get returns one visible contract.
func (r *Repository) Get(ctx context.Context, scope *access.Scope, id int64) (*Contract, error) {
	var w database.Where
	w.Add("c.id = ?", id)
	lineScope(&w, scope)
	c, err := scanContract(r.db.QueryRowContext(ctx,
		contractSelect+database.AuditColumns("c")+" FROM "+contractFrom+database.AuditJoins("c")+w.SQL(), w.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("contract %d", id)
	}
	return c, err
}

func scanContract(s scanner) (*Contract, error) {
	var c Contract
	var a database.AuditScan
	dest := []interface{}{
		&c.ID, &c.BudgetLine.ID, database.ScanNullString(&c.BudgetLine.Name), &c.ProtocolNumber, &c.SigningDate, &c.ExpirationDate,
		&c.MainInspector.ID, &c.MainInspector.Name, &c.SubstituteInspector.ID, &c.SubstituteInspector.Name,
		&c.PaymentNature, &c.Description, &c.OriginalValue, &c.CurrentValue, &c.StartDate, &c.EndDate, &c.Status,
	}
	if err := s.Scan(append(dest, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}
	c.OriginalValue = domain.RoundMoney(c.OriginalValue)
	c.CurrentValue = domain.RoundMoney(c.CurrentValue)
	c.Audit = a.Audit()
	return &c, nil
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

// ProtocolTaken reports whether another contract uses protocol.
func (r *Repository) ProtocolTaken(ctx context.Context, protocol string, excludeID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contract_contract WHERE protocol_number = ? AND id <> ?`,
		protocol, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check protocol number: %w", err)
	}
	return n > 0, nil
}

// nextProtocol returns the next free CT-<year>-<seq> number for year.
func nextProtocol(ctx context.Context, q database.Querier, year int) (string, error) {
	prefix := fmt.Sprintf("%s-%d-", ProtocolPrefix, year)
	rows, err := q.QueryContext(ctx, `SELECT protocol_number FROM contract_contract WHERE protocol_number LIKE ?`, prefix+"%")
	if err != nil {
		return "", fmt.Errorf("failed to read protocol numbers: %w", err)
	}
	defer rows.Close()

	seq := 0
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return "", fmt.Errorf("failed to scan protocol number: %w", err)
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(p, prefix)); err == nil && n > seq {
			seq = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", prefix, seq+1), nil
}

func contractArgs(in Input) []interface{} {
	return []interface{}{
		in.BudgetLineID, in.ProtocolNumber, in.SigningDate, in.ExpirationDate, in.MainInspectorID, in.SubstituteInspectorID,
		in.PaymentNature, in.Description, in.OriginalValue, in.CurrentValue.Decimal, in.StartDate, in.EndDate, in.Status,
	}
}

func insertContract(ctx context.Context, tx *sql.Tx, in Input, userID int64) (int64, error) {
	now := database.Now()
	args := append(contractArgs(in), now, now, database.UserArg(userID), database.UserArg(userID))
	res, err := tx.ExecContext(ctx, `INSERT INTO contract_contract (budget_line_id, protocol_number, signing_date,
		expiration_date, main_inspector_id, substitute_inspector_id, payment_nature, description, original_value,
		current_value, start_date, end_date, status, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return 0, mapWriteError(err, "contract")
	}
	return res.LastInsertId()
}

func updateContract(ctx context.Context, tx *sql.Tx, id int64, in Input, userID int64) error {
	args := append(contractArgs(in), database.Now(), database.UserArg(userID), id)
	res, err := tx.ExecContext(ctx, `UPDATE contract_contract SET budget_line_id = ?, protocol_number = ?, signing_date = ?,
		expiration_date = ?, main_inspector_id = ?, substitute_inspector_id = ?, payment_nature = ?, description = ?,
		original_value = ?, current_value = ?, start_date = ?, end_date = ?, status = ?, updated_at = ?, updated_by = ?
		WHERE id = ?`, args...)
	if err != nil {
		return mapWriteError(err, "contract")
	}
	return database.RequireAffected(res, "contract", id)
}

// Delete removes a contract with its installments and amendments.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contract_contract WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	return database.RequireAffected(res, "contract", id)
}

// recalculate stores original + amendments as the contract's current value.
func recalculate(ctx context.Context, q database.Querier, contractID int64) (*Contract, error) {
	var c Contract
	err := q.QueryRowContext(ctx, `SELECT id, protocol_number, original_value FROM contract_contract WHERE id = ?`, contractID).
		Scan(&c.ID, &c.ProtocolNumber, &c.OriginalValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("contract %d", contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT type, value FROM contract_contractamendment WHERE contract_id = ?`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load amendments: %w", err)
	}
	defer rows.Close()
	var amendments []Amendment
	for rows.Next() {
		var a Amendment
		if err := rows.Scan(&a.Type, &a.Value); err != nil {
			return nil, fmt.Errorf("failed to scan amendment: %w", err)
		}
		amendments = append(amendments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c.CurrentValue = CurrentValue(domain.RoundMoney(c.OriginalValue), amendments)
	if _, err := q.ExecContext(ctx, `UPDATE contract_contract SET current_value = ? WHERE id = ?`, c.CurrentValue, contractID); err != nil {
		return nil, fmt.Errorf("failed to update contract value: %w", err)
	}
	return &c, nil
}

// ContractCenter returns the owning center of a contract.
func (r *Repository) ContractCenter(ctx context.Context, contractID int64) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT `+access.LineCenter("bl", "b")+` FROM contract_contract c
		JOIN budgetline_budgetline bl ON bl.id = c.budget_line_id
		JOIN budget_budget b ON b.id = bl.budget_id WHERE c.id = ?`, contractID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load contract center: %w", err)
	}
	return id, true, nil
}

// ListInstallments returns a page of visible installments.
func (r *Repository) ListInstallments(ctx context.Context, scope *access.Scope, p domain.ListParams, f ChildFilter) ([]Installment, int, error) {
	var w database.Where
	lineScope(&w, scope)
	w.Search(p.Search, "i.notes", "c.protocol_number")
	if f.ContractID != nil {
		w.Add("i.contract_id = ?", *f.ContractID)
	}
	if f.Status != "" {
		w.Add("i.status = ?", f.Status)
	}

	total, err := database.Count(ctx, r.db, installmentFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, installmentSelect+database.AuditColumns("i")+" FROM "+installmentFrom+database.AuditJoins("i")+
		w.SQL()+database.OrderBy(p.Ordering, installmentOrdering, "c.id, i.number")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	out := make([]Installment, 0)
	for rows.Next() {
		i, err := scanInstallment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *i)
	}
	return out, total, rows.Err()
}

// GetInstallment returns one visible installment.
func (r *Repository) GetInstallment(ctx context.Context, scope *access.Scope, id int64) (*Installment, error) {
	var w database.Where
	w.Add("i.id = ?", id)
	lineScope(&w, scope)
	i, err := scanInstallment(r.db.QueryRowContext(ctx,
		installmentSelect+database.AuditColumns("i")+" FROM "+installmentFrom+database.AuditJoins("i")+w.SQL(), w.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("contract installment %d", id)
	}
	return i, err
}

func scanInstallment(s scanner) (*Installment, error) {
	var i Installment
	var a database.AuditScan
	dest := []interface{}{&i.ID, &i.Contract.ID, &i.Contract.ProtocolNumber, &i.Number, &i.Value, &i.DueDate, &i.PaymentDate, &i.Status, &i.Notes}
	if err := s.Scan(append(dest, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan contract installment: %w", err)
	}
	i.Value = domain.RoundMoney(i.Value)
	i.Audit = a.Audit()
	return &i, nil
}

// InstallmentNumberTaken reports whether another installment of the contract
// uses number.
func (r *Repository) InstallmentNumberTaken(ctx context.Context, contractID int64, number int, excludeID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contract_contractinstallment
		WHERE contract_id = ? AND number = ? AND id <> ?`, contractID, number, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check installment number: %w", err)
	}
	return n > 0, nil
}

func installmentArgs(in InstallmentInput) []interface{} {
	return []interface{}{in.ContractID, in.Number, in.Value, in.DueDate, in.PaymentDate, in.Status, in.Notes}
}

// CreateInstallment inserts an installment.
func (r *Repository) CreateInstallment(ctx context.Context, in InstallmentInput, userID int64) (int64, error) {
	now := database.Now()
	args := append(installmentArgs(in), now, now, database.UserArg(userID), database.UserArg(userID))
	res, err := r.db.ExecContext(ctx, `INSERT INTO contract_contractinstallment
		(contract_id, number, value, due_date, payment_date, status, notes, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return 0, mapWriteError(err, "contract installment")
	}
	return res.LastInsertId()
}

// UpdateInstallment updates an installment.
func (r *Repository) UpdateInstallment(ctx context.Context, id int64, in InstallmentInput, userID int64) error {
	args := append(installmentArgs(in), database.Now(), database.UserArg(userID), id)
	res, err := r.db.ExecContext(ctx, `UPDATE contract_contractinstallment SET contract_id = ?, number = ?, value = ?,
		due_date = ?, payment_date = ?, status = ?, notes = ?, updated_at = ?, updated_by = ? WHERE id = ?`, args...)
	if err != nil {
		return mapWriteError(err, "contract installment")
	}
	return database.RequireAffected(res, "contract installment", id)
}

// DeleteInstallment deletes an installment.
func (r *Repository) DeleteInstallment(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contract_contractinstallment WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contract installment: %w", err)
	}
	return database.RequireAffected(res, "contract installment", id)
}

// PendingDue returns pending installments due before day.
func (r *Repository) PendingDue(ctx context.Context, day domain.Date) ([]Installment, error) {
	rows, err := r.db.QueryContext(ctx, installmentSelect+database.AuditColumns("i")+" FROM "+installmentFrom+database.AuditJoins("i")+
		` WHERE i.status = ? AND i.due_date < ? ORDER BY i.due_date, i.id`, InstallmentPending, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list due installments: %w", err)
	}
	defer rows.Close()

	out := make([]Installment, 0)
	for rows.Next() {
		i, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

// MarkOverdue flips the given pending installments to overdue and returns
// how many changed.
func (r *Repository) MarkOverdue(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, InstallmentOverdue, database.Now(), InstallmentPending)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE contract_contractinstallment SET status = ?, updated_at = ?
		WHERE status = ? AND id IN (`+database.InPlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark installments overdue: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListAmendments returns a page of visible amendments.
func (r *Repository) ListAmendments(ctx context.Context, scope *access.Scope, p domain.ListParams, f ChildFilter) ([]Amendment, int, error) {
	var w database.Where
	lineScope(&w, scope)
	w.Search(p.Search, "a.description", "a.additional_term", "c.protocol_number")
	if f.ContractID != nil {
		w.Add("a.contract_id = ?", *f.ContractID)
	}
	if f.Type != "" {
		w.Add("a.type = ?", f.Type)
	}

	total, err := database.Count(ctx, r.db, amendmentFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, amendmentSelect+database.AuditColumns("a")+" FROM "+amendmentFrom+database.AuditJoins("a")+
		w.SQL()+database.OrderBy(p.Ordering, amendmentOrdering, "a.created_at DESC, a.id DESC")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list amendments: %w", err)
	}
	defer rows.Close()

	out := make([]Amendment, 0)
	for rows.Next() {
		a, err := scanAmendment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// GetAmendment returns one visible amendment.
func (r *Repository) GetAmendment(ctx context.Context, scope *access.Scope, id int64) (*Amendment, error) {
	var w database.Where
	w.Add("a.id = ?", id)
	lineScope(&w, scope)
	a, err := scanAmendment(r.db.QueryRowContext(ctx,
		amendmentSelect+database.AuditColumns("a")+" FROM "+amendmentFrom+database.AuditJoins("a")+w.SQL(), w.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("contract amendment %d", id)
	}
	return a, err
}

func scanAmendment(s scanner) (*Amendment, error) {
	var am Amendment
	var a database.AuditScan
	dest := []interface{}{&am.ID, &am.Contract.ID, &am.Contract.ProtocolNumber, &am.Description, &am.Type, &am.Value, &am.AdditionalTerm}
	if err := s.Scan(append(dest, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan contract amendment: %w", err)
	}
	am.Value = domain.RoundMoney(am.Value)
	am.Audit = a.Audit()
	return &am, nil
}

func amendmentContract(ctx context.Context, q database.Querier, id int64) (int64, error) {
	var contractID int64
	err := q.QueryRowContext(ctx, `SELECT contract_id FROM contract_contractamendment WHERE id = ?`, id).Scan(&contractID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFoundf("contract amendment %d", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load amendment: %w", err)
	}
	return contractID, nil
}

func insertAmendment(ctx context.Context, tx *sql.Tx, in AmendmentInput, userID int64) (int64, error) {
	now := database.Now()
	res, err := tx.ExecContext(ctx, `INSERT INTO contract_contractamendment
		(contract_id, description, type, value, additional_term, created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ContractID, in.Description, in.Type, in.Value, in.AdditionalTerm, now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "contract amendment")
	}
	return res.LastInsertId()
}

func updateAmendment(ctx context.Context, tx *sql.Tx, id int64, in AmendmentInput, userID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE contract_contractamendment SET contract_id = ?, description = ?, type = ?,
		value = ?, additional_term = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		in.ContractID, in.Description, in.Type, in.Value, in.AdditionalTerm, database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "contract amendment")
	}
	return database.RequireAffected(res, "contract amendment", id)
}

func mapWriteError(err error, entity string) error {
	switch {
	case database.IsForeignKeyViolation(err):
		return domain.NewValidationError(domain.NonFieldErrors, "Invalid pk - object does not exist.")
	case database.IsUniqueViolation(err):
		return domain.NewValidationError(domain.NonFieldErrors, fmt.Sprintf("A %s with these values already exists.", entity))
	}
	return fmt.Errorf("failed to write %s: %w", entity, err)
}
