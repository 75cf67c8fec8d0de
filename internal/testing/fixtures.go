package testing

import (
	"database/sql"
	"testing"

	"github.com/aristath/minerva/internal/database"
	"golang.org/x/crypto/bcrypt"
)

// Fixtures inserts rows directly with SQL so that any package's tests can
// build an organization without importing the module packages.
type Fixtures struct {
	t  *testing.T
	db *sql.DB
}

// NewFixtures binds fixture helpers to a database.
func NewFixtures(t *testing.T, db *sql.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

// TestPassword is the password given to users created by Fixtures.User.
const TestPassword = "s3nha-Forte!"

func (f *Fixtures) insert(query string, args ...interface{}) int64 {
	f.t.Helper()
	res, err := f.db.Exec(query, args...)
	if err != nil {
		f.t.Fatalf("fixture insert failed: %v\n%s", err, query)
	}
	id, err := res.LastInsertId()
	if err != nil {
		f.t.Fatalf("fixture id failed: %v", err)
	}
	return id
}

// UserOptions tweaks a fixture user.
type UserOptions struct {
	Staff      bool
	Superuser  bool
	Inactive   bool
	EmployeeID *int64
	Groups     []string
}

// User creates a user whose password is TestPassword.
func (f *Fixtures) User(email string, opts UserOptions) int64 {
	f.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		f.t.Fatalf("hash password: %v", err)
	}
	id := f.insert(`INSERT INTO accounts_user (email, password, first_name, last_name, is_active, is_staff, is_superuser, employee_id, date_joined)
		VALUES (?, ?, 'Test', 'User', ?, ?, ?, ?, ?)`,
		email, string(hash), !opts.Inactive, opts.Staff, opts.Superuser, database.NullInt64(opts.EmployeeID), database.Now())
	for _, g := range opts.Groups {
		f.insert(`INSERT INTO accounts_user_groups (user_id, group_name) VALUES (?, ?)`, id, g)
	}
	return id
}

// Direction creates a direction.
func (f *Fixtures) Direction(name string) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO sector_direction (name, created_at, updated_at) VALUES (?, ?, ?)`, name, now, now)
}

// Management creates a management under a direction.
func (f *Fixtures) Management(name string, directionID int64) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO sector_management (name, direction_id, created_at, updated_at) VALUES (?, ?, ?, ?)`, name, directionID, now, now)
}

// Coordination creates a coordination under a management.
func (f *Fixtures) Coordination(name string, managementID int64) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO sector_coordination (name, management_id, created_at, updated_at) VALUES (?, ?, ?, ?)`, name, managementID, now, now)
}

// ManagementCenter creates a management center.
func (f *Fixtures) ManagementCenter(name string) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO center_management_center (name, created_at, updated_at) VALUES (?, ?, ?)`, name, now, now)
}

// RequestingCenter creates a requesting center under a management center.
func (f *Fixtures) RequestingCenter(managementCenterID int64, name string) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO center_requesting_center (management_center_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		managementCenterID, name, now, now)
}

// Hierarchy links a management center to organizational units.
func (f *Fixtures) Hierarchy(managementCenterID int64, directionID, managementID, coordinationID *int64) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO center_centerhierarchy (management_center_id, direction_id, management_id, coordination_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		managementCenterID, database.NullInt64(directionID), database.NullInt64(managementID), database.NullInt64(coordinationID), now, now)
}

// Employee creates an employee placed in the given units.
func (f *Fixtures) Employee(fullName, email, cpf string, directionID, managementID, coordinationID *int64) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO employee_employee (full_name, email, cpf, direction_id, management_id, coordination_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fullName, email, cpf, database.NullInt64(directionID), database.NullInt64(managementID), database.NullInt64(coordinationID), now, now)
}

// Budget creates an active budget whose available amount equals its total.
func (f *Fixtures) Budget(year int, category string, managementCenterID int64, total string) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO budget_budget (year, category, management_center_id, total_amount, available_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, year, category, managementCenterID, total, total, now, now)
}

// BudgetLine creates a minimal budget line.
func (f *Fixtures) BudgetLine(budgetID int64, managementCenterID *int64, amount string) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO budgetline_budgetline (budget_id, expense_type, management_center_id, probable_procurement_type, budgeted_amount, summary_description, created_at, updated_at)
		VALUES (?, 'Base Principal', ?, 'LICITAÇÃO', ?, 'Linha de teste', ?, ?)`, budgetID, database.NullInt64(managementCenterID), amount, now, now)
}

// Contract creates an active contract on a budget line.
func (f *Fixtures) Contract(budgetLineID, mainInspectorID, substituteInspectorID int64, protocol, value string) int64 {
	f.t.Helper()
	now := database.Now()
	return f.insert(`INSERT INTO contract_contract (budget_line_id, protocol_number, main_inspector_id, substitute_inspector_id, payment_nature, original_value, current_value, start_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'PAGAMENTO MENSAL', ?, ?, '2025-01-01', ?, ?)`,
		budgetLineID, protocol, mainInspectorID, substituteInspectorID, value, value, now, now)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
