package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles user database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new accounts repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "accounts").Logger(),
	}
}

const userSelect = `SELECT u.id, u.email, u.password, u.first_name, u.last_name, u.is_active, u.is_staff, u.is_superuser,
	u.employee_id, u.last_login, u.date_joined FROM accounts_user u`

var userOrdering = map[string]string{
	"id":          "u.id",
	"email":       "u.email",
	"first_name":  "u.first_name",
	"last_name":   "u.last_name",
	"date_joined": "u.date_joined",
	"last_login":  "u.last_login",
}

func scanUser(s interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var lastLogin time.Time
	err := s.Scan(&u.ID, &u.Email, &u.passwordHash, &u.FirstName, &u.LastName, &u.IsActive, &u.IsStaff, &u.IsSuperuser,
		database.ScanNullInt64(&u.EmployeeID), database.ScanTime(&lastLogin), database.ScanTime(&u.DateJoined))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if !lastLogin.IsZero() {
		u.LastLogin = &lastLogin
	}
	u.Groups = []string{}
	return &u, nil
}

// GetByID returns a user with groups.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+" WHERE u.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("user %d", id)
	}
	if err != nil {
		return nil, err
	}
	if u.Groups, err = r.groups(ctx, id); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByEmail returns a user by case-insensitive email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+" WHERE u.email = ?", strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("user %q", email)
	}
	if err != nil {
		return nil, err
	}
	if u.Groups, err = r.groups(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) groups(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT group_name FROM accounts_user_groups WHERE user_id = ? ORDER BY group_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// LoadPrincipal implements auth.PrincipalLoader.
func (r *Repository) LoadPrincipal(ctx context.Context, userID int64) (*auth.Principal, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &auth.Principal{
		UserID:      u.ID,
		Email:       u.Email,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		IsActive:    u.IsActive,
		EmployeeID:  u.EmployeeID,
		Groups:      u.Groups,
	}, nil
}

// List returns a page of users.
func (r *Repository) List(ctx context.Context, p domain.ListParams, f ListFilter) ([]User, int, error) {
	var w database.Where
	w.Search(p.Search, "u.email", "u.first_name", "u.last_name")
	if f.IsActive != nil {
		w.Add("u.is_active = ?", *f.IsActive)
	}
	if f.IsStaff != nil {
		w.Add("u.is_staff = ?", *f.IsStaff)
	}
	if f.Group != "" {
		w.Add("u.id IN (SELECT user_id FROM accounts_user_groups WHERE group_name = ?)", f.Group)
	}

	total, err := database.Count(ctx, r.db, "accounts_user u", &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, userSelect+w.SQL()+database.OrderBy(p.Ordering, userOrdering, "u.email")+
		database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, *u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		if out[i].Groups, err = r.groups(ctx, out[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// Create inserts a user with an already hashed password and its groups.
func (r *Repository) Create(ctx context.Context, in UserInput, passwordHash string) (int64, error) {
	active := in.IsActive == nil || *in.IsActive
	var id int64
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO accounts_user
			(email, password, first_name, last_name, is_active, is_staff, is_superuser, employee_id, date_joined)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.Email, passwordHash, in.FirstName, in.LastName, active, in.IsStaff, in.IsSuperuser,
			database.NullInt64(in.EmployeeID), database.Now())
		if err != nil {
			return mapWriteError(err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return replaceGroups(ctx, tx, id, in.Groups)
	})
	return id, err
}

// Update rewrites the staff-editable fields and groups.
func (r *Repository) Update(ctx context.Context, id int64, in UserInput) error {
	active := in.IsActive == nil || *in.IsActive
	return database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE accounts_user SET email = ?, first_name = ?, last_name = ?, is_active = ?,
			is_staff = ?, is_superuser = ?, employee_id = ? WHERE id = ?`,
			in.Email, in.FirstName, in.LastName, active, in.IsStaff, in.IsSuperuser, database.NullInt64(in.EmployeeID), id)
		if err != nil {
			return mapWriteError(err)
		}
		if err := database.RequireAffected(res, "user", id); err != nil {
			return err
		}
		return replaceGroups(ctx, tx, id, in.Groups)
	})
}

// SetGroups replaces a user's groups.
func (r *Repository) SetGroups(ctx context.Context, id int64, groups []string) error {
	return database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		return replaceGroups(ctx, tx, id, groups)
	})
}

func replaceGroups(ctx context.Context, tx *sql.Tx, userID int64, groups []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts_user_groups WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear groups: %w", err)
	}
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO accounts_user_groups (user_id, group_name) VALUES (?, ?)`, userID, g); err != nil {
			return fmt.Errorf("failed to add group %q: %w", g, err)
		}
	}
	return nil
}

// UpdateProfile changes first and last name.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, in ProfileInput) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts_user SET first_name = ?, last_name = ? WHERE id = ?`, in.FirstName, in.LastName, id)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return database.RequireAffected(res, "user", id)
}

// SetPassword stores a new password hash.
func (r *Repository) SetPassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts_user SET password = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	return database.RequireAffected(res, "user", id)
}

// TouchLastLogin records a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE accounts_user SET last_login = ? WHERE id = ?`, database.FormatTime(at), id); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Delete removes a user.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts_user WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return database.RequireAffected(res, "user", id)
}

// EmailTaken reports whether another user already uses email.
func (r *Repository) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts_user WHERE email = ? AND id <> ?`, email, excludeID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return n > 0, nil
}

// EmployeeEmail returns the email of an employee and whether another user is already linked to it.
func (r *Repository) EmployeeEmail(ctx context.Context, employeeID, excludeUserID int64) (email string, linked bool, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT e.email, EXISTS (SELECT 1 FROM accounts_user u WHERE u.employee_id = e.id AND u.id <> ?)
		FROM employee_employee e WHERE e.id = ?`, excludeUserID, employeeID).Scan(&email, &linked)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, domain.NotFoundf("employee %d", employeeID)
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load employee email: %w", err)
	}
	return email, linked, nil
}

// CountSuperusers returns the number of active superusers.
func (r *Repository) CountSuperusers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts_user WHERE is_superuser = 1 AND is_active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count superusers: %w", err)
	}
	return n, nil
}

func mapWriteError(err error) error {
	switch {
	case database.IsUniqueViolation(err) && strings.Contains(err.Error(), "employee_id"):
		return domain.NewValidationError("employee", "This employee is already linked to another user.")
	case database.IsUniqueViolation(err):
		return domain.NewValidationError("email", "User with this email already exists.")
	case database.IsForeignKeyViolation(err):
		return domain.NewValidationError("employee", "Invalid pk - object does not exist.")
	default:
		return fmt.Errorf("failed to write user: %w", err)
	}
}
