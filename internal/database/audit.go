package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/minerva/internal/domain"
)

// AuditColumns selects the audit fields of alias together with the emails
// of the creating and updating users. Use with AuditJoins.
func AuditColumns(alias string) string {
	return strings.NewReplacer("$", alias).Replace(
		"$.created_at, $.updated_at, $.created_by, $_cu.email, $.updated_by, $_uu.email")
}

// AuditJoins joins the users referenced by alias's audit fields.
func AuditJoins(alias string) string {
	return strings.NewReplacer("$", alias).Replace(
		" LEFT JOIN accounts_user $_cu ON $_cu.id = $.created_by LEFT JOIN accounts_user $_uu ON $_uu.id = $.updated_by")
}

// AuditScan receives the columns produced by AuditColumns.
type AuditScan struct {
	createdAt, updatedAt       time.Time
	createdBy, updatedBy       *int64
	createdEmail, updatedEmail sql.NullString
}

// Targets returns scan destinations in AuditColumns order.
func (a *AuditScan) Targets() []interface{} {
	return []interface{}{
		ScanTime(&a.createdAt), ScanTime(&a.updatedAt),
		ScanNullInt64(&a.createdBy), &a.createdEmail,
		ScanNullInt64(&a.updatedBy), &a.updatedEmail,
	}
}

// Audit assembles the scanned values.
func (a *AuditScan) Audit() domain.Audit {
	out := domain.Audit{CreatedAt: a.createdAt, UpdatedAt: a.updatedAt}
	if a.createdBy != nil {
		out.CreatedBy = &domain.UserRef{ID: *a.createdBy, Email: a.createdEmail.String}
	}
	if a.updatedBy != nil {
		out.UpdatedBy = &domain.UserRef{ID: *a.updatedBy, Email: a.updatedEmail.String}
	}
	return out
}

// UserArg converts a user id into a driver value (0 means anonymous/system).
func UserArg(userID int64) interface{} {
	if userID == 0 {
		return nil
	}
	return userID
}

// RequireAffected returns a not-found error when res touched no rows.
func RequireAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.NotFoundf("%s %d", entity, id)
	}
	return nil
}

// RefScan receives a nullable (id, name) pair produced by a LEFT JOIN.
type RefScan struct {
	id   *int64
	name sql.NullString
}

// Targets returns the id and name scan destinations.
func (r *RefScan) Targets() []interface{} {
	return []interface{}{ScanNullInt64(&r.id), &r.name}
}

// Ref returns nil when the id was NULL.
func (r *RefScan) Ref() *domain.Ref {
	if r.id == nil {
		return nil
	}
	return &domain.Ref{ID: *r.id, Name: r.name.String}
}
