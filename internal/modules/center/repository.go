package center

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

// Repository handles cost center database operations. Every read takes the
// caller's scope; out-of-scope rows behave as missing.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new center repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "center").Logger(),
	}
}

const (
	mcSelect = "SELECT mc.id, mc.name, mc.description, "
	mcFrom   = "center_management_center mc"

	rcSelect = "SELECT rc.id, rc.name, rc.description, rmc.id, rmc.name, "
	rcFrom   = "center_requesting_center rc JOIN center_management_center rmc ON rmc.id = rc.management_center_id"

	hSelect = "SELECT h.id, hmc.id, hmc.name, hd.id, hd.name, hm.id, hm.name, hc.id, hc.name, "
	hFrom   = `center_centerhierarchy h
		JOIN center_management_center hmc ON hmc.id = h.management_center_id
		LEFT JOIN sector_direction hd ON hd.id = h.direction_id
		LEFT JOIN sector_management hm ON hm.id = h.management_id
		LEFT JOIN sector_coordination hc ON hc.id = h.coordination_id`
)

var (
	mcOrdering = map[string]string{"id": "mc.id", "name": "mc.name", "created_at": "mc.created_at"}
	rcOrdering = map[string]string{"id": "rc.id", "name": "rc.name", "management_center": "rmc.name", "created_at": "rc.created_at"}
	hOrdering  = map[string]string{"id": "h.id", "management_center": "hmc.name", "created_at": "h.created_at"}
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// ListManagementCenters returns a page of visible management centers.
func (r *Repository) ListManagementCenters(ctx context.Context, scope *access.Scope, p domain.ListParams) ([]ManagementCenter, int, error) {
	var w database.Where
	scope.ApplyCenter(&w, "mc.id")
	w.Search(p.Search, "mc.name", "mc.description")

	total, err := database.Count(ctx, r.db, mcFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, mcSelect+database.AuditColumns("mc")+" FROM "+mcFrom+database.AuditJoins("mc")+
		w.SQL()+database.OrderBy(p.Ordering, mcOrdering, "mc.name")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list management centers: %w", err)
	}
	defer rows.Close()

	out := make([]ManagementCenter, 0)
	for rows.Next() {
		mc, err := scanManagementCenter(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *mc)
	}
	return out, total, rows.Err()
}

// GetManagementCenter returns one visible management center.
func (r *Repository) GetManagementCenter(ctx context.Context, scope *access.Scope, id int64) (*ManagementCenter, error) {
	if !scope.CanAccessCenter(id) {
		return nil, domain.NotFoundf("management center %d", id)
	}
	mc, err := scanManagementCenter(r.db.QueryRowContext(ctx,
		mcSelect+database.AuditColumns("mc")+" FROM "+mcFrom+database.AuditJoins("mc")+" WHERE mc.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("management center %d", id)
	}
	return mc, err
}

func scanManagementCenter(s scanner) (*ManagementCenter, error) {
	var mc ManagementCenter
	var a database.AuditScan
	if err := s.Scan(append([]interface{}{&mc.ID, &mc.Name, &mc.Description}, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan management center: %w", err)
	}
	mc.Audit = a.Audit()
	return &mc, nil
}

// CreateManagementCenter inserts a management center.
func (r *Repository) CreateManagementCenter(ctx context.Context, in ManagementCenterInput, userID int64) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO center_management_center (name, description, created_at, updated_at, created_by, updated_by) VALUES (?, ?, ?, ?, ?, ?)`,
		in.Name, in.Description, now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "management center", "name", "Management center with this name already exists.")
	}
	return res.LastInsertId()
}

// UpdateManagementCenter updates a management center.
func (r *Repository) UpdateManagementCenter(ctx context.Context, id int64, in ManagementCenterInput, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE center_management_center SET name = ?, description = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		in.Name, in.Description, database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "management center", "name", "Management center with this name already exists.")
	}
	return database.RequireAffected(res, "management center", id)
}

// DeleteManagementCenter deletes a management center that owns no budgets or requesting centers.
func (r *Repository) DeleteManagementCenter(ctx context.Context, id int64) error {
	return r.delete(ctx, "center_management_center", "management center", id)
}

// ListRequestingCenters returns a page of requesting centers under visible management centers.
func (r *Repository) ListRequestingCenters(ctx context.Context, scope *access.Scope, p domain.ListParams, f ListFilter) ([]RequestingCenter, int, error) {
	var w database.Where
	scope.ApplyCenter(&w, "rc.management_center_id")
	w.Search(p.Search, "rc.name", "rc.description", "rmc.name")
	if f.ManagementCenterID != nil {
		w.Add("rc.management_center_id = ?", *f.ManagementCenterID)
	}

	total, err := database.Count(ctx, r.db, rcFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, rcSelect+database.AuditColumns("rc")+" FROM "+rcFrom+database.AuditJoins("rc")+
		w.SQL()+database.OrderBy(p.Ordering, rcOrdering, "rmc.name, rc.name")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requesting centers: %w", err)
	}
	defer rows.Close()

	out := make([]RequestingCenter, 0)
	for rows.Next() {
		rc, err := scanRequestingCenter(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rc)
	}
	return out, total, rows.Err()
}

// GetRequestingCenter returns one visible requesting center.
func (r *Repository) GetRequestingCenter(ctx context.Context, scope *access.Scope, id int64) (*RequestingCenter, error) {
	rc, err := scanRequestingCenter(r.db.QueryRowContext(ctx,
		rcSelect+database.AuditColumns("rc")+" FROM "+rcFrom+database.AuditJoins("rc")+" WHERE rc.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !scope.CanAccessCenter(rc.ManagementCenter.ID)) {
		return nil, domain.NotFoundf("requesting center %d", id)
	}
	return rc, err
}

func scanRequestingCenter(s scanner) (*RequestingCenter, error) {
	var rc RequestingCenter
	var a database.AuditScan
	dest := append([]interface{}{&rc.ID, &rc.Name, &rc.Description, &rc.ManagementCenter.ID, &rc.ManagementCenter.Name}, a.Targets()...)
	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan requesting center: %w", err)
	}
	rc.Audit = a.Audit()
	return &rc, nil
}

const duplicateRequestingCenter = "A requesting center with this name already exists in this management center."

// CreateRequestingCenter inserts a requesting center.
func (r *Repository) CreateRequestingCenter(ctx context.Context, in RequestingCenterInput, userID int64) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO center_requesting_center (management_center_id, name, description, created_at, updated_at, created_by, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ManagementCenterID, in.Name, in.Description, now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "requesting center", "name", duplicateRequestingCenter)
	}
	return res.LastInsertId()
}

// UpdateRequestingCenter updates a requesting center.
func (r *Repository) UpdateRequestingCenter(ctx context.Context, id int64, in RequestingCenterInput, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE center_requesting_center SET management_center_id = ?, name = ?, description = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		in.ManagementCenterID, in.Name, in.Description, database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "requesting center", "name", duplicateRequestingCenter)
	}
	return database.RequireAffected(res, "requesting center", id)
}

// DeleteRequestingCenter deletes a requesting center. Budget lines referencing it keep a NULL center.
func (r *Repository) DeleteRequestingCenter(ctx context.Context, id int64) error {
	return r.delete(ctx, "center_requesting_center", "requesting center", id)
}

// ListHierarchies returns a page of hierarchy associations of visible management centers.
func (r *Repository) ListHierarchies(ctx context.Context, scope *access.Scope, p domain.ListParams, f ListFilter) ([]Hierarchy, int, error) {
	var w database.Where
	scope.ApplyCenter(&w, "h.management_center_id")
	w.Search(p.Search, "hmc.name", "hd.name", "hm.name", "hc.name")
	if f.ManagementCenterID != nil {
		w.Add("h.management_center_id = ?", *f.ManagementCenterID)
	}
	if f.DirectionID != nil {
		w.Add("h.direction_id = ?", *f.DirectionID)
	}
	if f.ManagementID != nil {
		w.Add("h.management_id = ?", *f.ManagementID)
	}
	if f.CoordinationID != nil {
		w.Add("h.coordination_id = ?", *f.CoordinationID)
	}

	total, err := database.Count(ctx, r.db, hFrom, &w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, hSelect+database.AuditColumns("h")+" FROM "+hFrom+database.AuditJoins("h")+
		w.SQL()+database.OrderBy(p.Ordering, hOrdering, "hmc.name, h.id")+database.LimitOffset(p.Limit(), p.Offset()), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list hierarchies: %w", err)
	}
	defer rows.Close()

	out := make([]Hierarchy, 0)
	for rows.Next() {
		h, err := scanHierarchy(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *h)
	}
	return out, total, rows.Err()
}

// GetHierarchy returns one visible hierarchy association.
func (r *Repository) GetHierarchy(ctx context.Context, scope *access.Scope, id int64) (*Hierarchy, error) {
	h, err := scanHierarchy(r.db.QueryRowContext(ctx,
		hSelect+database.AuditColumns("h")+" FROM "+hFrom+database.AuditJoins("h")+" WHERE h.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !scope.CanAccessCenter(h.ManagementCenter.ID)) {
		return nil, domain.NotFoundf("hierarchy %d", id)
	}
	return h, err
}

func scanHierarchy(s scanner) (*Hierarchy, error) {
	var h Hierarchy
	var dir, mgmt, coord database.RefScan
	var a database.AuditScan
	dest := []interface{}{&h.ID, &h.ManagementCenter.ID, &h.ManagementCenter.Name}
	dest = append(dest, dir.Targets()...)
	dest = append(dest, mgmt.Targets()...)
	dest = append(dest, coord.Targets()...)
	if err := s.Scan(append(dest, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan hierarchy: %w", err)
	}
	h.Direction, h.Management, h.Coordination = dir.Ref(), mgmt.Ref(), coord.Ref()
	h.Audit = a.Audit()
	return &h, nil
}

// CreateHierarchy inserts a hierarchy association.
func (r *Repository) CreateHierarchy(ctx context.Context, in HierarchyInput, userID int64) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO center_centerhierarchy (management_center_id, direction_id, management_id, coordination_id, created_at, updated_at, created_by, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ManagementCenterID, database.NullInt64(in.DirectionID), database.NullInt64(in.ManagementID), database.NullInt64(in.CoordinationID),
		now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "hierarchy", domain.NonFieldErrors, "This association already exists.")
	}
	return res.LastInsertId()
}

// UpdateHierarchy updates a hierarchy association.
func (r *Repository) UpdateHierarchy(ctx context.Context, id int64, in HierarchyInput, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE center_centerhierarchy SET management_center_id = ?, direction_id = ?, management_id = ?, coordination_id = ?, updated_at = ?, updated_by = ?
		 WHERE id = ?`,
		in.ManagementCenterID, database.NullInt64(in.DirectionID), database.NullInt64(in.ManagementID), database.NullInt64(in.CoordinationID),
		database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "hierarchy", domain.NonFieldErrors, "This association already exists.")
	}
	return database.RequireAffected(res, "hierarchy", id)
}

// DeleteHierarchy deletes a hierarchy association.
func (r *Repository) DeleteHierarchy(ctx context.Context, id int64) error {
	return r.delete(ctx, "center_centerhierarchy", "hierarchy", id)
}

// HierarchyExists reports whether an identical association is already stored.
func (r *Repository) HierarchyExists(ctx context.Context, in HierarchyInput, excludeID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM center_centerhierarchy
		WHERE management_center_id = ? AND direction_id IS ? AND management_id IS ? AND coordination_id IS ? AND id <> ?`,
		in.ManagementCenterID, database.NullInt64(in.DirectionID), database.NullInt64(in.ManagementID), database.NullInt64(in.CoordinationID),
		excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check hierarchy uniqueness: %w", err)
	}
	return n > 0, nil
}

// UnitExists reports whether a row with id exists in an organizational unit table.
func (r *Repository) UnitExists(ctx context.Context, table string, id int64) (bool, error) {
	switch table {
	case "sector_direction", "sector_management", "sector_coordination", "center_management_center":
	default:
		return false, fmt.Errorf("unknown unit table %q", table)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	return n > 0, nil
}

func (r *Repository) delete(ctx context.Context, table, entity string, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return domain.Conflictf("cannot delete %s %d: it is still referenced by other records", entity, id)
		}
		return fmt.Errorf("failed to delete %s: %w", entity, err)
	}
	return database.RequireAffected(res, entity, id)
}

func mapWriteError(err error, entity, field, duplicate string) error {
	switch {
	case database.IsUniqueViolation(err):
		return domain.NewValidationError(field, duplicate)
	case database.IsForeignKeyViolation(err):
		return domain.NewValidationError(domain.NonFieldErrors, "Invalid pk - object does not exist.")
	default:
		return fmt.Errorf("failed to write %s: %w", entity, err)
	}
}
