package sector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles sector database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new sector repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "sector").Logger(),
	}
}

const (
	directionFrom = "sector_direction d"

	managementFrom = "sector_management m JOIN sector_direction md ON md.id = m.direction_id"

	coordinationFrom = `sector_coordination c
		JOIN sector_management cm ON cm.id = c.management_id
		JOIN sector_direction cmd ON cmd.id = cm.direction_id`
)

var (
	directionOrdering    = map[string]string{"id": "d.id", "name": "d.name", "created_at": "d.created_at"}
	managementOrdering   = map[string]string{"id": "m.id", "name": "m.name", "direction": "md.name", "created_at": "m.created_at"}
	coordinationOrdering = map[string]string{"id": "c.id", "name": "c.name", "management": "cm.name", "created_at": "c.created_at"}
)

// ListDirections returns a page of directions.
func (r *Repository) ListDirections(ctx context.Context, p domain.ListParams) ([]Direction, int, error) {
	var w database.Where
	w.Search(p.Search, "d.name")

	total, err := database.Count(ctx, r.db, directionFrom, &w)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT d.id, d.name, " + database.AuditColumns("d") + " FROM " + directionFrom + database.AuditJoins("d") +
		w.SQL() + database.OrderBy(p.Ordering, directionOrdering, "d.name") + database.LimitOffset(p.Limit(), p.Offset())
	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list directions: %w", err)
	}
	defer rows.Close()

	out := make([]Direction, 0)
	for rows.Next() {
		d, err := scanDirection(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

// GetDirection returns one direction.
func (r *Repository) GetDirection(ctx context.Context, id int64) (*Direction, error) {
	row := r.db.QueryRowContext(ctx, "SELECT d.id, d.name, "+database.AuditColumns("d")+" FROM "+directionFrom+
		database.AuditJoins("d")+" WHERE d.id = ?", id)
	d, err := scanDirection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("direction %d", id)
	}
	return d, err
}

func scanDirection(s interface{ Scan(...interface{}) error }) (*Direction, error) {
	var d Direction
	var a database.AuditScan
	if err := s.Scan(append([]interface{}{&d.ID, &d.Name}, a.Targets()...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan direction: %w", err)
	}
	d.Audit = a.Audit()
	return &d, nil
}

// CreateDirection inserts a direction.
func (r *Repository) CreateDirection(ctx context.Context, in DirectionInput, userID int64) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sector_direction (name, created_at, updated_at, created_by, updated_by) VALUES (?, ?, ?, ?, ?)`,
		in.Name, now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "direction")
	}
	return res.LastInsertId()
}

// UpdateDirection updates a direction.
func (r *Repository) UpdateDirection(ctx context.Context, id int64, in DirectionInput, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sector_direction SET name = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		in.Name, database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "direction")
	}
	return database.RequireAffected(res, "direction", id)
}

// DeleteDirection deletes a direction without managements.
func (r *Repository) DeleteDirection(ctx context.Context, id int64) error {
	return r.delete(ctx, "sector_direction", "direction", id)
}

// ListManagements returns a page of managements.
func (r *Repository) ListManagements(ctx context.Context, p domain.ListParams, f ListFilter) ([]Management, int, error) {
	var w database.Where
	w.Search(p.Search, "m.name", "md.name")
	if f.DirectionID != nil {
		w.Add("m.direction_id = ?", *f.DirectionID)
	}

	total, err := database.Count(ctx, r.db, managementFrom, &w)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT m.id, m.name, md.id, md.name, " + database.AuditColumns("m") + " FROM " + managementFrom + database.AuditJoins("m") +
		w.SQL() + database.OrderBy(p.Ordering, managementOrdering, "md.name, m.name") + database.LimitOffset(p.Limit(), p.Offset())
	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list managements: %w", err)
	}
	defer rows.Close()

	out := make([]Management, 0)
	for rows.Next() {
		m, err := scanManagement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

// GetManagement returns one management.
func (r *Repository) GetManagement(ctx context.Context, id int64) (*Management, error) {
	row := r.db.QueryRowContext(ctx, "SELECT m.id, m.name, md.id, md.name, "+database.AuditColumns("m")+" FROM "+managementFrom+
		database.AuditJoins("m")+" WHERE m.id = ?", id)
	m, err := scanManagement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("management %d", id)
	}
	return m, err
}

func scanManagement(s interface{ Scan(...interface{}) error }) (*Management, error) {
	var m Management
	var a database.AuditScan
	dest := append([]interface{}{&m.ID, &m.Name, &m.Direction.ID, &m.Direction.Name}, a.Targets()...)
	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan management: %w", err)
	}
	m.Audit = a.Audit()
	return &m, nil
}

// CreateManagement inserts a management.
func (r *Repository) CreateManagement(ctx context.Context, in ManagementInput, userID int64) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sector_management (name, direction_id, created_at, updated_at, created_by, updated_by) VALUES (?, ?, ?, ?, ?, ?)`,
		in.Name, in.DirectionID, now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "management")
	}
	return res.LastInsertId()
}

// UpdateManagement updates a management.
func (r *Repository) UpdateManagement(ctx context.Context, id int64, in ManagementInput, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sector_management SET name = ?, direction_id = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		in.Name, in.DirectionID, database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "management")
	}
	return database.RequireAffected(res, "management", id)
}

// DeleteManagement deletes a management without coordinations.
func (r *Repository) DeleteManagement(ctx context.Context, id int64) error {
	return r.delete(ctx, "sector_management", "management", id)
}

// ListCoordinations returns a page of coordinations.
func (r *Repository) ListCoordinations(ctx context.Context, p domain.ListParams, f ListFilter) ([]Coordination, int, error) {
	var w database.Where
	w.Search(p.Search, "c.name", "cm.name")
	if f.ManagementID != nil {
		w.Add("c.management_id = ?", *f.ManagementID)
	}
	if f.DirectionID != nil {
		w.Add("cm.direction_id = ?", *f.DirectionID)
	}

	total, err := database.Count(ctx, r.db, coordinationFrom, &w)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT c.id, c.name, cm.id, cm.name, cmd.id, cmd.name, " + database.AuditColumns("c") + " FROM " + coordinationFrom +
		database.AuditJoins("c") + w.SQL() + database.OrderBy(p.Ordering, coordinationOrdering, "cm.name, c.name") +
		database.LimitOffset(p.Limit(), p.Offset())
	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list coordinations: %w", err)
	}
	defer rows.Close()

	out := make([]Coordination, 0)
	for rows.Next() {
		c, err := scanCoordination(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// GetCoordination returns one coordination.
func (r *Repository) GetCoordination(ctx context.Context, id int64) (*Coordination, error) {
	row := r.db.QueryRowContext(ctx, "SELECT c.id, c.name, cm.id, cm.name, cmd.id, cmd.name, "+database.AuditColumns("c")+
		" FROM "+coordinationFrom+database.AuditJoins("c")+" WHERE c.id = ?", id)
	c, err := scanCoordination(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("coordination %d", id)
	}
	return c, err
}

func scanCoordination(s interface{ Scan(...interface{}) error }) (*Coordination, error) {
	var c Coordination
	var a database.AuditScan
	dest := append([]interface{}{
		&c.ID, &c.Name,
		&c.Management.ID, &c.Management.Name,
		&c.Management.Direction.ID, &c.Management.Direction.Name,
	}, a.Targets()...)
	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan coordination: %w", err)
	}
	c.Audit = a.Audit()
	return &c, nil
}

// CreateCoordination inserts a coordination.
func (r *Repository) CreateCoordination(ctx context.Context, in CoordinationInput, userID int64) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sector_coordination (name, management_id, created_at, updated_at, created_by, updated_by) VALUES (?, ?, ?, ?, ?, ?)`,
		in.Name, in.ManagementID, now, now, database.UserArg(userID), database.UserArg(userID))
	if err != nil {
		return 0, mapWriteError(err, "coordination")
	}
	return res.LastInsertId()
}

// UpdateCoordination updates a coordination.
func (r *Repository) UpdateCoordination(ctx context.Context, id int64, in CoordinationInput, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sector_coordination SET name = ?, management_id = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		in.Name, in.ManagementID, database.Now(), database.UserArg(userID), id)
	if err != nil {
		return mapWriteError(err, "coordination")
	}
	return database.RequireAffected(res, "coordination", id)
}

// DeleteCoordination deletes a coordination.
func (r *Repository) DeleteCoordination(ctx context.Context, id int64) error {
	return r.delete(ctx, "sector_coordination", "coordination", id)
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

func mapWriteError(err error, entity string) error {
	switch {
	case database.IsUniqueViolation(err):
		return domain.NewValidationError("name", entity+" with this name already exists.")
	case database.IsForeignKeyViolation(err):
		return domain.NewValidationError(domain.NonFieldErrors, "Invalid pk - object does not exist.")
	default:
		return fmt.Errorf("failed to write %s: %w", entity, err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
