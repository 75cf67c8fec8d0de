// Package access implements hierarchical row-level access control.
//
// A user's reach is derived from the organizational unit of their linked
// employee. Presidents (superusers or members of the "Presidente" group) see
// everything; direction, management and coordination heads see the
// management centers associated with their unit, and records owned by those
// centers.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/database"
	"github.com/rs/zerolog"
)

// Level is a position in the organizational hierarchy.
type Level string

const (
	LevelPresident    Level = "presidente"
	LevelDirection    Level = "direcao"
	LevelManagement   Level = "gerencia"
	LevelCoordination Level = "coordenacao"
	LevelNone         Level = ""
)

// Scope is what one principal may see.
type Scope struct {
	Level          Level   `json:"level"`
	All            bool    `json:"all"`
	DirectionID    *int64  `json:"direction_id,omitempty"`
	ManagementID   *int64  `json:"management_id,omitempty"`
	CoordinationID *int64  `json:"coordination_id,omitempty"`
	CenterIDs      []int64 `json:"management_center_ids"`

	centers map[int64]struct{}
}

// FullScope grants access to every record.
func FullScope() *Scope {
	return &Scope{Level: LevelPresident, All: true, CenterIDs: []int64{}}
}

// EmptyScope grants access to nothing.
func EmptyScope() *Scope {
	return &Scope{Level: LevelNone, CenterIDs: []int64{}, centers: map[int64]struct{}{}}
}

// CanAccessCenter reports whether the management center is visible.
func (s *Scope) CanAccessCenter(id int64) bool {
	if s.All {
		return true
	}
	_, ok := s.centers[id]
	return ok
}

// ApplyCenter restricts column (a management center id) to visible centers.
func (s *Scope) ApplyCenter(w *database.Where, column string) {
	if s.All {
		return
	}
	if len(s.CenterIDs) == 0 {
		w.Add("0")
		return
	}
	args := make([]interface{}, len(s.CenterIDs))
	for i, id := range s.CenterIDs {
		args[i] = id
	}
	w.Add(column+" IN ("+database.InPlaceholders(len(args))+")", args...)
}

// ApplyAnyCenter keeps rows where at least one of columns is a visible
// center. NULL columns never match.
func (s *Scope) ApplyAnyCenter(w *database.Where, columns ...string) {
	if s.All {
		return
	}
	if len(s.CenterIDs) == 0 || len(columns) == 0 {
		w.Add("0")
		return
	}
	ids := make([]interface{}, len(s.CenterIDs))
	for i, id := range s.CenterIDs {
		ids[i] = id
	}
	in := " IN (" + database.InPlaceholders(len(ids)) + ")"
	parts := make([]string, len(columns))
	var args []interface{}
	for i, c := range columns {
		parts[i] = c + in
		args = append(args, ids...)
	}
	w.Add("("+strings.Join(parts, " OR ")+")", args...)
}

// LineCenter is the SQL expression of the management center that owns a
// budget line: its own center, or its budget's.
func LineCenter(lineAlias, budgetAlias string) string {
	return "COALESCE(" + lineAlias + ".management_center_id, " + budgetAlias + ".management_center_id)"
}

// ApplyEmployee restricts rows of employee_employee aliased as alias.
func (s *Scope) ApplyEmployee(w *database.Where, alias string) {
	if s.All {
		return
	}
	switch s.Level {
	case LevelDirection:
		d := *s.DirectionID
		w.Add(fmt.Sprintf(`(%[1]s.direction_id = ?
			OR %[1]s.management_id IN (SELECT id FROM sector_management WHERE direction_id = ?)
			OR %[1]s.coordination_id IN (SELECT c.id FROM sector_coordination c JOIN sector_management m ON m.id = c.management_id WHERE m.direction_id = ?))`, alias),
			d, d, d)
	case LevelManagement:
		m := *s.ManagementID
		w.Add(fmt.Sprintf(`(%[1]s.management_id = ?
			OR %[1]s.coordination_id IN (SELECT id FROM sector_coordination WHERE management_id = ?))`, alias),
			m, m)
	case LevelCoordination:
		w.Add(alias+".coordination_id = ?", *s.CoordinationID)
	default:
		w.Add("0")
	}
}

// Resolver computes scopes from the database.
type Resolver struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewResolver creates a scope resolver.
func NewResolver(db *sql.DB, log zerolog.Logger) *Resolver {
	return &Resolver{
		db:  db,
		log: log.With().Str("component", "access").Logger(),
	}
}

// Resolve computes the scope of p.
func (r *Resolver) Resolve(ctx context.Context, p *auth.Principal) (*Scope, error) {
	if p == nil {
		return EmptyScope(), nil
	}

	if p.EmployeeID == nil {
		// Superusers keep full reach even without an employee record.
		if p.IsSuperuser {
			s := FullScope()
			s.Level = LevelNone
			return s, nil
		}
		return EmptyScope(), nil
	}

	if p.IsSuperuser || p.InGroup(auth.GroupPresident) {
		return FullScope(), nil
	}

	var dir, mgmt, coord *int64
	err := r.db.QueryRowContext(ctx,
		`SELECT direction_id, management_id, coordination_id FROM employee_employee WHERE id = ?`, *p.EmployeeID,
	).Scan(database.ScanNullInt64(&dir), database.ScanNullInt64(&mgmt), database.ScanNullInt64(&coord))
	if errors.Is(err, sql.ErrNoRows) {
		return EmptyScope(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load employee hierarchy: %w", err)
	}

	scope := EmptyScope()
	var column string
	var unit int64
	switch {
	case coord != nil:
		scope.Level, scope.CoordinationID, column, unit = LevelCoordination, coord, "coordination_id", *coord
	case mgmt != nil:
		scope.Level, scope.ManagementID, column, unit = LevelManagement, mgmt, "management_id", *mgmt
	case dir != nil:
		scope.Level, scope.DirectionID, column, unit = LevelDirection, dir, "direction_id", *dir
	default:
		return scope, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT management_center_id FROM center_centerhierarchy WHERE `+column+` = ? ORDER BY management_center_id`, unit)
	if err != nil {
		return nil, fmt.Errorf("failed to load accessible centers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan center id: %w", err)
		}
		scope.CenterIDs = append(scope.CenterIDs, id)
		scope.centers[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate centers: %w", err)
	}

	r.log.Debug().
		Int64("user_id", p.UserID).
		Str("level", string(scope.Level)).
		Int("centers", len(scope.CenterIDs)).
		Msg("Resolved access scope")

	return scope, nil
}
