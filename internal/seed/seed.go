// Package seed loads organizational reference data from YAML fixtures.
//
// Records are matched by name (email for employees), so loading the same
// file twice creates nothing new.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/modules/employee"
	"github.com/aristath/minerva/internal/utils"
)

// Fixtures is the document layout.
type Fixtures struct {
	Directions        []Direction        `yaml:"directions"`
	ManagementCenters []ManagementCenter `yaml:"management_centers"`
	Employees         []Employee         `yaml:"employees"`
}

// Direction nests its managements.
type Direction struct {
	Name        string       `yaml:"name"`
	Managements []Management `yaml:"managements"`
}

// Management nests its coordination names.
type Management struct {
	Name          string   `yaml:"name"`
	Coordinations []string `yaml:"coordinations"`
}

// ManagementCenter lists its requesting centers and the units allowed to see it.
type ManagementCenter struct {
	Name              string             `yaml:"name"`
	Description       string             `yaml:"description"`
	RequestingCenters []RequestingCenter `yaml:"requesting_centers"`
	VisibleTo         []Unit             `yaml:"visible_to"`
}

// RequestingCenter belongs to a management center.
type RequestingCenter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Unit names a place in the hierarchy. The most specific non-empty name wins.
type Unit struct {
	Direction    string `yaml:"direction"`
	Management   string `yaml:"management"`
	Coordination string `yaml:"coordination"`
}

// Employee places a person in the hierarchy by unit name.
type Employee struct {
	FullName   string `yaml:"full_name"`
	Email      string `yaml:"email"`
	CPF        string `yaml:"cpf"`
	Position   string `yaml:"position"`
	Department string `yaml:"department"`
	Status     string `yaml:"status"`
	Unit       `yaml:",inline"`
}

// Result counts the rows created by a load.
type Result struct {
	Directions        int `json:"directions"`
	Managements       int `json:"managements"`
	Coordinations     int `json:"coordinations"`
	ManagementCenters int `json:"management_centers"`
	RequestingCenters int `json:"requesting_centers"`
	Hierarchies       int `json:"hierarchies"`
	Employees         int `json:"employees"`
}

// Decode parses a fixtures document.
func Decode(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	return &f, nil
}

// DecodeFile parses the fixtures file at path.
func DecodeFile(path string) (*Fixtures, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Loader writes fixtures into the database.
type Loader struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLoader creates a loader.
func NewLoader(db *sql.DB, log zerolog.Logger) *Loader {
	return &Loader{db: db, log: log.With().Str("component", "seed").Logger()}
}

// Load inserts every missing record in one transaction.
func (l *Loader) Load(ctx context.Context, f *Fixtures) (*Result, error) {
	res := &Result{}
	err := database.WithTransaction(ctx, l.db, func(tx *sql.Tx) error {
		s := &session{ctx: ctx, tx: tx, res: res, now: database.Now()}
		for _, d := range f.Directions {
			if err := s.direction(d); err != nil {
				return err
			}
		}
		for _, mc := range f.ManagementCenters {
			if err := s.managementCenter(mc); err != nil {
				return err
			}
		}
		for _, e := range f.Employees {
			if err := s.employee(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().Interface("created", res).Msg("Fixtures loaded")
	return res, nil
}

type session struct {
	ctx context.Context
	tx  *sql.Tx
	res *Result
	now string
}

// findOrCreate returns the id of the row matching where, inserting it when absent.
func (s *session) findOrCreate(counter *int, lookup string, lookupArgs []interface{}, insert string, insertArgs ...interface{}) (int64, error) {
	var id int64
	err := s.tx.QueryRowContext(s.ctx, lookup, lookupArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	r, err := s.tx.ExecContext(s.ctx, insert, insertArgs...)
	if err != nil {
		return 0, err
	}
	*counter++
	return r.LastInsertId()
}

func required(kind, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s without a name", kind)
	}
	return nil
}

func (s *session) direction(d Direction) error {
	if err := required("direction", d.Name); err != nil {
		return err
	}
	dirID, err := s.findOrCreate(&s.res.Directions,
		`SELECT id FROM sector_direction WHERE name = ?`, []interface{}{d.Name},
		`INSERT INTO sector_direction (name, created_at, updated_at) VALUES (?, ?, ?)`, d.Name, s.now, s.now)
	if err != nil {
		return fmt.Errorf("direction %q: %w", d.Name, err)
	}

	for _, m := range d.Managements {
		if err := required("management", m.Name); err != nil {
			return err
		}
		mgmtID, err := s.findOrCreate(&s.res.Managements,
			`SELECT id FROM sector_management WHERE name = ? AND direction_id = ?`, []interface{}{m.Name, dirID},
			`INSERT INTO sector_management (name, direction_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			m.Name, dirID, s.now, s.now)
		if err != nil {
			return fmt.Errorf("management %q: %w", m.Name, err)
		}
		for _, c := range m.Coordinations {
			if err := required("coordination", c); err != nil {
				return err
			}
			if _, err := s.findOrCreate(&s.res.Coordinations,
				`SELECT id FROM sector_coordination WHERE name = ? AND management_id = ?`, []interface{}{c, mgmtID},
				`INSERT INTO sector_coordination (name, management_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				c, mgmtID, s.now, s.now); err != nil {
				return fmt.Errorf("coordination %q: %w", c, err)
			}
		}
	}
	return nil
}

func (s *session) managementCenter(mc ManagementCenter) error {
	if err := required("management center", mc.Name); err != nil {
		return err
	}
	mcID, err := s.findOrCreate(&s.res.ManagementCenters,
		`SELECT id FROM center_management_center WHERE name = ?`, []interface{}{mc.Name},
		`INSERT INTO center_management_center (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		mc.Name, mc.Description, s.now, s.now)
	if err != nil {
		return fmt.Errorf("management center %q: %w", mc.Name, err)
	}

	for _, rc := range mc.RequestingCenters {
		if err := required("requesting center", rc.Name); err != nil {
			return err
		}
		if _, err := s.findOrCreate(&s.res.RequestingCenters,
			`SELECT id FROM center_requesting_center WHERE name = ? AND management_center_id = ?`, []interface{}{rc.Name, mcID},
			`INSERT INTO center_requesting_center (management_center_id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			mcID, rc.Name, rc.Description, s.now, s.now); err != nil {
			return fmt.Errorf("requesting center %q: %w", rc.Name, err)
		}
	}

	for _, u := range mc.VisibleTo {
		dir, mgmt, coord, err := s.resolve(u)
		if err != nil {
			return fmt.Errorf("management center %q: %w", mc.Name, err)
		}
		if dir == nil && mgmt == nil && coord == nil {
			return fmt.Errorf("management center %q: visible_to entry names no unit", mc.Name)
		}
		if _, err := s.findOrCreate(&s.res.Hierarchies,
			`SELECT id FROM center_centerhierarchy WHERE management_center_id = ?
				AND direction_id IS ? AND management_id IS ? AND coordination_id IS ?`,
			[]interface{}{mcID, database.NullInt64(dir), database.NullInt64(mgmt), database.NullInt64(coord)},
			`INSERT INTO center_centerhierarchy (management_center_id, direction_id, management_id, coordination_id, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
			mcID, database.NullInt64(dir), database.NullInt64(mgmt), database.NullInt64(coord), s.now, s.now); err != nil {
			return fmt.Errorf("management center %q: %w", mc.Name, err)
		}
	}
	return nil
}

// resolve looks up a unit by name. Only the most specific name is stored, as
// the hierarchy association rule requires.
func (s *session) resolve(u Unit) (dir, mgmt, coord *int64, err error) {
	lookup := func(table, name string) (*int64, error) {
		var id int64
		err := s.tx.QueryRowContext(s.ctx, `SELECT id FROM `+table+` WHERE name = ? ORDER BY id LIMIT 1`, name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unknown %s %q", strings.TrimPrefix(table, "sector_"), name)
		}
		if err != nil {
			return nil, err
		}
		return &id, nil
	}

	switch {
	case u.Coordination != "":
		coord, err = lookup("sector_coordination", u.Coordination)
	case u.Management != "":
		mgmt, err = lookup("sector_management", u.Management)
	case u.Direction != "":
		dir, err = lookup("sector_direction", u.Direction)
	}
	return dir, mgmt, coord, err
}

func (s *session) employee(e Employee) error {
	email := utils.NormalizeEmail(e.Email)
	if email == "" {
		return fmt.Errorf("employee %q without an email", e.FullName)
	}
	if err := required("employee", e.FullName); err != nil {
		return err
	}
	cpf := employee.NormalizeCPF(e.CPF)
	if !employee.ValidCPF(cpf) {
		return fmt.Errorf("employee %s: invalid CPF", email)
	}
	status := strings.ToUpper(e.Status)
	if status == "" {
		status = employee.StatusActive
	}
	valid := false
	for _, st := range employee.Statuses {
		valid = valid || st == status
	}
	if !valid {
		return fmt.Errorf("employee %s: invalid status %q", email, e.Status)
	}

	// Employees carry the whole chain above their most specific unit.
	var dir, mgmt, coord *int64
	if u := e.Unit; u != (Unit{}) {
		var err error
		if dir, mgmt, coord, err = s.resolve(u); err != nil {
			return fmt.Errorf("employee %s: %w", email, err)
		}
		if err := s.fillParents(&dir, &mgmt, coord); err != nil {
			return fmt.Errorf("employee %s: %w", email, err)
		}
	}

	if _, err := s.findOrCreate(&s.res.Employees,
		`SELECT id FROM employee_employee WHERE email = ?`, []interface{}{email},
		`INSERT INTO employee_employee (full_name, email, cpf, position, department, direction_id, management_id, coordination_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.FullName, email, cpf, e.Position, e.Department,
		database.NullInt64(dir), database.NullInt64(mgmt), database.NullInt64(coord), status, s.now, s.now); err != nil {
		return fmt.Errorf("employee %s: %w", email, err)
	}
	return nil
}

func (s *session) fillParents(dir, mgmt **int64, coord *int64) error {
	if coord != nil && *mgmt == nil {
		var id int64
		if err := s.tx.QueryRowContext(s.ctx, `SELECT management_id FROM sector_coordination WHERE id = ?`, *coord).Scan(&id); err != nil {
			return err
		}
		*mgmt = &id
	}
	if *mgmt != nil && *dir == nil {
		var id int64
		if err := s.tx.QueryRowContext(s.ctx, `SELECT direction_id FROM sector_management WHERE id = ?`, **mgmt).Scan(&id); err != nil {
			return err
		}
		*dir = &id
	}
	return nil
}
