package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// schemaTTL is how long a generated description is reused.
const schemaTTL = 10 * time.Minute

const sampleLimit = 3

// unsampledColumns never have their values shown to the model.
var unsampledColumns = map[string]bool{"password": true, "cpf": true, "email": true}

// basicSchema is served when the description cannot be built.
const basicSchema = `ESQUEMA BÁSICO DO BANCO DE DADOS:

contract_contract: id, protocol_number, budget_line_id, main_inspector_id, substitute_inspector_id, payment_nature, original_value, current_value, start_date, end_date, status
contract_contractinstallment: id, contract_id, number, value, due_date, payment_date, status
contract_contractamendment: id, contract_id, type, value, additional_term
budget_budget: id, year, category, management_center_id, total_amount, available_amount, status
budget_budgetmovement: id, source_id, destination_id, amount, movement_date
budgetline_budgetline: id, budget_id, summary_description, object, budget_classification, budgeted_amount, management_center_id, requesting_center_id
employee_employee: id, full_name, email, cpf, direction_id, management_id, coordination_id, status
center_management_center: id, name
center_requesting_center: id, management_center_id, name
aid_assistance: id, employee_id, budget_line_id, type, total_amount, status`

// SchemaDescriber renders the queryable schema for the model prompt.
type SchemaDescriber struct {
	db   *sql.DB
	repo *Repository
	now  func() time.Time
	log  zerolog.Logger

	mu       sync.Mutex
	cached   string
	cachedAt time.Time
}

// NewSchemaDescriber creates a describer backed by the catalog table.
func NewSchemaDescriber(db *sql.DB, repo *Repository, log zerolog.Logger) *SchemaDescriber {
	return &SchemaDescriber{
		db:   db,
		repo: repo,
		now:  time.Now,
		log:  log.With().Str("component", "alice_schema").Logger(),
	}
}

// Describe returns the cached description, rebuilding it when stale.
// Failures fall back to the last good description, then to basicSchema.
func (d *SchemaDescriber) Describe(ctx context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != "" && d.now().Sub(d.cachedAt) < schemaTTL {
		return d.cached
	}

	tables, err := d.Tables(ctx)
	if err != nil {
		if d.cached != "" {
			d.log.Warn().Err(err).Msg("Schema refresh failed, using stale description")
			return d.cached
		}
		d.log.Error().Err(err).Msg("Schema description failed, using basic schema")
		return basicSchema
	}

	d.cached = render(tables)
	d.cachedAt = d.now()
	return d.cached
}

// Invalidate drops the cached description.
func (d *SchemaDescriber) Invalidate() {
	d.mu.Lock()
	d.cached = ""
	d.mu.Unlock()
}

// Tables describes every whitelisted table, preferring catalogued columns.
func (d *SchemaDescriber) Tables(ctx context.Context) ([]TableInfo, error) {
	catalog, err := d.repo.CatalogColumns(ctx)
	if err != nil {
		return nil, err
	}
	byTable := map[string][]SchemaColumn{}
	for _, c := range catalog {
		byTable[c.TableName] = append(byTable[c.TableName], c)
	}

	out := make([]TableInfo, 0, len(SafeTables))
	for _, name := range SafeTableNames() {
		cols := byTable[name]
		if len(cols) == 0 {
			if cols, err = d.introspect(ctx, name); err != nil {
				return nil, err
			}
		}
		out = append(out, TableInfo{Name: name, Description: SafeTables[name], Columns: cols})
	}
	return out, nil
}

// introspect reads column metadata and sample values of a whitelisted table.
func (d *SchemaDescriber) introspect(ctx context.Context, table string) ([]SchemaColumn, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	var cols []SchemaColumn
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols = append(cols, SchemaColumn{
			TableName:     table,
			ColumnName:    name,
			DataType:      typ,
			IsNullable:    notNull == 0,
			ColumnDefault: dflt.String,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns of %s: %w", table, err)
	}

	for i := range cols {
		if unsampledColumns[cols[i].ColumnName] {
			continue
		}
		samples, err := d.samples(ctx, table, cols[i].ColumnName)
		if err != nil {
			d.log.Debug().Err(err).Str("table", table).Str("column", cols[i].ColumnName).Msg("No sample values")
			continue
		}
		cols[i].SampleValues = samples
	}
	return cols, nil
}

func (d *SchemaDescriber) samples(ctx context.Context, table, column string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		fmt.Sprintf("SELECT DISTINCT %q FROM %q WHERE %q IS NOT NULL LIMIT %d", column, table, column, sampleLimit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out = append(out, fmt.Sprint(v))
	}
	return out, rows.Err()
}

// SyncCatalog stores the introspected columns of every whitelisted table,
// keeping descriptions already present in the catalog.
func (d *SchemaDescriber) SyncCatalog(ctx context.Context) (int, error) {
	n := 0
	for _, table := range SafeTableNames() {
		cols, err := d.introspect(ctx, table)
		if err != nil {
			return n, err
		}
		for _, c := range cols {
			if err := d.repo.UpsertCatalogColumn(ctx, c); err != nil {
				return n, err
			}
			n++
		}
	}
	d.Invalidate()
	d.log.Info().Int("columns", n).Msg("Schema catalog synchronised")
	return n, nil
}

func render(tables []TableInfo) string {
	var b strings.Builder
	b.WriteString("ESQUEMA DO BANCO DE DADOS (SQLite):\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "\nTabela: %s\nDescrição: %s\nColunas:\n", t.Name, t.Description)
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "  - %s (%s", c.ColumnName, c.DataType)
			if !c.IsNullable {
				b.WriteString(", NOT NULL")
			}
			if c.ColumnDefault != "" {
				fmt.Fprintf(&b, ", DEFAULT %s", c.ColumnDefault)
			}
			b.WriteString(")")
			if c.ColumnDescription != "" {
				fmt.Fprintf(&b, ": %s", c.ColumnDescription)
			}
			if c.BusinessMeaning != "" {
				fmt.Fprintf(&b, " [%s]", c.BusinessMeaning)
			}
			if len(c.SampleValues) > 0 {
				fmt.Fprintf(&b, " Exemplos: %s", strings.Join(c.SampleValues, ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
