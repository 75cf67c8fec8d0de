package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/minerva/internal/testing"
)

const fixturesYAML = `
directions:
  - name: Diretoria Administrativa
    managements:
      - name: Gerência de Compras
        coordinations: [Coordenação de Contratos, Coordenação de Licitações]
      - name: Gerência de Pessoas
management_centers:
  - name: CG Administrativo
    description: Centro administrativo
    requesting_centers:
      - name: Almoxarifado
      - name: Frota
    visible_to:
      - direction: Diretoria Administrativa
      - management: Gerência de Pessoas
employees:
  - full_name: Ana Souza
    email: Ana.Souza@Example.COM
    cpf: 529.982.247-25
    position: Analista
    coordination: Coordenação de Contratos
  - full_name: Bruno Lima
    email: bruno@example.com
    cpf: "11144477735"
    status: ferias
`

func TestLoad_CreatesAndIsIdempotent(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "seed")
	loader := NewLoader(db.Conn(), zerolog.Nop())

	f, err := Decode(strings.NewReader(fixturesYAML))
	require.NoError(t, err)

	res, err := loader.Load(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, &Result{
		Directions:        1,
		Managements:       2,
		Coordinations:     2,
		ManagementCenters: 1,
		RequestingCenters: 2,
		Hierarchies:       2,
		Employees:         2,
	}, res)

	again, err := loader.Load(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, &Result{}, again)
}

func TestLoad_EmployeePlacementFillsParents(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "seed")
	f, err := Decode(strings.NewReader(fixturesYAML))
	require.NoError(t, err)
	_, err = NewLoader(db.Conn(), zerolog.Nop()).Load(context.Background(), f)
	require.NoError(t, err)

	var email, cpf, status string
	var dir, mgmt, coord int64
	err = db.Conn().QueryRow(`SELECT e.email, e.cpf, e.status, e.direction_id, e.management_id, e.coordination_id
		FROM employee_employee e WHERE e.full_name = 'Ana Souza'`).Scan(&email, &cpf, &status, &dir, &mgmt, &coord)
	require.NoError(t, err)
	assert.Equal(t, "Ana.Souza@example.com", email)
	assert.Equal(t, "52998224725", cpf)
	assert.Equal(t, "ATIVO", status)

	var coordMgmt, mgmtDir int64
	require.NoError(t, db.Conn().QueryRow(`SELECT management_id FROM sector_coordination WHERE id = ?`, coord).Scan(&coordMgmt))
	require.NoError(t, db.Conn().QueryRow(`SELECT direction_id FROM sector_management WHERE id = ?`, mgmt).Scan(&mgmtDir))
	assert.Equal(t, mgmt, coordMgmt)
	assert.Equal(t, dir, mgmtDir)

	require.NoError(t, db.Conn().QueryRow(`SELECT status FROM employee_employee WHERE email = 'bruno@example.com'`).Scan(&status))
	assert.Equal(t, "FERIAS", status)
}

func TestLoad_RollsBackOnError(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "seed")
	f := &Fixtures{
		Directions: []Direction{{Name: "Diretoria"}},
		Employees:  []Employee{{FullName: "Carla", Email: "carla@example.com", CPF: "12345678900"}},
	}

	_, err := NewLoader(db.Conn(), zerolog.Nop()).Load(context.Background(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid CPF")

	var n int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM sector_direction`).Scan(&n))
	assert.Zero(t, n)
}

func TestLoad_UnknownUnit(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "seed")
	f := &Fixtures{
		ManagementCenters: []ManagementCenter{{
			Name:      "CG",
			VisibleTo: []Unit{{Management: "Nowhere"}},
		}},
	}

	_, err := NewLoader(db.Conn(), zerolog.Nop()).Load(context.Background(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown management "Nowhere"`)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("directions:\n  - nome: x\n"))
	assert.Error(t, err)

	f, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Directions)
}
