package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/database"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type org struct {
	resolver *Resolver
	db       *database.DB

	dir, otherDir   int64
	mgmt, otherMgmt int64
	coord           int64
	centerDir       int64
	centerMgmt      int64
	centerCoord     int64
	centerOther     int64
	empDirector     int64
	empManager      int64
	empCoordinator  int64
	empOutsider     int64
	empUnplaced     int64
}

func newOrg(t *testing.T) *org {
	db, _ := testingpkg.NewTestDB(t, "access")
	f := testingpkg.NewFixtures(t, db.Conn())
	o := &org{db: db, resolver: NewResolver(db.Conn(), zerolog.Nop())}

	o.dir = f.Direction("Diretoria de Tecnologia")
	o.otherDir = f.Direction("Diretoria Financeira")
	o.mgmt = f.Management("Gerência de Infraestrutura", o.dir)
	o.otherMgmt = f.Management("Gerência Contábil", o.otherDir)
	o.coord = f.Coordination("Coordenação de Redes", o.mgmt)

	o.centerDir = f.ManagementCenter("CG Diretoria TI")
	o.centerMgmt = f.ManagementCenter("CG Infraestrutura")
	o.centerCoord = f.ManagementCenter("CG Redes")
	o.centerOther = f.ManagementCenter("CG Contabilidade")

	f.Hierarchy(o.centerDir, &o.dir, nil, nil)
	f.Hierarchy(o.centerMgmt, nil, &o.mgmt, nil)
	f.Hierarchy(o.centerCoord, nil, nil, &o.coord)
	f.Hierarchy(o.centerOther, &o.otherDir, nil, nil)

	o.empDirector = f.Employee("Diretora", "diretora@example.com", "11111111111", &o.dir, nil, nil)
	o.empManager = f.Employee("Gerente", "gerente@example.com", "22222222222", nil, &o.mgmt, nil)
	o.empCoordinator = f.Employee("Coordenador", "coord@example.com", "33333333333", nil, nil, &o.coord)
	o.empOutsider = f.Employee("Contador", "contador@example.com", "44444444444", nil, &o.otherMgmt, nil)
	o.empUnplaced = f.Employee("Sem lotação", "sem@example.com", "55555555555", nil, nil, nil)
	return o
}

func (o *org) visibleEmployees(t *testing.T, s *Scope) []int64 {
	var w database.Where
	s.ApplyEmployee(&w, "e")
	rows, err := o.db.Conn().Query(`SELECT e.id FROM employee_employee e`+w.SQL()+` ORDER BY e.id`, w.Args()...)
	require.NoError(t, err)
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	return ids
}

func TestResolve_Levels(t *testing.T) {
	o := newOrg(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		principal *auth.Principal
		level     Level
		all       bool
		centers   []int64
	}{
		{
			name:      "anonymous",
			principal: nil,
			level:     LevelNone,
			centers:   []int64{},
		},
		{
			name:      "user without employee",
			principal: &auth.Principal{UserID: 1},
			level:     LevelNone,
			centers:   []int64{},
		},
		{
			name:      "superuser without employee keeps full reach",
			principal: &auth.Principal{UserID: 1, IsSuperuser: true},
			level:     LevelNone,
			all:       true,
		},
		{
			name:      "president group",
			principal: &auth.Principal{UserID: 1, EmployeeID: &o.empOutsider, Groups: []string{auth.GroupPresident}},
			level:     LevelPresident,
			all:       true,
		},
		{
			name:      "direction head",
			principal: &auth.Principal{UserID: 1, EmployeeID: &o.empDirector},
			level:     LevelDirection,
			centers:   []int64{o.centerDir},
		},
		{
			name:      "manager",
			principal: &auth.Principal{UserID: 1, EmployeeID: &o.empManager},
			level:     LevelManagement,
			centers:   []int64{o.centerMgmt},
		},
		{
			name:      "coordinator",
			principal: &auth.Principal{UserID: 1, EmployeeID: &o.empCoordinator},
			level:     LevelCoordination,
			centers:   []int64{o.centerCoord},
		},
		{
			name:      "employee without unit",
			principal: &auth.Principal{UserID: 1, EmployeeID: &o.empUnplaced},
			level:     LevelNone,
			centers:   []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := o.resolver.Resolve(ctx, tt.principal)
			require.NoError(t, err)
			assert.Equal(t, tt.level, s.Level)
			assert.Equal(t, tt.all, s.All)
			if !tt.all {
				assert.Equal(t, tt.centers, s.CenterIDs)
				for _, c := range []int64{o.centerDir, o.centerMgmt, o.centerCoord, o.centerOther} {
					assert.Equal(t, contains(tt.centers, c), s.CanAccessCenter(c))
				}
			}
		})
	}
}

func TestScope_Employees(t *testing.T) {
	o := newOrg(t)
	ctx := context.Background()

	resolve := func(emp int64) *Scope {
		s, err := o.resolver.Resolve(ctx, &auth.Principal{UserID: 1, EmployeeID: &emp})
		require.NoError(t, err)
		return s
	}

	// The director sees her own direction, the manager below it and the coordinator below that.
	assert.Equal(t, sorted(o.empDirector, o.empManager, o.empCoordinator), o.visibleEmployees(t, resolve(o.empDirector)))
	assert.Equal(t, sorted(o.empManager, o.empCoordinator), o.visibleEmployees(t, resolve(o.empManager)))
	assert.Equal(t, []int64{o.empCoordinator}, o.visibleEmployees(t, resolve(o.empCoordinator)))
	assert.Empty(t, o.visibleEmployees(t, resolve(o.empUnplaced)))
	assert.Len(t, o.visibleEmployees(t, FullScope()), 5)
}

func TestScope_ApplyCenter(t *testing.T) {
	var w database.Where
	EmptyScope().ApplyCenter(&w, "b.management_center_id")
	assert.Equal(t, " WHERE 0", w.SQL())

	w = database.Where{}
	FullScope().ApplyCenter(&w, "b.management_center_id")
	assert.Equal(t, "", w.SQL())
}

func TestScope_ApplyAnyCenter(t *testing.T) {
	var w database.Where
	(&Scope{Level: LevelDirection, CenterIDs: []int64{3, 5}}).ApplyAnyCenter(&w, "src.management_center_id", "dst.management_center_id")
	assert.Equal(t, " WHERE (src.management_center_id IN (?,?) OR dst.management_center_id IN (?,?))", w.SQL())
	assert.Equal(t, []interface{}{int64(3), int64(5), int64(3), int64(5)}, w.Args())

	w = database.Where{}
	FullScope().ApplyAnyCenter(&w, "src.management_center_id")
	assert.Equal(t, "", w.SQL())

	assert.Equal(t, "COALESCE(bl.management_center_id, b.management_center_id)", LineCenter("bl", "b"))
}

func TestMiddleware_CachesScopeAndGuards(t *testing.T) {
	o := newOrg(t)

	var seen *Scope
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{UserID: 1, EmployeeID: &o.empManager}))
	rec := httptest.NewRecorder()
	o.resolver.Middleware(inner).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, LevelManagement, seen.Level)

	rec = httptest.NewRecorder()
	o.resolver.Middleware(RequireFullScope(inner)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sorted(ids ...int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
