package aid

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/domain"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerInstallment(t *testing.T) {
	assert.Equal(t, "333.33", PerInstallment(decimal.RequireFromString("1000"), 3).StringFixed(2))
	assert.Equal(t, "250.00", PerInstallment(decimal.RequireFromString("1000"), 4).StringFixed(2))
}

type fixture struct {
	svc  *Service
	emp  int64
	line int64
}

func newFixture(t *testing.T) *fixture {
	db, _ := testingpkg.NewTestDB(t, "aid")
	log := zerolog.Nop()
	fx := testingpkg.NewFixtures(t, db.Conn())
	mc := fx.ManagementCenter("CG-01")
	return &fixture{
		svc:  NewService(NewRepository(db.Conn(), log), log),
		emp:  fx.Employee("Beneficiária", "beneficiaria@example.com", "52998224725", nil, nil, nil),
		line: fx.BudgetLine(fx.Budget(2025, "OPEX", mc, "10000"), nil, "5000"),
	}
}

func TestSave_DerivesAmountPerInstallment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Save(ctx, access.FullScope(), 0, Input{
		EmployeeID:       f.emp,
		BudgetLineID:     f.line,
		Type:             "pos_graduacao",
		TotalAmount:      decimal.RequireFromString("1200"),
		InstallmentCount: testingpkg.Ptr(12),
		StartDate:        domain.NewDate(2025, time.March, 1),
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, a.Status)
	assert.Equal(t, "POS_GRADUACAO", a.Type)
	require.True(t, a.AmountPerInstallment.Valid)
	assert.Equal(t, "100.00", a.AmountPerInstallment.Decimal.StringFixed(2))

	in := InputOf(a)
	in.AmountPerInstallment = decimal.NewNullDecimal(decimal.RequireFromString("150"))
	a, err = f.svc.Save(ctx, access.FullScope(), a.ID, in, 0)
	require.NoError(t, err)
	assert.Equal(t, "150.00", a.AmountPerInstallment.Decimal.StringFixed(2))

	list, err := f.svc.ListForEmployee(ctx, access.FullScope(), f.emp)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateInputOf_RederivesDerivedAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Save(ctx, access.FullScope(), 0, Input{
		EmployeeID:       f.emp,
		BudgetLineID:     f.line,
		TotalAmount:      decimal.RequireFromString("1200"),
		InstallmentCount: testingpkg.Ptr(12),
		StartDate:        domain.NewDate(2025, time.March, 1),
	}, 0)
	require.NoError(t, err)

	in := UpdateInputOf(a)
	in.TotalAmount = decimal.RequireFromString("2400")
	a, err = f.svc.Save(ctx, access.FullScope(), a.ID, in, 0)
	require.NoError(t, err)
	assert.Equal(t, "200.00", a.AmountPerInstallment.Decimal.StringFixed(2))

	in = UpdateInputOf(a)
	in.InstallmentCount = testingpkg.Ptr(6)
	a, err = f.svc.Save(ctx, access.FullScope(), a.ID, in, 0)
	require.NoError(t, err)
	assert.Equal(t, "400.00", a.AmountPerInstallment.Decimal.StringFixed(2))

	// A chosen amount survives later edits of the total.
	in = UpdateInputOf(a)
	in.AmountPerInstallment = decimal.NewNullDecimal(decimal.RequireFromString("350"))
	a, err = f.svc.Save(ctx, access.FullScope(), a.ID, in, 0)
	require.NoError(t, err)

	in = UpdateInputOf(a)
	in.TotalAmount = decimal.RequireFromString("3000")
	a, err = f.svc.Save(ctx, access.FullScope(), a.ID, in, 0)
	require.NoError(t, err)
	assert.Equal(t, "350.00", a.AmountPerInstallment.Decimal.StringFixed(2))
}

func TestSave_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Save(context.Background(), access.EmptyScope(), 0, Input{
		EmployeeID:       f.emp,
		BudgetLineID:     f.line,
		Type:             "MBA",
		TotalAmount:      decimal.Zero,
		InstallmentCount: testingpkg.Ptr(0),
		StartDate:        domain.NewDate(2025, time.March, 1),
		EndDate:          domain.NewDate(2025, time.February, 1),
	}, 0)
	v, ok := domain.AsValidation(err)
	require.True(t, ok)
	for _, field := range []string{"type", "total_amount", "installment_count", "end_date", "budget_line"} {
		assert.Contains(t, v.Fields, field)
	}
}
