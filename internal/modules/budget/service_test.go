package budget

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/events"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	svc *Service
	fx  *testingpkg.Fixtures
	bus *events.Bus
	mc  int64
	mc2 int64
}

func newFixture(t *testing.T) *fixture {
	db, _ := testingpkg.NewTestDB(t, "budget")
	log := zerolog.Nop()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	svc := NewService(NewRepository(db.Conn(), log), events.NewManager(bus, log), log)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	fx := testingpkg.NewFixtures(t, db.Conn())
	return &fixture{svc: svc, fx: fx, bus: bus, mc: fx.ManagementCenter("CG-01"), mc2: fx.ManagementCenter("CG-02")}
}

func TestAmountsAvailable(t *testing.T) {
	a := Amounts{Total: dec("1000"), Incoming: dec("250.50"), Outgoing: dec("100"), Used: dec("300.25")}
	assert.Equal(t, "850.25", a.Available().StringFixed(2))

	a.Used = dec("5000")
	assert.True(t, a.Available().IsZero())
}

func TestSave_CreateSetsAvailableToTotal(t *testing.T) {
	f := newFixture(t)
	sub := f.bus.Subscribe(4, events.BudgetChanged)
	defer sub.Unsubscribe()

	b, err := f.svc.Save(context.Background(), access.FullScope(), 0, Input{Year: 2025, Category: "capex", ManagementCenterID: f.mc, TotalAmount: dec("1000.00")}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryCAPEX, b.Category)
	assert.Equal(t, domain.StatusActive, b.Status)
	assert.True(t, b.AvailableAmount.Equal(dec("1000")))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, events.ActionCreated, ev.Data["action"])
	case <-time.After(time.Second):
		t.Fatal("expected a budget event")
	}
}

func TestSave_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, access.FullScope(), 0, Input{Year: 1999, Category: "OTHER", TotalAmount: dec("0")}, 0)
	v, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "year")
	assert.Contains(t, v.Fields, "category")
	assert.Contains(t, v.Fields, "total_amount")
	assert.Contains(t, v.Fields, "management_center")

	_, err = f.svc.Save(ctx, access.FullScope(), 0, Input{Year: 2036, Category: "OPEX", ManagementCenterID: f.mc, TotalAmount: dec("1")}, 0)
	v, ok = domain.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Year must be between 2000 and 2035."}, v.Fields["year"])

	_, err = f.svc.Save(ctx, access.EmptyScope(), 0, Input{Year: 2025, Category: "OPEX", ManagementCenterID: f.mc, TotalAmount: dec("1")}, 0)
	v, ok = domain.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "management_center")
}

func TestSave_UniquenessExcludesSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := Input{Year: 2025, Category: "OPEX", ManagementCenterID: f.mc, TotalAmount: dec("500")}

	b, err := f.svc.Save(ctx, access.FullScope(), 0, in, 0)
	require.NoError(t, err)

	_, err = f.svc.Save(ctx, access.FullScope(), 0, in, 0)
	v, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"A budget for year 2025, category OPEX and management center CG-01 already exists."}, v.Fields[domain.NonFieldErrors])

	in.TotalAmount = dec("600")
	updated, err := f.svc.Save(ctx, access.FullScope(), b.ID, in, 0)
	require.NoError(t, err)
	assert.True(t, updated.AvailableAmount.Equal(dec("600")))
}

func TestMovements_RecalculateBothBudgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := access.FullScope()

	src, err := f.svc.Save(ctx, scope, 0, Input{Year: 2025, Category: "OPEX", ManagementCenterID: f.mc, TotalAmount: dec("1000")}, 0)
	require.NoError(t, err)
	dst, err := f.svc.Save(ctx, scope, 0, Input{Year: 2025, Category: "OPEX", ManagementCenterID: f.mc2, TotalAmount: dec("200")}, 0)
	require.NoError(t, err)
	f.fx.BudgetLine(src.ID, nil, "150.25")

	m, err := f.svc.SaveMovement(ctx, scope, 0, MovementInput{SourceID: src.ID, DestinationID: dst.ID, Amount: dec("300")}, 0)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", m.MovementDate.String())
	assert.Equal(t, "OPEX 2025 - CG-01", m.Source.Label)

	got, err := f.svc.repo.Get(ctx, scope, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "549.75", got.AvailableAmount.StringFixed(2))
	assert.Equal(t, "150.25", got.UsedAmount.StringFixed(2))
	assert.Equal(t, "300.00", got.OutgoingAmount.StringFixed(2))
	got, err = f.svc.repo.Get(ctx, scope, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", got.AvailableAmount.StringFixed(2))

	// Redirecting the movement restores the old destination.
	third, err := f.svc.Save(ctx, scope, 0, Input{Year: 2025, Category: "CAPEX", ManagementCenterID: f.mc2, TotalAmount: dec("100")}, 0)
	require.NoError(t, err)
	_, err = f.svc.SaveMovement(ctx, scope, m.ID, MovementInput{SourceID: src.ID, DestinationID: third.ID, Amount: dec("300")}, 0)
	require.NoError(t, err)
	got, err = f.svc.repo.Get(ctx, scope, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", got.AvailableAmount.StringFixed(2))

	require.NoError(t, f.svc.DeleteMovement(ctx, scope, m.ID))
	got, err = f.svc.repo.Get(ctx, scope, third.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.AvailableAmount.StringFixed(2))
}

func TestDelete_BlockedByMovements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := access.FullScope()
	src := f.fx.Budget(2025, "OPEX", f.mc, "1000")
	dst := f.fx.Budget(2025, "OPEX", f.mc2, "200")

	m, err := f.svc.SaveMovement(ctx, scope, 0, MovementInput{SourceID: src, DestinationID: dst, Amount: dec("300")}, 0)
	require.NoError(t, err)

	err = f.svc.Delete(ctx, scope, src, 0)
	assert.ErrorIs(t, err, domain.ErrConflict)
	err = f.svc.Delete(ctx, scope, dst, 0)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := f.svc.repo.Get(ctx, scope, dst)
	require.NoError(t, err)
	assert.Equal(t, "500.00", got.AvailableAmount.StringFixed(2))

	require.NoError(t, f.svc.DeleteMovement(ctx, scope, m.ID))
	require.NoError(t, f.svc.Delete(ctx, scope, dst, 0))
}

func TestSaveMovement_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.fx.Budget(2025, "OPEX", f.mc, "100")

	_, err := f.svc.SaveMovement(ctx, access.FullScope(), 0, MovementInput{SourceID: b, DestinationID: b, Amount: dec("0.001")}, 0)
	v, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, domain.NonFieldErrors)
	assert.Contains(t, v.Fields, "amount")

	_, err = f.svc.SaveMovement(ctx, access.EmptyScope(), 0, MovementInput{SourceID: b, DestinationID: 999, Amount: dec("1")}, 0)
	v, ok = domain.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "source")
	assert.Contains(t, v.Fields, "destination")
}

func TestReconcile_FixesDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.fx.Budget(2025, "OPEX", f.mc, "100")
	f.fx.BudgetLine(b, nil, "40")

	drifted, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, drifted)

	got, err := f.svc.repo.Get(ctx, access.FullScope(), b)
	require.NoError(t, err)
	assert.Equal(t, "60.00", got.AvailableAmount.StringFixed(2))

	drifted, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, drifted)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.fx.Budget(2025, "OPEX", f.mc, "1000")
	f.fx.BudgetLine(b, nil, "100")
	f.fx.BudgetLine(b, nil, "300")
	f.fx.Budget(2024, "OPEX", f.mc, "50")

	year := int64(2025)
	s, err := f.svc.Summary(ctx, access.FullScope(), &year)
	require.NoError(t, err)
	require.Len(t, s.Categories, 2)

	opex := s.Categories[1]
	assert.Equal(t, domain.CategoryOPEX, opex.Category)
	assert.Equal(t, 1, opex.Budgets)
	assert.Equal(t, 2, opex.Lines)
	assert.InDelta(t, 200, opex.LineMean, 1e-9)
	assert.InDelta(t, 141.421356, opex.LineStdDev, 1e-5)
	assert.Equal(t, "400.00", opex.UsedAmount.StringFixed(2))

	assert.Zero(t, s.Categories[0].Budgets)
}
