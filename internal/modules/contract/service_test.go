package contract

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
	svc        *Service
	fx         *testingpkg.Fixtures
	bus        *events.Bus
	line       int64
	main, subs int64
}

func newFixture(t *testing.T) *fixture {
	db, _ := testingpkg.NewTestDB(t, "contract")
	log := zerolog.Nop()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	svc := NewService(NewRepository(db.Conn(), log), events.NewManager(bus, log), log)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	fx := testingpkg.NewFixtures(t, db.Conn())
	mc := fx.ManagementCenter("CG-01")
	line := fx.BudgetLine(fx.Budget(2025, "OPEX", mc, "100000"), nil, "50000")
	return &fixture{
		svc:  svc,
		fx:   fx,
		bus:  bus,
		line: line,
		main: fx.Employee("Fiscal Titular", "titular@example.com", "52998224725", nil, nil, nil),
		subs: fx.Employee("Fiscal Substituto", "substituto@example.com", "11144477735", nil, nil, nil),
	}
}

func (f *fixture) input() Input {
	return Input{
		BudgetLineID:          f.line,
		MainInspectorID:       f.main,
		SubstituteInspectorID: f.subs,
		PaymentNature:         "PAGAMENTO MENSAL",
		OriginalValue:         dec("12000"),
		StartDate:             domain.NewDate(2025, time.January, 1),
	}
}

func TestCurrentValue(t *testing.T) {
	amendments := []Amendment{
		{Type: AmendmentIncrease, Value: dec("500.25")},
		{Type: AmendmentReduction, Value: dec("100")},
		{Type: AmendmentExtension, Value: dec("999")},
	}
	assert.Equal(t, "1400.25", CurrentValue(dec("1000"), amendments).StringFixed(2))

	amendments = append(amendments, Amendment{Type: AmendmentReduction, Value: dec("5000")})
	assert.True(t, CurrentValue(dec("1000"), amendments).IsZero())
}

func TestSave_GeneratesProtocolAndDefaultsCurrentValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fx.Contract(f.line, f.main, f.subs, "CT-2025-000007", "10")

	c, err := f.svc.Save(ctx, access.FullScope(), 0, f.input(), 0)
	require.NoError(t, err)
	assert.Equal(t, "CT-2025-000008", c.ProtocolNumber)
	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, "12000.00", c.CurrentValue.StringFixed(2))
	assert.Equal(t, "Fiscal Titular", c.MainInspector.Name)

	in := f.input()
	in.ProtocolNumber = "CT-2025-000008"
	_, err = f.svc.Save(ctx, access.FullScope(), 0, in, 0)
	v, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "protocol_number")

	in = InputOf(c)
	in.Description = "Suporte"
	updated, err := f.svc.Save(ctx, access.FullScope(), c.ID, in, 0)
	require.NoError(t, err)
	assert.Equal(t, "CT-2025-000008", updated.ProtocolNumber)
	assert.Equal(t, "Suporte", updated.Description)
}

func TestSave_Validation(t *testing.T) {
	f := newFixture(t)

	in := f.input()
	in.SubstituteInspectorID = in.MainInspectorID
	in.EndDate = domain.NewDate(2024, time.December, 31)
	in.PaymentNature = "PAGAMENTO DIARIO"
	_, err := f.svc.Save(context.Background(), access.FullScope(), 0, in, 0)
	v, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, domain.NonFieldErrors)
	assert.Contains(t, v.Fields, "end_date")
	assert.Contains(t, v.Fields, "payment_nature")

	_, err = f.svc.Save(context.Background(), access.EmptyScope(), 0, f.input(), 0)
	v, ok = domain.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "budget_line")
}

func TestAmendments_RecalculateCurrentValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.Save(ctx, access.FullScope(), 0, f.input(), 0)
	require.NoError(t, err)

	current := func() string {
		got, err := f.svc.Repository().Get(ctx, access.FullScope(), c.ID)
		require.NoError(t, err)
		return got.CurrentValue.StringFixed(2)
	}

	inc, err := f.svc.SaveAmendment(ctx, access.FullScope(), 0, AmendmentInput{ContractID: c.ID, Type: AmendmentIncrease, Value: dec("3000")}, 0)
	require.NoError(t, err)
	assert.Equal(t, "15000.00", current())

	_, err = f.svc.SaveAmendment(ctx, access.FullScope(), 0, AmendmentInput{ContractID: c.ID, Type: AmendmentReduction, Value: dec("500")}, 0)
	require.NoError(t, err)
	assert.Equal(t, "14500.00", current())

	in := AmendmentInputOf(inc)
	in.Value = dec("1000")
	_, err = f.svc.SaveAmendment(ctx, access.FullScope(), inc.ID, in, 0)
	require.NoError(t, err)
	assert.Equal(t, "12500.00", current())

	require.NoError(t, f.svc.DeleteAmendment(ctx, access.FullScope(), inc.ID))
	assert.Equal(t, "11500.00", current())

	_, err = f.svc.SaveAmendment(ctx, access.FullScope(), 0, AmendmentInput{ContractID: c.ID, Type: "Outro", Value: dec("-1")}, 0)
	v, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "type")
	assert.Contains(t, v.Fields, "value")
}

func TestInstallments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.Save(ctx, access.FullScope(), 0, f.input(), 0)
	require.NoError(t, err)

	first, err := f.svc.SaveInstallment(ctx, access.FullScope(), 0, InstallmentInput{
		ContractID: c.ID, Number: 1, Value: dec("1000"), DueDate: domain.NewDate(2025, time.February, 1),
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, InstallmentPending, first.Status)
	assert.Equal(t, c.ProtocolNumber, first.Contract.ProtocolNumber)

	_, err = f.svc.SaveInstallment(ctx, access.FullScope(), 0, InstallmentInput{
		ContractID: c.ID, Number: 1, Value: dec("1000"), DueDate: domain.NewDate(2025, time.March, 1),
	}, 0)
	v, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"The fields contract, number must make a unique set."}, v.Fields[domain.NonFieldErrors])

	in := InstallmentInputOf(first)
	in.PaymentDate = domain.NewDate(2025, time.February, 3)
	paid, err := f.svc.SaveInstallment(ctx, access.FullScope(), first.ID, in, 0)
	require.NoError(t, err)
	assert.Equal(t, InstallmentPaid, paid.Status)
	assert.Equal(t, "2025-02-03", paid.PaymentDate.String())
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.Save(ctx, access.FullScope(), 0, f.input(), 0)
	require.NoError(t, err)

	for n, due := range map[int]domain.Date{
		1: domain.NewDate(2025, time.May, 1),
		2: domain.NewDate(2025, time.June, 15),
		3: domain.NewDate(2025, time.July, 1),
	} {
		_, err := f.svc.SaveInstallment(ctx, access.FullScope(), 0, InstallmentInput{ContractID: c.ID, Number: n, Value: dec("100"), DueDate: due}, 0)
		require.NoError(t, err)
	}

	sub := f.bus.Subscribe(4, events.InstallmentOverdue)
	defer sub.Unsubscribe()

	n, err := f.svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "2025-05-01", ev.Data["due_date"])
	case <-time.After(time.Second):
		t.Fatal("expected an overdue event")
	}

	n, err = f.svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, _, err := f.svc.Repository().ListInstallments(ctx, access.FullScope(), domain.ListParams{Page: 1, PageSize: 10}, ChildFilter{Status: InstallmentOverdue})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Number)
}

func TestListForInspector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Save(ctx, access.FullScope(), 0, f.input(), 0)
	require.NoError(t, err)

	got, err := f.svc.ListForInspector(ctx, access.FullScope(), f.subs)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = f.svc.ListForInspector(ctx, access.EmptyScope(), f.subs)
	require.NoError(t, err)
	assert.Empty(t, got)
}
