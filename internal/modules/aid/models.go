// Package aid manages assistance benefits granted to employees and paid from
// budget lines.
package aid

import (
	"github.com/aristath/minerva/internal/domain"
	"github.com/shopspring/decimal"
)

// Enumerations stored verbatim.
var (
	Types = []string{"GRADUACAO", "POS_GRADUACAO", "AUXILIO_CHECHE_ESCOLA", "LINGUA_ESTRANGEIRA"}

	Statuses = []string{StatusWaiting, StatusActive, StatusDone, StatusCancelled}
)

// Assistance statuses.
const (
	StatusWaiting   = "AGUARDANDO"
	StatusActive    = "ATIVO"
	StatusDone      = "CONCLUIDO"
	StatusCancelled = "CANCELADO"
)

const maxNotesLength = 1000

// Assistance is a benefit paid to an employee, optionally in installments.
type Assistance struct {
	ID                   int64               `json:"id"`
	Employee             domain.Ref          `json:"employee"`
	BudgetLine           domain.Ref          `json:"budget_line"`
	Type                 string              `json:"type"`
	TotalAmount          decimal.Decimal     `json:"total_amount"`
	InstallmentCount     *int                `json:"installment_count"`
	AmountPerInstallment decimal.NullDecimal `json:"amount_per_installment"`
	StartDate            domain.Date         `json:"start_date"`
	EndDate              domain.Date         `json:"end_date"`
	Notes                string              `json:"notes"`
	Status               string              `json:"status"`

	domain.Audit
}

// Input is the writable part of an assistance.
type Input struct {
	EmployeeID           int64               `json:"employee"`
	BudgetLineID         int64               `json:"budget_line"`
	Type                 string              `json:"type"`
	TotalAmount          decimal.Decimal     `json:"total_amount"`
	InstallmentCount     *int                `json:"installment_count"`
	AmountPerInstallment decimal.NullDecimal `json:"amount_per_installment"`
	StartDate            domain.Date         `json:"start_date"`
	EndDate              domain.Date         `json:"end_date"`
	Notes                string              `json:"notes"`
	Status               string              `json:"status"`
}

// InputOf returns the writable fields of a.
func InputOf(a *Assistance) Input {
	return Input{
		EmployeeID:           a.Employee.ID,
		BudgetLineID:         a.BudgetLine.ID,
		Type:                 a.Type,
		TotalAmount:          a.TotalAmount,
		InstallmentCount:     a.InstallmentCount,
		AmountPerInstallment: a.AmountPerInstallment,
		StartDate:            a.StartDate,
		EndDate:              a.EndDate,
		Notes:                a.Notes,
		Status:               a.Status,
	}
}

// UpdateInputOf is InputOf for partial updates: a per-installment amount that
// was derived from the stored total and count is dropped, so Save derives it
// again from whatever total and count the update ends up with. An amount the
// client chose explicitly is kept.
func UpdateInputOf(a *Assistance) Input {
	in := InputOf(a)
	if a.InstallmentCount != nil && *a.InstallmentCount > 0 && a.AmountPerInstallment.Valid &&
		a.AmountPerInstallment.Decimal.Equal(PerInstallment(a.TotalAmount, *a.InstallmentCount)) {
		in.AmountPerInstallment = decimal.NullDecimal{}
	}
	return in
}

// ListFilter narrows assistance listings.
type ListFilter struct {
	EmployeeID   *int64
	BudgetLineID *int64
	Status       string
	Type         string
}

// PerInstallment splits total over count installments, rounded to cents.
func PerInstallment(total decimal.Decimal, count int) decimal.Decimal {
	return total.DivRound(decimal.NewFromInt(int64(count)), 2)
}
