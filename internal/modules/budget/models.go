// Package budget manages annual budgets per management center and the
// movements that transfer money between them.
package budget

import (
	"fmt"

	"github.com/aristath/minerva/internal/domain"
	"github.com/shopspring/decimal"
)

// Budget is the yearly allocation of one category to a management center.
type Budget struct {
	ID               int64           `json:"id"`
	Year             int             `json:"year"`
	Category         domain.Category `json:"category"`
	ManagementCenter domain.Ref      `json:"management_center"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	AvailableAmount  decimal.Decimal `json:"available_amount"`
	Status           domain.Status   `json:"status"`

	UsedAmount                decimal.Decimal `json:"used_amount"`
	IncomingAmount            decimal.Decimal `json:"incoming_amount"`
	OutgoingAmount            decimal.Decimal `json:"outgoing_amount"`
	CalculatedAvailableAmount decimal.Decimal `json:"calculated_available_amount"`

	domain.Audit
}

// Label renders the budget the way it is shown in listings.
func (b *Budget) Label() string {
	return fmt.Sprintf("%s %d - %s", b.Category, b.Year, b.ManagementCenter.Name)
}

// Input is the writable part of a budget.
type Input struct {
	Year               int             `json:"year"`
	Category           string          `json:"category"`
	ManagementCenterID int64           `json:"management_center"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Status             string          `json:"status"`
}

// InputOf returns the writable fields of b.
func InputOf(b *Budget) Input {
	return Input{
		Year:               b.Year,
		Category:           string(b.Category),
		ManagementCenterID: b.ManagementCenter.ID,
		TotalAmount:        b.TotalAmount,
		Status:             string(b.Status),
	}
}

// ListFilter narrows budget listings.
type ListFilter struct {
	Year               *int64
	Category           string
	Status             string
	ManagementCenterID *int64
}

// BudgetRef is the compact rendering of a budget inside a movement.
type BudgetRef struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Movement transfers an amount from one budget to another.
type Movement struct {
	ID           int64           `json:"id"`
	Source       BudgetRef       `json:"source"`
	Destination  BudgetRef       `json:"destination"`
	Amount       decimal.Decimal `json:"amount"`
	MovementDate domain.Date     `json:"movement_date"`
	Notes        string          `json:"notes"`

	domain.Audit
}

// MovementInput is the writable part of a movement.
type MovementInput struct {
	SourceID      int64           `json:"source"`
	DestinationID int64           `json:"destination"`
	Amount        decimal.Decimal `json:"amount"`
	Notes         string          `json:"notes"`
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	SourceID      *int64
	DestinationID *int64
	BudgetID      *int64
}

// Amounts are the stored figures that determine a budget's availability.
type Amounts struct {
	Total    decimal.Decimal
	Used     decimal.Decimal
	Incoming decimal.Decimal
	Outgoing decimal.Decimal
}

// Available is total + incoming - outgoing - used, never below zero.
func (a Amounts) Available() decimal.Decimal {
	v := a.Total.Add(a.Incoming).Sub(a.Outgoing).Sub(a.Used)
	if v.IsNegative() {
		return decimal.Zero
	}
	return domain.RoundMoney(v)
}

// CategorySummary aggregates the budgets of one category.
type CategorySummary struct {
	Category        domain.Category `json:"category"`
	Budgets         int             `json:"budgets"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	UsedAmount      decimal.Decimal `json:"used_amount"`
	AvailableAmount decimal.Decimal `json:"available_amount"`
	Lines           int             `json:"lines"`
	LineMean        float64         `json:"line_mean"`
	LineStdDev      float64         `json:"line_std_dev"`
}

// Summary is the per-category rollup of a year.
type Summary struct {
	Year       *int64            `json:"year"`
	Categories []CategorySummary `json:"categories"`
}
