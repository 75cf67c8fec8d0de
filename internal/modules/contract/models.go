// Package contract manages contracts charged to budget lines, together with
// their payment installments and amendments.
package contract

import (
	"github.com/aristath/minerva/internal/domain"
	"github.com/shopspring/decimal"
)

// Enumerations stored verbatim.
var (
	PaymentNatures = []string{
		"PAGAMENTO ÚNICO", "PAGAMENTO ANUAL", "PAGAMENTO SEMANAL", "PAGAMENTO MENSAL",
		"PAGAMENTO QUIZENAL", "PAGAMENTO TRIMESTRAL", "PAGAMENTO SEMESTRAL", "PAGAMENTO SOB DEMANDA",
	}

	Statuses = []string{StatusActive, StatusClosed}

	InstallmentStatuses = []string{InstallmentPending, InstallmentPaid, InstallmentOverdue}

	AmendmentTypes = []string{AmendmentIncrease, AmendmentReduction, AmendmentExtension}
)

// Contract statuses.
const (
	StatusActive = "ATIVO"
	StatusClosed = "ENCERRADO"
)

// Installment statuses.
const (
	InstallmentPending = "PENDENTE"
	InstallmentPaid    = "PAGO"
	InstallmentOverdue = "ATRASADO"
)

// Amendment types.
const (
	AmendmentIncrease  = "Acréscimo de Valor"
	AmendmentReduction = "Redução de Valor"
	AmendmentExtension = "Prorrogação de Prazo"
)

// ProtocolPrefix starts every generated protocol number.
const ProtocolPrefix = "CT"

const (
	maxProtocolLength    = 50
	maxDescriptionLength = 1000
	maxNotesLength       = 400
	maxTermLength        = 255
)

// Contract is an agreement paid from a budget line and followed by two
// inspectors.
type Contract struct {
	ID                  int64           `json:"id"`
	BudgetLine          domain.Ref      `json:"budget_line"`
	ProtocolNumber      string          `json:"protocol_number"`
	SigningDate         domain.Date     `json:"signing_date"`
	ExpirationDate      domain.Date     `json:"expiration_date"`
	MainInspector       domain.Ref      `json:"main_inspector"`
	SubstituteInspector domain.Ref      `json:"substitute_inspector"`
	PaymentNature       string          `json:"payment_nature"`
	Description         string          `json:"description"`
	OriginalValue       decimal.Decimal `json:"original_value"`
	CurrentValue        decimal.Decimal `json:"current_value"`
	StartDate           domain.Date     `json:"start_date"`
	EndDate             domain.Date     `json:"end_date"`
	Status              string          `json:"status"`

	domain.Audit
}

// Input is the writable part of a contract. CurrentValue is only honoured on
// create; afterwards it follows the amendments.
type Input struct {
	BudgetLineID          int64               `json:"budget_line"`
	ProtocolNumber        string              `json:"protocol_number"`
	SigningDate           domain.Date         `json:"signing_date"`
	ExpirationDate        domain.Date         `json:"expiration_date"`
	MainInspectorID       int64               `json:"main_inspector"`
	SubstituteInspectorID int64               `json:"substitute_inspector"`
	PaymentNature         string              `json:"payment_nature"`
	Description           string              `json:"description"`
	OriginalValue         decimal.Decimal     `json:"original_value"`
	CurrentValue          decimal.NullDecimal `json:"current_value"`
	StartDate             domain.Date         `json:"start_date"`
	EndDate               domain.Date         `json:"end_date"`
	Status                string              `json:"status"`
}

// InputOf returns the writable fields of c.
func InputOf(c *Contract) Input {
	return Input{
		BudgetLineID:          c.BudgetLine.ID,
		ProtocolNumber:        c.ProtocolNumber,
		SigningDate:           c.SigningDate,
		ExpirationDate:        c.ExpirationDate,
		MainInspectorID:       c.MainInspector.ID,
		SubstituteInspectorID: c.SubstituteInspector.ID,
		PaymentNature:         c.PaymentNature,
		Description:           c.Description,
		OriginalValue:         c.OriginalValue,
		CurrentValue:          decimal.NewNullDecimal(c.CurrentValue),
		StartDate:             c.StartDate,
		EndDate:               c.EndDate,
		Status:                c.Status,
	}
}

// ListFilter narrows contract listings.
type ListFilter struct {
	BudgetLineID  *int64
	InspectorID   *int64
	Status        string
	PaymentNature string
}

// Ref identifies a contract by protocol number.
type Ref struct {
	ID             int64  `json:"id"`
	ProtocolNumber string `json:"protocol_number"`
}

// Installment is one scheduled payment of a contract.
type Installment struct {
	ID          int64           `json:"id"`
	Contract    Ref             `json:"contract"`
	Number      int             `json:"number"`
	Value       decimal.Decimal `json:"value"`
	DueDate     domain.Date     `json:"due_date"`
	PaymentDate domain.Date     `json:"payment_date"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes"`

	domain.Audit
}

// InstallmentInput is the writable part of an installment.
type InstallmentInput struct {
	ContractID  int64           `json:"contract"`
	Number      int             `json:"number"`
	Value       decimal.Decimal `json:"value"`
	DueDate     domain.Date     `json:"due_date"`
	PaymentDate domain.Date     `json:"payment_date"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes"`
}

// InstallmentInputOf returns the writable fields of i.
func InstallmentInputOf(i *Installment) InstallmentInput {
	return InstallmentInput{
		ContractID:  i.Contract.ID,
		Number:      i.Number,
		Value:       i.Value,
		DueDate:     i.DueDate,
		PaymentDate: i.PaymentDate,
		Status:      i.Status,
		Notes:       i.Notes,
	}
}

// Amendment changes the value or the term of a contract.
type Amendment struct {
	ID             int64           `json:"id"`
	Contract       Ref             `json:"contract"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	Value          decimal.Decimal `json:"value"`
	AdditionalTerm string          `json:"additional_term"`

	domain.Audit
}

// AmendmentInput is the writable part of an amendment.
type AmendmentInput struct {
	ContractID     int64           `json:"contract"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	Value          decimal.Decimal `json:"value"`
	AdditionalTerm string          `json:"additional_term"`
}

// AmendmentInputOf returns the writable fields of a.
func AmendmentInputOf(a *Amendment) AmendmentInput {
	return AmendmentInput{
		ContractID:     a.Contract.ID,
		Description:    a.Description,
		Type:           a.Type,
		Value:          a.Value,
		AdditionalTerm: a.AdditionalTerm,
	}
}

// ChildFilter narrows installment and amendment listings.
type ChildFilter struct {
	ContractID *int64
	Status     string
	Type       string
}

// CurrentValue applies amendments to an original value. Extensions carry no
// value change, and the result never drops below zero.
func CurrentValue(original decimal.Decimal, amendments []Amendment) decimal.Decimal {
	v := original
	for _, a := range amendments {
		switch a.Type {
		case AmendmentIncrease:
			v = v.Add(a.Value)
		case AmendmentReduction:
			v = v.Sub(a.Value)
		}
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return domain.RoundMoney(v)
}
