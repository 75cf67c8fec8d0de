// Package budgetline manages the lines that spend a budget, their version
// history and the movements recorded between lines.
package budgetline

import (
	"encoding/json"
	"time"

	"github.com/aristath/minerva/internal/domain"
	"github.com/shopspring/decimal"
)

// Enumerations stored verbatim.
var (
	ExpenseTypes = []string{"Base Principal", "Serviços Especializados", "Despesas Compartilhadas"}

	BudgetClassifications = []string{"NOVO", "RENOVAÇÃO", "CARY OVER", "REPLANEJAMENTO", "N/A"}

	ContractTypes = []string{"SERVIÇO", "FORNECIMENTO", "ASSINATURA", "FORNECIMENTO/SERVIÇO"}

	ProcurementTypes = []string{
		"LICITAÇÃO", "DISPENSA EM RAZÃO DO VALOR", "CONVÊNIO", "FUNDO FIXO", "INEXIGIBILIDADE",
		"ATA DE REGISTRO DE PREÇO", "ACORDO DE COOPERAÇÃO", "APOSTILAMENTO",
	}

	ProcessStatuses = []string{"VENCIDO", "DENTRO DO PRAZO", "ELABORADO COM ATRASO", "ELABORADO NO PRAZO"}

	ContractStatuses = []string{
		"DENTRO DO PRAZO", "CONTRATADO NO PRAZO", "CONTRATADO COM ATRASO", "PRAZO VENCIDO",
		"LINHA TOTALMENTE REMANEJADA", "LINHA TOTALMENTE EXECUTADA", "LINHA DE PAGAMENTO",
		"LINHA PARCIALMENTE REMANEJADA", "LINHA PARCIALMENTE EXECUTADA", "N/A",
	}
)

// DefaultChangeReason is recorded on versions when the update gives none.
const DefaultChangeReason = "Atualização da linha orçamentária"

const (
	maxSummaryLength = 255
	maxObjectLength  = 80
	maxNotesLength   = 400
	maxReasonLength  = 500
)

// BudgetLine is a planned expense charged to a budget.
type BudgetLine struct {
	ID                      int64           `json:"id"`
	Budget                  domain.Ref      `json:"budget"`
	Category                string          `json:"category"`
	ExpenseType             string          `json:"expense_type"`
	ManagementCenter        *domain.Ref     `json:"management_center"`
	RequestingCenter        *domain.Ref     `json:"requesting_center"`
	SummaryDescription      string          `json:"summary_description"`
	Object                  string          `json:"object"`
	BudgetClassification    string          `json:"budget_classification"`
	MainFiscal              *domain.Ref     `json:"main_fiscal"`
	SecondaryFiscal         *domain.Ref     `json:"secondary_fiscal"`
	ContractType            string          `json:"contract_type"`
	ProbableProcurementType string          `json:"probable_procurement_type"`
	BudgetedAmount          decimal.Decimal `json:"budgeted_amount"`
	ProcessStatus           string          `json:"process_status"`
	ContractStatus          string          `json:"contract_status"`
	ContractNotes           string          `json:"contract_notes"`

	domain.Audit
}

// Input is the writable part of a budget line.
type Input struct {
	BudgetID                int64           `json:"budget"`
	Category                string          `json:"category"`
	ExpenseType             string          `json:"expense_type"`
	ManagementCenterID      *int64          `json:"management_center"`
	RequestingCenterID      *int64          `json:"requesting_center"`
	SummaryDescription      string          `json:"summary_description"`
	Object                  string          `json:"object"`
	BudgetClassification    string          `json:"budget_classification"`
	MainFiscalID            *int64          `json:"main_fiscal"`
	SecondaryFiscalID       *int64          `json:"secondary_fiscal"`
	ContractType            string          `json:"contract_type"`
	ProbableProcurementType string          `json:"probable_procurement_type"`
	BudgetedAmount          decimal.Decimal `json:"budgeted_amount"`
	ProcessStatus           string          `json:"process_status"`
	ContractStatus          string          `json:"contract_status"`
	ContractNotes           string          `json:"contract_notes"`

	// ChangeReason is recorded on the version an update creates.
	ChangeReason string `json:"change_reason,omitempty"`
}

func refID(r *domain.Ref) *int64 {
	if r == nil {
		return nil
	}
	id := r.ID
	return &id
}

// InputOf returns the writable fields of l.
func InputOf(l *BudgetLine) Input {
	return Input{
		BudgetID:                l.Budget.ID,
		Category:                l.Category,
		ExpenseType:             l.ExpenseType,
		ManagementCenterID:      refID(l.ManagementCenter),
		RequestingCenterID:      refID(l.RequestingCenter),
		SummaryDescription:      l.SummaryDescription,
		Object:                  l.Object,
		BudgetClassification:    l.BudgetClassification,
		MainFiscalID:            refID(l.MainFiscal),
		SecondaryFiscalID:       refID(l.SecondaryFiscal),
		ContractType:            l.ContractType,
		ProbableProcurementType: l.ProbableProcurementType,
		BudgetedAmount:          l.BudgetedAmount,
		ProcessStatus:           l.ProcessStatus,
		ContractStatus:          l.ContractStatus,
		ContractNotes:           l.ContractNotes,
	}
}

// ListFilter narrows budget line listings.
type ListFilter struct {
	BudgetID           *int64
	ManagementCenterID *int64
	RequestingCenterID *int64
	MainFiscalID       *int64
	Category           string
	ExpenseType        string
	ContractStatus     string
	ProcessStatus      string
}

// Version is a snapshot of a line taken after an update.
type Version struct {
	ID             int64           `json:"id"`
	BudgetLineID   int64           `json:"budget_line"`
	VersionNumber  int             `json:"version_number"`
	BudgetedAmount decimal.Decimal `json:"budgeted_amount"`
	Snapshot       json.RawMessage `json:"snapshot"`
	ChangeReason   string          `json:"change_reason"`
	CreatedAt      time.Time       `json:"created_at"`
	CreatedBy      *domain.UserRef `json:"created_by"`
}

// LineRef is the compact rendering of a line inside a movement.
type LineRef struct {
	ID                 int64  `json:"id"`
	SummaryDescription string `json:"summary_description"`
}

// Movement records an amount moved between two lines. Either end may be
// missing (an injection or a withdrawal).
type Movement struct {
	ID              int64           `json:"id"`
	SourceLine      *LineRef        `json:"source_line"`
	DestinationLine *LineRef        `json:"destination_line"`
	MovementAmount  decimal.Decimal `json:"movement_amount"`
	MovementNotes   string          `json:"movement_notes"`

	domain.Audit
}

// MovementInput is the writable part of a line movement.
type MovementInput struct {
	SourceLineID      *int64          `json:"source_line"`
	DestinationLineID *int64          `json:"destination_line"`
	MovementAmount    decimal.Decimal `json:"movement_amount"`
	MovementNotes     string          `json:"movement_notes"`
}

// MovementFilter narrows line movement listings.
type MovementFilter struct {
	LineID *int64
}
