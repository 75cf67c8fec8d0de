// Package employee manages employee records and their placement in the
// organizational hierarchy.
package employee

import "github.com/aristath/minerva/internal/domain"

// Employee statuses.
const (
	StatusActive   = "ATIVO"
	StatusInactive = "INATIVO"
	StatusVacation = "FERIAS"
	StatusLeave    = "AFASTADO"
)

// Statuses lists valid employee statuses.
var Statuses = []string{StatusActive, StatusInactive, StatusVacation, StatusLeave}

// Employee is a person who can inspect contracts, receive aid or own a user account.
type Employee struct {
	ID           int64       `json:"id"`
	FullName     string      `json:"full_name"`
	Email        string      `json:"email"`
	CPF          string      `json:"cpf"`
	Position     string      `json:"position"`
	Department   string      `json:"department"`
	Direction    *domain.Ref `json:"direction"`
	Management   *domain.Ref `json:"management"`
	Coordination *domain.Ref `json:"coordination"`
	Status       string      `json:"status"`
	domain.Audit
}

// Input is the writable shape of an employee.
type Input struct {
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	CPF            string `json:"cpf"`
	Position       string `json:"position"`
	Department     string `json:"department"`
	DirectionID    *int64 `json:"direction"`
	ManagementID   *int64 `json:"management"`
	CoordinationID *int64 `json:"coordination"`
	Status         string `json:"status"`
}

// InputOf returns the writable fields of e.
func InputOf(e *Employee) Input {
	return Input{
		FullName:       e.FullName,
		Email:          e.Email,
		CPF:            e.CPF,
		Position:       e.Position,
		Department:     e.Department,
		DirectionID:    refID(e.Direction),
		ManagementID:   refID(e.Management),
		CoordinationID: refID(e.Coordination),
		Status:         e.Status,
	}
}

func refID(r *domain.Ref) *int64 {
	if r == nil {
		return nil
	}
	id := r.ID
	return &id
}

// ListFilter narrows employee lists.
type ListFilter struct {
	DirectionID    *int64
	ManagementID   *int64
	CoordinationID *int64
	Status         string
}

const (
	maxNameLength     = 255
	maxPositionLength = 100
)
