// Package sector manages the organizational units: directions, the
// managements under them and the coordinations under those.
package sector

import "github.com/aristath/minerva/internal/domain"

// Direction is the top organizational unit.
type Direction struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	domain.Audit
}

// Management belongs to a direction.
type Management struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Direction domain.Ref `json:"direction"`
	domain.Audit
}

// ManagementRef is a management rendered with its direction.
type ManagementRef struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Direction domain.Ref `json:"direction"`
}

// Coordination belongs to a management.
type Coordination struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	Management ManagementRef `json:"management"`
	domain.Audit
}

// DirectionInput is the writable shape of a direction.
type DirectionInput struct {
	Name string `json:"name"`
}

// ManagementInput is the writable shape of a management.
type ManagementInput struct {
	Name        string `json:"name"`
	DirectionID int64  `json:"direction"`
}

// CoordinationInput is the writable shape of a coordination.
type CoordinationInput struct {
	Name         string `json:"name"`
	ManagementID int64  `json:"management"`
}

// ListFilter narrows management and coordination lists.
type ListFilter struct {
	DirectionID  *int64
	ManagementID *int64
}

const maxNameLength = 100
