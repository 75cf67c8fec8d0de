// Package center manages cost centers and their association with
// organizational units.
package center

import "github.com/aristath/minerva/internal/domain"

// ManagementCenter owns budgets.
type ManagementCenter struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	domain.Audit
}

// RequestingCenter is a sub-center of a management center.
type RequestingCenter struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	ManagementCenter domain.Ref `json:"management_center"`
	domain.Audit
}

// Hierarchy grants an organizational unit visibility of a management center.
type Hierarchy struct {
	ID               int64       `json:"id"`
	ManagementCenter domain.Ref  `json:"management_center"`
	Direction        *domain.Ref `json:"direction"`
	Management       *domain.Ref `json:"management"`
	Coordination     *domain.Ref `json:"coordination"`
	domain.Audit
}

// ManagementCenterInput is the writable shape of a management center.
type ManagementCenterInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RequestingCenterInput is the writable shape of a requesting center.
type RequestingCenterInput struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	ManagementCenterID int64  `json:"management_center"`
}

// HierarchyInput is the writable shape of a hierarchy association.
type HierarchyInput struct {
	ManagementCenterID int64  `json:"management_center"`
	DirectionID        *int64 `json:"direction"`
	ManagementID       *int64 `json:"management"`
	CoordinationID     *int64 `json:"coordination"`
}

// ListFilter narrows requesting-center and hierarchy lists.
type ListFilter struct {
	ManagementCenterID *int64
	DirectionID        *int64
	ManagementID       *int64
	CoordinationID     *int64
}

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
)
