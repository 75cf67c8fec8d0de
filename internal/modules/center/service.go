package center

import (
	"context"
	"strings"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
)

// Service validates cost center writes.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new center service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "center").Logger(),
	}
}

// Repository exposes the read side to handlers.
func (s *Service) Repository() *Repository {
	return s.repo
}

// SaveManagementCenter creates (id == 0) or updates a management center.
func (s *Service) SaveManagementCenter(ctx context.Context, scope *access.Scope, id int64, in ManagementCenterInput, userID int64) (*ManagementCenter, error) {
	in.Name = strings.TrimSpace(in.Name)
	v := &domain.ValidationError{}
	domain.ValidateRequired(v, "name", in.Name)
	domain.ValidateMaxLength(v, "name", in.Name, maxNameLength)
	domain.ValidateMaxLength(v, "description", in.Description, maxDescriptionLength)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if id == 0 {
		newID, err := s.repo.CreateManagementCenter(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		s.log.Info().Int64("management_center_id", newID).Str("name", in.Name).Msg("Management center created")
		// The creator may not be associated with the new center yet.
		return s.repo.GetManagementCenter(ctx, access.FullScope(), newID)
	}
	if err := s.repo.UpdateManagementCenter(ctx, id, in, userID); err != nil {
		return nil, err
	}
	return s.repo.GetManagementCenter(ctx, scope, id)
}

// SaveRequestingCenter creates (id == 0) or updates a requesting center.
func (s *Service) SaveRequestingCenter(ctx context.Context, scope *access.Scope, id int64, in RequestingCenterInput, userID int64) (*RequestingCenter, error) {
	in.Name = strings.TrimSpace(in.Name)
	v := &domain.ValidationError{}
	domain.ValidateRequired(v, "name", in.Name)
	domain.ValidateMaxLength(v, "name", in.Name, maxNameLength)
	domain.ValidateMaxLength(v, "description", in.Description, maxDescriptionLength)
	if in.ManagementCenterID == 0 {
		v.Add("management_center", "This field is required.")
	} else if !scope.CanAccessCenter(in.ManagementCenterID) {
		v.Add("management_center", "Invalid pk - object does not exist.")
	} else if ok, err := s.repo.UnitExists(ctx, "center_management_center", in.ManagementCenterID); err != nil {
		return nil, err
	} else if !ok {
		v.Add("management_center", "Invalid pk - object does not exist.")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if id == 0 {
		newID, err := s.repo.CreateRequestingCenter(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		id = newID
	} else if err := s.repo.UpdateRequestingCenter(ctx, id, in, userID); err != nil {
		return nil, err
	}
	return s.repo.GetRequestingCenter(ctx, scope, id)
}

// SaveHierarchy creates (id == 0) or updates a hierarchy association.
func (s *Service) SaveHierarchy(ctx context.Context, scope *access.Scope, id int64, in HierarchyInput, userID int64) (*Hierarchy, error) {
	v := &domain.ValidationError{}
	if in.ManagementCenterID == 0 {
		v.Add("management_center", "This field is required.")
	} else if !scope.CanAccessCenter(in.ManagementCenterID) {
		v.Add("management_center", "Invalid pk - object does not exist.")
	} else if err := s.checkUnit(ctx, v, "management_center", "center_management_center", &in.ManagementCenterID); err != nil {
		return nil, err
	}
	if in.DirectionID == nil && in.ManagementID == nil && in.CoordinationID == nil {
		v.Add(domain.NonFieldErrors, "At least one of direction, management or coordination must be set.")
	}
	for _, u := range []struct {
		field, table string
		id           *int64
	}{
		{"direction", "sector_direction", in.DirectionID},
		{"management", "sector_management", in.ManagementID},
		{"coordination", "sector_coordination", in.CoordinationID},
	} {
		if err := s.checkUnit(ctx, v, u.field, u.table, u.id); err != nil {
			return nil, err
		}
	}
	if !v.HasErrors() {
		dup, err := s.repo.HierarchyExists(ctx, in, id)
		if err != nil {
			return nil, err
		}
		if dup {
			v.Add(domain.NonFieldErrors, "This association already exists.")
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if id == 0 {
		newID, err := s.repo.CreateHierarchy(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		id = newID
	} else if err := s.repo.UpdateHierarchy(ctx, id, in, userID); err != nil {
		return nil, err
	}
	return s.repo.GetHierarchy(ctx, scope, id)
}

func (s *Service) checkUnit(ctx context.Context, v *domain.ValidationError, field, table string, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := s.repo.UnitExists(ctx, table, *id)
	if err != nil {
		return err
	}
	if !ok {
		v.Add(field, "Invalid pk - object does not exist.")
	}
	return nil
}
