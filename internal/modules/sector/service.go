package sector

import (
	"context"
	"strings"

	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
)

// Service validates sector writes before they reach the repository.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new sector service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "sector").Logger(),
	}
}

// Repository exposes the read side to handlers.
func (s *Service) Repository() *Repository {
	return s.repo
}

func validateName(v *domain.ValidationError, name string) {
	domain.ValidateRequired(v, "name", name)
	domain.ValidateMaxLength(v, "name", name, maxNameLength)
}

// SaveDirection creates (id == 0) or updates a direction.
func (s *Service) SaveDirection(ctx context.Context, id int64, in DirectionInput, userID int64) (*Direction, error) {
	in.Name = strings.TrimSpace(in.Name)
	v := &domain.ValidationError{}
	validateName(v, in.Name)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if id == 0 {
		newID, err := s.repo.CreateDirection(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		id = newID
	} else if err := s.repo.UpdateDirection(ctx, id, in, userID); err != nil {
		return nil, err
	}
	return s.repo.GetDirection(ctx, id)
}

// SaveManagement creates (id == 0) or updates a management.
func (s *Service) SaveManagement(ctx context.Context, id int64, in ManagementInput, userID int64) (*Management, error) {
	in.Name = strings.TrimSpace(in.Name)
	v := &domain.ValidationError{}
	validateName(v, in.Name)
	if in.DirectionID == 0 {
		v.Add("direction", "This field is required.")
	} else if _, err := s.repo.GetDirection(ctx, in.DirectionID); err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		v.Add("direction", "Invalid pk - object does not exist.")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if id == 0 {
		newID, err := s.repo.CreateManagement(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		id = newID
	} else if err := s.repo.UpdateManagement(ctx, id, in, userID); err != nil {
		return nil, err
	}
	return s.repo.GetManagement(ctx, id)
}

// SaveCoordination creates (id == 0) or updates a coordination.
func (s *Service) SaveCoordination(ctx context.Context, id int64, in CoordinationInput, userID int64) (*Coordination, error) {
	in.Name = strings.TrimSpace(in.Name)
	v := &domain.ValidationError{}
	validateName(v, in.Name)
	if in.ManagementID == 0 {
		v.Add("management", "This field is required.")
	} else if _, err := s.repo.GetManagement(ctx, in.ManagementID); err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		v.Add("management", "Invalid pk - object does not exist.")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if id == 0 {
		newID, err := s.repo.CreateCoordination(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		id = newID
	} else if err := s.repo.UpdateCoordination(ctx, id, in, userID); err != nil {
		return nil, err
	}
	return s.repo.GetCoordination(ctx, id)
}
