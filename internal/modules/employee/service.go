package employee

import (
	"context"
	"strings"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/utils"
	"github.com/rs/zerolog"
)

// Service validates employee writes.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new employee service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "employee").Logger(),
	}
}

// Repository exposes the read side to handlers.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Save creates (id == 0) or updates an employee. The resulting placement must
// stay inside the caller's scope.
func (s *Service) Save(ctx context.Context, scope *access.Scope, id int64, in Input, userID int64) (*Employee, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = utils.NormalizeEmail(in.Email)
	in.CPF = NormalizeCPF(in.CPF)
	in.Position = strings.TrimSpace(in.Position)
	in.Department = strings.TrimSpace(in.Department)
	if in.Status == "" {
		in.Status = StatusActive
	}

	v := &domain.ValidationError{}
	domain.ValidateRequired(v, "full_name", in.FullName)
	domain.ValidateMaxLength(v, "full_name", in.FullName, maxNameLength)
	domain.ValidateEmail(v, "email", in.Email)
	domain.ValidateMaxLength(v, "position", in.Position, maxPositionLength)
	domain.ValidateMaxLength(v, "department", in.Department, maxPositionLength)
	domain.ValidateChoice(v, "status", in.Status, Statuses)
	if !ValidCPF(in.CPF) {
		v.Add("cpf", "Invalid CPF.")
	}

	if err := s.checkUniqueness(ctx, v, in, id); err != nil {
		return nil, err
	}
	if err := s.checkPlacement(ctx, v, in); err != nil {
		return nil, err
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	visible, err := s.repo.PlacementVisible(ctx, scope, in)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, domain.NewValidationError(domain.NonFieldErrors, "You can only place employees inside your own organizational unit.")
	}

	if id == 0 {
		newID, err := s.repo.Create(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		s.log.Info().Int64("employee_id", newID).Msg("Employee created")
		id = newID
	} else if err := s.repo.Update(ctx, id, in, userID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, scope, id)
}

func (s *Service) checkUniqueness(ctx context.Context, v *domain.ValidationError, in Input, id int64) error {
	if in.Email != "" {
		taken, err := s.repo.ExistsWith(ctx, "email", in.Email, id)
		if err != nil {
			return err
		}
		if taken {
			v.Add("email", "Employee with this email already exists.")
		}
	}
	if in.CPF != "" {
		taken, err := s.repo.ExistsWith(ctx, "cpf", in.CPF, id)
		if err != nil {
			return err
		}
		if taken {
			v.Add("cpf", "Employee with this cpf already exists.")
		}
	}
	return nil
}

// checkPlacement verifies the units exist and that a coordination belongs to
// the given management and a management to the given direction.
func (s *Service) checkPlacement(ctx context.Context, v *domain.ValidationError, in Input) error {
	if in.DirectionID != nil {
		if _, ok, err := s.repo.ParentOf(ctx, "sector_direction", *in.DirectionID); err != nil {
			return err
		} else if !ok {
			v.Add("direction", "Invalid pk - object does not exist.")
		}
	}
	if in.ManagementID != nil {
		dir, ok, err := s.repo.ParentOf(ctx, "sector_management", *in.ManagementID)
		switch {
		case err != nil:
			return err
		case !ok:
			v.Add("management", "Invalid pk - object does not exist.")
		case in.DirectionID != nil && dir != *in.DirectionID:
			v.Add("management", "The management does not belong to the selected direction.")
		}
	}
	if in.CoordinationID != nil {
		mgmt, ok, err := s.repo.ParentOf(ctx, "sector_coordination", *in.CoordinationID)
		switch {
		case err != nil:
			return err
		case !ok:
			v.Add("coordination", "Invalid pk - object does not exist.")
		case in.ManagementID != nil && mgmt != *in.ManagementID:
			v.Add("coordination", "The coordination does not belong to the selected management.")
		}
	}
	return nil
}
