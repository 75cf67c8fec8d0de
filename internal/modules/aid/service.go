package aid

import (
	"context"
	"strings"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/domain"
	"github.com/rs/zerolog"
)

// Service implements assistance writes.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new assistance service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "aid").Logger(),
	}
}

// Repository exposes the read side to handlers.
func (s *Service) Repository() *Repository {
	return s.repo
}

// ListForEmployee returns the visible assistances of an employee.
func (s *Service) ListForEmployee(ctx context.Context, scope *access.Scope, employeeID int64) ([]Assistance, error) {
	return s.repo.ListForEmployee(ctx, scope, employeeID)
}

func (s *Service) validate(ctx context.Context, scope *access.Scope, in *Input) error {
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	in.Status = strings.ToUpper(strings.TrimSpace(in.Status))
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Status == "" {
		in.Status = StatusWaiting
	}

	v := &domain.ValidationError{}
	domain.ValidateChoice(v, "type", in.Type, Types)
	domain.ValidateChoice(v, "status", in.Status, Statuses)
	domain.ValidateAmount(v, "total_amount", in.TotalAmount)
	domain.ValidateMaxLength(v, "notes", in.Notes, maxNotesLength)
	if in.InstallmentCount != nil && *in.InstallmentCount < 1 {
		v.Add("installment_count", "Ensure this value is greater than or equal to 1.")
	}
	if in.AmountPerInstallment.Valid {
		domain.ValidateAmount(v, "amount_per_installment", in.AmountPerInstallment.Decimal)
	}
	if in.StartDate.IsZero() {
		v.Add("start_date", "This field is required.")
	} else if !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		v.Add("end_date", "The end date cannot be earlier than the start date.")
	}

	if in.EmployeeID == 0 {
		v.Add("employee", "This field is required.")
	} else if ok, err := s.repo.EmployeeExists(ctx, in.EmployeeID); err != nil {
		return err
	} else if !ok {
		v.Add("employee", "Invalid pk - object does not exist.")
	}
	if in.BudgetLineID == 0 {
		v.Add("budget_line", "This field is required.")
	} else if center, ok, err := s.repo.LineCenter(ctx, in.BudgetLineID); err != nil {
		return err
	} else if !ok || !scope.CanAccessCenter(center) {
		v.Add("budget_line", "Invalid pk - object does not exist.")
	}
	return v.OrNil()
}

// Save creates (id == 0) or updates an assistance. The per-installment amount
// is derived from the total when only the count is given.
func (s *Service) Save(ctx context.Context, scope *access.Scope, id int64, in Input, userID int64) (*Assistance, error) {
	if err := s.validate(ctx, scope, &in); err != nil {
		return nil, err
	}
	if in.InstallmentCount != nil && !in.AmountPerInstallment.Valid {
		in.AmountPerInstallment.Decimal = PerInstallment(in.TotalAmount, *in.InstallmentCount)
		in.AmountPerInstallment.Valid = true
	}

	if id == 0 {
		newID, err := s.repo.Create(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		id = newID
	} else if err := s.repo.Update(ctx, id, in, userID); err != nil {
		return nil, err
	}
	s.log.Info().Int64("assistance_id", id).Int64("employee_id", in.EmployeeID).Str("status", in.Status).Msg("Assistance saved")
	return s.repo.Get(ctx, access.FullScope(), id)
}

// Delete removes a visible assistance.
func (s *Service) Delete(ctx context.Context, scope *access.Scope, id int64) error {
	if _, err := s.repo.Get(ctx, scope, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("assistance_id", id).Msg("Assistance deleted")
	return nil
}
