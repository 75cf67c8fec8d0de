package budgetline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/events"
	"github.com/aristath/minerva/internal/modules/budget"
	"github.com/rs/zerolog"
)

// Service implements budget line writes. Every write recalculates the
// budgets it touches in the same transaction.
type Service struct {
	repo   *Repository
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a new budget line service.
func NewService(repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: eventManager,
		log:    log.With().Str("service", "budgetline").Logger(),
	}
}

// Repository exposes the read side to handlers.
func (s *Service) Repository() *Repository {
	return s.repo
}

func normalize(in *Input) {
	for _, f := range []*string{
		&in.Category, &in.ExpenseType, &in.SummaryDescription, &in.Object, &in.BudgetClassification,
		&in.ContractType, &in.ProbableProcurementType, &in.ProcessStatus, &in.ContractStatus, &in.ContractNotes,
		&in.ChangeReason,
	} {
		*f = strings.TrimSpace(*f)
	}
	in.Category = strings.ToUpper(in.Category)
}

func (s *Service) validate(ctx context.Context, scope *access.Scope, in *Input) error {
	normalize(in)

	v := &domain.ValidationError{}
	domain.ValidateChoice(v, "category", in.Category, domain.Categories)
	if in.ExpenseType == "" {
		v.Add("expense_type", "This field is required.")
	}
	domain.ValidateChoice(v, "expense_type", in.ExpenseType, ExpenseTypes)
	if in.ProbableProcurementType == "" {
		v.Add("probable_procurement_type", "This field is required.")
	}
	domain.ValidateChoice(v, "probable_procurement_type", in.ProbableProcurementType, ProcurementTypes)
	domain.ValidateChoice(v, "budget_classification", in.BudgetClassification, BudgetClassifications)
	domain.ValidateChoice(v, "contract_type", in.ContractType, ContractTypes)
	domain.ValidateChoice(v, "process_status", in.ProcessStatus, ProcessStatuses)
	domain.ValidateChoice(v, "contract_status", in.ContractStatus, ContractStatuses)
	domain.ValidateMaxLength(v, "summary_description", in.SummaryDescription, maxSummaryLength)
	domain.ValidateMaxLength(v, "object", in.Object, maxObjectLength)
	domain.ValidateMaxLength(v, "contract_notes", in.ContractNotes, maxNotesLength)
	domain.ValidateMaxLength(v, "change_reason", in.ChangeReason, maxReasonLength)
	domain.ValidateAmount(v, "budgeted_amount", in.BudgetedAmount)

	if in.BudgetID == 0 {
		v.Add("budget", "This field is required.")
	} else if center, ok, err := s.repo.BudgetCenter(ctx, in.BudgetID); err != nil {
		return err
	} else if !ok || !scope.CanAccessCenter(center) {
		v.Add("budget", "Invalid pk - object does not exist.")
	}

	if in.ManagementCenterID != nil {
		if ok, err := s.repo.Exists(ctx, "center_management_center", *in.ManagementCenterID); err != nil {
			return err
		} else if !ok || !scope.CanAccessCenter(*in.ManagementCenterID) {
			v.Add("management_center", "Invalid pk - object does not exist.")
		}
	}
	if in.RequestingCenterID != nil {
		parent, ok, err := s.repo.RequestingCenterParent(ctx, *in.RequestingCenterID)
		switch {
		case err != nil:
			return err
		case !ok:
			v.Add("requesting_center", "Invalid pk - object does not exist.")
		case in.ManagementCenterID != nil && parent != *in.ManagementCenterID:
			v.Add("requesting_center", "The requesting center does not belong to the selected management center.")
		}
	}
	for field, id := range map[string]*int64{"main_fiscal": in.MainFiscalID, "secondary_fiscal": in.SecondaryFiscalID} {
		if id == nil {
			continue
		}
		if ok, err := s.repo.Exists(ctx, "employee_employee", *id); err != nil {
			return err
		} else if !ok {
			v.Add(field, "Invalid pk - object does not exist.")
		}
	}
	return v.OrNil()
}

// Save creates (id == 0) or updates a line. Updates snapshot the new state
// into a version.
func (s *Service) Save(ctx context.Context, scope *access.Scope, id int64, in Input, userID int64) (*BudgetLine, error) {
	if err := s.validate(ctx, scope, &in); err != nil {
		return nil, err
	}

	action := events.ActionUpdated
	version := 0
	err := database.WithTransaction(ctx, s.repo.db, func(tx *sql.Tx) error {
		if id == 0 {
			action = events.ActionCreated
			newID, err := insertLine(ctx, tx, in, userID)
			if err != nil {
				return err
			}
			id = newID
			_, err = budget.Recalculate(ctx, tx, in.BudgetID)
			return err
		}

		oldBudget, err := lineBudget(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := updateLine(ctx, tx, id, in, userID); err != nil {
			return err
		}
		reason := in.ChangeReason
		if reason == "" {
			reason = DefaultChangeReason
		}
		snapshot := in
		snapshot.ChangeReason = ""
		data, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("failed to encode budget line snapshot: %w", err)
		}
		if version, err = insertVersion(ctx, tx, id, in, data, reason, userID); err != nil {
			return err
		}
		return budget.RecalculateAll(ctx, tx, oldBudget, in.BudgetID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("budget_line_id", id).
		Int64("budget_id", in.BudgetID).
		Str("action", action).
		Int("version", version).
		Msg("Budget line saved")
	s.events.EmitTyped("budgetline", &events.BudgetLineChangedData{
		BudgetLineID:  id,
		BudgetID:      in.BudgetID,
		Action:        action,
		VersionNumber: version,
	})
	return s.repo.Get(ctx, access.FullScope(), id)
}

// Delete removes a visible line that no contract or assistance uses.
func (s *Service) Delete(ctx context.Context, scope *access.Scope, id int64) error {
	line, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	contracts, aids, err := s.repo.references(ctx, id)
	if err != nil {
		return err
	}
	if contracts > 0 || aids > 0 {
		return domain.Conflictf("cannot delete budget line %d: it is used by %d contract(s) and %d assistance record(s)", id, contracts, aids)
	}

	err = database.WithTransaction(ctx, s.repo.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM budgetline_budgetline WHERE id = ?`, id)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return domain.Conflictf("cannot delete budget line %d: it is still referenced by other records", id)
			}
			return fmt.Errorf("failed to delete budget line: %w", err)
		}
		if err := database.RequireAffected(res, "budget line", id); err != nil {
			return err
		}
		_, err = budget.Recalculate(ctx, tx, line.Budget.ID)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Int64("budget_line_id", id).Int64("budget_id", line.Budget.ID).Msg("Budget line deleted")
	s.events.EmitTyped("budgetline", &events.BudgetLineChangedData{BudgetLineID: id, BudgetID: line.Budget.ID, Action: events.ActionDeleted})
	return nil
}

// Versions lists the versions of a visible line.
func (s *Service) Versions(ctx context.Context, scope *access.Scope, id int64) ([]Version, error) {
	if _, err := s.repo.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	return s.repo.Versions(ctx, id)
}

func (s *Service) validateMovement(ctx context.Context, scope *access.Scope, in *MovementInput) error {
	in.MovementNotes = strings.TrimSpace(in.MovementNotes)

	v := &domain.ValidationError{}
	domain.ValidateAmount(v, "movement_amount", in.MovementAmount)
	domain.ValidateMaxLength(v, "movement_notes", in.MovementNotes, maxNotesLength)
	if in.SourceLineID == nil && in.DestinationLineID == nil {
		v.Add(domain.NonFieldErrors, "A movement needs a source line, a destination line or both.")
	}
	if in.SourceLineID != nil && in.DestinationLineID != nil && *in.SourceLineID == *in.DestinationLineID {
		v.Add(domain.NonFieldErrors, "Source and destination lines must be different.")
	}
	for field, id := range map[string]*int64{"source_line": in.SourceLineID, "destination_line": in.DestinationLineID} {
		if id == nil {
			continue
		}
		center, ok, err := s.repo.OwningCenter(ctx, *id)
		if err != nil {
			return err
		}
		if !ok || !scope.CanAccessCenter(center) {
			v.Add(field, "Invalid pk - object does not exist.")
		}
	}
	return v.OrNil()
}

// SaveMovement creates (id == 0) or updates a line movement.
func (s *Service) SaveMovement(ctx context.Context, scope *access.Scope, id int64, in MovementInput, userID int64) (*Movement, error) {
	if err := s.validateMovement(ctx, scope, &in); err != nil {
		return nil, err
	}
	if id == 0 {
		newID, err := s.repo.CreateMovement(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		id = newID
	} else if err := s.repo.UpdateMovement(ctx, id, in, userID); err != nil {
		return nil, err
	}
	s.log.Info().Int64("movement_id", id).Str("amount", in.MovementAmount.StringFixed(2)).Msg("Budget line movement saved")
	return s.repo.GetMovement(ctx, access.FullScope(), id)
}

// DeleteMovement removes a visible line movement.
func (s *Service) DeleteMovement(ctx context.Context, scope *access.Scope, id int64) error {
	if _, err := s.repo.GetMovement(ctx, scope, id); err != nil {
		return err
	}
	return s.repo.DeleteMovement(ctx, id)
}
