package budget

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/events"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// MinYear is the earliest accepted budget year.
const MinYear = 2000

// summaryPageSize reads every budget of a category in one page.
const summaryPageSize = 1 << 30

// maxYearAhead bounds how far in the future a budget may be planned.
const maxYearAhead = 10

// Service implements budget and movement writes and the budget arithmetic.
type Service struct {
	repo   *Repository
	events *events.Manager
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a new budget service.
func NewService(repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: eventManager,
		now:    time.Now,
		log:    log.With().Str("service", "budget").Logger(),
	}
}

// Repository exposes the read side to handlers.
func (s *Service) Repository() *Repository {
	return s.repo
}

func (s *Service) validate(ctx context.Context, scope *access.Scope, id int64, in *Input) error {
	in.Category = strings.ToUpper(strings.TrimSpace(in.Category))
	if in.Status == "" {
		in.Status = string(domain.StatusActive)
	}

	v := &domain.ValidationError{}
	if maxYear := s.now().Year() + maxYearAhead; in.Year < MinYear || in.Year > maxYear {
		v.Add("year", fmt.Sprintf("Year must be between %d and %d.", MinYear, maxYear))
	}
	if in.Category == "" {
		v.Add("category", "This field is required.")
	} else {
		domain.ValidateChoice(v, "category", in.Category, domain.Categories)
	}
	domain.ValidateChoice(v, "status", in.Status, []string{string(domain.StatusActive), string(domain.StatusInactive)})
	domain.ValidateAmount(v, "total_amount", in.TotalAmount)

	var centerName string
	switch {
	case in.ManagementCenterID == 0:
		v.Add("management_center", "This field is required.")
	case !scope.CanAccessCenter(in.ManagementCenterID):
		v.Add("management_center", "Invalid pk - object does not exist.")
	default:
		name, ok, err := s.repo.CenterName(ctx, in.ManagementCenterID)
		if err != nil {
			return err
		}
		if !ok {
			v.Add("management_center", "Invalid pk - object does not exist.")
		}
		centerName = name
	}
	if v.HasErrors() {
		return v
	}

	taken, err := s.repo.Exists(ctx, in.Year, in.Category, in.ManagementCenterID, id)
	if err != nil {
		return err
	}
	if taken {
		return domain.NewValidationError(domain.NonFieldErrors, fmt.Sprintf(
			"A budget for year %d, category %s and management center %s already exists.", in.Year, in.Category, centerName))
	}
	return nil
}

// Save creates (id == 0) or updates a budget. The available amount is
// recalculated in the same transaction.
func (s *Service) Save(ctx context.Context, scope *access.Scope, id int64, in Input, userID int64) (*Budget, error) {
	if err := s.validate(ctx, scope, id, &in); err != nil {
		return nil, err
	}

	action := events.ActionUpdated
	var available decimal.Decimal
	err := database.WithTransaction(ctx, s.repo.db, func(tx *sql.Tx) error {
		if id == 0 {
			action = events.ActionCreated
			newID, err := insertBudget(ctx, tx, in, userID)
			if err != nil {
				return err
			}
			id = newID
		} else if err := updateBudget(ctx, tx, id, in, userID); err != nil {
			return err
		}
		var err error
		available, err = Recalculate(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("budget_id", id).
		Str("action", action).
		Str("available_amount", available.StringFixed(2)).
		Msg("Budget saved")
	s.events.EmitTyped("budget", &events.BudgetChangedData{
		BudgetID:        id,
		Action:          action,
		AvailableAmount: available.StringFixed(2),
		UserID:          userID,
	})
	return s.repo.Get(ctx, access.FullScope(), id)
}

// Delete removes a visible budget.
func (s *Service) Delete(ctx context.Context, scope *access.Scope, id int64, userID int64) error {
	if _, err := s.repo.Get(ctx, scope, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("budget_id", id).Msg("Budget deleted")
	s.events.EmitTyped("budget", &events.BudgetChangedData{BudgetID: id, Action: events.ActionDeleted, UserID: userID})
	return nil
}

func (s *Service) validateMovement(ctx context.Context, scope *access.Scope, in *MovementInput) error {
	v := &domain.ValidationError{}
	domain.ValidateAmount(v, "amount", in.Amount)
	for field, budgetID := range map[string]int64{"source": in.SourceID, "destination": in.DestinationID} {
		if budgetID == 0 {
			v.Add(field, "This field is required.")
			continue
		}
		center, ok, err := s.repo.CenterOf(ctx, s.repo.db, budgetID)
		if err != nil {
			return err
		}
		if !ok || !scope.CanAccessCenter(center) {
			v.Add(field, "Invalid pk - object does not exist.")
		}
	}
	if in.SourceID != 0 && in.SourceID == in.DestinationID {
		v.Add(domain.NonFieldErrors, "Source and destination budgets must be different.")
	}
	return v.OrNil()
}

// SaveMovement creates (id == 0) or updates a movement and recalculates every
// budget it touches, before and after the change.
func (s *Service) SaveMovement(ctx context.Context, scope *access.Scope, id int64, in MovementInput, userID int64) (*Movement, error) {
	in.Notes = strings.TrimSpace(in.Notes)
	if err := s.validateMovement(ctx, scope, &in); err != nil {
		return nil, err
	}

	action := events.ActionUpdated
	err := database.WithTransaction(ctx, s.repo.db, func(tx *sql.Tx) error {
		touched := []int64{in.SourceID, in.DestinationID}
		if id == 0 {
			action = events.ActionCreated
			newID, err := insertMovement(ctx, tx, in, domain.NewDate(s.now().Year(), s.now().Month(), s.now().Day()), userID)
			if err != nil {
				return err
			}
			id = newID
		} else {
			oldSource, oldDestination, err := movementEnds(ctx, tx, id)
			if err != nil {
				return err
			}
			touched = append(touched, oldSource, oldDestination)
			if err := updateMovement(ctx, tx, id, in, userID); err != nil {
				return err
			}
		}
		return RecalculateAll(ctx, tx, touched...)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("movement_id", id).
		Int64("source_id", in.SourceID).
		Int64("destination_id", in.DestinationID).
		Str("amount", in.Amount.StringFixed(2)).
		Msg("Budget movement saved")
	s.events.EmitTyped("budget", &events.BudgetMovementData{
		MovementID:    id,
		Action:        action,
		SourceID:      in.SourceID,
		DestinationID: in.DestinationID,
		Amount:        in.Amount.StringFixed(2),
	})
	return s.repo.GetMovement(ctx, access.FullScope(), id)
}

// DeleteMovement removes a visible movement and recalculates both budgets.
func (s *Service) DeleteMovement(ctx context.Context, scope *access.Scope, id int64) error {
	m, err := s.repo.GetMovement(ctx, scope, id)
	if err != nil {
		return err
	}
	err = database.WithTransaction(ctx, s.repo.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM budget_budgetmovement WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete movement: %w", err)
		}
		if err := database.RequireAffected(res, "movement", id); err != nil {
			return err
		}
		return RecalculateAll(ctx, tx, m.Source.ID, m.Destination.ID)
	})
	if err != nil {
		return err
	}
	s.events.EmitTyped("budget", &events.BudgetMovementData{
		MovementID:    id,
		Action:        events.ActionDeleted,
		SourceID:      m.Source.ID,
		DestinationID: m.Destination.ID,
		Amount:        m.Amount.StringFixed(2),
	})
	return nil
}

// Reconcile recalculates every budget and reports how many stored values drifted.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	ids, err := s.repo.IDs(ctx)
	if err != nil {
		return 0, err
	}
	drifted := 0
	for _, id := range ids {
		err := database.WithTransaction(ctx, s.repo.db, func(tx *sql.Tx) error {
			var stored decimal.Decimal
			if err := tx.QueryRowContext(ctx, `SELECT available_amount FROM budget_budget WHERE id = ?`, id).Scan(&stored); err != nil {
				return fmt.Errorf("failed to load available amount: %w", err)
			}
			available, err := Recalculate(ctx, tx, id)
			if err != nil {
				return err
			}
			if !domain.RoundMoney(stored).Equal(available) {
				drifted++
				s.log.Warn().
					Int64("budget_id", id).
					Str("stored", stored.StringFixed(2)).
					Str("calculated", available.StringFixed(2)).
					Msg("Budget available amount drifted")
			}
			return nil
		})
		if err != nil {
			return drifted, err
		}
	}
	s.log.Info().Int("budgets", len(ids)).Int("drifted", drifted).Msg("Budgets reconciled")
	return drifted, nil
}

// Summary rolls visible budgets up per category.
func (s *Service) Summary(ctx context.Context, scope *access.Scope, year *int64) (*Summary, error) {
	out := &Summary{Year: year, Categories: make([]CategorySummary, 0, len(domain.Categories))}
	for _, c := range domain.Categories {
		category := domain.Category(c)
		cs := CategorySummary{Category: category}

		budgets, _, err := s.repo.List(ctx, scope, domain.ListParams{Page: 1, PageSize: summaryPageSize}, ListFilter{Year: year, Category: c})
		if err != nil {
			return nil, err
		}
		cs.Budgets = len(budgets)
		for _, b := range budgets {
			cs.TotalAmount = cs.TotalAmount.Add(b.TotalAmount)
			cs.UsedAmount = cs.UsedAmount.Add(b.UsedAmount)
			cs.AvailableAmount = cs.AvailableAmount.Add(b.AvailableAmount)
		}

		amounts, err := s.repo.LineAmounts(ctx, scope, year, category)
		if err != nil {
			return nil, err
		}
		cs.Lines = len(amounts)
		if len(amounts) > 0 {
			cs.LineMean = stat.Mean(amounts, nil)
		}
		if len(amounts) > 1 {
			cs.LineStdDev = stat.StdDev(amounts, nil)
		}
		out.Categories = append(out.Categories, cs)
	}
	return out, nil
}
