package contract

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/database"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/events"
	"github.com/rs/zerolog"
)

// Service implements contract, installment and amendment writes.
type Service struct {
	repo   *Repository
	events *events.Manager
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a new contract service.
func NewService(repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: eventManager,
		now:    time.Now,
		log:    log.With().Str("service", "contract").Logger(),
	}
}

// Repository exposes the read side to handlers.
func (s *Service) Repository() *Repository {
	return s.repo
}

// ListForInspector returns the visible contracts an employee inspects.
func (s *Service) ListForInspector(ctx context.Context, scope *access.Scope, employeeID int64) ([]Contract, error) {
	return s.repo.ListForInspector(ctx, scope, employeeID)
}

const invalidPK = "Invalid pk - object does not exist."

func (s *Service) validate(ctx context.Context, scope *access.Scope, id int64, in *Input) error {
	in.ProtocolNumber = strings.TrimSpace(in.ProtocolNumber)
	in.PaymentNature = strings.TrimSpace(in.PaymentNature)
	in.Description = strings.TrimSpace(in.Description)
	in.Status = strings.ToUpper(strings.TrimSpace(in.Status))
	if in.Status == "" {
		in.Status = StatusActive
	}

	v := &domain.ValidationError{}
	if in.PaymentNature == "" {
		v.Add("payment_nature", "This field is required.")
	}
	domain.ValidateChoice(v, "payment_nature", in.PaymentNature, PaymentNatures)
	domain.ValidateChoice(v, "status", in.Status, Statuses)
	domain.ValidateMaxLength(v, "protocol_number", in.ProtocolNumber, maxProtocolLength)
	domain.ValidateMaxLength(v, "description", in.Description, maxDescriptionLength)
	domain.ValidateAmount(v, "original_value", in.OriginalValue)
	if in.CurrentValue.Valid {
		domain.ValidateNonNegative(v, "current_value", in.CurrentValue.Decimal)
	}
	if in.StartDate.IsZero() {
		v.Add("start_date", "This field is required.")
	} else if !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		v.Add("end_date", "The end date cannot be earlier than the start date.")
	}

	if in.BudgetLineID == 0 {
		v.Add("budget_line", "This field is required.")
	} else if center, ok, err := s.repo.LineCenter(ctx, in.BudgetLineID); err != nil {
		return err
	} else if !ok || !scope.CanAccessCenter(center) {
		v.Add("budget_line", invalidPK)
	}

	for field, emp := range map[string]int64{"main_inspector": in.MainInspectorID, "substitute_inspector": in.SubstituteInspectorID} {
		if emp == 0 {
			v.Add(field, "This field is required.")
			continue
		}
		if ok, err := s.repo.EmployeeExists(ctx, emp); err != nil {
			return err
		} else if !ok {
			v.Add(field, invalidPK)
		}
	}
	if in.MainInspectorID != 0 && in.MainInspectorID == in.SubstituteInspectorID {
		v.Add(domain.NonFieldErrors, "The main and substitute inspectors must be different.")
	}

	if in.ProtocolNumber != "" {
		if taken, err := s.repo.ProtocolTaken(ctx, in.ProtocolNumber, id); err != nil {
			return err
		} else if taken {
			v.Add("protocol_number", "A contract with this protocol number already exists.")
		}
	}
	return v.OrNil()
}

// Save creates (id == 0) or updates a contract. A missing protocol number is
// generated from the current year. On update the current value is derived
// from the original value and the amendments.
func (s *Service) Save(ctx context.Context, scope *access.Scope, id int64, in Input, userID int64) (*Contract, error) {
	if err := s.validate(ctx, scope, id, &in); err != nil {
		return nil, err
	}

	action := events.ActionUpdated
	var current *Contract
	err := database.WithTransaction(ctx, s.repo.db, func(tx *sql.Tx) error {
		if in.ProtocolNumber == "" {
			p, err := nextProtocol(ctx, tx, s.now().Year())
			if err != nil {
				return err
			}
			in.ProtocolNumber = p
		}
		if id == 0 {
			action = events.ActionCreated
			if !in.CurrentValue.Valid {
				in.CurrentValue.Decimal, in.CurrentValue.Valid = in.OriginalValue, true
			}
			newID, err := insertContract(ctx, tx, in, userID)
			if err != nil {
				return err
			}
			id = newID
			current = &Contract{ID: id, ProtocolNumber: in.ProtocolNumber, CurrentValue: domain.RoundMoney(in.CurrentValue.Decimal)}
			return nil
		}
		if err := updateContract(ctx, tx, id, in, userID); err != nil {
			return err
		}
		var err error
		current, err = recalculate(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("contract_id", id).
		Str("protocol_number", current.ProtocolNumber).
		Str("action", action).
		Msg("Contract saved")
	s.emitChanged(current, action)
	return s.repo.Get(ctx, access.FullScope(), id)
}

func (s *Service) emitChanged(c *Contract, action string) {
	s.events.EmitTyped("contract", &events.ContractChangedData{
		ContractID:     c.ID,
		ProtocolNumber: c.ProtocolNumber,
		Action:         action,
		CurrentValue:   c.CurrentValue.StringFixed(2),
	})
}

// Delete removes a visible contract together with its installments and
// amendments.
func (s *Service) Delete(ctx context.Context, scope *access.Scope, id int64) error {
	c, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("contract_id", id).Str("protocol_number", c.ProtocolNumber).Msg("Contract deleted")
	s.events.EmitTyped("contract", &events.ContractChangedData{ContractID: id, ProtocolNumber: c.ProtocolNumber, Action: events.ActionDeleted})
	return nil
}

func (s *Service) validateContractRef(ctx context.Context, scope *access.Scope, v *domain.ValidationError, contractID int64) error {
	if contractID == 0 {
		v.Add("contract", "This field is required.")
		return nil
	}
	center, ok, err := s.repo.ContractCenter(ctx, contractID)
	if err != nil {
		return err
	}
	if !ok || !scope.CanAccessCenter(center) {
		v.Add("contract", invalidPK)
	}
	return nil
}

func (s *Service) validateInstallment(ctx context.Context, scope *access.Scope, id int64, in *InstallmentInput) error {
	in.Notes = strings.TrimSpace(in.Notes)
	in.Status = strings.ToUpper(strings.TrimSpace(in.Status))
	if in.Status == "" {
		in.Status = InstallmentPending
	}
	if !in.PaymentDate.IsZero() {
		in.Status = InstallmentPaid
	}

	v := &domain.ValidationError{}
	if err := s.validateContractRef(ctx, scope, v, in.ContractID); err != nil {
		return err
	}
	if in.Number < 1 {
		v.Add("number", "Ensure this value is greater than or equal to 1.")
	}
	domain.ValidateAmount(v, "value", in.Value)
	if in.DueDate.IsZero() {
		v.Add("due_date", "This field is required.")
	}
	domain.ValidateChoice(v, "status", in.Status, InstallmentStatuses)
	domain.ValidateMaxLength(v, "notes", in.Notes, maxNotesLength)

	if in.ContractID != 0 && in.Number >= 1 {
		if taken, err := s.repo.InstallmentNumberTaken(ctx, in.ContractID, in.Number, id); err != nil {
			return err
		} else if taken {
			v.Add(domain.NonFieldErrors, "The fields contract, number must make a unique set.")
		}
	}
	return v.OrNil()
}

// SaveInstallment creates (id == 0) or updates an installment. A payment date
// settles the installment.
func (s *Service) SaveInstallment(ctx context.Context, scope *access.Scope, id int64, in InstallmentInput, userID int64) (*Installment, error) {
	if err := s.validateInstallment(ctx, scope, id, &in); err != nil {
		return nil, err
	}
	if id == 0 {
		newID, err := s.repo.CreateInstallment(ctx, in, userID)
		if err != nil {
			return nil, err
		}
		id = newID
	} else if err := s.repo.UpdateInstallment(ctx, id, in, userID); err != nil {
		return nil, err
	}
	s.log.Info().Int64("installment_id", id).Int64("contract_id", in.ContractID).Str("status", in.Status).Msg("Installment saved")
	return s.repo.GetInstallment(ctx, access.FullScope(), id)
}

// DeleteInstallment removes a visible installment.
func (s *Service) DeleteInstallment(ctx context.Context, scope *access.Scope, id int64) error {
	if _, err := s.repo.GetInstallment(ctx, scope, id); err != nil {
		return err
	}
	return s.repo.DeleteInstallment(ctx, id)
}

// MarkOverdue flips pending installments due before today to overdue and
// emits one event per installment.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	now := s.now()
	today := domain.NewDate(now.Year(), now.Month(), now.Day())
	due, err := s.repo.PendingDue(ctx, today)
	if err != nil {
		return 0, err
	}
	ids := make([]int64, len(due))
	for i, inst := range due {
		ids[i] = inst.ID
	}
	n, err := s.repo.MarkOverdue(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, inst := range due {
		s.events.EmitTyped("contract", &events.InstallmentOverdueData{
			InstallmentID: inst.ID,
			ContractID:    inst.Contract.ID,
			Number:        inst.Number,
			DueDate:       inst.DueDate.String(),
			Value:         inst.Value.StringFixed(2),
		})
	}
	if n > 0 {
		s.log.Info().Int("count", n).Str("date", today.String()).Msg("Installments marked overdue")
	}
	return n, nil
}

func (s *Service) validateAmendment(ctx context.Context, scope *access.Scope, in *AmendmentInput) error {
	in.Description = strings.TrimSpace(in.Description)
	in.Type = strings.TrimSpace(in.Type)
	in.AdditionalTerm = strings.TrimSpace(in.AdditionalTerm)

	v := &domain.ValidationError{}
	if err := s.validateContractRef(ctx, scope, v, in.ContractID); err != nil {
		return err
	}
	if in.Type == "" {
		v.Add("type", "This field is required.")
	}
	domain.ValidateChoice(v, "type", in.Type, AmendmentTypes)
	domain.ValidateNonNegative(v, "value", in.Value)
	domain.ValidateMaxLength(v, "description", in.Description, maxDescriptionLength)
	domain.ValidateMaxLength(v, "additional_term", in.AdditionalTerm, maxTermLength)
	return v.OrNil()
}

// SaveAmendment creates (id == 0) or updates an amendment and recalculates
// the current value of every contract it touches.
func (s *Service) SaveAmendment(ctx context.Context, scope *access.Scope, id int64, in AmendmentInput, userID int64) (*Amendment, error) {
	if err := s.validateAmendment(ctx, scope, &in); err != nil {
		return nil, err
	}

	var touched []*Contract
	err := database.WithTransaction(ctx, s.repo.db, func(tx *sql.Tx) error {
		old := in.ContractID
		if id == 0 {
			newID, err := insertAmendment(ctx, tx, in, userID)
			if err != nil {
				return err
			}
			id = newID
		} else {
			var err error
			if old, err = amendmentContract(ctx, tx, id); err != nil {
				return err
			}
			if err := updateAmendment(ctx, tx, id, in, userID); err != nil {
				return err
			}
		}
		for _, cid := range uniqueIDs(old, in.ContractID) {
			c, err := recalculate(ctx, tx, cid)
			if err != nil {
				return err
			}
			touched = append(touched, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("amendment_id", id).Int64("contract_id", in.ContractID).Str("type", in.Type).Msg("Contract amendment saved")
	for _, c := range touched {
		s.emitChanged(c, events.ActionUpdated)
	}
	return s.repo.GetAmendment(ctx, access.FullScope(), id)
}

// DeleteAmendment removes a visible amendment and recalculates its contract.
func (s *Service) DeleteAmendment(ctx context.Context, scope *access.Scope, id int64) error {
	a, err := s.repo.GetAmendment(ctx, scope, id)
	if err != nil {
		return err
	}
	var c *Contract
	err = database.WithTransaction(ctx, s.repo.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM contract_contractamendment WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := database.RequireAffected(res, "contract amendment", id); err != nil {
			return err
		}
		c, err = recalculate(ctx, tx, a.Contract.ID)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Int64("amendment_id", id).Int64("contract_id", a.Contract.ID).Msg("Contract amendment deleted")
	s.emitChanged(c, events.ActionUpdated)
	return nil
}

func uniqueIDs(ids ...int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		dup := false
		for _, seen := range out {
			dup = dup || seen == id
		}
		if !dup {
			out = append(out, id)
		}
	}
	return out
}
