package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/eldercare/eldercare/internal/domain/identity"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/internal/platform/db"
	"github.com/eldercare/eldercare/internal/platform/notification"
	"github.com/eldercare/eldercare/pkg/apperr"
)

type ResidentLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*resident.Resident, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// Notifier queues an outbound email. NotificationManager satisfies it.
type Notifier interface {
	Notify(ctx context.Context, templateID, recipient string, data map[string]string) (*notification.Message, error)
}

type Service struct {
	bills     BillRepository
	finance   FinanceRepository
	residents ResidentLookup
	users     UserLookup
	calc      *CostCalculator
	notifier  Notifier
	tx        db.TxRunner
	now       func() time.Time
}

func NewService(bills BillRepository, finance FinanceRepository, residents ResidentLookup, users UserLookup,
	calc *CostCalculator, notifier Notifier, tx db.TxRunner) *Service {
	if tx == nil {
		tx = db.NoTx
	}
	return &Service{
		bills:     bills,
		finance:   finance,
		residents: residents,
		users:     users,
		calc:      calc,
		notifier:  notifier,
		tx:        tx,
		now:       time.Now,
	}
}

// -- Bills --

type CreateBillInput struct {
	ResidentID           uuid.UUID       `json:"resident_id" validate:"required"`
	CarePlanAssignmentID *uuid.UUID      `json:"care_plan_assignment_id,omitempty"`
	Title                string          `json:"title" validate:"required"`
	Amount               decimal.Decimal `json:"amount"`
	DueDate              time.Time       `json:"due_date" validate:"required"`
	Notes                *string         `json:"notes,omitempty"`
}

type UpdateBillInput struct {
	Title   *string    `json:"title,omitempty"`
	DueDate *time.Time `json:"due_date,omitempty"`
	Notes   *string    `json:"notes,omitempty"`
}

func (s *Service) CreateBill(ctx context.Context, in CreateBillInput) (*Bill, error) {
	if in.Title == "" {
		return nil, apperr.Invalid("title is required")
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Invalid("amount must be greater than 0")
	}
	r, err := s.residents.Get(ctx, in.ResidentID)
	if err != nil {
		return nil, err
	}
	b := &Bill{
		ResidentID:           r.ID,
		FamilyMemberID:       r.FamilyMemberID,
		CarePlanAssignmentID: in.CarePlanAssignmentID,
		StaffID:              callerID(ctx),
		Title:                in.Title,
		Amount:               in.Amount,
		DueDate:              in.DueDate,
		Status:               BillPending,
		Notes:                in.Notes,
	}
	if err := s.bills.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBill hides other families' bills from family callers.
func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.IsFamilyOnly(ctx) && (b.FamilyMemberID == nil || b.FamilyMemberID.String() != auth.UserIDFromContext(ctx)) {
		return nil, apperr.NotFound("bill")
	}
	return b, nil
}

func (s *Service) ListBills(ctx context.Context, f BillFilter) ([]*Bill, int, error) {
	if auth.IsFamilyOnly(ctx) {
		uid, err := uuid.Parse(auth.UserIDFromContext(ctx))
		if err != nil {
			return nil, 0, nil
		}
		f.FamilyMemberID = &uid
	}
	return s.bills.Search(ctx, f)
}

func (s *Service) UpdateBill(ctx context.Context, id uuid.UUID, in UpdateBillInput) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Open() {
		return nil, apperr.Conflict("a %s bill cannot be edited", b.Status)
	}
	if in.Title != nil {
		if *in.Title == "" {
			return nil, apperr.Invalid("title cannot be empty")
		}
		b.Title = *in.Title
	}
	if in.DueDate != nil {
		b.DueDate = *in.DueDate
	}
	if in.Notes != nil {
		b.Notes = in.Notes
	}
	if err := s.bills.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// PayBill settles an open bill and books the income in one transaction.
// The family is told afterwards on a best-effort basis.
func (s *Service) PayBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	var b *Bill
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		if b, err = s.bills.GetByID(ctx, id); err != nil {
			return err
		}
		if !b.Open() {
			return apperr.Conflict("bill is already %s", b.Status)
		}
		now := s.now()
		b.Status = BillPaid
		b.PaidDate = &now
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		desc := "Payment for " + b.Title
		return s.finance.Create(ctx, &FinanceTransaction{
			Type:            TxIncome,
			Category:        categoryBillPayment,
			Amount:          b.Amount,
			Description:     &desc,
			BillID:          &b.ID,
			TransactionDate: now,
			CreatedBy:       callerID(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifyPaid(ctx, b)
	return b, nil
}

func (s *Service) CancelBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Open() {
		return nil, apperr.Conflict("bill is already %s", b.Status)
	}
	b.Status = BillCancelled
	if err := s.bills.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) notifyPaid(ctx context.Context, b *Bill) {
	if s.notifier == nil || b.FamilyMemberID == nil {
		return
	}
	log := zerolog.Ctx(ctx)
	u, err := s.users.GetUser(ctx, *b.FamilyMemberID)
	if err != nil || u.Email == "" {
		log.Warn().Str("bill_id", b.ID.String()).Msg("no family email for paid bill")
		return
	}
	_, err = s.notifier.Notify(ctx, notification.TemplateBillPaid, u.Email, map[string]string{
		"family_name": u.FullName,
		"title":       b.Title,
		"amount":      formatMoney(b.Amount),
		"paid_date":   b.PaidDate.Format("02/01/2006"),
	})
	if err != nil {
		log.Error().Err(err).Str("bill_id", b.ID.String()).Msg("queue payment receipt")
	}
}

// CostCalculation returns the resident's current monthly cost breakdown.
func (s *Service) CostCalculation(ctx context.Context, residentID uuid.UUID) (*Calculation, error) {
	if _, err := s.residents.Get(ctx, residentID); err != nil {
		return nil, err
	}
	return s.calc.Calculate(ctx, residentID)
}

// -- Finance --

type TransactionInput struct {
	Type            string          `json:"type" validate:"required,oneof=income expense"`
	Category        string          `json:"category" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Description     *string         `json:"description,omitempty"`
	BillID          *uuid.UUID      `json:"bill_id,omitempty"`
	TransactionDate *time.Time      `json:"transaction_date,omitempty"`
}

func (s *Service) CreateTransaction(ctx context.Context, in TransactionInput) (*FinanceTransaction, error) {
	verr := apperr.NewValidationError()
	if in.Type != TxIncome && in.Type != TxExpense {
		verr.Add("type", "must be income or expense")
	}
	if in.Category == "" {
		verr.Add("category", "is required")
	}
	if !in.Amount.IsPositive() {
		verr.Add("amount", "must be greater than 0")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if in.BillID != nil {
		if _, err := s.bills.GetByID(ctx, *in.BillID); err != nil {
			return nil, err
		}
	}
	t := &FinanceTransaction{
		Type:            in.Type,
		Category:        in.Category,
		Amount:          in.Amount,
		Description:     in.Description,
		BillID:          in.BillID,
		TransactionDate: s.now(),
		CreatedBy:       callerID(ctx),
	}
	if in.TransactionDate != nil {
		t.TransactionDate = *in.TransactionDate
	}
	if err := s.finance.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*FinanceTransaction, error) {
	return s.finance.GetByID(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, f FinanceFilter) ([]*FinanceTransaction, int, error) {
	return s.finance.Search(ctx, f)
}

func (s *Service) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	return s.finance.Delete(ctx, id)
}

func (s *Service) Summary(ctx context.Context, from, to *time.Time) (*FinanceSummary, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, apperr.Invalid("to must not be before from")
	}
	return s.finance.Summary(ctx, from, to)
}

func callerID(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil
	}
	return &id
}
