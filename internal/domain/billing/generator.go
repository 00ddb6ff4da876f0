package billing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eldercare/eldercare/internal/domain/careplan"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/platform/notification"
)

// ResidentSource lists residents; resident.Repository satisfies it.
type ResidentSource interface {
	Search(ctx context.Context, f resident.Filter) ([]*resident.Resident, int, error)
}

type GeneratorConfig struct {
	// DueDay is the day of the month bills fall due, at 23:59:59.
	DueDay int
	// Workers bounds how many residents are billed at once. 1 is sequential.
	Workers int
}

// Summary counts the outcome of one generator run.
type Summary struct {
	Processed int64 `json:"processed"`
	Success   int64 `json:"success"`
	Skipped   int64 `json:"skipped"`
	Errors    int64 `json:"errors"`
}

// Generator creates one pending bill per admitted resident per month.
type Generator struct {
	residents   ResidentSource
	assignments AssignmentSource
	placements  PlacementSource
	calc        *CostCalculator
	bills       BillRepository
	users       UserLookup
	notifier    Notifier
	cfg         GeneratorConfig
}

func NewGenerator(residents ResidentSource, assignments AssignmentSource, placements PlacementSource,
	calc *CostCalculator, bills BillRepository, users UserLookup, notifier Notifier, cfg GeneratorConfig) *Generator {
	if cfg.DueDay <= 0 {
		cfg.DueDay = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Generator{
		residents:   residents,
		assignments: assignments,
		placements:  placements,
		calc:        calc,
		bills:       bills,
		users:       users,
		notifier:    notifier,
		cfg:         cfg,
	}
}

// Run implements scheduler.Job.
func (g *Generator) Run(ctx context.Context, now time.Time) error {
	_, err := g.Generate(ctx, now)
	return err
}

// Generate bills every admitted resident for now's month. Per-resident
// failures are logged and counted; only failing to list residents aborts.
func (g *Generator) Generate(ctx context.Context, now time.Time) (Summary, error) {
	log := zerolog.Ctx(ctx)
	token := PeriodToken(now)

	residents, _, err := g.residents.Search(ctx, resident.Filter{Statuses: []string{resident.StatusAdmitted}})
	if err != nil {
		return Summary{}, fmt.Errorf("list admitted residents: %w", err)
	}
	log.Info().Str("period", token).Int("residents", len(residents)).Msg("monthly billing started")

	var sum Summary
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for _, r := range residents {
		if egCtx.Err() != nil {
			break
		}
		r := r
		eg.Go(func() error {
			atomic.AddInt64(&sum.Processed, 1)
			created, err := g.billResident(egCtx, r, now, token)
			switch {
			case err != nil:
				atomic.AddInt64(&sum.Errors, 1)
				log.Error().Err(err).Str("resident_id", r.ID.String()).Str("resident", r.FullName).
					Msg("monthly bill failed")
			case created:
				atomic.AddInt64(&sum.Success, 1)
			default:
				atomic.AddInt64(&sum.Skipped, 1)
			}
			return nil
		})
	}
	_ = eg.Wait()

	log.Info().
		Str("period", token).
		Int64("processed", sum.Processed).
		Int64("success_count", sum.Success).
		Int64("skipped_count", sum.Skipped).
		Int64("error_count", sum.Errors).
		Msg("monthly billing finished")
	return sum, ctx.Err()
}

// billResident returns true when a bill was created. Business-rule skips
// return false and a nil error.
func (g *Generator) billResident(ctx context.Context, r *resident.Resident, now time.Time, token string) (bool, error) {
	log := zerolog.Ctx(ctx).With().Str("resident_id", r.ID.String()).Str("resident", r.FullName).Logger()

	_, existing, err := g.bills.Search(ctx, BillFilter{ResidentID: &r.ID, TitleContains: token, Limit: 1})
	if err != nil {
		return false, fmt.Errorf("look up existing bill: %w", err)
	}
	if existing > 0 {
		log.Debug().Str("period", token).Msg("bill already exists for period")
		return false, nil
	}

	a, err := g.assignments.ActiveAssignment(ctx, r.ID)
	if err != nil {
		return false, fmt.Errorf("load care plan assignment: %w", err)
	}
	if a == nil {
		log.Warn().Msg("no active care plan assignment, skipping")
		return false, nil
	}
	if !a.Covers(now) {
		log.Warn().Str("assignment_id", a.ID.String()).Time("start_date", a.StartDate).
			Msg("billing date outside the assignment period, skipping")
		return false, nil
	}

	plans, err := g.assignments.GetPlans(ctx, a.CarePlanIDs)
	if err != nil {
		return false, fmt.Errorf("load care plans: %w", err)
	}

	// The bed only adds room detail; the bill goes out without it.
	placement, err := g.placements.ActivePlacement(ctx, r.ID)
	if err != nil {
		log.Warn().Err(err).Msg("could not load bed assignment, billing without room details")
		placement = nil
	}

	calc := g.calc.CalculateFor(r.ID, a, plans, placement)
	amount := calc.TotalAmount
	if a.TotalMonthlyCost.Valid && !a.TotalMonthlyCost.Decimal.IsZero() {
		amount = a.TotalMonthlyCost.Decimal
	}
	if !amount.IsPositive() {
		log.Warn().Str("amount", amount.String()).Msg("bill amount is not positive, skipping")
		return false, nil
	}

	b := &Bill{
		ResidentID:           r.ID,
		FamilyMemberID:       r.FamilyMemberID,
		CarePlanAssignmentID: &a.ID,
		Title:                monthlyTitle(token),
		Amount:               amount,
		DueDate:              DueDate(now, g.cfg.DueDay),
		Status:               BillPending,
		CarePlanSnapshot:     snapshotPlans(plans),
	}
	if placement != nil {
		b.RoomSnapshot = &RoomSnapshot{
			RoomID:       placement.Room.ID,
			RoomNumber:   placement.Room.RoomNumber,
			RoomType:     placement.Room.RoomType,
			Floor:        placement.Room.Floor,
			BedNumber:    placement.Bed.BedNumber,
			MonthlyPrice: placement.Room.MonthlyPrice,
		}
	}
	if err := g.bills.Create(ctx, b); err != nil {
		return false, fmt.Errorf("create bill: %w", err)
	}
	log.Info().Str("bill_id", b.ID.String()).Str("amount", b.Amount.String()).Msg("monthly bill created")

	g.notifyFamily(ctx, log, r, b, token)
	return true, nil
}

// notifyFamily queues the bill email. A missing address or a queue failure
// is logged and never fails the bill.
func (g *Generator) notifyFamily(ctx context.Context, log zerolog.Logger, r *resident.Resident, b *Bill, token string) {
	if g.notifier == nil {
		return
	}
	if r.FamilyMemberID == nil {
		log.Warn().Msg("resident has no family member, bill email skipped")
		return
	}
	u, err := g.users.GetUser(ctx, *r.FamilyMemberID)
	if err != nil {
		log.Warn().Err(err).Msg("family member lookup failed, bill email skipped")
		return
	}
	if u.Email == "" {
		log.Warn().Str("family_member_id", u.ID.String()).Msg("family member has no email, bill email skipped")
		return
	}
	_, err = g.notifier.Notify(ctx, notification.TemplateMonthlyBill, u.Email, map[string]string{
		"family_name":   u.FullName,
		"resident_name": r.FullName,
		"month":         token,
		"amount":        formatMoney(b.Amount),
		"due_date":      b.DueDate.Format("02/01/2006"),
		"bill_id":       b.ID.String(),
	})
	if err != nil {
		log.Error().Err(err).Str("bill_id", b.ID.String()).Msg("queue bill email")
	}
}

func snapshotPlans(plans []*careplan.CarePlan) []CarePlanSnapshot {
	out := make([]CarePlanSnapshot, 0, len(plans))
	for _, p := range plans {
		out = append(out, CarePlanSnapshot{
			CarePlanID:   p.ID,
			PlanName:     p.PlanName,
			Description:  p.Description,
			MonthlyPrice: p.MonthlyPrice,
			PlanType:     p.PlanType,
			Category:     p.Category,
			StaffRatio:   p.StaffRatio,
		})
	}
	return out
}
