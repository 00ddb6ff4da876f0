package jobs

import (
	"github.com/eldercare/eldercare/internal/platform/scheduler"
)

// Job names, as shown by the admin API and accepted by "jobs run".
const (
	NamePauseExpired       = "careplan-pause-expired"
	NameWarnExpiring       = "careplan-warn-expiring"
	NameFinalizePaused     = "careplan-finalize-paused"
	NameBedActivation      = "bed-activation"
	NameResidentAutoCancel = "resident-auto-cancel"
	NameMonthlyBilling     = "monthly-billing"
	NameBillsOverdue       = "bills-overdue"
)

// Deps are the stores and the billing generator the jobs run against.
type Deps struct {
	Assignments    AssignmentStore
	BedAssignments BedAssignmentStore
	Residents      ResidentStore
	Bills          BillStore
	Billing        scheduler.Job
}

type Options struct {
	FinalizeByPausedAt bool
}

type definition struct {
	name, spec, description string
	job                     scheduler.Job
}

func definitions(d Deps, opt Options) []definition {
	return []definition{
		{NamePauseExpired, "0 0 * * *", "pause active care plan assignments past their end date",
			NewPauseExpired(d.Assignments)},
		{NameWarnExpiring, "0 6 * * *", "log care plan assignments ending within 7 days",
			NewWarnExpiring(d.Assignments)},
		{NameFinalizePaused, "0 1 * * *", "mark assignments paused for more than 5 days as done",
			NewFinalizePaused(d.Assignments, opt.FinalizeByPausedAt)},
		{NameBedActivation, "0 0 1 * *", "activate accepted bed assignments and close released ones",
			NewBedActivation(d.BedAssignments, d.Residents)},
		{NameResidentAutoCancel, "0 1 * * *", "cancel residents left in intake for 15 days",
			NewResidentAutoCancel(d.Residents)},
		{NameMonthlyBilling, "0 9 1 * *", "generate the monthly care bills",
			d.Billing},
		{NameBillsOverdue, "30 0 * * *", "mark pending bills past their due date as overdue",
			NewMarkOverdueBills(d.Bills)},
	}
}

// Register adds every job to s with its cron expression.
func Register(s *scheduler.Scheduler, d Deps, opt Options) error {
	for _, def := range definitions(d, opt) {
		if err := s.Register(def.name, def.spec, def.description, def.job); err != nil {
			return err
		}
	}
	return nil
}
