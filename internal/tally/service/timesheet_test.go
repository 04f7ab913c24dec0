package service_test

import (
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/service"
)

func (s *ServiceSuite) timesheet(scope domain.Scope) domain.Timesheet {
	t := domain.Timesheet{StartDate: epoch, EndDate: epoch.Add(7 * 24 * time.Hour)}
	s.Require().NoError(s.timesheets.Create(s.ctx, scope, &t))
	return t
}

func (s *ServiceSuite) TestEntriesRecomputeDuration() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	t := s.timesheet(scope)
	s.Equal(domain.TimesheetDraft, t.Status)

	bad := domain.TimesheetEntry{TimesheetID: t.ID, StartTime: epoch, EndTime: epoch}
	s.ErrorIs(s.timesheets.AddEntry(s.ctx, scope, &bad), domain.ErrValidation)

	e := domain.TimesheetEntry{
		TimesheetID: t.ID,
		StartTime:   epoch,
		EndTime:     epoch.Add(90 * time.Minute),
		Duration:    time.Minute,
		Description: "design review",
	}
	s.Require().NoError(s.timesheets.AddEntry(s.ctx, scope, &e))
	s.Equal(90*time.Minute, e.Duration)

	e.EndTime = epoch.Add(2 * time.Hour)
	s.Require().NoError(s.timesheets.UpdateEntry(s.ctx, scope, &e))

	entries, err := s.timesheets.ListEntries(s.ctx, scope, t.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(2*time.Hour, entries[0].Duration)

	detail, err := s.timesheets.Detail(s.ctx, scope, t.ID)
	s.Require().NoError(err)
	s.Len(detail.Entries, 1)

	submitted, err := s.timesheets.SetStatus(s.ctx, scope, t.ID, domain.TimesheetSubmitted)
	s.Require().NoError(err)
	s.Equal(domain.TimesheetSubmitted, submitted.Status)
}

func (s *ServiceSuite) TestBillEntryOnce() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	t := s.timesheet(scope)

	e := domain.TimesheetEntry{TimesheetID: t.ID, StartTime: epoch, EndTime: epoch.Add(90 * time.Minute)}
	s.Require().NoError(s.timesheets.AddEntry(s.ctx, scope, &e))

	_, err := s.timesheets.BillEntry(s.ctx, scope, e.ID, 0)
	s.ErrorIs(err, domain.ErrValidation)

	x, err := s.timesheets.BillEntry(s.ctx, scope, e.ID, domain.MustParseMoney("40.00"))
	s.Require().NoError(err)
	s.Equal(domain.MustParseMoney("60.00"), x.Amount)
	s.Equal(scope.Owner, x.Owner)
	s.Require().NotNil(x.TimesheetEntryID)
	s.Equal(e.ID, *x.TimesheetEntryID)

	_, err = s.timesheets.BillEntry(s.ctx, scope, e.ID, domain.MustParseMoney("40.00"))
	s.ErrorIs(err, service.ErrAlreadyBilled)
	s.ErrorIs(err, domain.ErrConflict)

	// Deleting the entry keeps the expense and detaches it.
	s.Require().NoError(s.timesheets.DeleteEntry(s.ctx, scope, e.ID))
	got, err := s.expenses.Get(s.ctx, scope, x.ID)
	s.Require().NoError(err)
	s.Nil(got.TimesheetEntryID)
	s.Equal(x.Amount, got.Amount)
}

func (s *ServiceSuite) TestBillEntryRounding() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	t := s.timesheet(scope)

	e := domain.TimesheetEntry{TimesheetID: t.ID, StartTime: epoch, EndTime: epoch.Add(25 * time.Minute)}
	s.Require().NoError(s.timesheets.AddEntry(s.ctx, scope, &e))

	x, err := s.timesheets.BillEntry(s.ctx, scope, e.ID, domain.MustParseMoney("10.00"))
	s.Require().NoError(err)
	s.Equal(domain.MustParseMoney("4.17"), x.Amount)
}

func (s *ServiceSuite) TestTimesheetsAreTenantScoped() {
	alice := s.register("alice@x.com")
	bob := s.register("bob@x.com")
	as, bs := s.scopeOf(alice.ID), s.scopeOf(bob.ID)

	theirs := s.timesheet(bs)
	e := domain.TimesheetEntry{TimesheetID: theirs.ID, StartTime: epoch, EndTime: epoch.Add(time.Hour)}
	s.Require().NoError(s.timesheets.AddEntry(s.ctx, bs, &e))

	intruder := domain.TimesheetEntry{TimesheetID: theirs.ID, StartTime: epoch, EndTime: epoch.Add(time.Hour)}
	s.ErrorIs(s.timesheets.AddEntry(s.ctx, as, &intruder), domain.ErrCrossTenant)

	_, err := s.timesheets.BillEntry(s.ctx, as, e.ID, 100)
	s.ErrorIs(err, domain.ErrCrossTenant)

	x := domain.Expense{Amount: 1, TimesheetEntryID: &e.ID}
	s.ErrorIs(s.expenses.Create(s.ctx, as, &x), domain.ErrCrossTenant)

	_, err = s.timesheets.ListEntries(s.ctx, as, theirs.ID)
	s.ErrorIs(err, domain.ErrCrossTenant)
	s.ErrorIs(s.timesheets.Delete(s.ctx, as, theirs.ID), domain.ErrCrossTenant)
}
