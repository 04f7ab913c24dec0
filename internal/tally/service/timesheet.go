package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/metrics"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/internal/tally/tenancy"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// TimesheetService tracks time and bills it as expenses. An entry is billed
// at most once.
type TimesheetService struct {
	Store   store.Store
	Metrics *metrics.Metrics
}

func validateTimesheet(t *domain.Timesheet) error {
	v := &domain.ValidationError{}
	if t.StartDate.IsZero() {
		v.Add("startDate", "is required")
	}
	if t.EndDate.IsZero() {
		v.Add("endDate", "is required")
	} else if t.EndDate.Before(t.StartDate) {
		v.Add("endDate", "must not be before startDate")
	}
	return v.Err()
}

// prepareEntry validates the interval and recomputes the duration.
func prepareEntry(e *domain.TimesheetEntry) error {
	v := &domain.ValidationError{}
	if e.TimesheetID == "" {
		v.Add("timesheetId", "is required")
	}
	if e.StartTime.IsZero() {
		v.Add("startTime", "is required")
	}
	if !e.EndTime.After(e.StartTime) {
		v.Add("endTime", "must be after startTime")
	}
	if err := v.Err(); err != nil {
		return err
	}
	e.Duration = e.EndTime.Sub(e.StartTime).Truncate(time.Second)
	return nil
}

func (s *TimesheetService) Create(ctx context.Context, scope domain.Scope, t *domain.Timesheet) (err error) {
	defer observe(s.Metrics, "timesheet.create", time.Now(), &err)

	if t.Owner.IsZero() {
		t.Owner = scope.Owner
	}
	if t.Status == "" {
		t.Status = domain.TimesheetDraft
	}
	if err := validateTimesheet(t); err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := checkProject(ctx, tx, t.ProjectID); err != nil {
			return err
		}
		return tenancy.Wrap(tx, scope).Timesheets().Create(ctx, t)
	})
	if err != nil {
		logFailure(ctx, "failed to create timesheet", err, slog.String("scope", scope.Owner.String()))
		return err
	}
	return nil
}

func (s *TimesheetService) Get(ctx context.Context, scope domain.Scope, id string) (domain.Timesheet, error) {
	return tenancy.Wrap(s.Store, scope).Timesheets().Get(ctx, id)
}

// Detail returns the timesheet with its entries.
func (s *TimesheetService) Detail(ctx context.Context, scope domain.Scope, id string) (domain.Timesheet, error) {
	sheets := tenancy.Wrap(s.Store, scope).Timesheets()
	if _, err := sheets.Get(ctx, id); err != nil {
		return domain.Timesheet{}, err
	}
	return sheets.First(ctx, store.Query{Where: byID(id), Include: []string{"entries"}})
}

func (s *TimesheetService) List(ctx context.Context, scope domain.Scope, q store.Query) ([]domain.Timesheet, error) {
	return tenancy.Wrap(s.Store, scope).Timesheets().List(ctx, q)
}

// SetStatus moves a timesheet to status.
func (s *TimesheetService) SetStatus(ctx context.Context, scope domain.Scope, id, status string) (domain.Timesheet, error) {
	if status == "" {
		return domain.Timesheet{}, domain.NewValidationError("status", "is required")
	}

	var t domain.Timesheet
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		sheets := tenancy.Wrap(tx, scope).Timesheets()
		var err error
		if t, err = sheets.Get(ctx, id); err != nil {
			return err
		}
		from := t.Status
		t.Status = status
		if err := sheets.Update(ctx, &t); err != nil {
			return err
		}
		return audit(ctx, tx, scope.ActorID, ActionUpdate, "timesheet", id, map[string]any{
			"from": from,
			"to":   status,
		})
	})
	if err != nil {
		logFailure(ctx, "failed to set timesheet status", err, slog.String("timesheet_id", id))
		return domain.Timesheet{}, err
	}

	slogx.FromContext(ctx).Info("timesheet status changed",
		slog.String("timesheet_id", id),
		slog.String("status", status),
	)
	return t, nil
}

// Delete removes a timesheet and its entries. Billed expenses are kept.
func (s *TimesheetService) Delete(ctx context.Context, scope domain.Scope, id string) error {
	return tenancy.Wrap(s.Store, scope).Timesheets().Delete(ctx, id)
}

func (s *TimesheetService) AddEntry(ctx context.Context, scope domain.Scope, e *domain.TimesheetEntry) (err error) {
	defer observe(s.Metrics, "timesheet.add_entry", time.Now(), &err)

	if err := prepareEntry(e); err != nil {
		return err
	}
	if err := tenancy.Wrap(s.Store, scope).TimesheetEntries().Create(ctx, e); err != nil {
		logFailure(ctx, "failed to add timesheet entry", err, slog.String("timesheet_id", e.TimesheetID))
		return reference("timesheet", e.TimesheetID, err)
	}
	return nil
}

// UpdateEntry rewrites an entry's interval and description. The entry stays
// on its timesheet.
func (s *TimesheetService) UpdateEntry(ctx context.Context, scope domain.Scope, e *domain.TimesheetEntry) error {
	entries := tenancy.Wrap(s.Store, scope).TimesheetEntries()

	current, err := entries.Get(ctx, e.ID)
	if err != nil {
		return err
	}
	if e.TimesheetID == "" {
		e.TimesheetID = current.TimesheetID
	}
	if e.TimesheetID != current.TimesheetID {
		return domain.NewValidationError("timesheetId", "cannot be changed")
	}
	if err := prepareEntry(e); err != nil {
		return err
	}
	return entries.Update(ctx, e)
}

// DeleteEntry removes an entry. An expense billed from it is kept and
// detached.
func (s *TimesheetService) DeleteEntry(ctx context.Context, scope domain.Scope, id string) error {
	return tenancy.Wrap(s.Store, scope).TimesheetEntries().Delete(ctx, id)
}

// ListEntries lists a timesheet's entries in time order.
func (s *TimesheetService) ListEntries(ctx context.Context, scope domain.Scope, timesheetID string) ([]domain.TimesheetEntry, error) {
	ts := tenancy.Wrap(s.Store, scope)
	if _, err := ts.Timesheets().Get(ctx, timesheetID); err != nil {
		return nil, err
	}
	return ts.TimesheetEntries().List(ctx, store.Query{
		Where:   store.Eq{Field: "timesheetId", Value: timesheetID},
		OrderBy: []store.Order{store.Asc("startTime"), store.Asc("id")},
	})
}

// BillEntry creates the expense for an entry at an hourly rate, rounded to
// the nearest minor unit. A second bill for the same entry fails with
// ErrAlreadyBilled.
func (s *TimesheetService) BillEntry(ctx context.Context, scope domain.Scope, entryID string, rate domain.Money) (x domain.Expense, err error) {
	defer observe(s.Metrics, "timesheet.bill_entry", time.Now(), &err)
	log := slogx.FromContext(ctx)

	if rate <= 0 {
		return domain.Expense{}, domain.NewValidationError("rate", "must be positive")
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ts := tenancy.Wrap(tx, scope)

		// 1. Lock the entry, then load it and its timesheet within the scope.
		if err := ts.TimesheetEntries().Touch(ctx, entryID); err != nil {
			return err
		}
		entry, err := ts.TimesheetEntries().Get(ctx, entryID)
		if err != nil {
			return err
		}
		sheet, err := ts.Timesheets().Get(ctx, entry.TimesheetID)
		if err != nil {
			return err
		}

		// 2. An entry is the source of at most one expense.
		billed, err := tx.Expenses().Count(ctx, store.Eq{Field: "timesheetEntryId", Value: entryID})
		if err != nil {
			return err
		}
		if billed > 0 {
			return ErrAlreadyBilled
		}

		// 3. Charge the rate for the recorded duration.
		description := entry.Description
		if description == "" {
			description = fmt.Sprintf("%s of tracked time", entry.Duration)
		}
		x = domain.Expense{
			Amount:           rate.ForDuration(entry.Duration),
			Description:      description,
			Date:             entry.StartTime,
			Owner:            sheet.Owner,
			TimesheetEntryID: &entry.ID,
			ProjectID:        sheet.ProjectID,
		}
		if err := ts.Expenses().Create(ctx, &x); err != nil {
			return err
		}
		return audit(ctx, tx, scope.ActorID, ActionBill, "timesheetEntry", entryID, map[string]any{
			"expenseId": x.ID,
			"rate":      rate.String(),
			"amount":    x.Amount.String(),
		})
	})
	if err != nil {
		logFailure(ctx, "failed to bill timesheet entry", err, slog.String("entry_id", entryID))
		return domain.Expense{}, err
	}

	log.Info("timesheet entry billed",
		slog.String("entry_id", entryID),
		slog.String("expense_id", x.ID),
		slog.String("amount", x.Amount.String()),
	)
	return x, nil
}
