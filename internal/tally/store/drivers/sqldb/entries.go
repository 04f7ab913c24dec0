package sqldb

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var entrySchema = &schema{
	table:     "timesheet_entries",
	entity:    "timesheet entry",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"timesheetId": {name: "timesheet_id", fixed: true},
		"startTime":   {name: "start_time", kind: kindTime},
		"endTime":     {name: "end_time", kind: kindTime},
		"duration":    {name: "duration_seconds", kind: kindInt},
		"description": {name: "description"},
	}),
}

var entryTable = &table[domain.TimesheetEntry]{
	schema: entrySchema,
	columns: []string{
		"id", "timesheet_id", "start_time", "end_time", "duration_seconds", "description",
		"created_at", "updated_at",
	},
	scan: scanEntry,
	row: func(en *domain.TimesheetEntry) (map[string]any, error) {
		m := entryMutable(en)
		m["id"] = en.ID
		m["timesheet_id"] = en.TimesheetID
		m["created_at"] = en.CreatedAt
		m["updated_at"] = en.UpdatedAt
		return m, nil
	},
	mutable:   entryMutable,
	id:        func(en *domain.TimesheetEntry) *string { return &en.ID },
	createdAt: func(en *domain.TimesheetEntry) *time.Time { return &en.CreatedAt },
	updatedAt: func(en *domain.TimesheetEntry) *time.Time { return &en.UpdatedAt },
}

func scanEntry(s scanner) (domain.TimesheetEntry, error) {
	var (
		en      domain.TimesheetEntry
		seconds int64
	)
	err := s.Scan(&en.ID, &en.TimesheetID, &en.StartTime, &en.EndTime, &seconds, &en.Description,
		&en.CreatedAt, &en.UpdatedAt)
	if err != nil {
		return domain.TimesheetEntry{}, err
	}
	en.Duration = time.Duration(seconds) * time.Second
	en.StartTime, en.EndTime = utc(en.StartTime), utc(en.EndTime)
	en.CreatedAt, en.UpdatedAt = utc(en.CreatedAt), utc(en.UpdatedAt)
	return en, nil
}

func entryMutable(en *domain.TimesheetEntry) map[string]any {
	return map[string]any{
		"start_time":       utc(en.StartTime),
		"end_time":         utc(en.EndTime),
		"duration_seconds": int64(en.Duration / time.Second),
		"description":      en.Description,
	}
}

func includeEntryExpenses(ctx context.Context, e *engine, entries []domain.TimesheetEntry) error {
	ids := make([]string, len(entries))
	for i, en := range entries {
		ids[i] = en.ID
	}
	children, err := loadChildren(ctx, e, expenseTable, "timesheetEntryId", ids,
		func(x domain.Expense) *string { return x.TimesheetEntryID })
	if err != nil {
		return err
	}
	for i := range entries {
		entries[i].Expenses = children[entries[i].ID]
	}
	return nil
}

type entriesRepo struct {
	collection[domain.TimesheetEntry]
}

func (r *entriesRepo) Touch(ctx context.Context, id string) error {
	return r.t.touch(ctx, r.e, id)
}
