package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var timesheetSchema = &schema{
	table:     "timesheets",
	entity:    "timesheet",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"status":         {name: "status"},
		"startDate":      {name: "start_date", kind: kindTime},
		"endDate":        {name: "end_date", kind: kindTime},
		"userId":         {name: "user_id", fixed: true},
		"organizationId": {name: "organization_id", fixed: true},
		"projectId":      {name: "project_id"},
	}),
}

var timesheetTable = &table[domain.Timesheet]{
	schema: timesheetSchema,
	columns: []string{
		"id", "status", "start_date", "end_date", "user_id", "organization_id", "project_id",
		"created_at", "updated_at",
	},
	scan: scanTimesheet,
	row: func(ts *domain.Timesheet) (map[string]any, error) {
		m := timesheetMutable(ts)
		m["id"] = ts.ID
		m["user_id"] = mapOptionalString(ts.Owner.UserID())
		m["organization_id"] = mapOptionalString(ts.Owner.OrganizationID())
		m["created_at"] = ts.CreatedAt
		m["updated_at"] = ts.UpdatedAt
		return m, nil
	},
	mutable:   timesheetMutable,
	id:        func(ts *domain.Timesheet) *string { return &ts.ID },
	createdAt: func(ts *domain.Timesheet) *time.Time { return &ts.CreatedAt },
	updatedAt: func(ts *domain.Timesheet) *time.Time { return &ts.UpdatedAt },
}

func scanTimesheet(s scanner) (domain.Timesheet, error) {
	var (
		ts        domain.Timesheet
		userID    sql.NullString
		orgID     sql.NullString
		projectID sql.NullString
	)
	err := s.Scan(&ts.ID, &ts.Status, &ts.StartDate, &ts.EndDate, &userID, &orgID, &projectID,
		&ts.CreatedAt, &ts.UpdatedAt)
	if err != nil {
		return domain.Timesheet{}, err
	}
	owner, err := mapOwner(userID, orgID)
	if err != nil {
		return domain.Timesheet{}, fmt.Errorf("timesheet %s: %w", ts.ID, err)
	}
	ts.Owner = owner
	ts.ProjectID = mapNullStringPtr(projectID)
	ts.StartDate, ts.EndDate = utc(ts.StartDate), utc(ts.EndDate)
	ts.CreatedAt, ts.UpdatedAt = utc(ts.CreatedAt), utc(ts.UpdatedAt)
	return ts, nil
}

func timesheetMutable(ts *domain.Timesheet) map[string]any {
	return map[string]any{
		"status":     ts.Status,
		"start_date": utc(ts.StartDate),
		"end_date":   utc(ts.EndDate),
		"project_id": mapOptionalString(ts.ProjectID),
	}
}

func includeTimesheetEntries(ctx context.Context, e *engine, sheets []domain.Timesheet) error {
	ids := make([]string, len(sheets))
	for i, ts := range sheets {
		ids[i] = ts.ID
	}
	children, err := loadChildren(ctx, e, entryTable, "timesheetId", ids,
		func(en domain.TimesheetEntry) *string { return &en.TimesheetID })
	if err != nil {
		return err
	}
	for i := range sheets {
		sheets[i].Entries = children[sheets[i].ID]
	}
	return nil
}
