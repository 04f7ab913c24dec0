package sqldb

import (
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var projectSchema = &schema{
	table:     "projects",
	entity:    "project",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"name":        {name: "name"},
		"description": {name: "description"},
	}),
}

var projectTable = &table[domain.Project]{
	schema:  projectSchema,
	columns: []string{"id", "name", "description", "created_at", "updated_at"},
	scan: func(s scanner) (domain.Project, error) {
		var p domain.Project
		if err := s.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return domain.Project{}, err
		}
		p.CreatedAt, p.UpdatedAt = utc(p.CreatedAt), utc(p.UpdatedAt)
		return p, nil
	},
	row: func(p *domain.Project) (map[string]any, error) {
		return map[string]any{
			"id":          p.ID,
			"name":        p.Name,
			"description": p.Description,
			"created_at":  p.CreatedAt,
			"updated_at":  p.UpdatedAt,
		}, nil
	},
	mutable: func(p *domain.Project) map[string]any {
		return map[string]any{"name": p.Name, "description": p.Description}
	},
	id:        func(p *domain.Project) *string { return &p.ID },
	createdAt: func(p *domain.Project) *time.Time { return &p.CreatedAt },
	updatedAt: func(p *domain.Project) *time.Time { return &p.UpdatedAt },
}
