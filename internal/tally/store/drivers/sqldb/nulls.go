package sqldb

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		val := ns.String
		return &val
	}
	return nil
}

func mapNullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		val := nt.Time.UTC()
		return &val
	}
	return nil
}

func mapOptionalString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func mapOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Truncate(time.Microsecond)
}

func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// mapOwner rebuilds the ownership variant from its two columns.
func mapOwner(userID, organizationID sql.NullString) (domain.Owner, error) {
	return domain.OwnerFromColumns(mapNullStringPtr(userID), mapNullStringPtr(organizationID))
}

func mapDetails(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeDetails(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
