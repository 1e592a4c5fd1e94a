package query

import (
	"encoding/json"
	"time"

	"github.com/droverhq/drover/internal/api"
)

// computeField materializes a computed field for a record, returning
// false for fields that do not apply to the collection or record.
func computeField(from string, record map[string]any, field string) (any, bool) {
	switch {
	case from == FromSessions && field == "durationMs":
		return durationMs(record), true
	case from == FromActivities && field == "artifactCount":
		arts, _ := record["artifacts"].([]any)
		return len(arts), true
	case from == FromActivities && field == "summary":
		return activitySummary(record), true
	}
	return nil, false
}

// durationMs is updateTime minus createTime in milliseconds, or 0 when
// either timestamp is missing or malformed.
func durationMs(record map[string]any) int64 {
	created, ok1 := parseTimeField(record, "createTime")
	updated, ok2 := parseTimeField(record, "updateTime")
	if !ok1 || !ok2 {
		return 0
	}
	d := updated.Sub(created)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

func parseTimeField(record map[string]any, key string) (time.Time, bool) {
	s, ok := record[key].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// activitySummary re-decodes the row into the domain type so the summary
// rules live in one place.
func activitySummary(record map[string]any) string {
	raw, err := json.Marshal(record)
	if err != nil {
		return ""
	}
	var a api.Activity
	if err := json.Unmarshal(raw, &a); err != nil {
		return ""
	}
	return a.Summary()
}
