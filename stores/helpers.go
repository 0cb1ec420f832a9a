package stores

import (
	"time"

	"github.com/oarkflow/date"
)

// scanTime normalizes a scanned timestamp column. Drivers hand back
// time.Time, RFC3339 strings or raw bytes depending on the backend.
func scanTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := date.Parse(v); err == nil {
			return t
		}
	case []byte:
		if t, err := date.Parse(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}
