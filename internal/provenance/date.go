package provenance

import "time"

// dateLayouts are tried in order; the first match wins
var dateLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate converts a commit date to seconds since the epoch.
// Dates without a zone are read as UTC. It returns false if no layout matches.
func ParseDate(s string) (float64, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return float64(t.Unix()), true
		}
	}
	return 0, false
}
