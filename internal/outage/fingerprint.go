package outage

import (
	json "github.com/goccy/go-json"

	"github.com/hamed0406/waterwatch/internal/domain"
)

type fingerprintEntry struct {
	ID    int64  `json:"idInterrupcion"`
	Start string `json:"inicioAfectacion"`
	End   string `json:"finAfectacion"`
}

// ComputeFingerprint is the JSON array of (id, start, end) in input order.
// It must be fed canonical upstream times, not display strings.
func ComputeFingerprint(interruptions []domain.Interruption) string {
	entries := make([]fingerprintEntry, 0, len(interruptions))
	for _, i := range interruptions {
		entries = append(entries, fingerprintEntry{ID: i.ID, Start: i.StartTime, End: i.EndTime})
	}
	b, err := json.Marshal(entries)
	if err != nil {
		// not reachable for plain strings and ints
		return ""
	}
	return string(b)
}

// HasChanged reports whether current differs from the stored fingerprint.
// A missing stored value counts as a change.
func HasChanged(current, stored string, ok bool) bool {
	if !ok {
		return true
	}
	return current != stored
}
