// Package outage turns per-location upstream responses into one interruption
// set and detects when that set changes between runs.
package outage

import (
	"strings"
	"time"

	"github.com/hamed0406/waterwatch/internal/dates"
	"github.com/hamed0406/waterwatch/internal/domain"
)

type Normalized struct {
	// ExplicitlyClear is set when upstream said in words that the location has
	// no interruptions. Such a location never supplies the representative alert.
	ExplicitlyClear bool
	Interruptions   []domain.Interruption
}

// Normalize keeps the relevant interruptions of resp and tags them with the
// location name. A nil resp yields an empty, non-clear result.
func Normalize(resp *domain.RawResponse, loc domain.MonitoredLocation, now time.Time, phrase string, tz *time.Location) Normalized {
	if resp == nil {
		return Normalized{}
	}
	if resp.Alert != nil && phrase != "" && strings.Contains(resp.Alert.Message, phrase) {
		return Normalized{ExplicitlyClear: true}
	}

	out := make([]domain.Interruption, 0, len(resp.Entities))
	for _, i := range resp.Entities {
		if !dates.IsRelevant(i, now, tz) {
			continue
		}
		i.LocationName = loc.Name
		out = append(out, i)
	}
	return Normalized{Interruptions: out}
}
