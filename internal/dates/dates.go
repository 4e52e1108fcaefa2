// Package dates handles the upstream "dd/mm/yyyy HH:mm" timestamps.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/waterwatch/internal/domain"
)

var layout = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})\s+(\d{2}):(\d{2})$`)

// ParseDateTime parses s in loc. ok is false for empty or malformed input.
// Out-of-range components roll over the way time.Date normalizes them.
func ParseDateTime(s string, loc *time.Location) (t time.Time, ok bool) {
	m := layout.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	n := make([]int, 5)
	for i := range n {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return time.Time{}, false
		}
		n[i] = v
	}
	day, month, year, hour, minute := n[0], n[1], n[2], n[3], n[4]
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc), true
}

// IsRelevant reports whether the interruption has not ended yet.
// An unparseable end time counts as relevant.
func IsRelevant(i domain.Interruption, now time.Time, loc *time.Location) bool {
	end, ok := ParseDateTime(i.EndTime, loc)
	if !ok {
		return true
	}
	return end.After(now)
}

// FormatForDisplay rewrites start and end times for the given clock format.
// Only 12h changes anything.
func FormatForDisplay(i domain.Interruption, format domain.TimeFormat) domain.Interruption {
	if format != domain.TimeFormat12h {
		return i
	}
	out := i
	out.StartTime = to12h(i.StartTime)
	out.EndTime = to12h(i.EndTime)
	return out
}

func to12h(s string) string {
	if len(s) < 16 {
		return s
	}
	datePart, timePart, found := strings.Cut(s, " ")
	if !found {
		return s
	}
	hh, mm, found := strings.Cut(timePart, ":")
	if !found {
		return s
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return s
	}
	suffix := "am"
	if hours >= 12 {
		suffix = "pm"
	}
	hours %= 12
	if hours == 0 {
		hours = 12
	}
	return fmt.Sprintf("%s %d:%s %s", datePart, hours, mm, suffix)
}

// Location resolves an IANA zone name, falling back to UTC.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
