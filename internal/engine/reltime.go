package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeTimePattern = regexp.MustCompile(`(?i)^now(?:\s+(minus|plus)\s+(\d+)\s+(minute|hour|day|week)s?)?$`)

// RelativeTime is a parsed relative-time expression such as "now minus 3 days".
// It is resolved against a single as-of instant once per run so every row in a
// batch sees the same cutoff.
type RelativeTime struct {
	offset time.Duration
}

// ParseRelativeTime parses expressions of the form "now", "now minus N units"
// or "now plus N units" where units is minutes, hours, days or weeks.
func ParseRelativeTime(expr string) (RelativeTime, bool) {
	m := relativeTimePattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return RelativeTime{}, false
	}

	if m[1] == "" {
		return RelativeTime{}, true
	}

	n, err := strconv.Atoi(m[2])
	if err != nil {
		return RelativeTime{}, false
	}

	var unit time.Duration
	switch strings.ToLower(m[3]) {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	case "week":
		unit = 7 * 24 * time.Hour
	}

	offset := time.Duration(n) * unit
	if strings.EqualFold(m[1], "minus") {
		offset = -offset
	}

	return RelativeTime{offset: offset}, true
}

func (r RelativeTime) Resolve(now time.Time) time.Time {
	return now.Add(r.offset)
}

// IsRelativeTimeExpr reports whether a condition value is a relative-time
// expression rather than a plain literal.
func IsRelativeTimeExpr(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}

	_, ok = ParseRelativeTime(s)

	return ok
}
