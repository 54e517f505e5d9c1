package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoTimestamp is returned for empty input.
	ErrNoTimestamp = errors.New("appointments: no timestamp")
	// ErrMalformedTimestamp is returned when the text is not an ISO-8601 date-time.
	ErrMalformedTimestamp = errors.New("appointments: malformed timestamp")
)

// timestampLayouts is the strict grammar tried on each pass. Go's parser accepts an optional
// fractional second after the seconds field even when the layout omits it.
var timestampLayouts = buildTimestampLayouts()

func buildTimestampLayouts() []string {
	clocks := []string{"15:04:05", "15:04"}
	zones := []string{"-07:00", "-0700", ""}
	layouts := []string{"2006-01-02"}
	for _, sep := range []string{"T", " "} {
		for _, clock := range clocks {
			for _, zone := range zones {
				layouts = append(layouts, "2006-01-02"+sep+clock+zone)
			}
		}
	}
	return layouts
}

// ParseTimestamp parses a loosely formatted ISO-8601 timestamp into a UTC instant truncated to
// microseconds. Values without an offset are taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrNoTimestamp
	}

	if strings.HasSuffix(value, "Z") || strings.HasSuffix(value, "z") {
		value = value[:len(value)-1] + "+00:00"
	}

	if t, ok := parseStrict(value); ok {
		return t, nil
	}
	if t, ok := parseStrict(normalizeFraction(value)); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, value)
}

func parseStrict(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t.UTC().Truncate(time.Microsecond), true
		}
	}
	return time.Time{}, false
}

// normalizeFraction rewrites the fractional seconds to exactly six digits. The offset sign is only
// looked for after the date-time separator so the date's dashes are never taken for it.
func normalizeFraction(value string) string {
	sep := strings.IndexAny(value, "T ")
	zoneAt := strings.LastIndexAny(value, "+-")
	if zoneAt <= sep {
		zoneAt = -1
	}

	base, zone := value, ""
	if zoneAt != -1 {
		base, zone = value[:zoneAt], value[zoneAt:]
	}

	main, frac, ok := strings.Cut(base, ".")
	if !ok {
		return value
	}
	frac = (frac + "000000")[:6]
	return main + "." + frac + zone
}
