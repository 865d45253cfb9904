// SPDX-License-Identifier: EPL-2.0

package timestamp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	// recorders are deployed far from any tz database
	_ "time/tzdata"
)

// Layout is the local date-time part of a device timestamp, without the zone.
const Layout = "15:04:05 02/01/2006"

const maxOffsetHours = 14

var (
	rawPattern     = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2} \d{2}/\d{2}/\d{4}) \(([^()]*)\)$`)
	offsetPattern  = regexp.MustCompile(`^(?:UTC|GMT)(?:([+\-\x{2212}])(\d{1,2}))?$`)
	commentPattern = regexp.MustCompile(`Recorded at (.+?) by `)
)

// Parse converts a device timestamp such as "10:32:00 17/05/2023 (UTC-4)"
// into a UTC time.
func Parse(raw string) (time.Time, error) {
	m := rawPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q does not match %q", ErrMalformedTimestamp, raw, Layout+" (ZONE)")
	}

	loc, err := location(m[2], m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %w", ErrMalformedTimestamp, raw, err)
	}

	t, err := time.ParseInLocation(Layout, m[1], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %w", ErrMalformedTimestamp, raw, err)
	}

	return t.UTC(), nil
}

// FromComment extracts the raw timestamp from a recorder comment such as
// "Recorded at 15:09:20 25/04/2023 (UTC) by AudioMoth 24F3190361DA539A ...".
func FromComment(comment string) (string, error) {
	m := commentPattern.FindStringSubmatch(comment)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrNoTimestampInComment, comment)
	}

	return strings.TrimSpace(m[1]), nil
}

// ParseComment is FromComment followed by Parse.
func ParseComment(comment string) (time.Time, error) {
	raw, err := FromComment(comment)
	if err != nil {
		return time.Time{}, err
	}

	return Parse(raw)
}

func location(zone, local string) (*time.Location, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return nil, fmt.Errorf("missing zone")
	}

	if m := offsetPattern.FindStringSubmatch(zone); m != nil {
		if m[1] == "" {
			return time.UTC, nil
		}

		hours, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("offset %q: %w", zone, err)
		}
		if hours > maxOffsetHours {
			return nil, fmt.Errorf("offset %q out of range", zone)
		}

		secs := hours * 3600
		if m[1] != "+" {
			secs = -secs
		}
		return time.FixedZone(zone, secs), nil
	}

	if strings.HasPrefix(zone, "UTC") || strings.HasPrefix(zone, "GMT") {
		return nil, fmt.Errorf("offset %q is not a whole number of hours", zone)
	}

	// "Local" names the host zone, not the recorder's.
	if strings.EqualFold(zone, "Local") {
		return nil, fmt.Errorf("zone %q depends on the host", zone)
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unknown zone %q", zone)
	}
	if loc == time.Local {
		return nil, fmt.Errorf("zone %q depends on the host", zone)
	}

	return fixedOffset(loc, local)
}

// fixedOffset rejects zones observing daylight saving time in the year of the
// timestamp, since the local wall clock alone does not say which offset applied.
func fixedOffset(loc *time.Location, local string) (*time.Location, error) {
	t, err := time.Parse(Layout, local)
	if err != nil {
		return nil, err
	}

	_, winter := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc).Zone()
	_, summer := time.Date(t.Year(), time.July, 1, 0, 0, 0, 0, loc).Zone()
	if winter != summer {
		return nil, fmt.Errorf("zone %q does not have a fixed offset", loc)
	}

	return loc, nil
}
