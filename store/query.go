package store

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// QueryOptions specifies how to query found articles.
type QueryOptions struct {
	Limit     int
	Offset    int
	Keyword   string
	Source    string
	SinceTime *int64 // Unix timestamp
}

// durationPattern matches duration strings like "12h", "7d", "2w", "3m", "1y"
var durationPattern = regexp.MustCompile(`^(\d+)([hdwmy])$`)

// ParseDuration parses a duration string like "12h", "7d", "2w", "3m", "1y".
// Returns the duration or an error if the format is invalid.
//
// Supported units:
//   - h: hours
//   - d: days
//   - w: weeks (7 days)
//   - m: months (30 days, approximation)
//   - y: years (365 days, approximation)
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration string is empty")
	}

	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (expected format: <number><unit>, e.g., 12h, 7d, 2w, 3m, 1y)", s)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid number in duration: %s", matches[1])
	}

	unit := matches[2]

	var duration time.Duration
	switch unit {
	case "h": // hours
		duration = time.Duration(num) * time.Hour
	case "d": // days
		duration = time.Duration(num) * 24 * time.Hour
	case "w": // weeks
		duration = time.Duration(num) * 7 * 24 * time.Hour
	case "m": // months (approximate as 30 days)
		duration = time.Duration(num) * 30 * 24 * time.Hour
	case "y": // years (approximate as 365 days)
		duration = time.Duration(num) * 365 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid duration unit: %s (expected h, d, w, m, or y)", unit)
	}

	return duration, nil
}

// SinceToUnixTime converts a "since" duration string (e.g., "7d") to a Unix
// timestamp representing the time point that is <duration> ago from now.
func SinceToUnixTime(since string) (int64, error) {
	duration, err := ParseDuration(since)
	if err != nil {
		return 0, err
	}

	sinceTime := time.Now().Add(-duration)
	return sinceTime.Unix(), nil
}

// BuildQueryOptions constructs QueryOptions from caller-supplied filters.
func BuildQueryOptions(limit, offset int, keyword, source, since string) (QueryOptions, error) {
	opts := QueryOptions{
		Limit:   limit,
		Offset:  offset,
		Keyword: keyword,
		Source:  source,
	}

	if since != "" {
		sinceUnix, err := SinceToUnixTime(since)
		if err != nil {
			return opts, fmt.Errorf("failed to parse since filter: %w", err)
		}
		opts.SinceTime = &sinceUnix
	}

	return opts, nil
}
