package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration extends time.ParseDuration with day and week units
// ("3d", "2w").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration string")
	}

	if dur, err := time.ParseDuration(s); err == nil {
		return dur, nil
	}

	num, unit, err := splitUnit(s)
	if err != nil {
		return 0, err
	}

	switch unit {
	case "d":
		return time.Duration(num) * 24 * time.Hour, nil
	case "w":
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit: %s", unit)
	}
}

func splitUnit(s string) (int64, string, error) {
	if len(s) < 2 {
		return 0, "", fmt.Errorf("invalid duration format: %s", s)
	}
	numStr := s[:len(s)-1]
	unit := s[len(s)-1:]
	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid duration number: %s", numStr)
	}
	return num, unit, nil
}

// ParseRelativeTime resolves "now", "today", RFC3339, YYYY-MM-DD and offsets
// from now such as "-1y", "+2w", "-90m" or "-1h30m". "M" is a calendar
// month and "y" a calendar year; "m" stays minutes.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time string")
	}

	switch strings.ToLower(s) {
	case "now":
		return now, nil
	case "today":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, now.Location()); err == nil {
		return t, nil
	}

	if !strings.HasPrefix(s, "-") && !strings.HasPrefix(s, "+") {
		return time.Time{}, fmt.Errorf("relative time must start with + or -: %s", s)
	}

	sign := 1
	if strings.HasPrefix(s, "-") {
		sign = -1
	}
	s = s[1:]

	if strings.HasSuffix(s, "y") || strings.HasSuffix(s, "M") {
		num, unit, err := splitUnit(s)
		if err != nil {
			return time.Time{}, err
		}
		n := sign * int(num)
		if unit == "y" {
			return now.AddDate(n, 0, 0), nil
		}
		return now.AddDate(0, n, 0), nil
	}

	dur, err := ParseDuration(s)
	if err != nil {
		return time.Time{}, err
	}
	if sign < 0 {
		return now.Add(-dur), nil
	}
	return now.Add(dur), nil
}
