package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrCronUnsupported rejects cron-style schedules; tasks only run on fixed intervals.
var ErrCronUnsupported = errors.New("cron schedules are not supported; use a fixed interval")

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseInterval parses a task interval.
//
// Supported forms:
//   - Go duration: "2s", "55m", "2h30m"
//   - HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - "every:" or "interval:" prefix in front of either form
//
// Zero is allowed and means "due every cycle".
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("interval required")
	}

	low := strings.ToLower(s)
	for _, p := range []string{"every:", "interval:"} {
		if strings.HasPrefix(low, p) {
			s = strings.TrimSpace(s[len(p):])
			if s == "" {
				return 0, fmt.Errorf("interval required after %q", p)
			}
			break
		}
	}

	if strings.HasPrefix(strings.ToLower(s), "cron:") || strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t\n\r") {
		return 0, ErrCronUnsupported
	}

	if reHHMM.MatchString(s) {
		return parseHHMM(s)
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use HH:MM like '02:30' or a duration like '55m')", raw)
	}
	if d < 0 {
		return 0, errors.New("interval must be >= 0")
	}
	return d, nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

// ParseDurationField parses an optional non-negative duration. Empty is 0.
// Errors are prefixed with path.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for 0.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
