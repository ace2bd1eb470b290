package logsource

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedLine indicates a line that could not be normalized. Callers
// skip the line; a malformed line never aborts a pass.
var ErrMalformedLine = errors.New("logsource: malformed line")

// Entry is a normalized log record.
type Entry struct {
	Timestamp time.Time
	Hostname  string
	Process   string
	PID       string
	Message   string
}

// ParseLine normalizes one raw log line. Two timestamp formats are
// recognized: ISO 8601 (Fedora secure.log) and classic syslog with an
// optional single-digit day. Syslog timestamps carry no year; the year of
// now is assumed.
func ParseLine(raw, hostname string, now time.Time) (Entry, error) {
	raw = strings.TrimRight(raw, "\r\n")
	if raw == "" {
		return Entry{}, fmt.Errorf("%w: empty line", ErrMalformedLine)
	}

	ts, rest, err := splitTimestamp(raw, now)
	if err != nil {
		return Entry{}, err
	}

	meta, message, _ := strings.Cut(rest, ": ")
	process, pid := splitProcess(meta)

	return Entry{
		Timestamp: ts,
		Hostname:  hostname,
		Process:   process,
		PID:       pid,
		Message:   strings.TrimSpace(message),
	}, nil
}

func splitTimestamp(raw string, now time.Time) (time.Time, string, error) {
	// ISO 8601 lines start with a four-digit year and carry a 'T'
	// separator in the first field.
	if len(raw) >= 4 && isDigits(raw[:4]) && strings.Contains(firstField(raw), "T") {
		tsStr, rest, _ := strings.Cut(raw, " ")
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, tsStr); err == nil {
				return ts, rest, nil
			}
		}
		return time.Time{}, "", fmt.Errorf("%w: bad ISO timestamp %q", ErrMalformedLine, tsStr)
	}

	if len(raw) < 16 {
		return time.Time{}, "", fmt.Errorf("%w: line too short", ErrMalformedLine)
	}

	// Collapse repeated spaces so single-digit days normalize.
	tsStr := strings.Join(strings.Fields(raw[:15]), " ")
	ts, err := time.Parse("Jan 2 15:04:05", tsStr)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: bad syslog timestamp %q", ErrMalformedLine, tsStr)
	}
	ts = ts.AddDate(now.Year(), 0, 0)
	return ts, raw[16:], nil
}

func splitProcess(meta string) (process, pid string) {
	meta = strings.TrimSpace(meta)
	if open := strings.Index(meta, "["); open >= 0 && strings.Contains(meta, "]") {
		process = meta[:open]
		pid = strings.TrimSuffix(meta[open+1:], "]")
		if end := strings.Index(pid, "]"); end >= 0 {
			pid = pid[:end]
		}
		return process, pid
	}
	return meta, ""
}

func firstField(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
