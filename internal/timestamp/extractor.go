// Package timestamp extracts timestamps from raw cluster log lines.
//
// Two dialects are recognised. Lines whose first byte is a glog severity
// letter (I, W, E, F) carry "MMDD HH:MM:SS.ffffff" with no year; those are
// resolved against the extractor's reference year at minute resolution.
// Every other line is expected to start with "YYYY-MM-DD HH:MM:SS[.ffffff]",
// also resolved to the minute.
package timestamp

import (
	"strings"
	"time"
)

const (
	glogLayout = "0102 15:04"
	isoLayout  = "2006-01-02 15:04:05"
)

// Extractor parses timestamps out of log lines. It is stateless apart from
// the reference year and safe for concurrent use.
type Extractor struct {
	year int
}

// NewExtractor returns an extractor that resolves year-less lines to year.
func NewExtractor(year int) *Extractor {
	return &Extractor{year: year}
}

// Year returns the reference year.
func (e *Extractor) Year() int { return e.year }

// LowerBound is the default start of a file range: Jan 1 00:00 of the reference year.
func (e *Extractor) LowerBound() time.Time {
	return time.Date(e.year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// UpperBound is the default end of a file range: Dec 31 23:59 of the reference year.
func (e *Extractor) UpperBound() time.Time {
	return time.Date(e.year, time.December, 31, 23, 59, 0, 0, time.UTC)
}

// Extract returns the timestamp of line, or previous when none can be parsed.
func (e *Extractor) Extract(line string, previous time.Time) time.Time {
	if ts, ok := e.Parse(line); ok {
		return ts
	}
	return previous
}

// Parse returns the timestamp of line and whether one was found.
func (e *Extractor) Parse(line string) (time.Time, bool) {
	if line == "" {
		return time.Time{}, false
	}
	first, rest, ok := twoFields(line)
	if !ok {
		return time.Time{}, false
	}
	switch line[0] {
	case 'I', 'W', 'E', 'F':
		return e.parseGlog(first, rest)
	default:
		return parseISO(first, rest)
	}
}

func (e *Extractor) parseGlog(first, second string) (time.Time, bool) {
	if len(first) < 5 || len(second) < 5 {
		return time.Time{}, false
	}
	t, err := time.Parse(glogLayout, first[1:]+" "+second[:5])
	if err != nil {
		return time.Time{}, false
	}
	ts := time.Date(e.year, t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	// Feb 29 outside a leap year normalises into March.
	if ts.Month() != t.Month() {
		return time.Time{}, false
	}
	return ts, true
}

func parseISO(first, second string) (time.Time, bool) {
	t, err := time.ParseInLocation(isoLayout, first+" "+second, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.Truncate(time.Minute), true
}

// twoFields returns the first two whitespace-delimited tokens of line
// without splitting the whole line.
func twoFields(line string) (string, string, bool) {
	line = strings.TrimLeft(line, " \t")
	i := strings.IndexAny(line, " \t")
	if i <= 0 {
		return "", "", false
	}
	first := line[:i]
	rest := strings.TrimLeft(line[i:], " \t")
	if j := strings.IndexAny(rest, " \t"); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return "", "", false
	}
	return first, rest, true
}
