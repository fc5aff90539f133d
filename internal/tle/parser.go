package tle

import (
	"bufio"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Parse reads a catalog of element sets from r. Entries may carry a name
// line (3-line format) or not (2-line format). Malformed entries are skipped
// with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Elements, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading TLE data")
	}

	var entries []Elements
	for i := 0; i+1 < len(lines); {
		var name string
		l1, l2 := lines[i], lines[i+1]
		n := 2
		if !strings.HasPrefix(l1, "1 ") {
			if i+2 >= len(lines) {
				break
			}
			name = lines[i]
			l1, l2 = lines[i+1], lines[i+2]
			n = 3
		}

		if !strings.HasPrefix(l1, "1 ") || !strings.HasPrefix(l2, "2 ") {
			// Resynchronize on the next line.
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", strings.TrimSpace(name))
			i++
			continue
		}

		e, err := parsePair(l1, l2)
		if err != nil {
			logger.Warn("skipping invalid TLE entry", "line_index", i, "name", strings.TrimSpace(name), "error", err)
			i += n
			continue
		}
		e.Name = strings.TrimSpace(strings.TrimPrefix(name, "0 "))
		entries = append(entries, e)
		i += n
	}

	return entries, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < 5 {
		return time.Time{}, errors.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid epoch year %q", yearStr)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid epoch day %q", dayStr)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, errors.Errorf("epoch day %v out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
