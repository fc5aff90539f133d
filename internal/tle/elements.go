package tle

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrLineCount is returned when an element set is not 2 or 3 non-empty lines.
	ErrLineCount = errors.New("element set must have 2 or 3 lines")
	// ErrMalformed is returned when a TLE line has the wrong prefix, length or
	// an unparseable column.
	ErrMalformed = errors.New("malformed element set")
)

// lineLength is the fixed width of both TLE data lines.
const lineLength = 69

// Elements is a parsed two-line element set. Only the fields the predictor
// reads are decoded; the raw lines are kept for the SGP4 initializer.
type Elements struct {
	NORADID int
	Name    string
	Epoch   time.Time

	Inclination  float64 // degrees
	Eccentricity float64
	MeanMotion   float64 // revolutions per day
	// DragTerm is the first derivative of mean motion divided by two, as
	// printed in line 1 (rev/day²).
	DragTerm float64

	Line1 string
	Line2 string
}

// ParseText parses a 2- or 3-line element set held in a single string.
func ParseText(s string) (Elements, error) {
	return ParseLines(strings.Split(s, "\n"))
}

// ParseLines parses a 2- or 3-line element set. Blank lines and trailing
// whitespace are ignored. With three lines the first is the satellite name.
func ParseLines(lines []string) (Elements, error) {
	var kept []string
	for _, l := range lines {
		l = strings.TrimRight(l, "\r\n ")
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}

	var name string
	switch len(kept) {
	case 2:
	case 3:
		name = strings.TrimSpace(strings.TrimPrefix(kept[0], "0 "))
		kept = kept[1:]
	default:
		return Elements{}, errors.Wrapf(ErrLineCount, "got %d", len(kept))
	}

	e, err := parsePair(kept[0], kept[1])
	if err != nil {
		return Elements{}, err
	}
	e.Name = name
	return e, nil
}

// parsePair decodes the two data lines. Every numeric column the SGP4
// initializer reads is checked here first, because go-satellite calls
// log.Fatal on unparseable input.
func parsePair(line1, line2 string) (Elements, error) {
	if len(line1) != lineLength || len(line2) != lineLength {
		return Elements{}, errors.Wrapf(ErrMalformed, "line lengths %d and %d, want %d", len(line1), len(line2), lineLength)
	}
	if !strings.HasPrefix(line1, "1 ") {
		return Elements{}, errors.Wrap(ErrMalformed, "line 1 must start with \"1 \"")
	}
	if !strings.HasPrefix(line2, "2 ") {
		return Elements{}, errors.Wrap(ErrMalformed, "line 2 must start with \"2 \"")
	}

	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return Elements{}, errors.Wrapf(ErrMalformed, "catalog number %q", noradStr)
	}

	if _, err := strconv.Atoi(line1[18:20]); err != nil {
		return Elements{}, errors.Wrapf(ErrMalformed, "epoch year %q", line1[18:20])
	}
	epoch, err := parseEpoch(line1[18:32])
	if err != nil {
		return Elements{}, errors.Wrapf(ErrMalformed, "epoch: %v", err)
	}

	// Columns exactly as go-satellite slices them.
	fields := []struct {
		name string
		raw  string
	}{
		{"ndot", line1[33:43]},
		{"nddot", line1[44:45] + "." + line1[45:50] + "e" + line1[50:52]},
		{"bstar", line1[53:54] + "." + line1[54:59] + "e" + line1[59:61]},
		{"inclination", line2[8:16]},
		{"raan", line2[17:25]},
		{"eccentricity", "." + line2[26:33]},
		{"argument of perigee", line2[34:42]},
		{"mean anomaly", line2[43:51]},
		{"mean motion", line2[52:63]},
	}
	vals := make(map[string]float64, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.Replace(f.raw, " ", "", 2), 64)
		if err != nil {
			return Elements{}, errors.Wrapf(ErrMalformed, "%s %q", f.name, f.raw)
		}
		vals[f.name] = v
	}

	return Elements{
		NORADID:      noradID,
		Epoch:        epoch,
		Inclination:  vals["inclination"],
		Eccentricity: vals["eccentricity"],
		MeanMotion:   vals["mean motion"],
		DragTerm:     vals["ndot"],
		Line1:        line1,
		Line2:        line2,
	}, nil
}
