// Package chapter models positions in a multi-file audiobook timeline and
// the chapters bounded by them.
//
// An Anchor is either a known point (a file plus an hh:mm:ss offset into it)
// or Unknown, meaning "no explicit end". The zero Anchor is Unknown, so any
// two anchors that were never parsed compare as Unknown regardless of where
// they were constructed.
package chapter

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// startTolerance is how far from 0 a seconds value may be while still
// counting as the very beginning of a file. Marker times are rounded by the
// tool that wrote them.
const startTolerance = 0.01

// Marker time fields are plain decimal digits, seconds with an optional
// fraction. Signs, exponents and hex forms are rejected before they reach
// ffmpeg.
var (
	countPattern   = regexp.MustCompile(`^[0-9]+$`)
	secondsPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// Static errors for anchor parsing.
var (
	// ErrTimeParse is matched by every *TimeParseError.
	ErrTimeParse = errors.New("chapter: invalid marker time")
	// ErrEmptyFile is returned when a known anchor is parsed without a file.
	ErrEmptyFile = errors.New("chapter: anchor requires a file path")
)

// TimeParseError reports a marker time that is not mm:ss or hh:mm:ss.
type TimeParseError struct {
	Raw    string
	Reason string
}

func (e *TimeParseError) Error() string {
	return fmt.Sprintf("chapter: parse time %q: %s", e.Raw, e.Reason)
}

// Is makes errors.Is(err, ErrTimeParse) succeed.
func (e *TimeParseError) Is(target error) bool {
	return target == ErrTimeParse
}

// Anchor is a point in the audiobook timeline.
type Anchor struct {
	known   bool
	file    string
	hours   string
	minutes string
	seconds string
}

// Unknown is the anchor that marks an open end. It is the zero value;
// test for it with IsUnknown rather than comparing against this variable.
var Unknown = Anchor{}

// ParseAnchor builds a known anchor in file from a marker time in mm:ss or
// hh:mm:ss form. Minutes of 60 or more in the mm:ss form carry into hours.
func ParseAnchor(file, raw string) (Anchor, error) {
	if strings.TrimSpace(file) == "" {
		return Anchor{}, ErrEmptyFile
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return Anchor{}, fmt.Errorf("chapter: resolve %s: %w", file, err)
	}

	fields := strings.Split(strings.TrimSpace(raw), ":")

	var h, m int
	var sec string
	switch len(fields) {
	case 2:
		if m, err = parseCount(raw, "minutes", fields[0]); err != nil {
			return Anchor{}, err
		}
		h, m = m/60, m%60
		sec = fields[1]
	case 3:
		if h, err = parseCount(raw, "hours", fields[0]); err != nil {
			return Anchor{}, err
		}
		if m, err = parseCount(raw, "minutes", fields[1]); err != nil {
			return Anchor{}, err
		}
		sec = fields[2]
	default:
		return Anchor{}, &TimeParseError{
			Raw:    raw,
			Reason: fmt.Sprintf("expected 2 or 3 colon separated fields, got %d", len(fields)),
		}
	}

	sec, err = normalizeSeconds(raw, sec)
	if err != nil {
		return Anchor{}, err
	}

	return Anchor{
		known:   true,
		file:    abs,
		hours:   fmt.Sprintf("%02d", h),
		minutes: fmt.Sprintf("%02d", m),
		seconds: sec,
	}, nil
}

func parseCount(raw, name, field string) (int, error) {
	field = strings.TrimSpace(field)
	if !countPattern.MatchString(field) {
		return 0, &TimeParseError{Raw: raw, Reason: fmt.Sprintf("%s %q is not a non-negative integer", name, field)}
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, &TimeParseError{Raw: raw, Reason: fmt.Sprintf("%s %q is not a non-negative integer", name, field)}
	}
	return n, nil
}

// normalizeSeconds keeps the fractional digits as written so the splitter
// sees the marker's own precision, but pads a single digit integer part.
func normalizeSeconds(raw, field string) (string, error) {
	field = strings.TrimSpace(field)
	if !secondsPattern.MatchString(field) {
		return "", &TimeParseError{Raw: raw, Reason: fmt.Sprintf("seconds %q is not a non-negative decimal number", field)}
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil || math.IsInf(v, 0) {
		return "", &TimeParseError{Raw: raw, Reason: fmt.Sprintf("seconds %q is not a non-negative number", field)}
	}
	intPart, _, _ := strings.Cut(field, ".")
	if len(intPart) < 2 {
		field = strings.Repeat("0", 2-len(intPart)) + field
	}
	return field, nil
}

// IsUnknown reports whether a is the open-end anchor.
func (a Anchor) IsUnknown() bool {
	return !a.known
}

// File returns the absolute path of the part file, or "" for Unknown.
func (a Anchor) File() string { return a.file }

// Hours returns the zero-padded hours field.
func (a Anchor) Hours() string { return a.hours }

// Minutes returns the zero-padded minutes field.
func (a Anchor) Minutes() string { return a.minutes }

// Seconds returns the seconds field, possibly with a fraction.
func (a Anchor) Seconds() string { return a.seconds }

// IsStartAnchor reports whether a sits at the very beginning of its file,
// i.e. zero minutes and seconds within startTolerance of zero. Only the
// minutes and seconds are inspected.
func (a Anchor) IsStartAnchor() bool {
	if !a.known {
		return false
	}
	m, err := strconv.Atoi(a.minutes)
	if err != nil || m != 0 {
		return false
	}
	s, err := strconv.ParseFloat(a.seconds, 64)
	if err != nil {
		return false
	}
	return math.Abs(s) <= startTolerance
}

// SameFile reports whether a and b are known anchors in the same file.
func (a Anchor) SameFile(b Anchor) bool {
	return a.known && b.known && a.file == b.file
}

// Time renders the hh:mm:ss offset passed to the splitter.
func (a Anchor) Time() string {
	return a.hours + ":" + a.minutes + ":" + a.seconds
}

// Offset returns the anchor position as a duration from the start of its
// file. Unknown has no offset and returns 0.
func (a Anchor) Offset() time.Duration {
	if !a.known {
		return 0
	}
	h, _ := strconv.Atoi(a.hours)
	m, _ := strconv.Atoi(a.minutes)
	s, _ := strconv.ParseFloat(a.seconds, 64)
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(math.Round(s*float64(time.Second)))
}

func (a Anchor) String() string {
	if !a.known {
		return "?"
	}
	return filepath.Base(a.file) + ": " + a.Time()
}
