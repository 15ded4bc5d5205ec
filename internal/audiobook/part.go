package audiobook

import (
	"encoding/xml"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/maauso/overdrive-chapters/internal/chapter"
	"github.com/maauso/overdrive-chapters/internal/tags"
)

// MarkerTagDescription is the TXXX description under which OverDrive stores
// the chapter marker XML.
const MarkerTagDescription = "OverDrive MediaMarkers"

// ErrMalformedMarkers is matched by every *MarkerError.
var ErrMalformedMarkers = errors.New("audiobook: malformed media markers")

// MarkerError reports a marker payload that could not be turned into chapters.
type MarkerError struct {
	Path   string
	Index  int // 0-based marker position, -1 for document level errors
	Reason string
	Err    error
}

func (e *MarkerError) Error() string {
	msg := fmt.Sprintf("audiobook: %s: ", filepath.Base(e.Path))
	if e.Index >= 0 {
		msg += fmt.Sprintf("marker %d: ", e.Index)
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MarkerError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedMarkers) succeed.
func (e *MarkerError) Is(target error) bool {
	return target == ErrMalformedMarkers
}

// markerDoc accepts any root and any marker element names.
type markerDoc struct {
	Markers []marker `xml:",any"`
}

type marker struct {
	Name *string `xml:"Name"`
	Time *string `xml:"Time"`
}

// Part is one physical file of an audiobook.
type Part struct {
	path       string
	hasMarkers bool
	chapters   []chapter.Chapter
}

// NewPart reads the marker tag of the file at path and parses its chapters.
// A file without the tag is a valid part with no chapters.
func NewPart(path string, reader tags.Reader) (*Part, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve part %s: %w", path, err)
	}

	raw, ok, err := reader.UserText(abs, MarkerTagDescription)
	if err != nil {
		return nil, fmt.Errorf("read markers: %w", err)
	}

	p := &Part{path: abs, hasMarkers: ok}
	if !ok {
		return p, nil
	}

	p.chapters, err = parseMarkers(abs, raw)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func parseMarkers(path, raw string) ([]chapter.Chapter, error) {
	var doc markerDoc
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &MarkerError{Path: path, Index: -1, Reason: "decode xml", Err: err}
	}

	chapters := make([]chapter.Chapter, 0, len(doc.Markers))
	for i, m := range doc.Markers {
		if m.Time == nil {
			return nil, &MarkerError{Path: path, Index: i, Reason: "missing Time"}
		}
		if m.Name == nil {
			return nil, &MarkerError{Path: path, Index: i, Reason: "missing Name"}
		}

		start, err := chapter.ParseAnchor(path, strings.TrimSpace(*m.Time))
		if err != nil {
			return nil, &MarkerError{Path: path, Index: i, Reason: "parse Time", Err: err}
		}
		c, err := chapter.NewChapter(strings.TrimSpace(*m.Name), start)
		if err != nil {
			return nil, &MarkerError{Path: path, Index: i, Reason: "build chapter", Err: err}
		}
		chapters = append(chapters, c)
	}
	return chapters, nil
}

// OutOfOrder returns the 0-based indexes of chapters that start before the
// chapter preceding them in the same part.
func (p *Part) OutOfOrder() []int {
	var idx []int
	for i := 1; i < len(p.chapters); i++ {
		if p.chapters[i].Start().Offset() < p.chapters[i-1].Start().Offset() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Path returns the absolute path of the part file.
func (p *Part) Path() string { return p.path }

// Name returns the file name of the part.
func (p *Part) Name() string { return filepath.Base(p.path) }

// HasMarkers reports whether the file carried a marker tag at all.
func (p *Part) HasMarkers() bool { return p.hasMarkers }

// Chapters returns a copy of the chapters in marker order.
func (p *Part) Chapters() []chapter.Chapter {
	return slices.Clone(p.chapters)
}
