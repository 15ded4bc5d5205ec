package chapter

import (
	"errors"
	"fmt"
)

// ErrUnknownStart is returned when a chapter is built without a known start.
var ErrUnknownStart = errors.New("chapter: start anchor must be known")

// Chapter is a titled interval of the audiobook. Chapters are values; use
// WithEnd to derive a chapter with a different end.
type Chapter struct {
	title string
	start Anchor
	end   Anchor
}

// NewChapter returns a chapter starting at start with an Unknown end.
func NewChapter(title string, start Anchor) (Chapter, error) {
	if start.IsUnknown() {
		return Chapter{}, fmt.Errorf("%w: %q", ErrUnknownStart, title)
	}
	return Chapter{title: title, start: start}, nil
}

// Title returns the chapter name.
func (c Chapter) Title() string { return c.title }

// Start returns the start anchor. It is never Unknown.
func (c Chapter) Start() Anchor { return c.start }

// End returns the end anchor, Unknown if the chapter runs to end of file.
func (c Chapter) End() Anchor { return c.end }

// WithEnd returns a copy of c ending at end.
func (c Chapter) WithEnd(end Anchor) Chapter {
	c.end = end
	return c
}

// IsEndKnown reports whether the chapter has an explicit end.
func (c Chapter) IsEndKnown() bool {
	return !c.end.IsUnknown()
}

// SpansFiles reports whether the chapter ends in a different file than it
// starts. Such chapters cannot be extracted with a single stream copy.
func (c Chapter) SpansFiles() bool {
	return c.IsEndKnown() && !c.start.SameFile(c.end)
}

func (c Chapter) String() string {
	return fmt.Sprintf("%s [%s -> %s]", c.title, c.start, c.end)
}
