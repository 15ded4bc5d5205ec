// Package audio provides interfaces and implementations for cutting chapter
// ranges out of audiobook part files.
package audio

import (
	"context"
	"errors"
)

// ErrEmptySegment is returned when a segment lacks a source, start or output.
var ErrEmptySegment = errors.New("audio: segment requires source, start and output")

// Segment is a time range of a single source file.
type Segment struct {
	// Source is the part file to read from.
	Source string
	// Start is the offset of the range, formatted hh:mm:ss[.fff].
	Start string
	// End is the exclusive end of the range in the same format.
	// Empty means the range runs to the end of Source.
	End string
	// Output is the file to create.
	Output string
}

// HasEnd reports whether the segment stops before the end of its source.
func (s Segment) HasEnd() bool {
	return s.End != ""
}

// Validate checks that the required fields are set.
func (s Segment) Validate() error {
	if s.Source == "" || s.Start == "" || s.Output == "" {
		return ErrEmptySegment
	}
	return nil
}

// Splitter defines the interface for extracting a segment into a new file.
type Splitter interface {
	// Split copies the segment's range of Source into Output without
	// re-encoding. Output either ends up complete or does not exist;
	// a failed split never leaves a partial file behind.
	Split(ctx context.Context, seg Segment) error
}
