// Package audiobook gathers the part files of an OverDrive audiobook and the
// chapter markers embedded in them.
//
// Correctness of chapter merging depends on the order in which chapters are
// gathered. The contract is:
//
//   - parts are the regular files of the audiobook directory whose extension
//     matches case-insensitively, ordered lexicographically by file name;
//   - within a part, chapters keep the order of the marker tag.
//
// File-name order is assumed to be playback order. OverDrive names parts
// with zero-padded sequence numbers, which satisfies this.
package audiobook

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/maauso/overdrive-chapters/internal/chapter"
	"github.com/maauso/overdrive-chapters/internal/tags"
)

// DefaultExtension is the part file extension used when none is configured.
const DefaultExtension = "mp3"

// ErrNoParts is returned when the directory holds no part files.
var ErrNoParts = errors.New("audiobook: no part files found")

// Audiobook is an ordered collection of parts.
type Audiobook struct {
	dir    string
	ext    string
	parts  []*Part
	logger *slog.Logger
}

// Option configures Open.
type Option func(*Audiobook)

// WithExtension sets the part file extension, with or without a leading dot.
func WithExtension(ext string) Option {
	return func(b *Audiobook) {
		if ext = strings.TrimPrefix(ext, "."); ext != "" {
			b.ext = ext
		}
	}
}

// WithLogger sets the logger used while reading parts.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Audiobook) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Open discovers the parts in dir and reads their chapter markers.
func Open(dir string, reader tags.Reader, opts ...Option) (*Audiobook, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve audiobook dir %s: %w", dir, err)
	}

	b := &Audiobook{
		dir:    abs,
		ext:    DefaultExtension,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	paths, err := Discover(abs, b.ext)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s (*.%s)", ErrNoParts, abs, b.ext)
	}

	for _, path := range paths {
		part, err := NewPart(path, reader)
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", filepath.Base(path), err)
		}
		if !part.HasMarkers() {
			b.logger.Debug("part has no marker tag",
				slog.String("part", part.Name()),
			)
		}
		// tag order is kept; the resulting cuts are likely wrong
		for _, i := range part.OutOfOrder() {
			c := part.chapters[i]
			b.logger.Warn("chapter starts before the previous one",
				slog.String("part", part.Name()),
				slog.String("title", c.Title()),
				slog.Duration("offset", c.Start().Offset()),
			)
		}
		b.parts = append(b.parts, part)
	}

	b.logger.Info("audiobook opened",
		slog.String("dir", abs),
		slog.Int("parts", len(b.parts)),
	)

	return b, nil
}

// Discover lists the part files in dir: regular files whose extension equals
// ext case-insensitively, sorted by file name.
func Discover(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read audiobook dir: %w", err)
	}

	want := "." + strings.TrimPrefix(ext, ".")
	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), want) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	slices.Sort(paths)
	return paths, nil
}

// Dir returns the absolute audiobook directory.
func (b *Audiobook) Dir() string { return b.dir }

// Extension returns the part file extension without the dot.
func (b *Audiobook) Extension() string { return b.ext }

// Parts returns the parts in playback order.
func (b *Audiobook) Parts() []*Part {
	return slices.Clone(b.parts)
}

// Chapters returns every chapter of the book, part by part in marker order.
// Ends are Unknown; see MergedChapters.
func (b *Audiobook) Chapters() []chapter.Chapter {
	var all []chapter.Chapter
	for _, p := range b.parts {
		all = append(all, p.chapters...)
	}
	return all
}

// MergedChapters returns the chapters with their ends resolved.
func (b *Audiobook) MergedChapters() []chapter.Chapter {
	return chapter.Merge(b.Chapters())
}
