// Package tags reads user-defined text fields embedded in audio files.
package tags

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bogem/id3v2/v2"
)

const (
	// userTextFrameID is the ID3v2 frame holding user-defined text (TXXX).
	userTextFrameID = "TXXX"
	// tagHeaderSize is the size of an ID3v2 header. Shorter files cannot
	// carry a tag.
	tagHeaderSize = 10
)

// Reader looks up a user-defined text field by its description.
type Reader interface {
	// UserText returns the value of the first field whose description
	// matches description case-insensitively, ignoring surrounding
	// whitespace. ok is false when the file has no such field.
	UserText(path, description string) (value string, ok bool, err error)
}

// ID3Reader implements Reader for files carrying an ID3v2 tag.
type ID3Reader struct{}

// NewID3Reader creates a new ID3Reader.
func NewID3Reader() *ID3Reader {
	return &ID3Reader{}
}

// UserText implements Reader.UserText. Files without an ID3v2 tag, including
// files too short to hold one, report ok == false.
func (r *ID3Reader) UserText(path, description string) (string, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() < tagHeaderSize {
		return "", false, nil
	}

	tag, err := id3v2.Open(path, id3v2.Options{
		Parse:       true,
		ParseFrames: []string{userTextFrameID},
	})
	if err != nil {
		if errors.Is(err, id3v2.ErrUnsupportedVersion) || errors.Is(err, id3v2.ErrSmallHeaderSize) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read id3 tag %s: %w", path, err)
	}
	defer tag.Close()

	want := normalizeDescription(description)
	for _, f := range tag.GetFrames(userTextFrameID) {
		udtf, ok := f.(id3v2.UserDefinedTextFrame)
		if !ok {
			continue
		}
		if normalizeDescription(udtf.Description) == want {
			return strings.TrimRight(udtf.Value, "\x00"), true, nil
		}
	}

	return "", false, nil
}

func normalizeDescription(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimRight(s, "\x00")))
}

// Verify interface implementation at compile time.
var _ Reader = (*ID3Reader)(nil)
