// Package tagstest writes ID3v2 fixtures for tests.
package tagstest

import (
	"os"
	"testing"

	"github.com/bogem/id3v2/v2"
)

// WriteUserText creates path with the given audio payload and an ID3v2.4
// tag holding one TXXX frame per description/value pair.
func WriteUserText(t *testing.T, path string, audio []byte, fields map[string]string) {
	t.Helper()

	if err := os.WriteFile(path, audio, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("open fixture %s: %v", path, err)
	}
	defer tag.Close()

	tag.SetVersion(4)
	for desc, value := range fields {
		tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
			Encoding:    id3v2.EncodingUTF8,
			Description: desc,
			Value:       value,
		})
	}

	if err := tag.Save(); err != nil {
		t.Fatalf("save fixture tag %s: %v", path, err)
	}
}
