package audiobook

import (
	"regexp"
	"strconv"
	"strings"
)

// unsafeTitleRunes matches everything that is not a word character
// (Unicode letters, marks, digits, underscore), a hyphen or a period.
var unsafeTitleRunes = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_.\-]`)

// SanitizeTitle turns a chapter title into a file name fragment: surrounding
// whitespace is trimmed, spaces become underscores and every other unsafe
// rune is dropped.
func SanitizeTitle(title string) string {
	title = strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	return unsafeTitleRunes.ReplaceAllString(title, "")
}

// OutputName returns the file name of the chapter at the 1-based index:
// "<index> <sanitized title>.<ext>". The index keeps names unique even when
// titles repeat or sanitize to nothing.
func OutputName(index int, title, ext string) string {
	if ext = strings.TrimPrefix(ext, "."); ext == "" {
		ext = DefaultExtension
	}
	return strconv.Itoa(index) + " " + SanitizeTitle(title) + "." + ext
}
