// Package storage publishes finished chapter files to their final location.
// It defines the Publisher interface (port) and implementations for a local
// library directory and S3.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
)

// Publisher copies a finished chapter file to its final destination.
type Publisher interface {
	// Publish stores data under key and returns where it can be found
	// (a file path or URL). key uses forward slashes.
	Publish(ctx context.Context, key string, data io.Reader) (location string, err error)
}

// Key joins a prefix and path elements into a publisher key.
func Key(prefix string, elem ...string) string {
	parts := make([]string, 0, len(elem)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, elem...)
	return path.Join(parts...)
}
