package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned when a key would escape the publish directory.
var ErrInvalidKey = errors.New("storage: key escapes publish directory")

// LocalPublisher implements Publisher by copying files into a directory,
// typically a media library watched by an audiobook server.
type LocalPublisher struct {
	root string
}

// NewLocalPublisher creates a new LocalPublisher rooted at root.
// The directory is created if it doesn't exist.
func NewLocalPublisher(root string) (*LocalPublisher, error) {
	if root == "" {
		return nil, errors.New("storage: publish directory is required")
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create publish directory: %w", err)
	}

	return &LocalPublisher{root: root}, nil
}

// Root returns the publish directory.
func (p *LocalPublisher) Root() string {
	return p.root
}

// Publish writes data to root/key through a temporary file, so readers of
// the library never observe a half-written chapter.
func (p *LocalPublisher) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dst := filepath.Join(p.root, filepath.FromSlash(key))
	if rel, err := filepath.Rel(p.root, dst); err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), ".publish-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	tmpName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("move file into place: %w", err)
	}

	return dst, nil
}

var _ Publisher = (*LocalPublisher)(nil)
