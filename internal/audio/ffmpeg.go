package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// ExecError reports a failed ffmpeg run.
type ExecError struct {
	Args   []string
	Err    error
	Stderr string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v, stderr: %s", e.Err, strings.TrimSpace(e.Stderr))
}

func (e *ExecError) Unwrap() error { return e.Err }

// FFmpegSplitter implements Splitter using ffmpeg CLI.
type FFmpegSplitter struct {
	ffmpegPath string
}

// NewFFmpegSplitter creates a new FFmpegSplitter.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegSplitter(ffmpegPath string) *FFmpegSplitter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegSplitter{ffmpegPath: ffmpegPath}
}

// Split implements Splitter.Split with a stream copy. ffmpeg writes to a
// hidden sibling of Output which is renamed into place once ffmpeg exits
// successfully.
func (s *FFmpegSplitter) Split(ctx context.Context, seg Segment) error {
	if err := seg.Validate(); err != nil {
		return err
	}

	// Validate input file exists
	if _, err := os.Stat(seg.Source); err != nil {
		return fmt.Errorf("input file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(seg.Output), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp := stagingPath(seg.Output)
	if err := s.runFFmpeg(ctx, splitArgs(seg, tmp)); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, seg.Output); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}

// splitArgs builds the ffmpeg command line. Seeking is done on the output
// side so -to is measured from the start of the source, like the marker
// times are.
func splitArgs(seg Segment, output string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y", // Overwrite output
		"-i", seg.Source,
		"-ss", seg.Start,
	}
	if seg.HasEnd() {
		args = append(args, "-to", seg.End)
	}
	return append(args,
		"-c", "copy", // Copy without re-encoding
		output,
	)
}

// stagingPath keeps the extension so ffmpeg still picks the right muxer.
func stagingPath(output string) string {
	return filepath.Join(filepath.Dir(output), ".partial-"+filepath.Base(output))
}

func (s *FFmpegSplitter) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}
		return &ExecError{Args: args, Err: err, Stderr: stderr.String()}
	}

	return nil
}

// ListChapterFiles lists the files in dir with the given extension, sorted
// by name. Staging files of unfinished splits are not included.
func ListChapterFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	want := "." + strings.TrimPrefix(ext, ".")
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".partial-") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), want) {
			files = append(files, filepath.Join(dir, name))
		}
	}

	slices.Sort(files)
	return files, nil
}

// Verify interface implementation at compile time.
var _ Splitter = (*FFmpegSplitter)(nil)
