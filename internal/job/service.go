package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/overdrive-chapters/internal/audio"
	"github.com/maauso/overdrive-chapters/internal/audiobook"
	"github.com/maauso/overdrive-chapters/internal/storage"
)

// Static errors for exporting.
var (
	// ErrUnsupportedCrossFileSplit is returned for a chapter that starts in
	// one part file and ends in another. Such audio would need joining,
	// which is not supported.
	ErrUnsupportedCrossFileSplit = errors.New("chapter spans more than one part file: merging files is not supported")
	// ErrNoChapters is returned when the audiobook carries no chapter markers.
	ErrNoChapters = errors.New("audiobook has no chapter markers")
	// ErrInvalidOutputDir is returned when the output subdirectory is not a
	// plain relative name inside the audiobook directory.
	ErrInvalidOutputDir = errors.New("output subdirectory must be a relative path inside the audiobook directory")
)

// TaskError ties a failure to the chapter it happened on.
type TaskError struct {
	Index int
	Title string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("chapter %d %q: %v", e.Index, e.Title, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// ExportService splits every merged chapter of an audiobook into its own
// file and optionally publishes the results.
type ExportService struct {
	splitter  audio.Splitter
	publisher storage.Publisher
	logger    *slog.Logger
	// maxConcurrentSplits limits parallel splitter runs.
	maxConcurrentSplits int
	failFast            bool
	publishPrefix       string
}

// Option is a function that configures an ExportService.
type Option func(*ExportService)

// WithMaxConcurrentSplits sets how many chapters are split in parallel.
// Values below 1 are ignored.
func WithMaxConcurrentSplits(n int) Option {
	return func(s *ExportService) {
		if n > 0 {
			s.maxConcurrentSplits = n
		}
	}
}

// WithFailFast stops the export at the first failed chapter. Chapters not
// yet started are marked SKIPPED.
func WithFailFast(enabled bool) Option {
	return func(s *ExportService) {
		s.failFast = enabled
	}
}

// WithPublisher publishes every exported chapter under
// <prefix>/<book dir name>/<output subdir>/<file>.
func WithPublisher(p storage.Publisher, prefix string) Option {
	return func(s *ExportService) {
		s.publisher = p
		s.publishPrefix = prefix
	}
}

// NewExportService creates a new ExportService. By default chapters are
// split one at a time and every chapter is attempted.
func NewExportService(splitter audio.Splitter, logger *slog.Logger, opts ...Option) *ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ExportService{
		splitter:            splitter,
		logger:              logger,
		maxConcurrentSplits: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan computes the merged chapters of book and returns an IN_QUEUE job
// with one task per chapter. Nothing is written.
func (s *ExportService) Plan(book *audiobook.Audiobook, outSubdir string) (*Job, error) {
	outDir, err := outputDir(book.Dir(), outSubdir)
	if err != nil {
		return nil, err
	}

	merged := book.MergedChapters()
	if len(merged) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChapters, book.Dir())
	}

	tasks := make([]Task, len(merged))
	for i, c := range merged {
		tasks[i] = Task{
			Index:      i + 1,
			Chapter:    c,
			OutputPath: filepath.Join(outDir, audiobook.OutputName(i+1, c.Title(), book.Extension())),
			Status:     TaskPending,
		}
	}

	return New(book.Dir(), outDir, tasks), nil
}

func outputDir(bookDir, subdir string) (string, error) {
	subdir = strings.TrimSpace(subdir)
	if subdir == "" || filepath.IsAbs(subdir) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOutputDir, subdir)
	}
	dir := filepath.Join(bookDir, subdir)
	rel, err := filepath.Rel(bookDir, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOutputDir, subdir)
	}
	return dir, nil
}

// Export writes one file per merged chapter of book into
// <book dir>/<outSubdir>. The returned job is always non-nil once planning
// succeeded; its tasks record the outcome per chapter. The error joins every
// chapter failure.
func (s *ExportService) Export(ctx context.Context, book *audiobook.Audiobook, outSubdir string) (*Job, error) {
	job, err := s.Plan(book, outSubdir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if err := job.Start(); err != nil {
		return nil, err
	}

	s.logger.Info("export started",
		slog.String("job_id", job.ID),
		slog.String("output_dir", job.OutputDir),
		slog.Int("chapters", len(job.Tasks)),
		slog.Int("max_concurrent_splits", s.maxConcurrentSplits),
		slog.Bool("fail_fast", s.failFast),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrentSplits)

	for i := range job.Tasks {
		g.Go(func() error {
			err := s.runTask(gctx, job, i)
			if s.failFast {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	return s.finish(ctx, job)
}

// runTask exports the chapter at task index i. Cross-file chapters fail
// without invoking the splitter.
func (s *ExportService) runTask(ctx context.Context, job *Job, i int) error {
	task := job.Snapshot()[i]
	logger := s.logger.With(
		slog.String("job_id", job.ID),
		slog.Int("chapter", task.Index),
		slog.String("title", task.Chapter.Title()),
	)

	if ctx.Err() != nil {
		job.updateTask(i, func(t *Task) {
			t.Status = TaskSkipped
			t.CompletedAt = time.Now()
		})
		return ctx.Err()
	}

	job.updateTask(i, func(t *Task) {
		t.Status = TaskRunning
		t.StartedAt = time.Now()
	})

	location, err := s.export(ctx, job.BookDir, task)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("chapter export interrupted")
			job.updateTask(i, func(t *Task) {
				t.Status = TaskSkipped
				t.CompletedAt = time.Now()
			})
			return ctx.Err()
		}

		taskErr := &TaskError{Index: task.Index, Title: task.Chapter.Title(), Err: err}
		logger.Error("chapter export failed",
			slog.String("start", task.Chapter.Start().String()),
			slog.String("end", task.Chapter.End().String()),
			slog.String("error", err.Error()),
		)
		job.updateTask(i, func(t *Task) {
			t.Status = TaskFailed
			t.Err = taskErr
			t.CompletedAt = time.Now()
		})
		return taskErr
	}

	job.updateTask(i, func(t *Task) {
		t.Status = TaskCompleted
		t.Location = location
		t.CompletedAt = time.Now()
	})
	logger.Info("chapter exported",
		slog.String("output", task.OutputPath),
		slog.String("location", location),
		slog.Int("progress", job.Progress()),
	)
	return nil
}

func (s *ExportService) export(ctx context.Context, bookDir string, task Task) (string, error) {
	c := task.Chapter
	if c.SpansFiles() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCrossFileSplit, c)
	}

	seg := audio.Segment{
		Source: c.Start().File(),
		Start:  c.Start().Time(),
		Output: task.OutputPath,
	}
	if c.IsEndKnown() {
		seg.End = c.End().Time()
	}

	if err := s.splitter.Split(ctx, seg); err != nil {
		return "", fmt.Errorf("split: %w", err)
	}

	if s.publisher == nil {
		return "", nil
	}
	return s.publish(ctx, bookDir, task)
}

func (s *ExportService) publish(ctx context.Context, bookDir string, task Task) (string, error) {
	f, err := os.Open(task.OutputPath)
	if err != nil {
		return "", fmt.Errorf("open chapter file: %w", err)
	}
	defer func() { _ = f.Close() }()

	rel, err := filepath.Rel(bookDir, task.OutputPath)
	if err != nil {
		return "", fmt.Errorf("publish key: %w", err)
	}
	key := storage.Key(s.publishPrefix, filepath.Base(bookDir), filepath.ToSlash(rel))

	location, err := s.publisher.Publish(ctx, key, f)
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	return location, nil
}

// finish settles the job status from the task outcomes.
func (s *ExportService) finish(ctx context.Context, job *Job) (*Job, error) {
	var errs []error
	for _, t := range job.Failures() {
		errs = append(errs, t.Err)
	}
	err := errors.Join(errs...)

	counts := job.Counts()
	attrs := []any{
		slog.String("job_id", job.ID),
		slog.Int("completed", counts[TaskCompleted]),
		slog.Int("failed", counts[TaskFailed]),
		slog.Int("skipped", counts[TaskSkipped]),
	}

	switch {
	case err != nil:
		_ = job.Fail(err.Error())
		s.logger.Error("export failed", attrs...)
		return job, err
	case ctx.Err() != nil:
		_ = job.Cancel()
		s.logger.Warn("export cancelled", attrs...)
		return job, fmt.Errorf("export cancelled: %w", ctx.Err())
	default:
		_ = job.Complete()
		s.logger.Info("export completed", attrs...)
		return job, nil
	}
}
