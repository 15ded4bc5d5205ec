// Package main provides the chaptersplit command, which cuts a multi-file
// OverDrive audiobook into one file per chapter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/maauso/overdrive-chapters/internal/audiobook"
	"github.com/maauso/overdrive-chapters/internal/bootstrap"
	"github.com/maauso/overdrive-chapters/internal/config"
	"github.com/maauso/overdrive-chapters/internal/job"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags default to the environment and override it
	fs := flag.NewFlagSet("chaptersplit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.OutputSubdir, "out", cfg.OutputSubdir, "output subdirectory inside the audiobook directory")
	fs.StringVar(&cfg.AudioExtension, "ext", cfg.AudioExtension, "extension of the part files")
	fs.IntVar(&cfg.MaxConcurrentSplits, "jobs", cfg.MaxConcurrentSplits, "number of chapters split in parallel")
	fs.BoolVar(&cfg.FailFast, "fail-fast", cfg.FailFast, "stop at the first chapter that fails")
	dryRun := fs.Bool("dry-run", false, "print the merged chapters without writing files")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: chaptersplit [options] <audiobook dir>\n\n")
		fmt.Fprintf(stderr, "Split a multi-file OverDrive audiobook into one file per chapter.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one audiobook directory is required")
	}
	cfg.AudioExtension = strings.TrimPrefix(cfg.AudioExtension, ".")
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Create structured logger
	logger := cfg.NewLogger(stderr)
	slog.SetDefault(logger)

	dir, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("resolve audiobook directory: %w", err)
	}

	logger.Debug("starting chaptersplit",
		slog.String("config", cfg.String()),
		slog.String("dir", dir),
		slog.Bool("dry_run", *dryRun),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	book, err := audiobook.Open(dir, deps.Tags,
		audiobook.WithExtension(cfg.AudioExtension),
		audiobook.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("open audiobook: %w", err)
	}

	if *dryRun {
		plan, err := deps.ExportService.Plan(book, cfg.OutputSubdir)
		if err != nil {
			return err
		}
		printPlan(stdout, book, plan)
		return nil
	}

	export, err := deps.ExportService.Export(ctx, book, cfg.OutputSubdir)
	if export != nil {
		printResult(stdout, export)
	}
	return err
}

func printPlan(w io.Writer, book *audiobook.Audiobook, plan *job.Job) {
	fmt.Fprintf(w, "%s: %d chapters in %d parts\n", filepath.Base(book.Dir()), len(plan.Tasks), len(book.Parts()))
	for _, t := range plan.Tasks {
		note := ""
		if t.Chapter.SpansFiles() {
			note = " (spans part files, cannot be split)"
		}
		fmt.Fprintf(w, "%3d  %s -> %s%s\n", t.Index, t.Chapter, relOutput(plan, t.OutputPath), note)
	}
}

func printResult(w io.Writer, export *job.Job) {
	counts := export.Counts()
	fmt.Fprintf(w, "%s: %d exported, %d failed, %d skipped into %s (%d%% done)\n",
		export.GetStatus(),
		counts[job.TaskCompleted],
		counts[job.TaskFailed],
		counts[job.TaskSkipped],
		export.OutputDir,
		export.Progress(),
	)
	for _, t := range export.Failures() {
		fmt.Fprintf(w, "  failed: %v\n", t.Err)
	}
}

func relOutput(plan *job.Job, path string) string {
	rel, err := filepath.Rel(plan.BookDir, path)
	if err != nil {
		return path
	}
	return rel
}
