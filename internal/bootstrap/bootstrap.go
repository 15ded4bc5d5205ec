// Package bootstrap provides dependency initialization for the chapter splitter.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/overdrive-chapters/internal/audio"
	"github.com/maauso/overdrive-chapters/internal/config"
	"github.com/maauso/overdrive-chapters/internal/job"
	"github.com/maauso/overdrive-chapters/internal/storage"
	"github.com/maauso/overdrive-chapters/internal/tags"
)

// Dependencies holds all initialized dependencies for the command.
type Dependencies struct {
	Tags          tags.Reader
	Splitter      audio.Splitter
	Publisher     storage.Publisher // nil when publishing is disabled
	ExportService *job.ExportService
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	publisher, err := initPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	splitter := audio.NewFFmpegSplitter(cfg.FFmpegPath)

	opts := []job.Option{
		job.WithMaxConcurrentSplits(cfg.MaxConcurrentSplits),
		job.WithFailFast(cfg.FailFast),
	}
	if publisher != nil {
		opts = append(opts, job.WithPublisher(publisher, cfg.PublishPrefix))
	}

	return &Dependencies{
		Tags:          tags.NewID3Reader(),
		Splitter:      splitter,
		Publisher:     publisher,
		ExportService: job.NewExportService(splitter, logger, opts...),
	}, nil
}

// initPublisher creates the publishing backend based on configuration.
// S3 takes precedence over a local library directory.
func initPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Publisher, error) {
	if !cfg.PublishEnabled() {
		logger.Debug("publishing disabled")
		return nil, nil
	}

	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		pub, err := storage.NewS3Publisher(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 publisher: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return pub, nil
	}

	pub, err := storage.NewLocalPublisher(cfg.PublishDir)
	if err != nil {
		return nil, fmt.Errorf("create local publisher: %w", err)
	}
	logger.Info("local publishing configured",
		slog.String("publish_dir", pub.Root()),
	)
	return pub, nil
}
