package postprocess

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader"
	"github.com/shelfarr/shelfarr/internal/downloader/types"
	"github.com/shelfarr/shelfarr/internal/release"
)

// Store is the persistence surface the pipeline transitions through.
type Store interface {
	GetBookForRequest(ctx context.Context, requestID int64) (Book, error)
	SetRequestProcessing(ctx context.Context, requestID int64) error
	CompleteRequest(ctx context.Context, requestID int64) error
	MarkRequestAttention(ctx context.Context, requestID int64, issue string) error
	SetBookFilePath(ctx context.Context, bookID int64, path string) error
}

// Config holds the settings that drive path remapping and destination layout.
type Config struct {
	RemotePath          string
	LocalPath           string
	AudiobookOutputPath string
	EbookOutputPath     string
	AudiobookTemplate   string
	EbookTemplate       string

	// RemoveCompletedUsenet removes usenet downloads from the backend after a
	// successful import. Torrents are never removed, to preserve seeding.
	RemoveCompletedUsenet bool
}

// Pipeline imports completed downloads into the library layout.
type Pipeline struct {
	store  Store
	config Config
	logger zerolog.Logger
}

var _ downloader.CompletionHandler = (*Pipeline)(nil)

// NewPipeline creates the post-processing pipeline.
func NewPipeline(store Store, config Config, logger zerolog.Logger) *Pipeline {
	if config.LocalPath == "" {
		config.LocalPath = "/downloads"
	}
	return &Pipeline{
		store:  store,
		config: config,
		logger: logger.With().Str("component", "postprocess").Logger(),
	}
}

// HandleCompleted resolves the download's local path, copies its files into
// the templated destination, and performs backend cleanup. Placement failures
// put the request into attention-needed with an operator-actionable message
// and are not retried automatically.
func (p *Pipeline) HandleCompleted(ctx context.Context, download downloader.Download, cfg types.ClientConfig, client types.Client) error {
	book, err := p.store.GetBookForRequest(ctx, download.RequestID)
	if err != nil {
		return err
	}

	p.logger.Info().Str("title", book.Title).Int64("downloadId", download.ID).
		Msg("Starting post-processing")

	if err := p.store.SetRequestProcessing(ctx, download.RequestID); err != nil {
		return err
	}

	destination := p.destinationFor(book)
	source := ResolvePath(download.DownloadPath, RemapConfig{
		RemotePath:         p.config.RemotePath,
		LocalPath:          p.config.LocalPath,
		Category:           cfg.Category,
		ClientDownloadPath: cfg.DownloadPath,
	}, p.logger)

	if err := copyFiles(source, destination, book); err != nil {
		issue := fmt.Sprintf("Post-processing failed: %s", err)
		p.logger.Error().Err(err).Int64("downloadId", download.ID).Msg("Post-processing failed")
		if markErr := p.store.MarkRequestAttention(ctx, download.RequestID, issue); markErr != nil {
			return markErr
		}
		return nil
	}

	p.cleanupUsenet(ctx, download, cfg, client)

	if err := p.store.SetBookFilePath(ctx, book.ID, destination); err != nil {
		return err
	}
	if err := p.store.CompleteRequest(ctx, download.RequestID); err != nil {
		return err
	}

	p.logger.Info().Str("title", book.Title).Str("destination", destination).
		Msg("Post-processing completed")
	return nil
}

func (p *Pipeline) destinationFor(book Book) string {
	if book.Type == release.FormatEbook {
		return BuildDestination(book, p.orDefault(p.config.EbookOutputPath, "/ebooks"), p.config.EbookTemplate)
	}
	return BuildDestination(book, p.orDefault(p.config.AudiobookOutputPath, "/audiobooks"), p.config.AudiobookTemplate)
}

func (p *Pipeline) orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// cleanupUsenet removes a finished usenet download from its backend, with
// data deletion. Failures are logged and swallowed: cleanup must never fail
// the import.
func (p *Pipeline) cleanupUsenet(ctx context.Context, download downloader.Download, cfg types.ClientConfig, client types.Client) {
	if !p.config.RemoveCompletedUsenet {
		return
	}
	if client.Protocol() != types.ProtocolUsenet {
		return
	}
	if download.ExternalID == "" {
		return
	}

	p.logger.Info().Str("externalId", download.ExternalID).Str("client", cfg.Name).
		Msg("Removing usenet download after import")
	if _, err := client.Remove(ctx, download.ExternalID, true); err != nil {
		p.logger.Warn().Err(err).Str("externalId", download.ExternalID).
			Msg("Failed to remove usenet download")
	}
}
