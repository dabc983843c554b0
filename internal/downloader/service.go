package downloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// Download is one concrete submission to one backend for one request.
type Download struct {
	ID           int64     `json:"id"`
	UUID         string    `json:"uuid"`
	RequestID    int64     `json:"requestId"`
	ClientID     int64     `json:"clientId"`
	ExternalID   string    `json:"externalId"`
	Title        string    `json:"title"`
	State        State     `json:"state"`
	Progress     int       `json:"progress"`
	DownloadPath string    `json:"downloadPath"`
	IsUsenet     bool      `json:"isUsenet"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store is the persistence surface the service needs. Implemented by
// database.Store.
type Store interface {
	ConfigSource

	GetClientConfig(ctx context.Context, id int64) (types.ClientConfig, error)
	CreateDownload(ctx context.Context, d *Download) error
	ListActiveDownloads(ctx context.Context) ([]Download, error)
	UpdateDownloadProgress(ctx context.Context, id int64, state State, progress int, path string) error
	MarkRequestAttention(ctx context.Context, requestID int64, issue string) error
}

// CompletionHandler receives downloads that reached the completed state.
// Implemented by the post-processing pipeline.
type CompletionHandler interface {
	HandleCompleted(ctx context.Context, download Download, cfg types.ClientConfig, client types.Client) error
}

// GrabInput describes the release to hand to a backend.
type GrabInput struct {
	RequestID int64
	Title     string
	SourceRef string
	IsUsenet  bool
}

// TestResult reports the outcome of a user-triggered connection test.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Service orchestrates grabs and completion polling across all backends.
type Service struct {
	store     Store
	factory   *Factory
	selector  *Selector
	completed CompletionHandler
	logger    zerolog.Logger
}

// NewService creates the download orchestration service.
func NewService(store Store, factory *Factory, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		factory:  factory,
		selector: NewSelector(store, factory, logger),
		logger:   logger.With().Str("component", "downloader").Logger(),
	}
}

// SetCompletionHandler sets the pipeline that imports completed downloads.
func (s *Service) SetCompletionHandler(h CompletionHandler) {
	s.completed = h
}

// Selector exposes the client selector for callers that only need selection.
func (s *Service) Selector() *Selector {
	return s.selector
}

// InvalidateSession drops the cached session for a client config. Called when
// a config is updated or deleted so a stale cookie or token is never replayed
// against the new endpoint.
func (s *Service) InvalidateSession(configID int64) {
	s.factory.Sessions().Clear(configID)
}

// Grab selects a live backend for the release, submits it, and persists the
// resulting Download. There is no reservation between selection and
// submission: two concurrent grabs may land on the same backend, and the
// add paths detect their own entry by identifier rather than by position.
func (s *Service) Grab(ctx context.Context, input GrabInput) (*Download, error) {
	cfg, client, err := s.selector.SelectFor(ctx, input.IsUsenet)
	if err != nil {
		return nil, err
	}

	externalID, err := client.Add(ctx, input.SourceRef, types.AddOptions{
		SavePath: cfg.DownloadPath,
		Category: cfg.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("add to %s: %w", cfg.Name, err)
	}

	download := &Download{
		UUID:      uuid.NewString(),
		RequestID: input.RequestID,
		ClientID:  cfg.ID,
		Title:     input.Title,
		IsUsenet:  input.IsUsenet,
	}

	if externalID == "" {
		// Accepted-but-undetectable or rejected: no identifier to poll, so the
		// download is dead on arrival rather than a hard error.
		download.State = StateFailed
		if err := s.store.CreateDownload(ctx, download); err != nil {
			return nil, err
		}
		s.logger.Error().Str("client", cfg.Name).Str("title", input.Title).
			Msg("Backend produced no usable identifier for submission")
		return download, nil
	}

	download.ExternalID = externalID
	download.State = StateQueued
	if err := s.store.CreateDownload(ctx, download); err != nil {
		return nil, err
	}

	s.logger.Info().Str("client", cfg.Name).Str("externalId", externalID).
		Str("title", input.Title).Msg("Grabbed release")
	return download, nil
}

// PollActive refreshes every non-terminal download from its backend and hands
// newly completed ones to the completion handler. Run as a recurring job.
func (s *Service) PollActive(ctx context.Context) error {
	active, err := s.store.ListActiveDownloads(ctx)
	if err != nil {
		return err
	}

	for _, download := range active {
		if err := s.pollOne(ctx, download); err != nil {
			s.logger.Warn().Err(err).Str("uuid", download.UUID).Msg("Poll failed")
		}
	}
	return nil
}

func (s *Service) pollOne(ctx context.Context, download Download) error {
	cfg, err := s.store.GetClientConfig(ctx, download.ClientID)
	if err != nil {
		return err
	}
	client, err := s.factory.ClientFor(cfg)
	if err != nil {
		return err
	}

	info, err := client.Info(ctx, download.ExternalID)
	if err != nil {
		return err
	}
	if info == nil {
		// Vanished from the backend before completing. Operators remove
		// entries by hand; treat it as failed rather than polling forever.
		s.logger.Warn().Str("externalId", download.ExternalID).Str("client", cfg.Name).
			Msg("Download no longer present on backend")
		return s.store.UpdateDownloadProgress(ctx, download.ID, StateFailed, download.Progress, download.DownloadPath)
	}

	path := info.DownloadPath
	if path == "" {
		path = download.DownloadPath
	}
	if err := s.store.UpdateDownloadProgress(ctx, download.ID, info.State, info.Progress, path); err != nil {
		return err
	}

	if info.State == StateCompleted && download.State != StateCompleted {
		s.logger.Info().Str("title", download.Title).Str("client", cfg.Name).Msg("Download completed")
		if s.completed != nil {
			download.State = StateCompleted
			download.Progress = 100
			download.DownloadPath = path
			if err := s.completed.HandleCompleted(ctx, download, cfg, client); err != nil {
				// The download row is already terminal, so this poll never
				// comes back. Flag the request so the failure is visible.
				if markErr := s.store.MarkRequestAttention(ctx, download.RequestID,
					fmt.Sprintf("Import failed: %s", err)); markErr != nil {
					s.logger.Error().Err(markErr).Int64("requestId", download.RequestID).
						Msg("Failed to flag request after import failure")
				}
				return err
			}
		}
	}
	return nil
}

// TestClient runs a user-triggered connection test against a stored config
// and records nothing; health state updates stay with the monitor.
func (s *Service) TestClient(ctx context.Context, id int64) (*TestResult, error) {
	cfg, err := s.store.GetClientConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.TestConfig(ctx, cfg), nil
}

// TestConfig tests a connection using the provided config without touching
// persistence. Used by the API for pre-save validation.
func (s *Service) TestConfig(ctx context.Context, cfg types.ClientConfig) *TestResult {
	client, err := s.factory.ClientFor(cfg)
	if err != nil {
		return &TestResult{Success: false, Message: fmt.Sprintf("Unknown client type: %s", cfg.Type)}
	}
	if !client.Test(ctx) {
		return &TestResult{Success: false, Message: fmt.Sprintf("Connection to %s failed", cfg.Name)}
	}
	return &TestResult{Success: true, Message: fmt.Sprintf("Successfully connected to %s", cfg.Name)}
}
