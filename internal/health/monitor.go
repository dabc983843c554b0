package health

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/qbittorrent"
	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// Store persists recorded service states.
type Store interface {
	UpsertServiceHealth(ctx context.Context, h ServiceHealth) error
	ListServiceHealth(ctx context.Context) ([]ServiceHealth, error)
}

// ConfigSource lists the enabled download client configs.
type ConfigSource interface {
	ListEnabledClients(ctx context.Context) ([]types.ClientConfig, error)
}

// ClientBuilder resolves an adapter for a config. Implemented by
// downloader.Factory.
type ClientBuilder interface {
	ClientFor(cfg types.ClientConfig) (types.Client, error)
}

// Config holds the paths the monitor verifies.
type Config struct {
	DownloadLocalPath   string
	AudiobookOutputPath string
	EbookOutputPath     string
}

// Monitor probes external services and records a state per service.
type Monitor struct {
	store   Store
	configs ConfigSource
	builder ClientBuilder
	fs      *FilesystemChecker
	config  Config
	logger  zerolog.Logger
}

// NewMonitor creates the health monitor.
func NewMonitor(store Store, configs ConfigSource, builder ClientBuilder, config Config, logger zerolog.Logger) *Monitor {
	if config.DownloadLocalPath == "" {
		config.DownloadLocalPath = "/downloads"
	}
	return &Monitor{
		store:   store,
		configs: configs,
		builder: builder,
		fs:      NewFilesystemChecker(),
		config:  config,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// RunAll executes every check once, sequentially. Registered as a recurring
// scheduler task; also usable for a one-shot sweep.
func (m *Monitor) RunAll(ctx context.Context) error {
	m.RunCheck(ctx, ServiceDownloadClients)
	m.RunCheck(ctx, ServiceDownloadPaths)
	m.RunCheck(ctx, ServiceOutputPaths)
	return nil
}

// RunCheck executes one named check and persists the result. Also used for
// user-triggered test actions against a single service.
func (m *Monitor) RunCheck(ctx context.Context, service string) ServiceHealth {
	var result ServiceHealth
	switch service {
	case ServiceDownloadClients:
		result = m.checkDownloadClients(ctx)
	case ServiceDownloadPaths:
		result = m.checkDownloadPaths(ctx)
	case ServiceOutputPaths:
		result = m.checkOutputPaths()
	default:
		m.logger.Warn().Str("service", service).Msg("Unknown health check")
		return ServiceHealth{}
	}

	result.Service = service
	result.CheckedAt = time.Now().UTC()
	if err := m.store.UpsertServiceHealth(ctx, result); err != nil {
		m.logger.Error().Err(err).Str("service", service).Msg("Failed to record health state")
	}
	return result
}

// checkDownloadClients tests every enabled client and aggregates: healthy
// when all connect, down when all fail, degraded in between.
func (m *Monitor) checkDownloadClients(ctx context.Context) ServiceHealth {
	clients, err := m.configs.ListEnabledClients(ctx)
	if err != nil {
		return ServiceHealth{Status: StatusDown, Message: fmt.Sprintf("Error: %s", err)}
	}
	if len(clients) == 0 {
		return ServiceHealth{Status: StatusNotConfigured, Message: "No download clients configured"}
	}

	var failed []string
	for _, cfg := range clients {
		client, err := m.builder.ClientFor(cfg)
		if err != nil || !client.Test(ctx) {
			failed = append(failed, cfg.Name)
		}
	}

	successful := len(clients) - len(failed)
	switch {
	case len(failed) == 0:
		return ServiceHealth{Status: StatusHealthy, Message: fmt.Sprintf("All %d clients connected", successful)}
	case successful == 0:
		return ServiceHealth{Status: StatusDown, Message: "All clients failed: " + strings.Join(failed, ", ")}
	default:
		return ServiceHealth{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d/%d working. Failed: %s", successful, len(clients), strings.Join(failed, ", ")),
		}
	}
}

// checkDownloadPaths verifies the local download mount for torrent clients,
// including the qBittorrent category folder layout.
func (m *Monitor) checkDownloadPaths(ctx context.Context) ServiceHealth {
	all, err := m.configs.ListEnabledClients(ctx)
	if err != nil {
		return ServiceHealth{Status: StatusDown, Message: fmt.Sprintf("Error: %s", err)}
	}

	var clients []types.ClientConfig
	for _, cfg := range all {
		if types.ProtocolForClient(cfg.Type) == types.ProtocolTorrent {
			clients = append(clients, cfg)
		}
	}
	if len(clients) == 0 {
		return ServiceHealth{Status: StatusNotConfigured, Message: "No torrent clients configured"}
	}

	var issues []string
	if !dirExists(m.config.DownloadLocalPath) {
		issues = append(issues, fmt.Sprintf("Base download path '%s' does not exist in container", m.config.DownloadLocalPath))
	}

	for _, cfg := range clients {
		if cfg.DownloadPath != "" && !dirExists(cfg.DownloadPath) {
			issues = append(issues, fmt.Sprintf("%s: configured download path '%s' does not exist", cfg.Name, cfg.DownloadPath))
		}

		if cfg.Type != types.ClientTypeQBittorrent {
			continue
		}

		// qBittorrent saves into a per-category subfolder.
		if cfg.Category != "" {
			base := cfg.DownloadPath
			if base == "" {
				base = m.config.DownloadLocalPath
			}
			if dirExists(base) {
				categoryPath := base + "/" + cfg.Category
				if !dirExists(categoryPath) {
					issues = append(issues, fmt.Sprintf("%s: category folder '%s' not found, ensure your mount includes the '%s' subfolder",
						cfg.Name, categoryPath, cfg.Category))
				}
			}
		}

		m.logDiagnostics(ctx, cfg)
	}

	if len(issues) == 0 {
		return ServiceHealth{Status: StatusHealthy, Message: "Download paths accessible"}
	}

	status := StatusDegraded
	for _, issue := range issues {
		if strings.Contains(issue, "does not exist in container") {
			status = StatusDown
			break
		}
	}
	return ServiceHealth{Status: status, Message: truncate(strings.Join(issues, "; "), 500)}
}

// logDiagnostics asks qBittorrent for its own view of the save paths.
// Log-only: the backend's paths are from its filesystem perspective, not ours.
func (m *Monitor) logDiagnostics(ctx context.Context, cfg types.ClientConfig) {
	client, err := m.builder.ClientFor(cfg)
	if err != nil {
		return
	}
	qb, ok := client.(*qbittorrent.Client)
	if !ok {
		return
	}

	diag := qb.FetchDiagnostics(ctx)
	if diag == nil {
		m.logger.Warn().Str("client", cfg.Name).Msg("Path diagnostics failed")
		return
	}
	m.logger.Info().Str("client", cfg.Name).Str("savePath", diag.SavePath).
		Str("categorySavePath", diag.CategorySavePath).Msg("qBittorrent path diagnostics")
}

// checkOutputPaths verifies both library output paths exist and are writable.
func (m *Monitor) checkOutputPaths() ServiceHealth {
	var issues []string
	if issue := m.checkPath("Audiobook", m.config.AudiobookOutputPath); issue != "" {
		issues = append(issues, issue)
	}
	if issue := m.checkPath("Ebook", m.config.EbookOutputPath); issue != "" {
		issues = append(issues, issue)
	}

	switch len(issues) {
	case 0:
		return ServiceHealth{Status: StatusHealthy, Message: "All output paths accessible"}
	case 1:
		return ServiceHealth{Status: StatusDegraded, Message: issues[0]}
	default:
		return ServiceHealth{Status: StatusDown, Message: strings.Join(issues, "; ")}
	}
}

func (m *Monitor) checkPath(name, path string) string {
	if path == "" {
		return name + " path not configured"
	}
	if err := m.fs.CheckFolderAccessible(path); err != nil {
		return name + " path does not exist"
	}
	if err := m.fs.CheckFolderWritable(path); err != nil {
		return name + " path not writable"
	}
	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
