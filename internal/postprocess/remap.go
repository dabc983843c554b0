package postprocess

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// RemapConfig carries the settings that drive path remapping for one download.
type RemapConfig struct {
	// RemotePath/LocalPath is the global prefix substitution: the path the
	// download client reports versus where the same data is mounted locally.
	RemotePath string
	LocalPath  string

	// Category and ClientDownloadPath come from the download client config.
	Category           string
	ClientDownloadPath string
}

// PathCandidate is one remapping strategy's guess at the local path.
type PathCandidate struct {
	Strategy string
	Path     string
}

// BuildPathCandidates returns the ordered list of local paths that might hold
// the backend-reported path. The order is load-bearing: operators depend on
// the existing fallback sequence.
func BuildPathCandidates(path string, cfg RemapConfig) []PathCandidate {
	var candidates []PathCandidate
	basename := filepath.Base(path)

	// 1. Global remote prefix substitution.
	if cfg.RemotePath != "" && strings.HasPrefix(path, cfg.RemotePath) {
		candidates = append(candidates, PathCandidate{
			Strategy: "global_prefix_remap",
			Path:     cfg.LocalPath + strings.TrimPrefix(path, cfg.RemotePath),
		})
	}

	// 2. localPath/category/basename, the most common torrent client layout.
	if cfg.Category != "" {
		candidates = append(candidates, PathCandidate{
			Strategy: "local_path_with_category",
			Path:     filepath.Join(cfg.LocalPath, cfg.Category, basename),
		})
	}

	// 3. Category-aware sibling remap: the reported path and the configured
	// remote prefix share a parent but differ in their leaf folder, e.g.
	// remote=/mnt/Torrents/Completed, path=/mnt/Torrents/shelfarr/File.
	if cfg.Category != "" && cfg.RemotePath != "" {
		marker := "/" + cfg.Category + "/"
		if idx := strings.Index(path, marker); idx >= 0 {
			remoteBase := path[:idx]
			suffix := path[idx:]
			if remoteBase == filepath.Dir(cfg.RemotePath) {
				candidates = append(candidates, PathCandidate{
					Strategy: "category_sibling_remap",
					Path:     filepath.Join(filepath.Dir(cfg.LocalPath), suffix),
				})
			}
		}
	}

	// 4. Per-client download path override.
	if cfg.ClientDownloadPath != "" {
		candidates = append(candidates, PathCandidate{
			Strategy: "client_download_path",
			Path:     filepath.Join(cfg.ClientDownloadPath, basename),
		})
	}

	// 5. localPath/basename, no category.
	candidates = append(candidates, PathCandidate{
		Strategy: "local_path_basename",
		Path:     filepath.Join(cfg.LocalPath, basename),
	})

	// 6. The reported path unchanged, for same-filesystem deployments.
	candidates = append(candidates, PathCandidate{
		Strategy: "original_path",
		Path:     path,
	})

	return candidates
}

// ResolvePath returns the first candidate path that exists on disk. When none
// exists, it returns the first non-empty candidate so the copy step fails
// with an actionable "not found" error naming a real path.
func ResolvePath(path string, cfg RemapConfig, logger zerolog.Logger) string {
	if path == "" {
		logger.Warn().Msg("Download path is blank, client did not report a path")
		return path
	}

	candidates := BuildPathCandidates(path, cfg)
	for _, c := range candidates {
		if c.Path == "" {
			continue
		}
		if _, err := os.Stat(c.Path); err == nil {
			logger.Info().Str("strategy", c.Strategy).Str("path", c.Path).Msg("Path resolved")
			return c.Path
		}
	}

	logger.Warn().Str("path", path).Msg("No remapped path exists on disk")
	for _, c := range candidates {
		logger.Warn().Str("strategy", c.Strategy).Str("candidate", c.Path).Msg("Tried candidate")
	}

	for _, c := range candidates {
		if c.Path != "" {
			return c.Path
		}
	}
	return path
}
