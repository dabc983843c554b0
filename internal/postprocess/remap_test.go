package postprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strategies(candidates []PathCandidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Strategy
	}
	return out
}

func TestBuildPathCandidatesOrder(t *testing.T) {
	cfg := RemapConfig{
		RemotePath:         "/mnt/remote/downloads",
		LocalPath:          "/downloads",
		Category:           "shelfarr",
		ClientDownloadPath: "/data/torrents",
	}
	candidates := BuildPathCandidates("/mnt/remote/downloads/shelfarr/Book Name", cfg)

	assert.Equal(t, []string{
		"global_prefix_remap",
		"local_path_with_category",
		"client_download_path",
		"local_path_basename",
		"original_path",
	}, strategies(candidates))
	assert.Equal(t, "/downloads/shelfarr/Book Name", candidates[0].Path)
	assert.Equal(t, "/downloads/shelfarr/Book Name", candidates[1].Path)
	assert.Equal(t, "/data/torrents/Book Name", candidates[2].Path)
	assert.Equal(t, "/downloads/Book Name", candidates[3].Path)
	assert.Equal(t, "/mnt/remote/downloads/shelfarr/Book Name", candidates[4].Path)
}

func TestBuildPathCandidatesSiblingRemap(t *testing.T) {
	// Remote prefix points to a sibling folder of the category directory:
	// remote=/mnt/media/Torrents/Completed, reported=/mnt/media/Torrents/shelfarr/X.
	cfg := RemapConfig{
		RemotePath: "/mnt/media/Torrents/Completed",
		LocalPath:  "/downloads/Completed",
		Category:   "shelfarr",
	}
	candidates := BuildPathCandidates("/mnt/media/Torrents/shelfarr/Test Audiobook", cfg)

	assert.Contains(t, strategies(candidates), "category_sibling_remap")
	for _, c := range candidates {
		if c.Strategy == "category_sibling_remap" {
			assert.Equal(t, "/downloads/shelfarr/Test Audiobook", c.Path)
		}
	}
}

func TestBuildPathCandidatesSiblingRemapRequiresSharedParent(t *testing.T) {
	cfg := RemapConfig{
		RemotePath: "/srv/usenet/Completed",
		LocalPath:  "/downloads/Completed",
		Category:   "shelfarr",
	}
	candidates := BuildPathCandidates("/mnt/media/Torrents/shelfarr/Test Audiobook", cfg)
	assert.NotContains(t, strategies(candidates), "category_sibling_remap")
}

func TestBuildPathCandidatesMinimalConfig(t *testing.T) {
	candidates := BuildPathCandidates("/srv/done/Book", RemapConfig{LocalPath: "/downloads"})
	assert.Equal(t, []string{"local_path_basename", "original_path"}, strategies(candidates))
}

func TestResolvePathReturnsFirstExisting(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "Book Name")
	require.NoError(t, os.MkdirAll(existing, 0o755))

	cfg := RemapConfig{LocalPath: dir}
	resolved := ResolvePath("/mnt/remote/Book Name", cfg, zerolog.Nop())
	assert.Equal(t, existing, resolved)
}

func TestResolvePathFallsBackToFirstCandidate(t *testing.T) {
	cfg := RemapConfig{
		RemotePath: "/mnt/remote",
		LocalPath:  "/nonexistent-local",
	}
	resolved := ResolvePath("/mnt/remote/Book", cfg, zerolog.Nop())
	assert.Equal(t, "/nonexistent-local/Book", resolved)
}

func TestResolvePathBlank(t *testing.T) {
	assert.Equal(t, "", ResolvePath("", RemapConfig{LocalPath: "/downloads"}, zerolog.Nop()))
}
