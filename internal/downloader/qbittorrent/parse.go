package qbittorrent

import (
	"encoding/json"
	"io"
	"math"
	"path"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// nativeTorrent mirrors the fields of qBittorrent's torrents/info objects that
// the normalized record needs.
type nativeTorrent struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Progress    float64 `json:"progress"` // 0.0-1.0
	State       string  `json:"state"`
	Size        int64   `json:"size"`
	SavePath    string  `json:"save_path"`
	ContentPath string  `json:"content_path"`
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

func normalize(t nativeTorrent) types.TorrentInfo {
	// content_path points at the torrent's own directory; save_path is the
	// category directory. Older versions omit content_path.
	downloadPath := t.ContentPath
	if downloadPath == "" {
		if t.SavePath != "" && t.Name != "" {
			downloadPath = path.Join(t.SavePath, t.Name)
		} else {
			downloadPath = t.SavePath
		}
	}

	return types.TorrentInfo{
		Hash:         t.Hash,
		Name:         t.Name,
		Progress:     int(math.Round(t.Progress * 100)),
		State:        normalizeState(t.State),
		SizeBytes:    t.Size,
		DownloadPath: downloadPath,
	}
}

func normalizeState(state string) types.State {
	switch state {
	case "downloading", "forcedDL", "metaDL", "queuedDL", "allocating", "checkingDL":
		return types.StateDownloading
	case "stalledDL", "pausedDL":
		return types.StatePaused
	case "uploading", "forcedUP", "stalledUP", "queuedUP", "pausedUP", "checkingUP":
		return types.StateCompleted
	case "error", "missingFiles":
		return types.StateFailed
	default:
		return types.StateQueued
	}
}
