// Package transmission implements a Transmission RPC client.
package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

const sessionIDHeader = "X-Transmission-Session-Id"

var torrentFields = []string{
	"id", "name", "hashString", "percentDone", "status", "totalSize", "downloadDir", "error", "errorString",
}

// Client implements the Transmission RPC variant of types.Client. Transmission
// has no login call: any request without a valid session id fails with HTTP
// 409 carrying a fresh id in a response header, which the client captures and
// replays exactly once.
type Client struct {
	config   types.ClientConfig
	sessions *types.SessionStore
	http     *http.Client
	logger   zerolog.Logger
}

var _ types.Client = (*Client)(nil)

// New creates a Transmission adapter bound to one config and a shared session store.
func New(cfg types.ClientConfig, sessions *types.SessionStore, logger zerolog.Logger) *Client {
	return &Client{
		config:   cfg,
		sessions: sessions,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logger.With().Str("component", "transmission").Str("client", cfg.Name).Logger(),
	}
}

func (c *Client) Type() types.ClientType { return types.ClientTypeTransmission }

func (c *Client) Protocol() types.Protocol { return types.ProtocolTorrent }

// Add submits a torrent URL or magnet link. Duplicate submissions resolve to
// the existing torrent's hash; when the RPC returns neither, known hashes are
// diffed once as a fallback.
func (c *Client) Add(ctx context.Context, sourceRef string, opts types.AddOptions) (string, error) {
	existing, err := c.torrentHashes(ctx)
	if err != nil {
		return "", err
	}

	args := map[string]any{"filename": sourceRef}
	if opts.Paused {
		args["paused"] = true
	}
	if opts.SavePath != "" {
		args["download-dir"] = opts.SavePath
	}

	result, err := c.rpc(ctx, "torrent-add", args)
	if err != nil {
		return "", err
	}

	if hash := nestedHashString(result, "torrent-added"); hash != "" {
		return hash, nil
	}
	if hash := nestedHashString(result, "torrent-duplicate"); hash != "" {
		return hash, nil
	}

	current, err := c.torrentHashes(ctx)
	if err != nil {
		return "", err
	}
	for hash := range current {
		if !existing[hash] {
			return hash, nil
		}
	}
	return "", nil
}

// Info returns the normalized record for one torrent, or (nil, nil) when the
// hash is unknown.
func (c *Client) Info(ctx context.Context, id string) (*types.TorrentInfo, error) {
	result, err := c.rpc(ctx, "torrent-get", map[string]any{
		"ids":    []string{id},
		"fields": torrentFields,
	})
	if err != nil {
		return nil, err
	}

	for _, t := range decodeTorrents(result) {
		if t.HashString == id {
			info := normalize(t)
			return &info, nil
		}
	}
	return nil, nil
}

// List returns all torrents matching the filter.
func (c *Client) List(ctx context.Context, filter types.ListFilter) ([]types.TorrentInfo, error) {
	args := map[string]any{"fields": torrentFields}
	if filter.Hash != "" {
		args["ids"] = []string{filter.Hash}
	}

	result, err := c.rpc(ctx, "torrent-get", args)
	if err != nil {
		return nil, err
	}

	torrents := decodeTorrents(result)
	infos := make([]types.TorrentInfo, 0, len(torrents))
	for _, t := range torrents {
		infos = append(infos, normalize(t))
	}
	return infos, nil
}

// Remove deletes a torrent, optionally with its local data.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) (bool, error) {
	_, err := c.rpc(ctx, "torrent-remove", map[string]any{
		"ids":               []string{id},
		"delete-local-data": deleteFiles,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Test issues session-get, which also negotiates a session id when needed.
// Never returns an error.
func (c *Client) Test(ctx context.Context) bool {
	if _, err := c.rpc(ctx, "session-get", nil); err != nil {
		c.logger.Warn().Err(err).Msg("Connection test failed")
		return false
	}
	return true
}

func (c *Client) torrentHashes(ctx context.Context) (map[string]bool, error) {
	result, err := c.rpc(ctx, "torrent-get", map[string]any{
		"ids":    "all",
		"fields": []string{"hashString"},
	})
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]bool)
	for _, t := range decodeTorrents(result) {
		if t.HashString != "" {
			hashes[t.HashString] = true
		}
	}
	return hashes, nil
}

// rpc issues one RPC call, handling the 409 session negotiation dance: the
// first 409 response carries a session token in a header, which is captured
// and the call retried exactly once.
func (c *Client) rpc(ctx context.Context, method string, args map[string]any) (map[string]any, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.doRequest(ctx, method, args)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusConflict {
			token := resp.Header.Get(sessionIDHeader)
			resp.Body.Close()
			c.sessions.Clear(c.config.ID)
			if token != "" {
				c.sessions.Set(c.config.ID, types.Session{Token: token})
			}
			if attempt == 0 {
				continue
			}
			return nil, &types.ClientError{Client: "Transmission", Reason: "session negotiation failed"}
		}

		return c.parseResponse(resp, method)
	}
}

func (c *Client) doRequest(ctx context.Context, method string, args map[string]any) (*http.Response, error) {
	payload := map[string]any{"method": method, "tag": 1}
	if args != nil {
		payload["arguments"] = args
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sess, ok := c.sessions.Get(c.config.ID); ok && sess.Token != "" {
		req.Header.Set(sessionIDHeader, sess.Token)
	}
	if c.config.Username != "" || c.config.Password != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.ConnectionError{Client: "Transmission", Err: err}
	}
	return resp, nil
}

func (c *Client) parseResponse(resp *http.Response, method string) (map[string]any, error) {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.sessions.Clear(c.config.ID)
		return nil, &types.AuthenticationError{Client: "Transmission", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.ClientError{Client: "Transmission", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var rpcResp struct {
		Result    string         `json:"result"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, &types.ClientError{Client: "Transmission", Reason: "unexpected response format"}
	}

	if rpcResp.Result != "success" {
		if rpcResp.Result == "session" {
			c.sessions.Clear(c.config.ID)
			return nil, &types.AuthenticationError{Client: "Transmission", Reason: "session negotiation required"}
		}
		return nil, &types.ClientError{Client: "Transmission", Reason: fmt.Sprintf("%s for %s", rpcResp.Result, method)}
	}

	if rpcResp.Arguments == nil {
		return map[string]any{}, nil
	}
	return rpcResp.Arguments, nil
}

type nativeTorrent struct {
	Name        string  `json:"name"`
	HashString  string  `json:"hashString"`
	PercentDone float64 `json:"percentDone"`
	Status      int     `json:"status"`
	TotalSize   int64   `json:"totalSize"`
	DownloadDir string  `json:"downloadDir"`
}

func decodeTorrents(args map[string]any) []nativeTorrent {
	raw, ok := args["torrents"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var torrents []nativeTorrent
	if err := json.Unmarshal(data, &torrents); err != nil {
		return nil
	}
	return torrents
}

func nestedHashString(args map[string]any, key string) string {
	nested, ok := args[key].(map[string]any)
	if !ok {
		return ""
	}
	hash, _ := nested["hashString"].(string)
	return hash
}

func normalize(t nativeTorrent) types.TorrentInfo {
	return types.TorrentInfo{
		Hash:         t.HashString,
		Name:         t.Name,
		Progress:     int(math.Round(t.PercentDone * 100)),
		State:        normalizeState(t.Status),
		SizeBytes:    t.TotalSize,
		DownloadPath: t.DownloadDir,
	}
}

// normalizeState maps Transmission's numeric status values: 0 stopped,
// 1/2 check pending+checking, 3 download pending, 4 downloading,
// 5 seed pending, 6 seeding.
func normalizeState(status int) types.State {
	switch status {
	case 0:
		return types.StatePaused
	case 1, 2, 3, 5:
		return types.StateQueued
	case 4:
		return types.StateDownloading
	case 6:
		return types.StateCompleted
	default:
		return types.StateDownloading
	}
}
