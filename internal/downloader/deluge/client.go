// Package deluge implements a Deluge Web API (JSON-RPC) client.
package deluge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// Deluge reports auth failures as free-text error messages, so detection is
// substring based.
var authErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)not logged in`),
	regexp.MustCompile(`(?i)authentication`),
	regexp.MustCompile(`(?i)not authorized`),
	regexp.MustCompile(`(?i)not permitted`),
}

var torrentFields = []string{
	"name", "hash", "state", "progress", "total_size", "download_location", "save_path",
}

// Client implements the Deluge JSON-RPC cookie variant of types.Client.
type Client struct {
	config   types.ClientConfig
	sessions *types.SessionStore
	http     *http.Client
	logger   zerolog.Logger
}

var _ types.Client = (*Client)(nil)

// New creates a Deluge adapter bound to one config and a shared session store.
func New(cfg types.ClientConfig, sessions *types.SessionStore, logger zerolog.Logger) *Client {
	return &Client{
		config:   cfg,
		sessions: sessions,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logger.With().Str("component", "deluge").Str("client", cfg.Name).Logger(),
	}
}

func (c *Client) Type() types.ClientType { return types.ClientTypeDeluge }

func (c *Client) Protocol() types.Protocol { return types.ProtocolTorrent }

// Add submits a torrent URL or magnet link. Deluge sometimes returns no id
// from core.add_torrent_url, so the session state is diffed as a fallback.
func (c *Client) Add(ctx context.Context, sourceRef string, opts types.AddOptions) (string, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return "", err
	}

	params := map[string]any{}
	if opts.SavePath != "" {
		params["download_location"] = opts.SavePath
	}
	if label := c.label(opts); label != "" {
		params["label"] = label
	}
	if opts.Paused {
		params["add_paused"] = true
	}

	existing, err := c.torrentIDs(ctx)
	if err != nil {
		return "", err
	}

	result, err := c.call(ctx, "core.add_torrent_url", []any{sourceRef, params})
	if err != nil {
		return "", err
	}

	if id, ok := result.(string); ok && id != "" {
		return id, nil
	}

	current, err := c.torrentIDs(ctx)
	if err != nil {
		return "", err
	}
	for id := range current {
		if !existing[id] {
			return id, nil
		}
	}
	return "", nil
}

// Info returns the normalized record for one torrent, or (nil, nil) when the
// hash is unknown.
func (c *Client) Info(ctx context.Context, id string) (*types.TorrentInfo, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	statuses, err := c.torrentStatuses(ctx, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	for hash, data := range statuses {
		info := normalize(hash, data)
		return &info, nil
	}
	return nil, nil
}

// List returns all torrents matching the filter.
func (c *Client) List(ctx context.Context, filter types.ListFilter) ([]types.TorrentInfo, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	rpcFilter := map[string]any{}
	if filter.Hash != "" {
		rpcFilter["id"] = filter.Hash
	}
	if filter.Category != "" {
		rpcFilter["label"] = filter.Category
	}

	statuses, err := c.torrentStatuses(ctx, rpcFilter)
	if err != nil {
		return nil, err
	}

	infos := make([]types.TorrentInfo, 0, len(statuses))
	for hash, data := range statuses {
		infos = append(infos, normalize(hash, data))
	}
	return infos, nil
}

// Remove deletes torrents; Deluge accepts arrays of ids.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) (bool, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return false, err
	}

	result, err := c.call(ctx, "core.remove_torrents", []any{[]string{id}, deleteFiles})
	if err != nil {
		return false, err
	}
	return result != nil, nil
}

// Test authenticates and lists the session state. Never returns an error.
func (c *Client) Test(ctx context.Context) bool {
	if err := c.ensureAuthenticated(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Connection test failed")
		return false
	}
	if _, err := c.torrentIDs(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Connection test failed")
		return false
	}
	return true
}

func (c *Client) label(opts types.AddOptions) string {
	if opts.Category != "" {
		return opts.Category
	}
	return c.config.Category
}

func (c *Client) torrentIDs(ctx context.Context) (map[string]bool, error) {
	result, err := c.call(ctx, "core.get_session_state", []any{})
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool)
	if list, ok := result.([]any); ok {
		for _, v := range list {
			if id, ok := v.(string); ok {
				ids[id] = true
			}
		}
	}
	return ids, nil
}

func (c *Client) torrentStatuses(ctx context.Context, filter map[string]any) (map[string]map[string]any, error) {
	result, err := c.call(ctx, "core.get_torrents_status", []any{filter, torrentFields})
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]map[string]any)
	raw, ok := result.(map[string]any)
	if !ok {
		return statuses, nil
	}
	for hash, v := range raw {
		if data, ok := v.(map[string]any); ok {
			statuses[hash] = data
		}
	}
	return statuses, nil
}

func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if _, ok := c.sessions.Get(c.config.ID); ok {
		return nil
	}
	return c.authenticate(ctx)
}

func (c *Client) authenticate(ctx context.Context) error {
	result, resp, err := c.doCall(ctx, "auth.login", []any{c.config.Password})
	if err != nil {
		return err
	}

	success, ok := result.(bool)
	if !ok || !success {
		return &types.AuthenticationError{Client: "Deluge", Reason: "login rejected"}
	}

	for _, cookie := range resp.Cookies() {
		c.sessions.Set(c.config.ID, types.Session{Cookie: cookie.Name + "=" + cookie.Value})
		break
	}
	return nil
}

// call issues an RPC with one re-authentication retry on a detected session
// expiry.
func (c *Client) call(ctx context.Context, method string, params []any) (any, error) {
	result, _, err := c.doCall(ctx, method, params)
	if err != nil {
		if types.IsAuthenticationError(err) {
			if authErr := c.authenticate(ctx); authErr != nil {
				return nil, authErr
			}
			result, _, err = c.doCall(ctx, method, params)
		}
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *Client) doCall(ctx context.Context, method string, params []any) (any, *http.Response, error) {
	reqBody, err := json.Marshal(map[string]any{
		"method": method,
		"params": params,
		"id":     1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sess, ok := c.sessions.Get(c.config.ID); ok {
		req.Header.Set("Cookie", sess.Cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &types.ConnectionError{Client: "Deluge", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.sessions.Clear(c.config.ID)
		return nil, resp, &types.AuthenticationError{Client: "Deluge", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp, &types.ClientError{Client: "Deluge", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, &types.ConnectionError{Client: "Deluge", Err: err}
	}

	var rpcResp struct {
		Result any `json:"result"`
		Error  *struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, resp, &types.ClientError{Client: "Deluge", Reason: "unexpected response format"}
	}

	if rpcResp.Error != nil {
		msg := rpcResp.Error.Message
		for _, pattern := range authErrorPatterns {
			if pattern.MatchString(msg) {
				c.sessions.Clear(c.config.ID)
				return nil, resp, &types.AuthenticationError{Client: "Deluge", Reason: msg}
			}
		}
		return nil, resp, &types.ClientError{Client: "Deluge", Reason: fmt.Sprintf("%s in %s", msg, method)}
	}

	return rpcResp.Result, resp, nil
}

func normalize(hash string, data map[string]any) types.TorrentInfo {
	downloadPath := getString(data, "download_location")
	if downloadPath == "" {
		downloadPath = getString(data, "save_path")
	}

	return types.TorrentInfo{
		Hash:         hash,
		Name:         getString(data, "name"),
		Progress:     normalizeProgress(getFloat(data, "progress")),
		State:        normalizeState(getString(data, "state")),
		SizeBytes:    int64(getFloat(data, "total_size")),
		DownloadPath: downloadPath,
	}
}

// normalizeProgress accepts both 0-1 fractions and 0-100 percentages; Deluge
// deployments differ.
func normalizeProgress(progress float64) int {
	if progress <= 1.0 {
		progress *= 100
	}
	return int(math.Round(progress))
}

func normalizeState(state string) types.State {
	switch state {
	case "Downloading", "Checking", "CheckingResumeData", "Queued", "Moving", "Allocating", "Creating":
		return types.StateDownloading
	case "Seeding":
		return types.StateCompleted
	case "Error", "ErrorPause":
		return types.StateFailed
	case "Paused", "PausedDownload", "PausedUpload", "Stopped":
		return types.StatePaused
	default:
		return types.StateQueued
	}
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getFloat(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
