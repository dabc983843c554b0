// Package qbittorrent implements a qBittorrent WebUI API client.
package qbittorrent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

const (
	newTorrentPollBudget = 30 // seconds of 1s polls for diff-based detection
	verifyAttempts       = 3
	verifyDelay          = time.Second
)

var magnetHashRe = regexp.MustCompile(`(?i)btih:([a-fA-F0-9]+)`)

// Client implements the qBittorrent WebUI cookie variant of types.Client.
type Client struct {
	config   types.ClientConfig
	sessions *types.SessionStore
	http     *http.Client
	// fetch downloads release files from indexers: a different connection
	// profile than the backend API (redirects allowed, longer timeout).
	fetch  *http.Client
	logger zerolog.Logger

	sleep func(time.Duration) // test seam for polling loops
}

var _ types.Client = (*Client)(nil)

// New creates a qBittorrent adapter bound to one config and a shared session store.
func New(cfg types.ClientConfig, sessions *types.SessionStore, logger zerolog.Logger) *Client {
	return &Client{
		config:   cfg,
		sessions: sessions,
		http:     &http.Client{Timeout: 15 * time.Second},
		fetch:    &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With().Str("component", "qbittorrent").Str("client", cfg.Name).Logger(),
		sleep:    time.Sleep,
	}
}

func (c *Client) Type() types.ClientType { return types.ClientTypeQBittorrent }

func (c *Client) Protocol() types.Protocol { return types.ProtocolTorrent }

// Add submits a torrent by magnet link or release file URL.
//
// For URL sources the adapter downloads the file itself, computes the infohash
// from the bencoded info dictionary, and uploads the binary directly: the
// backend may not share a network path to the indexer, and the precomputed
// hash eliminates the race where two concurrent submissions cannot be told
// apart by polling. When retrieval or parsing fails it falls back to passing
// the URL through and diffing known hashes for up to 30 one-second polls.
//
// Returns "" (no error) when the add was rejected, or when it was accepted but
// no identifier could be determined within the budget.
func (c *Client) Add(ctx context.Context, sourceRef string, opts types.AddOptions) (string, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return "", err
	}

	hash, torrentData := c.precomputeHash(ctx, sourceRef)

	category := opts.Category
	if category == "" {
		category = c.config.Category
	}

	// Only snapshot existing hashes when we will need the polling fallback.
	var existing map[string]bool
	if hash == "" {
		var err error
		existing, err = c.fetchHashes(ctx, category)
		if err != nil {
			return "", err
		}
	}

	var resp *http.Response
	var err error
	if len(torrentData) > 0 {
		c.logger.Info().Msg("Uploading torrent file directly to backend")
		resp, err = c.uploadTorrentFile(ctx, torrentData, category, opts)
	} else {
		form := url.Values{"urls": {sourceRef}}
		if category != "" {
			form.Set("category", category)
		}
		if opts.SavePath != "" {
			form.Set("savepath", opts.SavePath)
		}
		if opts.Paused {
			form.Set("paused", "true")
		}
		resp, err = c.postForm(ctx, "/api/v2/torrents/add", form)
	}
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK:
		// qBittorrent returns "Ok." or an empty body on success.
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" && trimmed != "Ok." {
			c.logger.Error().Str("body", trimmed).Msg("Backend rejected torrent add")
			return "", nil
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		c.sessions.Clear(c.config.ID)
		return "", &types.AuthenticationError{Client: "qBittorrent", Reason: fmt.Sprintf("HTTP %d on add", resp.StatusCode)}
	default:
		c.logger.Error().Int("status", resp.StatusCode).Msg("Failed to add torrent")
		return "", nil
	}

	if hash != "" {
		// qBittorrent reports "Ok." even for silently rejected adds, so the
		// entry is re-fetched until it appears.
		if c.verifyAdded(ctx, hash) {
			return hash, nil
		}
		c.logger.Error().Str("hash", hash).
			Msg("Torrent not found after add; backend may have rejected it (check disk permissions, save path, or duplicate torrent)")
		return "", nil
	}

	c.logger.Warn().Msg("Falling back to polling for hash detection")
	return c.findNewHash(ctx, existing, category)
}

// Info returns the normalized record for one torrent, or (nil, nil) when the
// hash is unknown to the backend.
func (c *Client) Info(ctx context.Context, id string) (*types.TorrentInfo, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var items []nativeTorrent
	if err := c.getJSON(ctx, "/api/v2/torrents/info", url.Values{"hashes": {id}}, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	info := normalize(items[0])
	return &info, nil
}

// List returns all torrents matching the filter.
func (c *Client) List(ctx context.Context, filter types.ListFilter) ([]types.TorrentInfo, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	if filter.Category != "" {
		params.Set("category", filter.Category)
	}
	if filter.Hash != "" {
		params.Set("hashes", filter.Hash)
	}

	var items []nativeTorrent
	if err := c.getJSON(ctx, "/api/v2/torrents/info", params, &items); err != nil {
		return nil, err
	}

	infos := make([]types.TorrentInfo, 0, len(items))
	for _, item := range items {
		infos = append(infos, normalize(item))
	}
	return infos, nil
}

// Remove deletes a torrent, optionally with its files.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) (bool, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return false, err
	}

	form := url.Values{
		"hashes":      {id},
		"deleteFiles": {fmt.Sprintf("%t", deleteFiles)},
	}
	resp, err := c.postForm(ctx, "/api/v2/torrents/delete", form)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		c.logger.Info().Str("hash", id).Bool("deleteFiles", deleteFiles).Msg("Removed torrent")
		return true, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		c.sessions.Clear(c.config.ID)
		return false, &types.AuthenticationError{Client: "qBittorrent", Reason: "session expired"}
	default:
		c.logger.Error().Int("status", resp.StatusCode).Msg("Failed to remove torrent")
		return false, nil
	}
}

// Test verifies authentication and API reachability. A reachable login with a
// 404 API (seedbox subpath misconfiguration) must fail, so it calls a real
// endpoint rather than relying on auth alone. Never returns an error.
func (c *Client) Test(ctx context.Context) bool {
	if err := c.ensureAuthenticated(ctx); err != nil {
		c.logger.Error().Err(err).Str("url", c.config.URL).Msg("Connection test failed")
		return false
	}

	resp, err := c.get(ctx, "/api/v2/app/version", nil)
	if err != nil {
		c.logger.Error().Err(err).Msg("Connection test failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.sessions.Clear(c.config.ID)
		}
		c.logger.Error().Int("status", resp.StatusCode).Msg("Connection test failed")
		return false
	}

	version, _ := io.ReadAll(resp.Body)
	c.logger.Info().Str("version", strings.TrimSpace(string(version))).Msg("Connection test passed")
	c.EnsureCategory(ctx)
	return true
}

// EnsureCategory creates the configured category on the backend. Idempotent
// and non-fatal: a 409 means it already exists.
func (c *Client) EnsureCategory(ctx context.Context) {
	if c.config.Category == "" {
		return
	}

	resp, err := c.postForm(ctx, "/api/v2/torrents/createCategory", url.Values{"category": {c.config.Category}})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to ensure category (non-fatal)")
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		c.logger.Info().Str("category", c.config.Category).Msg("Category created")
	case http.StatusConflict:
		// Already exists.
	default:
		c.logger.Warn().Int("status", resp.StatusCode).Str("category", c.config.Category).Msg("Failed to create category")
	}
}

// Diagnostics reports the backend's save path configuration, for health checks.
type Diagnostics struct {
	SavePath         string
	CategorySavePath string
}

// FetchDiagnostics queries the backend's preferences and categories. Returns
// nil on any failure; this is diagnostic-only.
func (c *Client) FetchDiagnostics(ctx context.Context) *Diagnostics {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil
	}

	var prefs struct {
		SavePath string `json:"save_path"`
	}
	if err := c.getJSON(ctx, "/api/v2/app/preferences", nil, &prefs); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to fetch diagnostics")
		return nil
	}

	diag := &Diagnostics{SavePath: prefs.SavePath}

	var cats map[string]struct {
		SavePath string `json:"savePath"`
	}
	if err := c.getJSON(ctx, "/api/v2/torrents/categories", nil, &cats); err == nil && c.config.Category != "" {
		if cat, ok := cats[c.config.Category]; ok {
			diag.CategorySavePath = cat.SavePath
		}
	}
	return diag
}

// precomputeHash resolves a content-derived identifier before the add.
// Magnets carry the hash inline; for URL sources that look like release files
// the file itself is fetched and its info dictionary hashed, keeping the
// binary for direct upload. Returns ("", nil) when neither works.
func (c *Client) precomputeHash(ctx context.Context, sourceRef string) (string, []byte) {
	if strings.HasPrefix(sourceRef, "magnet:") {
		if m := magnetHashRe.FindStringSubmatch(sourceRef); m != nil {
			return strings.ToLower(m[1]), nil
		}
		return "", nil
	}
	return c.downloadAndHash(ctx, sourceRef)
}

// downloadAndHash fetches a .torrent file and computes the SHA-1 of the
// bencoded info dictionary. Many private trackers serve torrent files from
// URLs like /download.php?id=123, so any http(s) URL is attempted; failures
// fall back to the polling path.
func (c *Client) downloadAndHash(ctx context.Context, rawURL string) (string, []byte) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", nil
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", "Shelfarr/1.0")

	resp, err := c.fetch.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to download torrent file")
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Failed to download torrent file")
		return "", nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return "", nil
	}

	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil || len(mi.InfoBytes) == 0 {
		c.logger.Warn().Msg("Failed to parse torrent file (not valid bencode)")
		return "", nil
	}

	hash := strings.ToLower(mi.HashInfoBytes().HexString())
	c.logger.Info().Str("hash", hash).Msg("Extracted hash from torrent file")
	return hash, data
}

func (c *Client) uploadTorrentFile(ctx context.Context, data []byte, category string, opts types.AddOptions) (*http.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("torrents", "release.torrent")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if category != "" {
		_ = w.WriteField("category", category)
	}
	if opts.SavePath != "" {
		_ = w.WriteField("savepath", opts.SavePath)
	}
	if opts.Paused {
		_ = w.WriteField("paused", "true")
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/api/v2/torrents/add", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setSessionHeaders(req)

	resp, err := c.fetch.Do(req)
	if err != nil {
		return nil, &types.ConnectionError{Client: "qBittorrent", Err: err}
	}
	return resp, nil
}

// verifyAdded re-fetches the entry by its precomputed hash with a short
// backoff, because some backends acknowledge adds they silently dropped.
func (c *Client) verifyAdded(ctx context.Context, hash string) bool {
	err := retry.Do(
		func() error {
			info, err := c.Info(ctx, hash)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if info == nil {
				return fmt.Errorf("torrent %s not visible yet", hash)
			}
			return nil
		},
		retry.Attempts(verifyAttempts),
		retry.Delay(verifyDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	return err == nil
}

// findNewHash polls the backend, diffing against the pre-add hash set, until a
// new identifier appears or the budget is spent. Filtering by category reduces
// false positives from torrents added by other programs.
func (c *Client) findNewHash(ctx context.Context, existing map[string]bool, category string) (string, error) {
	for attempt := 1; attempt <= newTorrentPollBudget; attempt++ {
		c.sleep(time.Second)

		current, err := c.fetchHashes(ctx, category)
		if err != nil {
			return "", err
		}
		for hash := range current {
			if !existing[hash] {
				c.logger.Info().Str("hash", hash).Int("afterSeconds", attempt).Msg("Detected new torrent")
				return hash, nil
			}
		}
	}

	c.logger.Warn().Int("budgetSeconds", newTorrentPollBudget).Msg("No new torrent detected within budget")
	return "", nil
}

func (c *Client) fetchHashes(ctx context.Context, category string) (map[string]bool, error) {
	filter := types.ListFilter{Category: category}
	items, err := c.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]bool, len(items))
	for _, item := range items {
		hashes[item.Hash] = true
	}
	return hashes, nil
}

func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if _, ok := c.sessions.Get(c.config.ID); ok {
		return nil
	}
	return c.authenticate(ctx)
}

func (c *Client) authenticate(ctx context.Context) error {
	loginURL := c.config.URL + "/api/v2/auth/login"
	c.logger.Info().Str("url", loginURL).Str("username", c.config.Username).Msg("Authenticating")

	form := url.Values{
		"username": {c.config.Username},
		"password": {c.config.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.config.URL)
	req.Header.Set("Origin", c.config.URL)

	resp, err := c.http.Do(req)
	if err != nil {
		return &types.ConnectionError{Client: "qBittorrent", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusOK && strings.TrimSpace(string(body)) == "Ok.":
		for _, cookie := range resp.Cookies() {
			if cookie.Name == "SID" {
				c.sessions.Set(c.config.ID, types.Session{Cookie: "SID=" + cookie.Value})
				c.logger.Info().Msg("Authenticated successfully")
				return nil
			}
		}
		return &types.AuthenticationError{Client: "qBittorrent", Reason: "no session cookie received from " + loginURL}
	case resp.StatusCode == http.StatusForbidden:
		return &types.AuthenticationError{
			Client: "qBittorrent",
			Reason: "login rejected with 403 Forbidden; ensure the URL is reachable and CSRF protection allows this host",
		}
	default:
		return &types.AuthenticationError{
			Client: "qBittorrent",
			Reason: fmt.Sprintf("login failed at %s: HTTP %d", loginURL, resp.StatusCode),
		}
	}
}

func (c *Client) setSessionHeaders(req *http.Request) {
	if sess, ok := c.sessions.Get(c.config.ID); ok {
		req.Header.Set("Cookie", sess.Cookie)
	}
	req.Header.Set("Referer", c.config.URL)
	req.Header.Set("Origin", c.config.URL)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	u := c.config.URL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setSessionHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.ConnectionError{Client: "qBittorrent", Err: err}
	}
	return resp, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setSessionHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.ConnectionError{Client: "qBittorrent", Err: err}
	}
	return resp, nil
}

// getJSON performs a GET and decodes the body, clearing the session and
// retrying authentication once on 401/403.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	for attempt := 0; ; attempt++ {
		resp, err := c.get(ctx, path, params)
		if err != nil {
			return err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			err := decodeJSON(resp.Body, out)
			resp.Body.Close()
			if err != nil {
				return &types.ClientError{Client: "qBittorrent", Reason: "malformed response body: " + err.Error()}
			}
			return nil
		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			c.sessions.Clear(c.config.ID)
			if attempt == 0 {
				if err := c.authenticate(ctx); err != nil {
					return err
				}
				continue
			}
			return &types.AuthenticationError{Client: "qBittorrent", Reason: fmt.Sprintf("session expired (HTTP %d)", resp.StatusCode)}
		default:
			status := resp.StatusCode
			resp.Body.Close()
			return &types.ClientError{Client: "qBittorrent", Reason: fmt.Sprintf("HTTP %d from %s", status, path)}
		}
	}
}
