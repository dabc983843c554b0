// Package sabnzbd implements a SABnzbd API client.
//
// SABnzbd exposes a query-parameter RPC style: every operation is a GET on
// /api with a mode parameter and the API key. There is no session state.
package sabnzbd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// Client implements the SABnzbd key-based REST variant of types.Client.
type Client struct {
	config types.ClientConfig
	http   *http.Client
	logger zerolog.Logger
}

var _ types.Client = (*Client)(nil)

// New creates a SABnzbd adapter bound to one config.
func New(cfg types.ClientConfig, logger zerolog.Logger) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger.With().Str("component", "sabnzbd").Str("client", cfg.Name).Logger(),
	}
}

func (c *Client) Type() types.ClientType { return types.ClientTypeSABnzbd }

func (c *Client) Protocol() types.Protocol { return types.ProtocolUsenet }

// Add submits an NZB by URL and returns the first assigned nzo id, or ""
// when SABnzbd acknowledged the call but assigned none.
func (c *Client) Add(ctx context.Context, sourceRef string, opts types.AddOptions) (string, error) {
	params := url.Values{"name": {sourceRef}}
	category := opts.Category
	if category == "" {
		category = c.config.Category
	}
	if category != "" {
		params.Set("cat", category)
	}

	var result struct {
		Status bool     `json:"status"`
		NzoIDs []string `json:"nzo_ids"`
		Error  string   `json:"error"`
	}
	if err := c.call(ctx, "addurl", params, &result); err != nil {
		return "", err
	}
	if !result.Status {
		c.logger.Error().Str("error", result.Error).Msg("SABnzbd rejected NZB")
		return "", nil
	}
	if len(result.NzoIDs) == 0 {
		return "", nil
	}
	return result.NzoIDs[0], nil
}

// Info looks the id up in the queue first, then the history.
func (c *Client) Info(ctx context.Context, id string) (*types.TorrentInfo, error) {
	queue, err := c.listQueue(ctx)
	if err != nil {
		return nil, err
	}
	for i := range queue {
		if queue[i].Hash == id {
			return &queue[i], nil
		}
	}

	history, err := c.listHistory(ctx)
	if err != nil {
		return nil, err
	}
	for i := range history {
		if history[i].Hash == id {
			return &history[i], nil
		}
	}
	return nil, nil
}

// List merges the queue and history reads into one unified listing.
func (c *Client) List(ctx context.Context, filter types.ListFilter) ([]types.TorrentInfo, error) {
	queue, err := c.listQueue(ctx)
	if err != nil {
		return nil, err
	}
	history, err := c.listHistory(ctx)
	if err != nil {
		return nil, err
	}
	return append(queue, history...), nil
}

// Remove deletes from the queue, then from the history. deleteFiles removes
// the downloaded data as well.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) (bool, error) {
	delFiles := "0"
	if deleteFiles {
		delFiles = "1"
	}

	var result struct {
		Status bool `json:"status"`
	}
	params := url.Values{"name": {"delete"}, "value": {id}, "del_files": {delFiles}}
	if err := c.call(ctx, "queue", params, &result); err != nil {
		return false, err
	}
	if result.Status {
		return true, nil
	}

	if err := c.call(ctx, "history", params, &result); err != nil {
		return false, err
	}
	return result.Status, nil
}

// Test asks for the daemon version. Never returns an error.
func (c *Client) Test(ctx context.Context) bool {
	var result struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, "version", nil, &result); err != nil {
		c.logger.Warn().Err(err).Msg("Connection test failed")
		return false
	}
	return result.Version != ""
}

func (c *Client) listQueue(ctx context.Context) ([]types.TorrentInfo, error) {
	var result struct {
		Queue struct {
			Slots []struct {
				NzoID      string `json:"nzo_id"`
				Filename   string `json:"filename"`
				Percentage string `json:"percentage"`
				Status     string `json:"status"`
				MB         string `json:"mb"`
			} `json:"slots"`
		} `json:"queue"`
	}
	if err := c.call(ctx, "queue", nil, &result); err != nil {
		return nil, err
	}

	infos := make([]types.TorrentInfo, 0, len(result.Queue.Slots))
	for _, slot := range result.Queue.Slots {
		progress, _ := strconv.Atoi(slot.Percentage)
		sizeMB, _ := strconv.ParseFloat(slot.MB, 64)
		infos = append(infos, types.TorrentInfo{
			Hash:      slot.NzoID,
			Name:      slot.Filename,
			Progress:  progress,
			State:     normalizeQueueState(slot.Status),
			SizeBytes: int64(sizeMB * 1024 * 1024),
		})
	}
	return infos, nil
}

func (c *Client) listHistory(ctx context.Context) ([]types.TorrentInfo, error) {
	var result struct {
		History struct {
			Slots []struct {
				NzoID   string `json:"nzo_id"`
				Name    string `json:"name"`
				Status  string `json:"status"`
				Bytes   int64  `json:"bytes"`
				Storage string `json:"storage"`
			} `json:"slots"`
		} `json:"history"`
	}
	if err := c.call(ctx, "history", nil, &result); err != nil {
		return nil, err
	}

	infos := make([]types.TorrentInfo, 0, len(result.History.Slots))
	for _, slot := range result.History.Slots {
		infos = append(infos, types.TorrentInfo{
			Hash:         slot.NzoID,
			Name:         slot.Name,
			Progress:     100,
			State:        normalizeHistoryState(slot.Status),
			SizeBytes:    slot.Bytes,
			DownloadPath: slot.Storage,
		})
	}
	return infos, nil
}

func (c *Client) call(ctx context.Context, mode string, params url.Values, out any) error {
	if c.config.APIKey == "" {
		return fmt.Errorf("SABnzbd %s: %w", c.config.Name, types.ErrNotConfigured)
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("mode", mode)
	query.Set("apikey", c.config.APIKey)
	query.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL+"/api?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &types.ConnectionError{Client: "SABnzbd", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &types.AuthenticationError{Client: "SABnzbd", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return &types.ClientError{Client: "SABnzbd", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.ConnectionError{Client: "SABnzbd", Err: err}
	}

	// An invalid key comes back as HTTP 200 with an error field.
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		if strings.Contains(strings.ToLower(apiErr.Error), "api key") {
			return &types.AuthenticationError{Client: "SABnzbd", Reason: apiErr.Error}
		}
		return &types.ClientError{Client: "SABnzbd", Reason: apiErr.Error}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &types.ClientError{Client: "SABnzbd", Reason: "unexpected response format"}
	}
	return nil
}

func normalizeQueueState(status string) types.State {
	switch status {
	case "Downloading", "Fetching":
		return types.StateDownloading
	case "Paused":
		return types.StatePaused
	default:
		return types.StateQueued
	}
}

func normalizeHistoryState(status string) types.State {
	if status == "Completed" {
		return types.StateCompleted
	}
	return types.StateFailed
}
