// Package nzbget implements an NZBGet JSON-RPC client.
//
// NZBGet authenticates every call with HTTP basic auth, so there is no session
// to cache. Queue and history are separate RPC reads that the adapter merges
// into one unified listing.
package nzbget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// Client implements the NZBGet JSON-RPC basic-auth variant of types.Client.
type Client struct {
	config types.ClientConfig
	http   *http.Client
	logger zerolog.Logger
}

var _ types.Client = (*Client)(nil)

// New creates an NZBGet adapter bound to one config.
func New(cfg types.ClientConfig, logger zerolog.Logger) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger.With().Str("component", "nzbget").Str("client", cfg.Name).Logger(),
	}
}

func (c *Client) Type() types.ClientType { return types.ClientTypeNZBGet }

func (c *Client) Protocol() types.Protocol { return types.ProtocolUsenet }

// Add appends an NZB by URL. NZBGet returns the new NZB id, or 0 when the
// append was rejected; rejection maps to "" without an error.
func (c *Client) Add(ctx context.Context, sourceRef string, opts types.AddOptions) (string, error) {
	category := opts.Category
	if category == "" {
		category = c.config.Category
	}

	// appendurl(NZBFilename, Category, Priority, AddToTop, URL)
	result, err := c.call(ctx, "appendurl", []any{"", category, 0, false, sourceRef})
	if err != nil {
		return "", err
	}

	id := intResult(result)
	if id <= 0 {
		c.logger.Error().Str("url", sourceRef).Msg("NZBGet rejected NZB append")
		return "", nil
	}
	return strconv.Itoa(id), nil
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

// Remove deletes from the queue, falling back to the history for completed
// items. deleteFiles additionally removes downloaded data.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) (bool, error) {
	nzbID, err := strconv.Atoi(id)
	if err != nil {
		return false, &types.ClientError{Client: "NZBGet", Reason: "invalid NZB id " + id}
	}

	result, err := c.call(ctx, "editqueue", []any{"GroupDelete", "", []int{nzbID}})
	if err != nil {
		return false, err
	}
	if boolResult(result) {
		return true, nil
	}

	command := "HistoryDelete"
	if deleteFiles {
		command = "HistoryFinalDelete"
	}
	result, err = c.call(ctx, "editqueue", []any{command, "", []int{nzbID}})
	if err != nil {
		return false, err
	}
	return boolResult(result), nil
}

// Test asks for the daemon version. Never returns an error.
func (c *Client) Test(ctx context.Context) bool {
	if _, err := c.call(ctx, "version", []any{}); err != nil {
		c.logger.Warn().Err(err).Msg("Connection test failed")
		return false
	}
	return true
}

func (c *Client) listQueue(ctx context.Context) ([]types.TorrentInfo, error) {
	result, err := c.call(ctx, "listgroups", []any{})
	if err != nil {
		return nil, err
	}

	var groups []struct {
		NZBID           int    `json:"NZBID"`
		NZBName         string `json:"NZBName"`
		Status          string `json:"Status"`
		FileSizeMB      int64  `json:"FileSizeMB"`
		RemainingSizeMB int64  `json:"RemainingSizeMB"`
		DestDir         string `json:"DestDir"`
	}
	if err := remarshal(result, &groups); err != nil {
		return nil, err
	}

	infos := make([]types.TorrentInfo, 0, len(groups))
	for _, g := range groups {
		progress := 0
		if g.FileSizeMB > 0 {
			progress = int(math.Round(float64(g.FileSizeMB-g.RemainingSizeMB) / float64(g.FileSizeMB) * 100))
		}
		infos = append(infos, types.TorrentInfo{
			Hash:         strconv.Itoa(g.NZBID),
			Name:         g.NZBName,
			Progress:     progress,
			State:        normalizeQueueState(g.Status),
			SizeBytes:    g.FileSizeMB * 1024 * 1024,
			DownloadPath: g.DestDir,
		})
	}
	return infos, nil
}

func (c *Client) listHistory(ctx context.Context) ([]types.TorrentInfo, error) {
	result, err := c.call(ctx, "history", []any{})
	if err != nil {
		return nil, err
	}

	var entries []struct {
		NZBID      int    `json:"NZBID"`
		Name       string `json:"Name"`
		Status     string `json:"Status"`
		FileSizeMB int64  `json:"FileSizeMB"`
		DestDir    string `json:"DestDir"`
	}
	if err := remarshal(result, &entries); err != nil {
		return nil, err
	}

	infos := make([]types.TorrentInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, types.TorrentInfo{
			Hash:         strconv.Itoa(e.NZBID),
			Name:         e.Name,
			Progress:     100,
			State:        normalizeHistoryState(e.Status),
			SizeBytes:    e.FileSizeMB * 1024 * 1024,
			DownloadPath: e.DestDir,
		})
	}
	return infos, nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (any, error) {
	body, err := json.Marshal(map[string]any{"method": method, "params": params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.ConnectionError{Client: "NZBGet", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &types.AuthenticationError{Client: "NZBGet", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &types.ClientError{Client: "NZBGet", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var rpcResp struct {
		Result any `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, &types.ClientError{Client: "NZBGet", Reason: "unexpected response format"}
	}
	if rpcResp.Error != nil {
		return nil, &types.ClientError{Client: "NZBGet", Reason: fmt.Sprintf("%s in %s", rpcResp.Error.Message, method)}
	}
	return rpcResp.Result, nil
}

func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return &types.ClientError{Client: "NZBGet", Reason: "unexpected response format"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &types.ClientError{Client: "NZBGet", Reason: "unexpected response format"}
	}
	return nil
}

func intResult(result any) int {
	switch v := result.(type) {
	case float64:
		return int(v)
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func boolResult(result any) bool {
	v, ok := result.(bool)
	return ok && v
}

func normalizeQueueState(status string) types.State {
	switch status {
	case "DOWNLOADING", "FETCHING":
		return types.StateDownloading
	case "PAUSED":
		return types.StatePaused
	default:
		// QUEUED plus the post-processing stages (UNPACKING, VERIFYING,
		// REPAIRING, MOVING) count as queued: not done, not transferring.
		return types.StateQueued
	}
}

func normalizeHistoryState(status string) types.State {
	switch {
	case strings.HasPrefix(status, "SUCCESS"):
		return types.StateCompleted
	default:
		return types.StateFailed
	}
}
