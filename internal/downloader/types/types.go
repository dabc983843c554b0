// Package types defines shared types for download clients.
package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured signals a missing prerequisite setting, as opposed to a
// reachable-but-failing service.
var ErrNotConfigured = errors.New("not configured")

// ConnectionError wraps network-level failures (dial, timeout, TLS).
// Transient; callers may retry at their discretion.
type ConnectionError struct {
	Client string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Client, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationError signals a rejected or expired session (HTTP 401/403 or a
// protocol-level auth rejection). Adapters clear their cached session and retry
// authentication exactly once before surfacing this.
type AuthenticationError struct {
	Client string
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Client, e.Reason)
}

// ClientError is any other protocol-level rejection (non-2xx, malformed body).
// Never retried automatically.
type ClientError struct {
	Client string
	Reason string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s API error: %s", e.Client, e.Reason)
}

// IsConnectionError reports whether err is (or wraps) a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsAuthenticationError reports whether err is (or wraps) an AuthenticationError.
func IsAuthenticationError(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// Protocol represents the download protocol family.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// ClientType represents the type of download client backend.
type ClientType string

const (
	ClientTypeQBittorrent  ClientType = "qbittorrent"
	ClientTypeDeluge       ClientType = "deluge"
	ClientTypeTransmission ClientType = "transmission"
	ClientTypeNZBGet       ClientType = "nzbget"
	ClientTypeSABnzbd      ClientType = "sabnzbd"
)

// ProtocolForClient returns the protocol family for a given client type.
func ProtocolForClient(clientType ClientType) Protocol {
	switch clientType {
	case ClientTypeQBittorrent, ClientTypeDeluge, ClientTypeTransmission:
		return ProtocolTorrent
	case ClientTypeNZBGet, ClientTypeSABnzbd:
		return ProtocolUsenet
	default:
		return ""
	}
}

// ClientConfig holds the operator-managed configuration for one backend instance.
type ClientConfig struct {
	ID       int64
	Name     string
	Type     ClientType
	URL      string
	Username string
	Password string
	APIKey   string
	Category string
	// DownloadPath overrides where the pipeline looks for completed files
	// from this client.
	DownloadPath string
	Priority     int
	Enabled      bool
}

// State is the canonical download lifecycle state every adapter normalizes to.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StatePaused      State = "paused"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// TorrentInfo is the normalized view of a backend's native torrent/job record.
// All adapters produce this regardless of native representation.
type TorrentInfo struct {
	Hash         string
	Name         string
	Progress     int // 0-100
	State        State
	SizeBytes    int64
	DownloadPath string
}

// AddOptions specifies options for submitting a download.
type AddOptions struct {
	SavePath string
	Paused   bool
	Category string
}

// ListFilter narrows List results. Zero value lists everything.
type ListFilter struct {
	Category string
	Hash     string
}

// Client is the uniform capability interface over all backend variants.
//
// Add returns the backend-native identifier for the new entry, or "" when the
// submission was accepted but no identifier could be determined ("added but
// undetectable") — callers must treat that as distinct from an error.
// Info returns (nil, nil) when the identifier is unknown to the backend.
// Test never propagates adapter errors; every failure maps to false.
type Client interface {
	Type() ClientType
	Protocol() Protocol

	Add(ctx context.Context, sourceRef string, opts AddOptions) (string, error)
	Info(ctx context.Context, id string) (*TorrentInfo, error)
	List(ctx context.Context, filter ListFilter) ([]TorrentInfo, error)
	Remove(ctx context.Context, id string, deleteFiles bool) (bool, error)
	Test(ctx context.Context) bool
}
