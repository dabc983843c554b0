// Package downloader provides download client abstractions and implementations.
package downloader

import (
	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// Re-export types for convenience so external packages can use
// downloader.Client instead of types.Client.

type (
	Protocol     = types.Protocol
	ClientType   = types.ClientType
	ClientConfig = types.ClientConfig
	Client       = types.Client
	AddOptions   = types.AddOptions
	ListFilter   = types.ListFilter
	TorrentInfo  = types.TorrentInfo
	State        = types.State
	Session      = types.Session
	SessionStore = types.SessionStore
)

const (
	ProtocolTorrent = types.ProtocolTorrent
	ProtocolUsenet  = types.ProtocolUsenet

	ClientTypeQBittorrent  = types.ClientTypeQBittorrent
	ClientTypeDeluge       = types.ClientTypeDeluge
	ClientTypeTransmission = types.ClientTypeTransmission
	ClientTypeNZBGet       = types.ClientTypeNZBGet
	ClientTypeSABnzbd      = types.ClientTypeSABnzbd

	StateQueued      = types.StateQueued
	StateDownloading = types.StateDownloading
	StatePaused      = types.StatePaused
	StateCompleted   = types.StateCompleted
	StateFailed      = types.StateFailed
)

var (
	ErrNotConfigured = types.ErrNotConfigured

	NewSessionStore   = types.NewSessionStore
	ProtocolForClient = types.ProtocolForClient
)
