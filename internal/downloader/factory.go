package downloader

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/deluge"
	"github.com/shelfarr/shelfarr/internal/downloader/nzbget"
	"github.com/shelfarr/shelfarr/internal/downloader/qbittorrent"
	"github.com/shelfarr/shelfarr/internal/downloader/sabnzbd"
	"github.com/shelfarr/shelfarr/internal/downloader/transmission"
	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// ErrUnsupportedClient is returned for unknown backend type tags.
var ErrUnsupportedClient = fmt.Errorf("unsupported download client type")

// Factory builds adapters from stored configs. It owns the session store that
// all cookie/token based adapters share, keyed by config identity.
type Factory struct {
	sessions *types.SessionStore
	logger   zerolog.Logger
}

// NewFactory creates a factory with a fresh session store.
func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{
		sessions: types.NewSessionStore(),
		logger:   logger,
	}
}

// Sessions exposes the shared session store (the settings layer clears it when
// a config changes credentials).
func (f *Factory) Sessions() *types.SessionStore {
	return f.sessions
}

// ClientFor resolves the concrete adapter variant from the config's type tag.
func (f *Factory) ClientFor(cfg types.ClientConfig) (types.Client, error) {
	switch cfg.Type {
	case types.ClientTypeQBittorrent:
		return qbittorrent.New(cfg, f.sessions, f.logger), nil
	case types.ClientTypeDeluge:
		return deluge.New(cfg, f.sessions, f.logger), nil
	case types.ClientTypeTransmission:
		return transmission.New(cfg, f.sessions, f.logger), nil
	case types.ClientTypeNZBGet:
		return nzbget.New(cfg, f.logger), nil
	case types.ClientTypeSABnzbd:
		return sabnzbd.New(cfg, f.logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedClient, cfg.Type)
	}
}

// SupportedClientTypes returns all recognized backend type tags.
func SupportedClientTypes() []ClientType {
	return []ClientType{
		ClientTypeQBittorrent,
		ClientTypeDeluge,
		ClientTypeTransmission,
		ClientTypeNZBGet,
		ClientTypeSABnzbd,
	}
}

// IsClientTypeSupported reports whether the type tag is recognized.
func IsClientTypeSupported(clientType string) bool {
	for _, ct := range SupportedClientTypes() {
		if string(ct) == clientType {
			return true
		}
	}
	return false
}
