package downloader

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// NoClientAvailableError reports why no backend could be selected. The two
// reasons are deliberately distinct: callers differentiate "nothing of this
// family is configured" from "everything configured is unreachable".
type NoClientAvailableError struct {
	Protocol       types.Protocol
	NoneConfigured bool
}

func (e *NoClientAvailableError) Error() string {
	if e.NoneConfigured {
		return "no " + string(e.Protocol) + " download client configured"
	}
	return "all configured " + string(e.Protocol) + " download clients failed connection test"
}

// ConfigSource lists the enabled download client configs.
type ConfigSource interface {
	ListEnabledClients(ctx context.Context) ([]types.ClientConfig, error)
}

// Selector picks the backend instance that handles a given release.
type Selector struct {
	configs ConfigSource
	factory *Factory
	logger  zerolog.Logger
}

// NewSelector creates a selector over the given config source and factory.
func NewSelector(configs ConfigSource, factory *Factory, logger zerolog.Logger) *Selector {
	return &Selector{
		configs: configs,
		factory: factory,
		logger:  logger.With().Str("component", "selector").Logger(),
	}
}

// SelectFor returns the config and adapter for the highest-priority enabled
// client of the required family whose connection test passes. Lower priority
// numbers are tried first; ties break by creation order (stable sort over the
// store's insertion-ordered listing).
func (s *Selector) SelectFor(ctx context.Context, isUsenet bool) (types.ClientConfig, types.Client, error) {
	wanted := types.ProtocolTorrent
	if isUsenet {
		wanted = types.ProtocolUsenet
	}

	all, err := s.configs.ListEnabledClients(ctx)
	if err != nil {
		return types.ClientConfig{}, nil, err
	}

	var candidates []types.ClientConfig
	for _, cfg := range all {
		if types.ProtocolForClient(cfg.Type) == wanted {
			candidates = append(candidates, cfg)
		}
	}
	if len(candidates) == 0 {
		return types.ClientConfig{}, nil, &NoClientAvailableError{Protocol: wanted, NoneConfigured: true}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})

	for _, cfg := range candidates {
		client, err := s.factory.ClientFor(cfg)
		if err != nil {
			s.logger.Warn().Err(err).Str("client", cfg.Name).Msg("Skipping client")
			continue
		}
		if client.Test(ctx) {
			s.logger.Info().Str("client", cfg.Name).Int("priority", cfg.Priority).Msg("Selected download client")
			return cfg, client, nil
		}
		s.logger.Warn().Str("client", cfg.Name).Msg("Client failed connection test, trying next")
	}

	return types.ClientConfig{}, nil, &NoClientAvailableError{Protocol: wanted}
}
