package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

// clientResponse is a ClientConfig without credentials.
type clientResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	URL          string `json:"url"`
	Category     string `json:"category,omitempty"`
	DownloadPath string `json:"downloadPath,omitempty"`
	Priority     int    `json:"priority"`
	Enabled      bool   `json:"enabled"`
}

type clientInput struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	URL          string `json:"url"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	APIKey       string `json:"apiKey"`
	Category     string `json:"category"`
	DownloadPath string `json:"downloadPath"`
	Priority     int    `json:"priority"`
	Enabled      bool   `json:"enabled"`
}

func (in clientInput) toConfig() types.ClientConfig {
	return types.ClientConfig{
		Name:         in.Name,
		Type:         types.ClientType(in.Type),
		URL:          in.URL,
		Username:     in.Username,
		Password:     in.Password,
		APIKey:       in.APIKey,
		Category:     in.Category,
		DownloadPath: in.DownloadPath,
		Priority:     in.Priority,
		Enabled:      in.Enabled,
	}
}

func toClientResponse(cfg types.ClientConfig) clientResponse {
	return clientResponse{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Type:         string(cfg.Type),
		URL:          cfg.URL,
		Category:     cfg.Category,
		DownloadPath: cfg.DownloadPath,
		Priority:     cfg.Priority,
		Enabled:      cfg.Enabled,
	}
}

func (s *Server) listDownloadClients(c echo.Context) error {
	ctx := c.Request().Context()

	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	responses := make([]clientResponse, 0, len(clients))
	for _, cfg := range clients {
		responses = append(responses, toClientResponse(cfg))
	}
	return c.JSON(http.StatusOK, responses)
}

func (s *Server) addDownloadClient(c echo.Context) error {
	ctx := c.Request().Context()

	var input clientInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	cfg := input.toConfig()
	if types.ProtocolForClient(cfg.Type) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown client type"})
	}

	if err := s.store.CreateClient(ctx, &cfg); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, toClientResponse(cfg))
}

func (s *Server) getDownloadClient(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	cfg, err := s.store.GetClientConfig(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "client not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, toClientResponse(cfg))
}

func (s *Server) updateDownloadClient(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	var input clientInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	cfg := input.toConfig()
	cfg.ID = id

	if err := s.store.UpdateClient(ctx, cfg); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "client not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// The edited config may point at a different endpoint or credentials;
	// drop any session cached under this ID.
	s.downloads.InvalidateSession(id)
	return c.JSON(http.StatusOK, toClientResponse(cfg))
}

func (s *Server) deleteDownloadClient(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.store.DeleteClient(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "client not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	s.downloads.InvalidateSession(id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) testDownloadClient(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	result, err := s.downloads.TestClient(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "client not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// testDownloadClientConfig tests an unsaved config for pre-save validation.
func (s *Server) testDownloadClientConfig(c echo.Context) error {
	ctx := c.Request().Context()

	var input clientInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result := s.downloads.TestConfig(ctx, input.toConfig())
	return c.JSON(http.StatusOK, result)
}
