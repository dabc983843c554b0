package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/downloader"
	"github.com/shelfarr/shelfarr/internal/health"
)

func (s *Server) listRequests(c echo.Context) error {
	ctx := c.Request().Context()

	requests, err := s.store.ListRequests(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, requests)
}

func (s *Server) getRequest(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	request, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "request not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, request)
}

func (s *Server) listSearchResults(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	results, err := s.store.ListSearchResults(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, results)
}

// autoGrab runs unattended selection over the stored candidates for a request
// and, when one qualifies, hands it to a download client.
func (s *Server) autoGrab(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	request, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "request not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	candidates, err := s.store.CandidatesForRequest(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	result := s.policy.Select(id, request.Language, candidates)
	if !result.Selected {
		return c.JSON(http.StatusOK, map[string]any{"selected": false, "reason": result.Reason})
	}

	download, err := s.downloads.Grab(ctx, downloader.GrabInput{
		RequestID: id,
		Title:     result.Candidate.Title,
		SourceRef: result.Candidate.SourceRef(),
		IsUsenet:  result.Candidate.IsUsenet(),
	})
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	if download.State != downloader.StateFailed {
		if err := s.store.SetRequestStatus(ctx, id, database.RequestStatusDownloading); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"selected": true, "reason": result.Reason, "download": download})
}

func (s *Server) listActiveDownloads(c echo.Context) error {
	ctx := c.Request().Context()

	downloads, err := s.store.ListActiveDownloads(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, downloads)
}

func (s *Server) getServiceHealth(c echo.Context) error {
	ctx := c.Request().Context()

	states, err := s.store.ListServiceHealth(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, states)
}

func (s *Server) runHealthCheck(c echo.Context) error {
	ctx := c.Request().Context()

	service := c.Param("service")
	if !slices.Contains(health.AllServices(), service) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown service"})
	}

	result := s.monitor.RunCheck(ctx, service)
	return c.JSON(http.StatusOK, result)
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.ListTasks())
}

func (s *Server) runTask(c echo.Context) error {
	if err := s.sched.RunNow(c.Param("id")); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}
