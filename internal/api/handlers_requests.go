package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/postprocess"
	"github.com/shelfarr/shelfarr/internal/release"
)

type bookInput struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Year      int    `json:"year"`
	Publisher string `json:"publisher"`
	Language  string `json:"language"`
	Type      string `json:"type"`
}

type candidateInput struct {
	Title       string `json:"title"`
	DownloadURL string `json:"downloadUrl"`
	MagnetURL   string `json:"magnetUrl"`
	Seeders     *int   `json:"seeders"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type createRequestInput struct {
	Book    bookInput        `json:"book"`
	Results []candidateInput `json:"results"`
}

// createRequest is the ingress for the search collaborator: it persists the
// requested book, opens a pending request, and stores the supplied candidates
// scored against the book. Stored results feed the results listing and
// auto-grab.
func (s *Server) createRequest(c echo.Context) error {
	ctx := c.Request().Context()

	var input createRequestInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(input.Book.Title) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "book title is required"})
	}

	bookType := release.Format(input.Book.Type)
	if bookType == release.FormatNone {
		bookType = release.FormatAudiobook
	}
	if bookType != release.FormatAudiobook && bookType != release.FormatEbook {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown book type"})
	}

	book := postprocess.Book{
		Title:     input.Book.Title,
		Author:    input.Book.Author,
		Year:      input.Book.Year,
		Publisher: input.Book.Publisher,
		Language:  input.Book.Language,
		Type:      bookType,
	}
	if err := s.store.CreateBook(ctx, &book); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	request := database.Request{BookID: book.ID, Language: input.Book.Language}
	if err := s.store.CreateRequest(ctx, &request); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	scoreBook := release.Book{Title: book.Title, Author: book.Author, Type: book.Type}
	results := make([]database.SearchResult, 0, len(input.Results))
	for _, in := range input.Results {
		scored := release.Score(release.Candidate{
			Title:       in.Title,
			Seeders:     in.Seeders,
			DownloadURL: in.DownloadURL,
			MagnetURL:   in.MagnetURL,
		}, request.Language, scoreBook)
		parsed := release.Parse(in.Title)

		results = append(results, database.SearchResult{
			Title:             in.Title,
			DownloadURL:       in.DownloadURL,
			MagnetURL:         in.MagnetURL,
			Seeders:           in.Seeders,
			SizeBytes:         in.SizeBytes,
			Score:             scored.Total,
			Breakdown:         scored.Breakdown,
			DetectedLanguages: scored.DetectedLanguages,
			DetectedFormat:    scored.DetectedFormat,
			IsMultiLanguage:   parsed.IsMultiLanguage,
		})
	}
	if err := s.store.SaveSearchResults(ctx, request.ID, results); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, map[string]any{"request": request, "results": len(results)})
}

func (s *Server) getBook(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, book)
}
