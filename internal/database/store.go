package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shelfarr/shelfarr/internal/decisioning"
	"github.com/shelfarr/shelfarr/internal/downloader"
	"github.com/shelfarr/shelfarr/internal/downloader/types"
	"github.com/shelfarr/shelfarr/internal/health"
	"github.com/shelfarr/shelfarr/internal/postprocess"
	"github.com/shelfarr/shelfarr/internal/release"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Request lifecycle statuses.
const (
	RequestStatusPending     = "pending"
	RequestStatusDownloading = "downloading"
	RequestStatusProcessing  = "processing"
	RequestStatusAvailable   = "available"
	RequestStatusAttention   = "attention"
)

// Request is a user's ask for one book.
type Request struct {
	ID              int64      `json:"id"`
	BookID          int64      `json:"bookId"`
	Status          string     `json:"status"`
	Language        string     `json:"language"`
	AttentionReason string     `json:"attentionReason,omitempty"`
	FulfilledAt     *time.Time `json:"fulfilledAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// SearchResult is a persisted, scored candidate for a request.
type SearchResult struct {
	ID                int64             `json:"id"`
	RequestID         int64             `json:"requestId"`
	Title             string            `json:"title"`
	DownloadURL       string            `json:"downloadUrl,omitempty"`
	MagnetURL         string            `json:"magnetUrl,omitempty"`
	Seeders           *int              `json:"seeders,omitempty"`
	SizeBytes         int64             `json:"sizeBytes"`
	Score             int               `json:"score"`
	Breakdown         release.Breakdown `json:"breakdown"`
	DetectedLanguages []string          `json:"detectedLanguages,omitempty"`
	DetectedFormat    release.Format    `json:"detectedFormat,omitempty"`
	IsMultiLanguage   bool              `json:"isMultiLanguage"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Store implements the persistence interfaces of the downloader service, the
// post-processing pipeline, and the health monitor over one SQLite database.
type Store struct {
	db *DB
}

var (
	_ downloader.Store  = (*Store)(nil)
	_ postprocess.Store = (*Store)(nil)
	_ health.Store      = (*Store)(nil)
)

// NewStore creates a store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// --- download clients ---

const clientColumns = "id, name, type, url, username, password, api_key, category, download_path, priority, enabled"

func scanClientConfig(row interface{ Scan(...any) error }) (types.ClientConfig, error) {
	var cfg types.ClientConfig
	var clientType string
	err := row.Scan(&cfg.ID, &cfg.Name, &clientType, &cfg.URL, &cfg.Username, &cfg.Password,
		&cfg.APIKey, &cfg.Category, &cfg.DownloadPath, &cfg.Priority, &cfg.Enabled)
	cfg.Type = types.ClientType(clientType)
	return cfg, err
}

// ListEnabledClients returns all enabled client configs ordered by priority.
func (s *Store) ListEnabledClients(ctx context.Context) ([]types.ClientConfig, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		"SELECT "+clientColumns+" FROM download_clients WHERE enabled = 1 ORDER BY priority, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list download clients: %w", err)
	}
	defer rows.Close()

	var configs []types.ClientConfig
	for rows.Next() {
		cfg, err := scanClientConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// ListClients returns every client config, enabled or not.
func (s *Store) ListClients(ctx context.Context) ([]types.ClientConfig, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		"SELECT "+clientColumns+" FROM download_clients ORDER BY priority, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list download clients: %w", err)
	}
	defer rows.Close()

	var configs []types.ClientConfig
	for rows.Next() {
		cfg, err := scanClientConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// GetClientConfig returns one client config by ID.
func (s *Store) GetClientConfig(ctx context.Context, id int64) (types.ClientConfig, error) {
	row := s.db.conn.QueryRowContext(ctx,
		"SELECT "+clientColumns+" FROM download_clients WHERE id = ?", id)
	cfg, err := scanClientConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ClientConfig{}, fmt.Errorf("download client %d: %w", id, ErrNotFound)
	}
	return cfg, err
}

// CreateClient inserts a client config and sets its ID.
func (s *Store) CreateClient(ctx context.Context, cfg *types.ClientConfig) error {
	result, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO download_clients (name, type, url, username, password, api_key, category, download_path, priority, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.Name, string(cfg.Type), cfg.URL, cfg.Username, cfg.Password, cfg.APIKey,
		cfg.Category, cfg.DownloadPath, cfg.Priority, cfg.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create download client: %w", err)
	}
	cfg.ID, err = result.LastInsertId()
	return err
}

// UpdateClient updates a client config by ID.
func (s *Store) UpdateClient(ctx context.Context, cfg types.ClientConfig) error {
	result, err := s.db.conn.ExecContext(ctx,
		`UPDATE download_clients
		 SET name = ?, type = ?, url = ?, username = ?, password = ?, api_key = ?,
		     category = ?, download_path = ?, priority = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		cfg.Name, string(cfg.Type), cfg.URL, cfg.Username, cfg.Password, cfg.APIKey,
		cfg.Category, cfg.DownloadPath, cfg.Priority, cfg.Enabled, cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to update download client: %w", err)
	}
	return requireRow(result, "download client", cfg.ID)
}

// DeleteClient removes a client config by ID.
func (s *Store) DeleteClient(ctx context.Context, id int64) error {
	result, err := s.db.conn.ExecContext(ctx, "DELETE FROM download_clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete download client: %w", err)
	}
	return requireRow(result, "download client", id)
}

// --- downloads ---

// CreateDownload inserts a download row and sets its ID.
func (s *Store) CreateDownload(ctx context.Context, d *downloader.Download) error {
	result, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO downloads (uuid, request_id, client_id, external_id, title, state, progress, download_path, is_usenet)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.UUID, d.RequestID, d.ClientID, d.ExternalID, d.Title, string(d.State),
		d.Progress, d.DownloadPath, d.IsUsenet)
	if err != nil {
		return fmt.Errorf("failed to create download: %w", err)
	}
	d.ID, err = result.LastInsertId()
	return err
}

// ListActiveDownloads returns downloads that still need polling.
func (s *Store) ListActiveDownloads(ctx context.Context) ([]downloader.Download, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, uuid, request_id, client_id, external_id, title, state, progress, download_path, is_usenet, created_at, updated_at
		 FROM downloads WHERE state IN (?, ?, ?) ORDER BY id`,
		string(types.StateQueued), string(types.StateDownloading), string(types.StatePaused))
	if err != nil {
		return nil, fmt.Errorf("failed to list active downloads: %w", err)
	}
	defer rows.Close()

	var downloads []downloader.Download
	for rows.Next() {
		var d downloader.Download
		var state string
		if err := rows.Scan(&d.ID, &d.UUID, &d.RequestID, &d.ClientID, &d.ExternalID, &d.Title,
			&state, &d.Progress, &d.DownloadPath, &d.IsUsenet, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.State = types.State(state)
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

// UpdateDownloadProgress records the latest polled state for a download.
func (s *Store) UpdateDownloadProgress(ctx context.Context, id int64, state types.State, progress int, path string) error {
	result, err := s.db.conn.ExecContext(ctx,
		`UPDATE downloads SET state = ?, progress = ?, download_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(state), progress, path, id)
	if err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}
	return requireRow(result, "download", id)
}

// --- books and requests ---

// CreateBook inserts a book and sets its ID.
func (s *Store) CreateBook(ctx context.Context, b *postprocess.Book) error {
	result, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO books (title, author, year, publisher, language, type)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.Title, b.Author, b.Year, b.Publisher, b.Language, string(b.Type))
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	b.ID, err = result.LastInsertId()
	return err
}

// GetBook returns one book by ID.
func (s *Store) GetBook(ctx context.Context, id int64) (postprocess.Book, error) {
	row := s.db.conn.QueryRowContext(ctx,
		"SELECT id, title, author, year, publisher, language, type FROM books WHERE id = ?", id)
	return scanBook(row, id)
}

// GetBookForRequest returns the book a request is for.
func (s *Store) GetBookForRequest(ctx context.Context, requestID int64) (postprocess.Book, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT b.id, b.title, b.author, b.year, b.publisher, b.language, b.type
		 FROM books b JOIN requests r ON r.book_id = b.id WHERE r.id = ?`, requestID)
	return scanBook(row, requestID)
}

func scanBook(row *sql.Row, id int64) (postprocess.Book, error) {
	var b postprocess.Book
	var bookType string
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Year, &b.Publisher, &b.Language, &bookType)
	if errors.Is(err, sql.ErrNoRows) {
		return postprocess.Book{}, fmt.Errorf("book for %d: %w", id, ErrNotFound)
	}
	b.Type = release.Format(bookType)
	return b, err
}

// SetBookFilePath records where the organized copy of a book lives.
func (s *Store) SetBookFilePath(ctx context.Context, bookID int64, path string) error {
	result, err := s.db.conn.ExecContext(ctx,
		"UPDATE books SET file_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", path, bookID)
	if err != nil {
		return fmt.Errorf("failed to set book file path: %w", err)
	}
	return requireRow(result, "book", bookID)
}

// CreateRequest inserts a request and sets its ID.
func (s *Store) CreateRequest(ctx context.Context, r *Request) error {
	if r.Status == "" {
		r.Status = RequestStatusPending
	}
	result, err := s.db.conn.ExecContext(ctx,
		"INSERT INTO requests (book_id, status, language) VALUES (?, ?, ?)",
		r.BookID, r.Status, r.Language)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	r.ID, err = result.LastInsertId()
	return err
}

// GetRequest returns one request by ID.
func (s *Store) GetRequest(ctx context.Context, id int64) (Request, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT id, book_id, status, language, attention_reason, fulfilled_at, created_at, updated_at
		 FROM requests WHERE id = ?`, id)

	var r Request
	err := row.Scan(&r.ID, &r.BookID, &r.Status, &r.Language, &r.AttentionReason,
		&r.FulfilledAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	return r, err
}

// ListRequests returns all requests, newest first.
func (s *Store) ListRequests(ctx context.Context) ([]Request, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, book_id, status, language, attention_reason, fulfilled_at, created_at, updated_at
		 FROM requests ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		var r Request
		if err := rows.Scan(&r.ID, &r.BookID, &r.Status, &r.Language, &r.AttentionReason,
			&r.FulfilledAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// SetRequestStatus updates a request's status.
func (s *Store) SetRequestStatus(ctx context.Context, requestID int64, status string) error {
	result, err := s.db.conn.ExecContext(ctx,
		"UPDATE requests SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", status, requestID)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	return requireRow(result, "request", requestID)
}

// SetRequestProcessing marks a request as being post-processed.
func (s *Store) SetRequestProcessing(ctx context.Context, requestID int64) error {
	return s.SetRequestStatus(ctx, requestID, RequestStatusProcessing)
}

// CompleteRequest marks a request fulfilled.
func (s *Store) CompleteRequest(ctx context.Context, requestID int64) error {
	result, err := s.db.conn.ExecContext(ctx,
		`UPDATE requests SET status = ?, fulfilled_at = CURRENT_TIMESTAMP, attention_reason = '',
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		RequestStatusAvailable, requestID)
	if err != nil {
		return fmt.Errorf("failed to complete request: %w", err)
	}
	return requireRow(result, "request", requestID)
}

// MarkRequestAttention flags a request for operator intervention.
func (s *Store) MarkRequestAttention(ctx context.Context, requestID int64, issue string) error {
	result, err := s.db.conn.ExecContext(ctx,
		`UPDATE requests SET status = ?, attention_reason = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		RequestStatusAttention, issue, requestID)
	if err != nil {
		return fmt.Errorf("failed to flag request: %w", err)
	}
	return requireRow(result, "request", requestID)
}

// --- search results ---

// SaveSearchResults replaces the stored candidates for a request.
func (s *Store) SaveSearchResults(ctx context.Context, requestID int64, results []SearchResult) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM search_results WHERE request_id = ?", requestID); err != nil {
		return fmt.Errorf("failed to clear search results: %w", err)
	}

	for i := range results {
		r := &results[i]
		insert, err := tx.ExecContext(ctx,
			`INSERT INTO search_results (request_id, title, download_url, magnet_url, seeders, size_bytes,
			     score_total, score_title, score_author, score_language, score_format, score_health,
			     detected_languages, detected_format, is_multi_language)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			requestID, r.Title, r.DownloadURL, r.MagnetURL, r.Seeders, r.SizeBytes,
			r.Score, r.Breakdown.Title, r.Breakdown.Author, r.Breakdown.Language,
			r.Breakdown.Format, r.Breakdown.Health,
			strings.Join(r.DetectedLanguages, ","), string(r.DetectedFormat), r.IsMultiLanguage)
		if err != nil {
			return fmt.Errorf("failed to save search result: %w", err)
		}
		r.RequestID = requestID
		if r.ID, err = insert.LastInsertId(); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListSearchResults returns the stored candidates for a request, best first.
func (s *Store) ListSearchResults(ctx context.Context, requestID int64) ([]SearchResult, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, request_id, title, download_url, magnet_url, seeders, size_bytes,
		     score_total, score_title, score_author, score_language, score_format, score_health,
		     detected_languages, detected_format, is_multi_language, created_at
		 FROM search_results WHERE request_id = ? ORDER BY score_total DESC, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list search results: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var languages, format string
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Title, &r.DownloadURL, &r.MagnetURL,
			&r.Seeders, &r.SizeBytes, &r.Score, &r.Breakdown.Title, &r.Breakdown.Author,
			&r.Breakdown.Language, &r.Breakdown.Format, &r.Breakdown.Health,
			&languages, &format, &r.IsMultiLanguage, &r.CreatedAt); err != nil {
			return nil, err
		}
		if languages != "" {
			r.DetectedLanguages = strings.Split(languages, ",")
		}
		r.DetectedFormat = release.Format(format)
		results = append(results, r)
	}
	return results, rows.Err()
}

// CandidatesForRequest adapts stored search results into selection candidates.
func (s *Store) CandidatesForRequest(ctx context.Context, requestID int64) ([]decisioning.Candidate, error) {
	results, err := s.ListSearchResults(ctx, requestID)
	if err != nil {
		return nil, err
	}

	candidates := make([]decisioning.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, decisioning.Candidate{
			ID: r.ID,
			Candidate: release.Candidate{
				Title:       r.Title,
				Seeders:     r.Seeders,
				DownloadURL: r.DownloadURL,
				MagnetURL:   r.MagnetURL,
			},
			Score:             r.Score,
			DetectedLanguages: r.DetectedLanguages,
			IsMultiLanguage:   r.IsMultiLanguage,
		})
	}
	return candidates, nil
}

// --- service health ---

// UpsertServiceHealth records the latest state for one service.
func (s *Store) UpsertServiceHealth(ctx context.Context, h health.ServiceHealth) error {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO service_health (service, status, message, checked_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(service) DO UPDATE SET status = excluded.status, message = excluded.message,
		     checked_at = excluded.checked_at`,
		h.Service, string(h.Status), h.Message, h.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to record service health: %w", err)
	}
	return nil
}

// ListServiceHealth returns the recorded state of every service.
func (s *Store) ListServiceHealth(ctx context.Context) ([]health.ServiceHealth, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		"SELECT service, status, message, checked_at FROM service_health ORDER BY service")
	if err != nil {
		return nil, fmt.Errorf("failed to list service health: %w", err)
	}
	defer rows.Close()

	var all []health.ServiceHealth
	for rows.Next() {
		var h health.ServiceHealth
		var status string
		if err := rows.Scan(&h.Service, &status, &h.Message, &h.CheckedAt); err != nil {
			return nil, err
		}
		h.Status = health.Status(status)
		all = append(all, h)
	}
	return all, rows.Err()
}

func requireRow(result sql.Result, kind string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
