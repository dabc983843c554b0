package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

type memStore struct {
	clients   []types.ClientConfig
	downloads []*Download
	attention map[int64]string
	nextID    int64
}

func (m *memStore) ListEnabledClients(ctx context.Context) ([]types.ClientConfig, error) {
	return m.clients, nil
}

func (m *memStore) GetClientConfig(ctx context.Context, id int64) (types.ClientConfig, error) {
	for _, cfg := range m.clients {
		if cfg.ID == id {
			return cfg, nil
		}
	}
	return types.ClientConfig{}, ErrNotConfigured
}

func (m *memStore) CreateDownload(ctx context.Context, d *Download) error {
	m.nextID++
	d.ID = m.nextID
	m.downloads = append(m.downloads, d)
	return nil
}

func (m *memStore) ListActiveDownloads(ctx context.Context) ([]Download, error) {
	var active []Download
	for _, d := range m.downloads {
		switch d.State {
		case StateQueued, StateDownloading, StatePaused:
			active = append(active, *d)
		}
	}
	return active, nil
}

func (m *memStore) UpdateDownloadProgress(ctx context.Context, id int64, state State, progress int, path string) error {
	for _, d := range m.downloads {
		if d.ID == id {
			d.State = state
			d.Progress = progress
			d.DownloadPath = path
			return nil
		}
	}
	return ErrNotConfigured
}

func (m *memStore) MarkRequestAttention(ctx context.Context, requestID int64, issue string) error {
	if m.attention == nil {
		m.attention = make(map[int64]string)
	}
	m.attention[requestID] = issue
	return nil
}

type recordedCompletion struct {
	download Download
	cfg      types.ClientConfig
}

type fakeCompletion struct {
	completed []recordedCompletion
}

func (f *fakeCompletion) HandleCompleted(ctx context.Context, download Download, cfg types.ClientConfig, client types.Client) error {
	f.completed = append(f.completed, recordedCompletion{download: download, cfg: cfg})
	return nil
}

// transmissionBackend simulates one torrent living on a Transmission server.
type transmissionBackend struct {
	hash   string
	status int
	added  bool
}

func (b *transmissionBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Transmission-Session-Id") == "" {
			w.Header().Set("X-Transmission-Session-Id", "tok")
			w.WriteHeader(http.StatusConflict)
			return
		}
		var req struct {
			Method    string         `json:"method"`
			Arguments map[string]any `json:"arguments"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		switch req.Method {
		case "torrent-add":
			b.added = true
			json.NewEncoder(w).Encode(map[string]any{"result": "success", "arguments": map[string]any{
				"torrent-added": map[string]any{"hashString": b.hash},
			}})
		case "torrent-get":
			torrents := []any{}
			if b.added {
				torrents = append(torrents, map[string]any{
					"hashString":  b.hash,
					"name":        "The Book",
					"percentDone": 1.0,
					"status":      b.status,
					"downloadDir": "/downloads",
				})
			}
			json.NewEncoder(w).Encode(map[string]any{"result": "success", "arguments": map[string]any{"torrents": torrents}})
		default:
			json.NewEncoder(w).Encode(map[string]any{"result": "success", "arguments": map[string]any{}})
		}
	}
}

func newTestService(store *memStore) *Service {
	return NewService(store, NewFactory(zerolog.Nop()), zerolog.Nop())
}

func TestGrab_PersistsQueuedDownload(t *testing.T) {
	backend := &transmissionBackend{hash: "abc123", status: 4}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	store := &memStore{clients: []types.ClientConfig{{
		ID: 1, Name: "trans", Type: types.ClientTypeTransmission, URL: server.URL, Enabled: true,
	}}}
	service := newTestService(store)

	download, err := service.Grab(context.Background(), GrabInput{
		RequestID: 7,
		Title:     "The Book",
		SourceRef: "magnet:?xt=urn:btih:abc123",
	})
	if err != nil {
		t.Fatalf("Grab() failed: %v", err)
	}
	if download.ExternalID != "abc123" {
		t.Errorf("expected external id abc123, got %s", download.ExternalID)
	}
	if download.State != StateQueued {
		t.Errorf("expected state %s, got %s", StateQueued, download.State)
	}
	if download.UUID == "" {
		t.Error("expected a UUID")
	}
	if len(store.downloads) != 1 {
		t.Fatalf("expected 1 persisted download, got %d", len(store.downloads))
	}
}

func TestGrab_NoClientConfigured(t *testing.T) {
	service := newTestService(&memStore{})

	_, err := service.Grab(context.Background(), GrabInput{Title: "The Book", SourceRef: "magnet:?xt=urn:btih:x"})
	if err == nil {
		t.Fatal("expected error when no client is configured")
	}
	if err.Error() != "no torrent download client configured" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPollActive_HandsCompletedToHandler(t *testing.T) {
	backend := &transmissionBackend{hash: "abc123", status: 6, added: true}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	store := &memStore{clients: []types.ClientConfig{{
		ID: 1, Name: "trans", Type: types.ClientTypeTransmission, URL: server.URL, Enabled: true,
	}}}
	store.downloads = []*Download{{
		ID: 1, UUID: "u1", RequestID: 7, ClientID: 1, ExternalID: "abc123",
		Title: "The Book", State: StateDownloading,
	}}

	service := newTestService(store)
	handler := &fakeCompletion{}
	service.SetCompletionHandler(handler)

	if err := service.PollActive(context.Background()); err != nil {
		t.Fatalf("PollActive() failed: %v", err)
	}

	if store.downloads[0].State != StateCompleted {
		t.Errorf("expected state %s, got %s", StateCompleted, store.downloads[0].State)
	}
	if len(handler.completed) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(handler.completed))
	}
	if handler.completed[0].download.DownloadPath != "/downloads" {
		t.Errorf("unexpected download path: %s", handler.completed[0].download.DownloadPath)
	}
}

func TestPollActive_VanishedMarksFailed(t *testing.T) {
	backend := &transmissionBackend{hash: "abc123", status: 6, added: false}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	store := &memStore{clients: []types.ClientConfig{{
		ID: 1, Name: "trans", Type: types.ClientTypeTransmission, URL: server.URL, Enabled: true,
	}}}
	store.downloads = []*Download{{
		ID: 1, UUID: "u1", RequestID: 7, ClientID: 1, ExternalID: "abc123",
		Title: "The Book", State: StateDownloading,
	}}

	service := newTestService(store)
	handler := &fakeCompletion{}
	service.SetCompletionHandler(handler)

	if err := service.PollActive(context.Background()); err != nil {
		t.Fatalf("PollActive() failed: %v", err)
	}

	if store.downloads[0].State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, store.downloads[0].State)
	}
	if len(handler.completed) != 0 {
		t.Errorf("expected no completions, got %d", len(handler.completed))
	}
}

type failingCompletion struct{}

func (failingCompletion) HandleCompleted(ctx context.Context, download Download, cfg types.ClientConfig, client types.Client) error {
	return errors.New("request 7: not found")
}

func TestPollActive_HandlerFailureFlagsRequest(t *testing.T) {
	backend := &transmissionBackend{hash: "abc123", status: 6, added: true}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	store := &memStore{clients: []types.ClientConfig{{
		ID: 1, Name: "trans", Type: types.ClientTypeTransmission, URL: server.URL, Enabled: true,
	}}}
	store.downloads = []*Download{{
		ID: 1, UUID: "u1", RequestID: 7, ClientID: 1, ExternalID: "abc123",
		Title: "The Book", State: StateDownloading,
	}}

	service := newTestService(store)
	service.SetCompletionHandler(failingCompletion{})

	if err := service.PollActive(context.Background()); err != nil {
		t.Fatalf("PollActive() failed: %v", err)
	}

	if store.downloads[0].State != StateCompleted {
		t.Errorf("expected state %s, got %s", StateCompleted, store.downloads[0].State)
	}
	issue, ok := store.attention[7]
	if !ok {
		t.Fatal("expected the request to be flagged for attention")
	}
	if !strings.Contains(issue, "Import failed") {
		t.Errorf("unexpected attention reason: %s", issue)
	}
}

func TestTestConfig_UnknownType(t *testing.T) {
	service := newTestService(&memStore{})

	result := service.TestConfig(context.Background(), types.ClientConfig{Type: "bogus", Name: "x"})
	if result.Success {
		t.Error("expected failure for unknown client type")
	}
}
