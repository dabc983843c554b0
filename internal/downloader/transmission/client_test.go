package transmission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

const testToken = "session-token-1"

type rpcRequest struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments"`
}

func newTestClient(server *httptest.Server) *Client {
	return New(types.ClientConfig{
		ID:       1,
		Name:     "transmission",
		URL:      server.URL + "/transmission/rpc",
		Username: "admin",
		Password: "secret",
	}, types.NewSessionStore(), zerolog.Nop())
}

// negotiated enforces the 409 handshake before serving RPC calls.
func negotiated(t *testing.T, handler func(w http.ResponseWriter, req rpcRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(sessionIDHeader) != testToken {
			w.Header().Set(sessionIDHeader, testToken)
			w.WriteHeader(http.StatusConflict)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		handler(w, req)
	}
}

func rpcSuccess(w http.ResponseWriter, arguments map[string]any) {
	json.NewEncoder(w).Encode(map[string]any{"result": "success", "arguments": arguments})
}

func TestClient_Type(t *testing.T) {
	client := New(types.ClientConfig{}, types.NewSessionStore(), zerolog.Nop())
	if client.Type() != types.ClientTypeTransmission {
		t.Errorf("expected type %s, got %s", types.ClientTypeTransmission, client.Type())
	}
	if client.Protocol() != types.ProtocolTorrent {
		t.Errorf("expected protocol %s, got %s", types.ProtocolTorrent, client.Protocol())
	}
}

func TestClient_Test_NegotiatesSession(t *testing.T) {
	conflicts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(sessionIDHeader) != testToken {
			conflicts++
			w.Header().Set(sessionIDHeader, testToken)
			w.WriteHeader(http.StatusConflict)
			return
		}
		rpcSuccess(w, map[string]any{"version": "4.0.0"})
	}))
	defer server.Close()

	client := newTestClient(server)
	if !client.Test(context.Background()) {
		t.Fatal("Test() = false, want true")
	}
	if conflicts != 1 {
		t.Errorf("expected exactly 1 conflict before retry, got %d", conflicts)
	}

	// Second call reuses the captured token without another 409.
	if !client.Test(context.Background()) {
		t.Fatal("second Test() = false, want true")
	}
	if conflicts != 1 {
		t.Errorf("expected token reuse, got %d conflicts", conflicts)
	}
}

func TestClient_Test_RepeatedConflictFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(sessionIDHeader, testToken)
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := newTestClient(server)
	if client.Test(context.Background()) {
		t.Fatal("Test() = true, want false")
	}
}

func TestClient_Test_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server)
	if client.Test(context.Background()) {
		t.Fatal("Test() = true, want false")
	}
}

func TestClient_Add_Added(t *testing.T) {
	server := httptest.NewServer(negotiated(t, func(w http.ResponseWriter, req rpcRequest) {
		switch req.Method {
		case "torrent-get":
			rpcSuccess(w, map[string]any{"torrents": []any{}})
		case "torrent-add":
			if req.Arguments["filename"] != "magnet:?xt=urn:btih:abc" {
				t.Errorf("unexpected filename: %v", req.Arguments["filename"])
			}
			rpcSuccess(w, map[string]any{
				"torrent-added": map[string]any{"hashString": "abc123", "id": 7},
			})
		default:
			t.Errorf("unexpected method: %s", req.Method)
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	hash, err := client.Add(context.Background(), "magnet:?xt=urn:btih:abc", types.AddOptions{})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("expected hash abc123, got %s", hash)
	}
}

func TestClient_Add_DuplicateResolvesToExisting(t *testing.T) {
	server := httptest.NewServer(negotiated(t, func(w http.ResponseWriter, req rpcRequest) {
		switch req.Method {
		case "torrent-get":
			rpcSuccess(w, map[string]any{"torrents": []any{map[string]any{"hashString": "abc123"}}})
		case "torrent-add":
			rpcSuccess(w, map[string]any{
				"torrent-duplicate": map[string]any{"hashString": "abc123"},
			})
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	hash, err := client.Add(context.Background(), "magnet:?xt=urn:btih:abc", types.AddOptions{})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("expected duplicate hash abc123, got %s", hash)
	}
}

func TestClient_Info_Normalizes(t *testing.T) {
	server := httptest.NewServer(negotiated(t, func(w http.ResponseWriter, req rpcRequest) {
		rpcSuccess(w, map[string]any{"torrents": []any{map[string]any{
			"hashString":  "abc123",
			"name":        "The Book",
			"percentDone": 0.5,
			"status":      4,
			"totalSize":   4096,
			"downloadDir": "/downloads",
		}}})
	}))
	defer server.Close()

	client := newTestClient(server)
	info, err := client.Info(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if info == nil {
		t.Fatal("expected info, got nil")
	}
	if info.Progress != 50 {
		t.Errorf("expected progress 50, got %d", info.Progress)
	}
	if info.State != types.StateDownloading {
		t.Errorf("expected state %s, got %s", types.StateDownloading, info.State)
	}
}

func TestClient_Info_Unknown(t *testing.T) {
	server := httptest.NewServer(negotiated(t, func(w http.ResponseWriter, req rpcRequest) {
		rpcSuccess(w, map[string]any{"torrents": []any{}})
	}))
	defer server.Close()

	client := newTestClient(server)
	info, err := client.Info(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil info, got %+v", info)
	}
}

func TestClient_Remove(t *testing.T) {
	server := httptest.NewServer(negotiated(t, func(w http.ResponseWriter, req rpcRequest) {
		if req.Method != "torrent-remove" {
			t.Errorf("unexpected method: %s", req.Method)
		}
		if req.Arguments["delete-local-data"] != true {
			t.Error("expected delete-local-data = true")
		}
		rpcSuccess(w, nil)
	}))
	defer server.Close()

	client := newTestClient(server)
	removed, err := client.Remove(context.Background(), "abc123", true)
	if err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if !removed {
		t.Error("expected removed = true")
	}
}
