package nzbget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/downloader/types"
)

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func newTestClient(server *httptest.Server) *Client {
	return New(types.ClientConfig{
		ID:       1,
		Name:     "nzbget",
		URL:      server.URL,
		Username: "nzbget",
		Password: "tegbzn6789",
	}, zerolog.Nop())
}

func authenticated(t *testing.T, handler func(w http.ResponseWriter, req rpcRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "nzbget" || pass != "tegbzn6789" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/jsonrpc" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		handler(w, req)
	}
}

func rpcOK(w http.ResponseWriter, result any) {
	json.NewEncoder(w).Encode(map[string]any{"result": result, "error": nil})
}

func TestClient_Type(t *testing.T) {
	client := New(types.ClientConfig{}, zerolog.Nop())
	if client.Type() != types.ClientTypeNZBGet {
		t.Errorf("expected type %s, got %s", types.ClientTypeNZBGet, client.Type())
	}
	if client.Protocol() != types.ProtocolUsenet {
		t.Errorf("expected protocol %s, got %s", types.ProtocolUsenet, client.Protocol())
	}
}

func TestClient_Test_Success(t *testing.T) {
	server := httptest.NewServer(authenticated(t, func(w http.ResponseWriter, req rpcRequest) {
		if req.Method != "version" {
			t.Errorf("unexpected method: %s", req.Method)
		}
		rpcOK(w, "21.1")
	}))
	defer server.Close()

	client := newTestClient(server)
	if !client.Test(context.Background()) {
		t.Fatal("Test() = false, want true")
	}
}

func TestClient_Test_BadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server)
	if client.Test(context.Background()) {
		t.Fatal("Test() = true, want false")
	}
}

func TestClient_Add_ReturnsID(t *testing.T) {
	server := httptest.NewServer(authenticated(t, func(w http.ResponseWriter, req rpcRequest) {
		if req.Method != "appendurl" {
			t.Errorf("unexpected method: %s", req.Method)
		}
		if req.Params[1] != "books" {
			t.Errorf("expected category books, got %v", req.Params[1])
		}
		if req.Params[4] != "http://indexer/release.nzb" {
			t.Errorf("unexpected URL: %v", req.Params[4])
		}
		rpcOK(w, 42)
	}))
	defer server.Close()

	client := newTestClient(server)
	id, err := client.Add(context.Background(), "http://indexer/release.nzb", types.AddOptions{Category: "books"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if id != "42" {
		t.Errorf("expected id 42, got %s", id)
	}
}

func TestClient_Add_Rejected(t *testing.T) {
	server := httptest.NewServer(authenticated(t, func(w http.ResponseWriter, req rpcRequest) {
		rpcOK(w, 0)
	}))
	defer server.Close()

	client := newTestClient(server)
	id, err := client.Add(context.Background(), "http://indexer/release.nzb", types.AddOptions{})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if id != "" {
		t.Errorf("expected empty id for rejected append, got %s", id)
	}
}

func TestClient_Info_QueueEntry(t *testing.T) {
	server := httptest.NewServer(authenticated(t, func(w http.ResponseWriter, req rpcRequest) {
		switch req.Method {
		case "listgroups":
			rpcOK(w, []map[string]any{{
				"NZBID":           42,
				"NZBName":         "The Book",
				"Status":          "DOWNLOADING",
				"FileSizeMB":      100,
				"RemainingSizeMB": 25,
				"DestDir":         "/downloads/The Book",
			}})
		case "history":
			rpcOK(w, []map[string]any{})
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	info, err := client.Info(context.Background(), "42")
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if info == nil {
		t.Fatal("expected info, got nil")
	}
	if info.Progress != 75 {
		t.Errorf("expected progress 75, got %d", info.Progress)
	}
	if info.State != types.StateDownloading {
		t.Errorf("expected state %s, got %s", types.StateDownloading, info.State)
	}
}

func TestClient_Info_HistorySuccess(t *testing.T) {
	server := httptest.NewServer(authenticated(t, func(w http.ResponseWriter, req rpcRequest) {
		switch req.Method {
		case "listgroups":
			rpcOK(w, []map[string]any{})
		case "history":
			rpcOK(w, []map[string]any{{
				"NZBID":      42,
				"Name":       "The Book",
				"Status":     "SUCCESS/UNPACK",
				"FileSizeMB": 100,
				"DestDir":    "/downloads/The Book",
			}})
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	info, err := client.Info(context.Background(), "42")
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if info == nil {
		t.Fatal("expected info, got nil")
	}
	if info.State != types.StateCompleted {
		t.Errorf("expected state %s, got %s", types.StateCompleted, info.State)
	}
	if info.Progress != 100 {
		t.Errorf("expected progress 100, got %d", info.Progress)
	}
}

func TestClient_Info_HistoryFailure(t *testing.T) {
	server := httptest.NewServer(authenticated(t, func(w http.ResponseWriter, req rpcRequest) {
		switch req.Method {
		case "listgroups":
			rpcOK(w, []map[string]any{})
		case "history":
			rpcOK(w, []map[string]any{{"NZBID": 42, "Name": "The Book", "Status": "FAILURE/PAR"}})
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	info, err := client.Info(context.Background(), "42")
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if info.State != types.StateFailed {
		t.Errorf("expected state %s, got %s", types.StateFailed, info.State)
	}
}

func TestClient_Info_Unknown(t *testing.T) {
	server := httptest.NewServer(authenticated(t, func(w http.ResponseWriter, req rpcRequest) {
		rpcOK(w, []map[string]any{})
	}))
	defer server.Close()

	client := newTestClient(server)
	info, err := client.Info(context.Background(), "42")
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil info, got %+v", info)
	}
}

func TestClient_Remove_FallsBackToHistory(t *testing.T) {
	var commands []string
	server := httptest.NewServer(authenticated(t, func(w http.ResponseWriter, req rpcRequest) {
		if req.Method != "editqueue" {
			t.Errorf("unexpected method: %s", req.Method)
		}
		command, _ := req.Params[0].(string)
		commands = append(commands, command)
		rpcOK(w, command != "GroupDelete")
	}))
	defer server.Close()

	client := newTestClient(server)
	removed, err := client.Remove(context.Background(), "42", true)
	if err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if !removed {
		t.Error("expected removed = true")
	}
	if len(commands) != 2 || commands[0] != "GroupDelete" || commands[1] != "HistoryFinalDelete" {
		t.Errorf("unexpected command sequence: %v", commands)
	}
}
