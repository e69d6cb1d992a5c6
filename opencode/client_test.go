package opencode_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Shahfarzane/opencode-mobile-sub000/opencode"
)

// testServer implements the slice of the server API the client talks to.
type testServer struct {
	server *httptest.Server

	mu       sync.Mutex
	sessions map[string]*opencode.Session
	requests []*http.Request
	seq      int
}

func newTestServer() *testServer {
	ts := &testServer{sessions: make(map[string]*opencode.Session)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", ts.record(ts.listSessions))
	mux.HandleFunc("POST /api/session", ts.record(ts.createSession))
	mux.HandleFunc("PATCH /api/session/{id}", ts.record(ts.updateSession))
	mux.HandleFunc("POST /api/session/{id}/share", ts.record(ts.shareSession))
	mux.HandleFunc("DELETE /api/session/{id}/share", ts.record(ts.unshareSession))
	mux.HandleFunc("POST /api/session/{id}/permissions/{permissionID}", ts.record(ts.respondPermission))
	mux.HandleFunc("GET /api/config/providers", ts.record(ts.providers))
	mux.HandleFunc("POST /api/session/{id}/prompt", ts.record(ts.prompt))

	ts.server = httptest.NewServer(mux)
	return ts
}

func (ts *testServer) record(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests = append(ts.requests, r.Clone(r.Context()))
		ts.mu.Unlock()
		h(w, r)
	}
}

func (ts *testServer) lastRequest() *http.Request {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.requests) == 0 {
		return nil
	}
	return ts.requests[len(ts.requests)-1]
}

func (ts *testServer) listSessions(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	sessions := make([]opencode.Session, 0, len(ts.sessions))
	for _, s := range ts.sessions {
		sessions = append(sessions, *s)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

func (ts *testServer) createSession(w http.ResponseWriter, r *http.Request) {
	var req opencode.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ts.mu.Lock()
	ts.seq++
	session := &opencode.Session{ID: fmt.Sprintf("ses_%d", ts.seq), Title: "Test Session"}
	if req.Title != nil {
		session.Title = *req.Title
	}
	ts.sessions[session.ID] = session
	ts.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (ts *testServer) updateSession(w http.ResponseWriter, r *http.Request) {
	var req opencode.UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	session, ok := ts.sessions[r.PathValue("id")]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if req.Title != nil {
		session.Title = *req.Title
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (ts *testServer) shareSession(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	session, ok := ts.sessions[r.PathValue("id")]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	session.Share = &opencode.ShareInfo{URL: "https://share.example/" + session.ID}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (ts *testServer) unshareSession(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	session, ok := ts.sessions[r.PathValue("id")]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	session.Share = nil
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (ts *testServer) respondPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(true)
}

func (ts *testServer) providers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(opencode.ProvidersResponse{
		Providers: []opencode.Provider{{ID: "anthropic"}},
		Default:   map[string]string{"anthropic": "claude"},
	})
}

func (ts *testServer) prompt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "data: {\"type\":\"message.updated\",\"properties\":{\"info\":{\"id\":\"m1\",\"role\":\"assistant\",\"finish\":\"stop\"},\"parts\":[{\"id\":\"p1\",\"type\":\"text\",\"text\":\"pong\"}]}}\n")
	fmt.Fprint(w, "data: [DONE]\n")
}

func TestClientSendsBearerTokenAndDirectory(t *testing.T) {
	ts := newTestServer()
	defer ts.server.Close()

	client := opencode.NewClient(ts.server.URL,
		opencode.WithToken("secret-token"),
		opencode.WithDirectory("/work/dir"),
	)

	if _, err := client.ListSessions(context.Background()); err != nil {
		t.Fatalf("ListSessions: %v", err)
	}

	req := ts.lastRequest()
	if got := req.Header.Get("Authorization"); got != "Bearer secret-token" {
		t.Errorf("expected bearer token, got %q", got)
	}
	if got := req.URL.Query().Get("directory"); got != "/work/dir" {
		t.Errorf("expected directory query param, got %q", got)
	}
}

func TestClientSessionLifecycle(t *testing.T) {
	ts := newTestServer()
	defer ts.server.Close()

	client := opencode.NewClient(ts.server.URL)
	ctx := context.Background()

	session, err := client.CreateSession(ctx, &opencode.CreateSessionRequest{Title: opencode.String("My Chat")})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Title != "My Chat" {
		t.Errorf("expected title My Chat, got %q", session.Title)
	}

	renamed, err := client.UpdateSessionTitle(ctx, session.ID, "Renamed")
	if err != nil {
		t.Fatalf("UpdateSessionTitle: %v", err)
	}
	if renamed.Title != "Renamed" {
		t.Errorf("expected title Renamed, got %q", renamed.Title)
	}

	shared, err := client.ShareSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ShareSession: %v", err)
	}
	if shared.Share == nil || !strings.Contains(shared.Share.URL, session.ID) {
		t.Errorf("expected share URL, got %+v", shared.Share)
	}

	unshared, err := client.UnshareSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("UnshareSession: %v", err)
	}
	if unshared.Share != nil {
		t.Error("expected share link revoked")
	}
}

func TestClientRespondToPermission(t *testing.T) {
	ts := newTestServer()
	defer ts.server.Close()

	client := opencode.NewClient(ts.server.URL)
	ctx := context.Background()

	if err := client.RespondToPermission(ctx, "s1", "perm1", opencode.PermissionAlways); err != nil {
		t.Fatalf("RespondToPermission: %v", err)
	}
	req := ts.lastRequest()
	if want := "/api/session/s1/permissions/perm1"; req.URL.Path != want {
		t.Errorf("expected path %s, got %s", want, req.URL.Path)
	}

	if err := client.RespondToPermission(ctx, "s1", "perm1", "maybe"); err == nil {
		t.Error("expected invalid response to be rejected client-side")
	}
}

func TestClientListProviders(t *testing.T) {
	ts := newTestServer()
	defer ts.server.Close()

	client := opencode.NewClient(ts.server.URL)
	resp, err := client.ListProviders(context.Background())
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	if len(resp.Providers) != 1 || resp.Providers[0].ID != "anthropic" {
		t.Errorf("unexpected providers %+v", resp.Providers)
	}
}

func TestClientPromptSyncCollapsesStream(t *testing.T) {
	ts := newTestServer()
	defer ts.server.Close()

	client := opencode.NewClient(ts.server.URL)
	result, err := client.PromptSync(context.Background(), "s1", &opencode.PromptRequest{
		Parts: []any{opencode.TextPartInput{Type: "text", Text: "ping"}},
	})
	if err != nil {
		t.Fatalf("PromptSync: %v", err)
	}
	if !result.Info.IsComplete() {
		t.Error("expected complete message")
	}
	if len(result.Parts) != 1 || result.Parts[0].Text != "pong" {
		t.Errorf("unexpected parts %+v", result.Parts)
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"localhost:4096":          "http://localhost:4096",
		"http://host/":            "http://host",
		"https://host.example":    "https://host.example",
		"  https://host/  ":       "https://host",
		"":                        "",
	}
	for in, want := range cases {
		if got := opencode.NormalizeBaseURL(in); got != want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}
