// Package mock provides an in-process agent server speaking the client's
// wire protocol, for demo mode and manual testing against a fake backend.
package mock

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Shahfarzane/opencode-mobile-sub000/opencode"
)

// Server is a fake agent server with canned streaming replies.
type Server struct {
	mu       sync.Mutex
	sessions map[string]*opencode.Session
	messages map[string][]opencode.MessageWithParts
	clients  map[chan opencode.Event]struct{}
	seq      int

	listener net.Listener
	httpSrv  *http.Server
}

// NewServer creates a mock server. Call Start to begin serving.
func NewServer() *Server {
	return &Server{
		sessions: make(map[string]*opencode.Session),
		messages: make(map[string][]opencode.MessageWithParts),
		clients:  make(map[chan opencode.Event]struct{}),
	}
}

// Start begins serving on an ephemeral localhost port and returns the base
// URL.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.Handler()}
	go s.httpSrv.Serve(ln)
	return "http://" + ln.Addr().String(), nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan opencode.Event]struct{})
}

// Handler returns the HTTP handler, usable directly with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/event", s.handleEvents)
	mux.HandleFunc("GET /api/session", s.handleListSessions)
	mux.HandleFunc("POST /api/session", s.handleCreateSession)
	mux.HandleFunc("GET /api/session/{id}/message", s.handleListMessages)
	mux.HandleFunc("POST /api/session/{id}/prompt", s.handlePrompt)
	mux.HandleFunc("POST /api/session/{id}/permissions/{permissionID}", s.handlePermission)
	mux.HandleFunc("GET /api/config/providers", s.handleProviders)
	return mux
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

func nowMilli() float64 {
	return float64(time.Now().UnixMilli())
}

// broadcast fans an event out to every connected event-feed client.
func (s *Server) broadcast(ev opencode.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, ev opencode.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n", payload)
	flusher.Flush()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan opencode.Event, 64)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeFrame(w, flusher, ev)
		}
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sessions := make([]opencode.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, *sess)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req opencode.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	now := nowMilli()
	session := &opencode.Session{
		ID:    s.nextID("ses"),
		Title: "New Session",
		Time:  opencode.SessionTime{Created: now, Updated: now},
	}
	if req.Title != nil {
		session.Title = *req.Title
	}
	s.sessions[session.ID] = session
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	msgs := append([]opencode.MessageWithParts(nil), s.messages[r.PathValue("id")]...)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
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

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(opencode.ProvidersResponse{
		Providers: []opencode.Provider{{
			ID:   "mock",
			Name: "Mock Provider",
			Models: map[string]opencode.Model{
				"mock-1": {ID: "mock-1", Name: "Mock One"},
			},
		}},
		Default: map[string]string{"mock": "mock-1"},
	})
}

// handlePrompt stores the user message and streams a canned assistant reply,
// word by word, both on the prompt response and the global event feed.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req opencode.PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	prompt := promptText(req)

	s.mu.Lock()
	now := nowMilli()
	userMsg := opencode.MessageWithParts{
		Info: opencode.Message{
			ID:        s.nextID("msg"),
			SessionID: sessionID,
			Role:      "user",
			Time:      opencode.MessageTime{Created: now},
		},
	}
	msgID := s.nextID("msg")
	partID := s.nextID("prt")
	s.messages[sessionID] = append(s.messages[sessionID], userMsg)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	info := opencode.Message{
		ID:        msgID,
		SessionID: sessionID,
		Role:      "assistant",
		Time:      opencode.MessageTime{Created: nowMilli()},
	}

	reply := fmt.Sprintf("You said: %q. This is a canned reply from the mock server.", prompt)
	words := strings.Fields(reply)
	var text strings.Builder
	for i, word := range words {
		if i > 0 {
			text.WriteString(" ")
		}
		text.WriteString(word)

		ev := mustEvent(opencode.EventMessagePartUpdated, map[string]any{
			"sessionID": sessionID,
			"info":      info,
			"part": opencode.Part{
				ID:        partID,
				SessionID: sessionID,
				MessageID: msgID,
				Type:      "text",
				Text:      text.String(),
			},
		})
		writeFrame(w, flusher, ev)
		s.broadcast(ev)
		time.Sleep(30 * time.Millisecond)
	}

	finish := "stop"
	completed := nowMilli()
	info.Finish = &finish
	info.Time.Completed = &completed
	finalPart := opencode.Part{
		ID:        partID,
		SessionID: sessionID,
		MessageID: msgID,
		Type:      "text",
		Text:      text.String(),
	}
	done := mustEvent(opencode.EventMessageUpdated, map[string]any{
		"sessionID": sessionID,
		"info":      info,
		"parts":     []opencode.Part{finalPart},
	})
	writeFrame(w, flusher, done)
	s.broadcast(done)

	s.mu.Lock()
	s.messages[sessionID] = append(s.messages[sessionID], opencode.MessageWithParts{
		Info:  info,
		Parts: []opencode.Part{finalPart},
	})
	s.mu.Unlock()

	fmt.Fprint(w, "data: [DONE]\n")
	flusher.Flush()
}

func promptText(req opencode.PromptRequest) string {
	for _, raw := range req.Parts {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if m["type"] == "text" {
			if text, ok := m["text"].(string); ok {
				return text
			}
		}
	}
	return ""
}

func mustEvent(typ string, properties map[string]any) opencode.Event {
	payload, _ := json.Marshal(properties)
	return opencode.Event{Type: typ, Properties: payload}
}
