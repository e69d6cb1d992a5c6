package opencode

import "encoding/json"

// SessionTime represents timestamps for a session.
type SessionTime struct {
	Created float64  `json:"created"`
	Updated float64  `json:"updated"`
	Shared  *float64 `json:"shared,omitempty"`
}

// ShareInfo describes the public share link of a session, if any.
type ShareInfo struct {
	URL string `json:"url"`
}

// Session represents a chat session on the server.
type Session struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectID,omitempty"`
	Directory string      `json:"directory,omitempty"`
	Title     string      `json:"title"`
	Version   string      `json:"version,omitempty"`
	Time      SessionTime `json:"time"`
	ParentID  *string     `json:"parentID,omitempty"`
	Share     *ShareInfo  `json:"share,omitempty"`
}

// MessageTime represents timestamps for a message.
type MessageTime struct {
	Created   float64  `json:"created"`
	Completed *float64 `json:"completed,omitempty"`
}

// ModelInfo identifies a model and provider.
type ModelInfo struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// TokenInfo contains token usage statistics.
type TokenInfo struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Reasoning int `json:"reasoning"`
}

// Message is the metadata of a user or assistant message.
// Use the Role field to determine which one it is.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"` // "user" or "assistant"
	Time      MessageTime `json:"time"`

	// Assistant message fields
	ModelID    string          `json:"modelID,omitempty"`
	ProviderID string          `json:"providerID,omitempty"`
	Cost       float64         `json:"cost,omitempty"`
	Tokens     *TokenInfo      `json:"tokens,omitempty"`
	Finish     *string         `json:"finish,omitempty"` // "stop", "cancelled", "error"
	Error      json.RawMessage `json:"error,omitempty"`
}

// IsUser returns true if this is a user message.
func (m *Message) IsUser() bool {
	return m.Role == "user"
}

// IsAssistant returns true if this is an assistant message.
func (m *Message) IsAssistant() bool {
	return m.Role == "assistant"
}

// IsComplete returns true once the server has signalled the end of the
// message, either through a finish reason or a completion timestamp.
func (m *Message) IsComplete() bool {
	return m.Finish != nil || m.Time.Completed != nil
}

// PartTime represents timestamps for a part.
type PartTime struct {
	Start float64  `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

// ToolState represents the state of a tool invocation carried by a part.
type ToolState struct {
	Status string         `json:"status,omitempty"` // "pending", "running", "completed", "error"
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Title  *string        `json:"title,omitempty"`
	Time   *PartTime      `json:"time,omitempty"`
}

// Part is one incremental fragment of a message. It is a tagged union:
// the Type field selects which of the optional fields are meaningful.
type Part struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID,omitempty"`
	MessageID string `json:"messageID,omitempty"`
	Type      string `json:"type"` // "text", "reasoning", "tool", "tool-call", "tool-result", "file", "step-start", "step-finish"

	// Text-like parts ("text", "reasoning"). Some server versions emit
	// "content" instead of "text"; TextContent folds the two together.
	Text    string    `json:"text,omitempty"`
	Content string    `json:"content,omitempty"`
	Time    *PartTime `json:"time,omitempty"`

	// Tool parts
	Tool   string     `json:"tool,omitempty"`
	CallID string     `json:"callID,omitempty"`
	State  *ToolState `json:"state,omitempty"`

	// File parts
	Filename *string `json:"filename,omitempty"`
	Mime     string  `json:"mime,omitempty"`
	URL      string  `json:"url,omitempty"`
	Size     int64   `json:"size,omitempty"`
}

// TextContent returns the textual content of a text-like part, whichever
// wire field carried it.
func (p *Part) TextContent() string {
	if p.Text != "" {
		return p.Text
	}
	return p.Content
}

// IsText returns true if this is a text part.
func (p *Part) IsText() bool {
	return p.Type == "text"
}

// IsReasoning returns true if this is a reasoning part.
func (p *Part) IsReasoning() bool {
	return p.Type == "reasoning"
}

// IsTool returns true if this part carries a tool invocation.
func (p *Part) IsTool() bool {
	return p.Type == "tool" || p.Type == "tool-call" || p.Type == "tool-result"
}

// IsFile returns true if this is a file part.
func (p *Part) IsFile() bool {
	return p.Type == "file"
}

// MessageWithParts combines message metadata with its parts.
type MessageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}

// PermissionTime represents timestamps for a permission request.
type PermissionTime struct {
	Created float64 `json:"created"`
}

// Permission is a pending tool-permission request raised by the server.
type Permission struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID,omitempty"`
	CallID    string         `json:"callID,omitempty"`
	Type      string         `json:"type"`    // tool name, e.g. "bash"
	Pattern   string         `json:"pattern"` // e.g. "rm *"
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Time      PermissionTime `json:"time"`
}

// Model describes one model offered by a provider.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Provider describes one model provider configured on the server.
type Provider struct {
	ID     string           `json:"id"`
	Name   string           `json:"name,omitempty"`
	Models map[string]Model `json:"models,omitempty"`
}

// ProvidersResponse is the response from the providers endpoint.
type ProvidersResponse struct {
	Providers []Provider        `json:"providers"`
	Default   map[string]string `json:"default,omitempty"` // providerID -> modelID
}
