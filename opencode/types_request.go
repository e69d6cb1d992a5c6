package opencode

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	ParentID *string `json:"parentID,omitempty"`
	Title    *string `json:"title,omitempty"`
}

// UpdateSessionRequest is the request body for updating a session.
type UpdateSessionRequest struct {
	Title *string `json:"title,omitempty"`
}

// TextPartInput represents text input for a prompt.
type TextPartInput struct {
	Type string `json:"type"` // "text"
	Text string `json:"text"`
}

// FilePartInput represents file input for a prompt.
type FilePartInput struct {
	Type     string  `json:"type"` // "file"
	Mime     string  `json:"mime"`
	URL      string  `json:"url"`
	Filename *string `json:"filename,omitempty"`
}

// PromptRequest is the request body for sending a user message.
// Parts holds TextPartInput and FilePartInput values.
type PromptRequest struct {
	Parts     []any      `json:"parts"`
	MessageID *string    `json:"messageID,omitempty"`
	Model     *ModelInfo `json:"model,omitempty"`
}

// PermissionResponse is a reply to a pending permission request.
type PermissionResponse string

const (
	// PermissionOnce allows the tool call this one time.
	PermissionOnce PermissionResponse = "once"
	// PermissionAlways allows this call and future matches of the pattern.
	PermissionAlways PermissionResponse = "always"
	// PermissionReject denies the tool call.
	PermissionReject PermissionResponse = "reject"
)

// respondPermissionRequest is the request body for answering a permission.
type respondPermissionRequest struct {
	Response PermissionResponse `json:"response"`
}

// String creates a string pointer (helper for optional fields).
func String(s string) *string {
	return &s
}

// Bool creates a bool pointer (helper for optional fields).
func Bool(b bool) *bool {
	return &b
}

// Int creates an int pointer (helper for optional fields).
func Int(i int) *int {
	return &i
}
