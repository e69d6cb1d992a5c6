package opencode

import (
	"context"
	"net/http"
)

// ListSessions returns all sessions.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var result []Session
	if err := c.doRequest(ctx, http.MethodGet, "/api/session", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateSession creates a new session.
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	if req == nil {
		req = &CreateSessionRequest{}
	}
	var result Session
	if err := c.doRequest(ctx, http.MethodPost, "/api/session", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSession retrieves a session by ID.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var result Session
	if err := c.doRequest(ctx, http.MethodGet, "/api/session/"+sessionID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	var result bool
	return c.doRequest(ctx, http.MethodDelete, "/api/session/"+sessionID, nil, &result)
}

// UpdateSessionTitle renames a session.
func (c *Client) UpdateSessionTitle(ctx context.Context, sessionID, title string) (*Session, error) {
	req := &UpdateSessionRequest{Title: String(title)}
	var result Session
	if err := c.doRequest(ctx, http.MethodPatch, "/api/session/"+sessionID, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ShareSession makes a session publicly shareable and returns it with the
// share link filled in.
func (c *Client) ShareSession(ctx context.Context, sessionID string) (*Session, error) {
	var result Session
	if err := c.doRequest(ctx, http.MethodPost, "/api/session/"+sessionID+"/share", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UnshareSession revokes a session's share link.
func (c *Client) UnshareSession(ctx context.Context, sessionID string) (*Session, error) {
	var result Session
	if err := c.doRequest(ctx, http.MethodDelete, "/api/session/"+sessionID+"/share", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AbortSession aborts the in-flight assistant turn of a session.
func (c *Client) AbortSession(ctx context.Context, sessionID string) error {
	var result bool
	return c.doRequest(ctx, http.MethodPost, "/api/session/"+sessionID+"/abort", nil, &result)
}
