package opencode

import (
	"context"
	"fmt"
	"net/http"
)

// ListMessages returns the messages of a session with their parts.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]MessageWithParts, error) {
	var result []MessageWithParts
	path := "/api/session/" + sessionID + "/message"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMessage retrieves a specific message with its parts.
func (c *Client) GetMessage(ctx context.Context, sessionID, messageID string) (*MessageWithParts, error) {
	var result MessageWithParts
	path := fmt.Sprintf("/api/session/%s/message/%s", sessionID, messageID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Prompt sends a user message and streams the assistant's response. Events
// arrive on the returned channel in wire order until the stream ends with
// [DONE] or the context is cancelled.
func (c *Client) Prompt(ctx context.Context, sessionID string, req *PromptRequest) (<-chan *StreamEvent, <-chan error, error) {
	resp, err := c.openStream(ctx, http.MethodPost, "/api/session/"+sessionID+"/prompt", req)
	if err != nil {
		return nil, nil, err
	}

	eventCh := make(chan *StreamEvent, 100)
	errCh := make(chan error, 1)
	go c.readStream(ctx, resp.Body, eventCh, errCh)

	return eventCh, errCh, nil
}

// PromptSync sends a user message and waits for the complete response,
// collapsing the event stream into one message with deduplicated parts.
func (c *Client) PromptSync(ctx context.Context, sessionID string, req *PromptRequest) (*MessageWithParts, error) {
	eventCh, errCh, err := c.Prompt(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}

	var result MessageWithParts
	var parts []Part

	upsert := func(part Part) {
		for i, p := range parts {
			if p.ID == part.ID {
				parts[i] = part
				return
			}
		}
		parts = append(parts, part)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-eventCh:
			if !ok {
				// Both channels close together; a buffered error, if
				// any, is still readable here.
				if err := <-errCh; err != nil {
					return nil, err
				}
				result.Parts = parts
				return &result, nil
			}
			if ev.Message == nil {
				continue
			}
			if info := ev.Message.Info; info != nil && info.IsAssistant() {
				result.Info = *info
			}
			if ev.Message.Part != nil {
				upsert(*ev.Message.Part)
			}
			for _, part := range ev.Message.Parts {
				upsert(part)
			}
		}
	}
}
