package opencode

import (
	"context"
	"net/http"
)

// ListProviders returns the providers and models configured on the server,
// for model selection.
func (c *Client) ListProviders(ctx context.Context) (*ProvidersResponse, error) {
	var result ProvidersResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/config/providers", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
