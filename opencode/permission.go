package opencode

import (
	"context"
	"fmt"
	"net/http"
)

// RespondToPermission answers a pending tool-permission request.
func (c *Client) RespondToPermission(ctx context.Context, sessionID, permissionID string, response PermissionResponse) error {
	switch response {
	case PermissionOnce, PermissionAlways, PermissionReject:
	default:
		return fmt.Errorf("invalid permission response %q", response)
	}

	var result bool
	path := fmt.Sprintf("/api/session/%s/permissions/%s", sessionID, permissionID)
	return c.doRequest(ctx, http.MethodPost, path, respondPermissionRequest{Response: response}, &result)
}
