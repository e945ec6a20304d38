package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type healthResponse struct {
	OK bool `json:"ok"`
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("health"), nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	body, err := c.do(ctx, "health", req)
	if err != nil {
		return err
	}

	var resp healthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse health response: %w", err)
	}
	if !resp.OK {
		return errors.New("collaborator reported unhealthy")
	}
	return nil
}
