package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"voicestage/internal/domain"
)

type replyRequest struct {
	Text string `json:"text"`
}

type replyResponse struct {
	Text     string  `json:"text"`
	AudioURL *string `json:"audioUrl"`
}

// Reply asks the collaborator to answer text. A relative audioUrl is resolved
// against the base URL.
func (c *Client) Reply(ctx context.Context, text string) (domain.AssistantReply, error) {
	payload, err := json.Marshal(replyRequest{Text: text})
	if err != nil {
		return domain.AssistantReply{}, fmt.Errorf("failed to encode reply request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("reply"), bytes.NewReader(payload))
	if err != nil {
		return domain.AssistantReply{}, fmt.Errorf("failed to create reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(ctx, "reply", req)
	if err != nil {
		return domain.AssistantReply{}, err
	}

	var resp replyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.AssistantReply{}, fmt.Errorf("failed to parse reply response: %w", err)
	}

	reply := domain.AssistantReply{Text: resp.Text}
	if resp.AudioURL != nil {
		reply.AudioURL = c.resolve(*resp.AudioURL)
	}
	return reply, nil
}

func (c *Client) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil || parsed.IsAbs() {
		return ref
	}
	return c.base.ResolveReference(parsed).String()
}
