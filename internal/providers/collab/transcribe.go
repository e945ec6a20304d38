package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"voicestage/internal/domain"
)

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the clip as multipart form data. Zero-length clips are
// sent unchanged.
func (c *Client) Transcribe(ctx context.Context, clip domain.Clip) (string, error) {
	body, contentType, err := c.transcribeForm(clip)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("transcribe"), body)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	payload, err := c.do(ctx, "transcription", req)
	if err != nil {
		return "", err
	}

	var resp transcribeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", fmt.Errorf("failed to parse transcription response: %w", err)
	}
	return resp.Text, nil
}

func (c *Client) transcribeForm(clip domain.Clip) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := clip.Filename
	if filename == "" {
		filename = "clip.wav"
	}
	contentType := clip.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if c.language != "" {
		if err := writer.WriteField("language", c.language); err != nil {
			return nil, "", fmt.Errorf("failed to write field language: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
