// Package openai transcribes clips with the OpenAI audio transcription API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"voicestage/internal/domain"
)

const collaborator = "transcription"

// Config controls the Whisper transcriber.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// Transcriber implements ports.Transcriber with go-openai.
type Transcriber struct {
	client   *goopenai.Client
	model    string
	language string
	logger   zerolog.Logger
}

func NewTranscriber(cfg Config, logger zerolog.Logger) (*Transcriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	return &Transcriber{
		client:   goopenai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		language: cfg.Language,
		logger:   logger.With().Str("component", "openai").Logger(),
	}, nil
}

func (t *Transcriber) Transcribe(ctx context.Context, clip domain.Clip) (string, error) {
	filename := clip.Filename
	if filename == "" {
		filename = "clip.wav"
	}

	resp, err := t.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   bytes.NewReader(clip.Data),
		Language: t.language,
	})
	if err != nil {
		return "", mapError(err)
	}

	t.logger.Debug().Int("bytes", clip.Len()).Int("chars", len(resp.Text)).Msg("whisper transcription done")
	return resp.Text, nil
}

func mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ServiceError{Collaborator: collaborator, Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &domain.ServiceError{Collaborator: collaborator, Status: reqErr.HTTPStatusCode, Body: body}
	}
	return &domain.NetworkError{Collaborator: collaborator, Err: err}
}
