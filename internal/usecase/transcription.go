package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voicestage/internal/domain"
	"voicestage/internal/metrics"
	"voicestage/internal/ports"
)

// TranscriptionClient sends finished clips to the configured transcriber.
// Clips are forwarded as-is; the collaborator decides whether they are usable.
type TranscriptionClient struct {
	transcriber ports.Transcriber
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	timeout     time.Duration
}

func NewTranscriptionClient(transcriber ports.Transcriber, m *metrics.Metrics, logger zerolog.Logger, timeout time.Duration) *TranscriptionClient {
	return &TranscriptionClient{
		transcriber: transcriber,
		metrics:     m,
		logger:      logger.With().Str("component", "transcription").Logger(),
		timeout:     timeout,
	}
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, clip domain.Clip) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	text, err := c.transcriber.Transcribe(ctx, clip)
	elapsed := time.Since(started)
	c.metrics.ObserveRequest(metrics.PipelineTranscription, outcomeFor(err), elapsed)
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", clip.Len()).Dur("elapsed", elapsed).Msg("transcription failed")
		return "", err
	}

	text = strings.TrimSpace(text)
	c.logger.Debug().Int("bytes", clip.Len()).Int("chars", len(text)).Dur("elapsed", elapsed).Msg("transcription done")
	return text, nil
}

func outcomeFor(err error) string {
	var serviceErr *domain.ServiceError
	var networkErr *domain.NetworkError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &serviceErr):
		if serviceErr.IsServerError() {
			return "server_error"
		}
		return "rejected"
	case errors.As(err, &networkErr):
		return "network_error"
	default:
		return "error"
	}
}
