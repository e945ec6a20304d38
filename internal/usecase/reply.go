package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voicestage/internal/domain"
	"voicestage/internal/metrics"
	"voicestage/internal/ports"
)

// ReplyPipeline requests an assistant reply for a transcript.
type ReplyPipeline struct {
	service ports.ReplyService
	metrics *metrics.Metrics
	logger  zerolog.Logger
	timeout time.Duration
}

func NewReplyPipeline(service ports.ReplyService, m *metrics.Metrics, logger zerolog.Logger, timeout time.Duration) *ReplyPipeline {
	return &ReplyPipeline{
		service: service,
		metrics: m,
		logger:  logger.With().Str("component", "reply").Logger(),
		timeout: timeout,
	}
}

// GetReply fails locally with ErrEmptyInput for blank text; no request is sent.
func (p *ReplyPipeline) GetReply(ctx context.Context, text string) (domain.AssistantReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.AssistantReply{}, domain.ErrEmptyInput
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	reply, err := p.service.Reply(ctx, text)
	elapsed := time.Since(started)
	p.metrics.ObserveRequest(metrics.PipelineReply, outcomeFor(err), elapsed)
	if err != nil {
		p.logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("reply failed")
		return domain.AssistantReply{}, err
	}

	reply = domain.AssistantReply{
		Text:     strings.TrimSpace(reply.Text),
		AudioURL: strings.TrimSpace(reply.AudioURL),
	}
	p.logger.Debug().Bool("audio", reply.HasAudio()).Dur("elapsed", elapsed).Msg("reply received")
	return reply, nil
}
