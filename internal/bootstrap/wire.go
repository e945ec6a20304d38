package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"voicestage/internal/audio"
	"voicestage/internal/config"
	"voicestage/internal/logging"
	"voicestage/internal/metrics"
	"voicestage/internal/playback"
	"voicestage/internal/ports"
	"voicestage/internal/providers/collab"
	"voicestage/internal/providers/deepgram"
	"voicestage/internal/providers/openai"
	"voicestage/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Recorder *usecase.Recorder
	Stage    *usecase.Stage
	Config   config.Config
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	collab        *collab.Client
	metricsServer *http.Server
	logCloser     io.Closer
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logger, logCloser := logging.New(cfg.Logging)

	services, err := build(cfg, eventSink, logger, playback.NewBeepPlayer(&http.Client{Timeout: cfg.Pipeline.RequestTimeout}, logger))
	if err != nil {
		_ = logCloser.Close()
		return Services{}, err
	}
	services.logCloser = logCloser

	if cfg.EnvFile != "" {
		logger.Info().Str("path", cfg.EnvFile).Msg("loaded env file")
	}
	if cfg.Metrics.Addr != "" {
		services.metricsServer = serveMetrics(cfg.Metrics.Addr, services.Metrics, logger)
	}
	return services, nil
}

func build(cfg config.Config, eventSink ports.EventSink, logger zerolog.Logger, player ports.MediaPlayer) (Services, error) {
	m := metrics.NewMetrics()

	client, err := collab.NewClient(collab.Config{
		BaseURL:  cfg.Upstream.BaseURL,
		Language: cfg.Upstream.Language,
		Timeout:  cfg.Pipeline.RequestTimeout,
	}, logger)
	if err != nil {
		return Services{}, err
	}

	transcriber, err := newTranscriber(cfg, client, logger)
	if err != nil {
		return Services{}, err
	}

	stage := usecase.NewStage(
		usecase.NewTranscriptionClient(transcriber, m, logger, cfg.Pipeline.RequestTimeout),
		usecase.NewReplyPipeline(client, m, logger, cfg.Pipeline.RequestTimeout),
		usecase.NewPlaybackController(player, eventSink, m, logger),
		eventSink,
		m,
		logger,
		usecase.StageConfig{StalePolicy: usecase.ParseStalePolicy(cfg.Pipeline.StalePolicy)},
	)

	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}
	recorder := usecase.NewRecorder(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, logger),
		audio.NewEnergyAnalyzers(audio.EnergyConfig{
			FFTSize:   cfg.Energy.FFTSize,
			FrameRate: cfg.Energy.FrameRate,
			Smoothing: cfg.Energy.Smoothing,
		}, logger),
		audio.NewWAVEncoder(),
		stage,
		eventSink,
		m,
		logger,
		usecase.RecorderConfig{Audio: audioCfg, ChunkSize: cfg.Audio.ChunkSize},
	)

	logger.Info().
		Str("upstream", client.BaseURL()).
		Str("transcriber", cfg.Transcriber.Engine).
		Str("stale_policy", cfg.Pipeline.StalePolicy).
		Msg("voice stage ready")

	return Services{
		Recorder: recorder,
		Stage:    stage,
		Config:   cfg,
		Metrics:  m,
		Logger:   logger,
		collab:   client,
	}, nil
}

// newTranscriber selects the transcription engine once at construction.
func newTranscriber(cfg config.Config, client *collab.Client, logger zerolog.Logger) (ports.Transcriber, error) {
	switch cfg.Transcriber.Engine {
	case config.EngineServer, "":
		return client, nil
	case config.EngineDeepgram:
		if cfg.Deepgram.APIKey == "" {
			return nil, errors.New("DEEPGRAM_API_KEY is required for the deepgram transcriber")
		}
		language := cfg.Deepgram.Language
		if language == "" {
			language = cfg.Upstream.Language
		}
		return deepgram.NewTranscriber(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}, logger), nil
	case config.EngineOpenAI:
		language := cfg.OpenAI.Language
		if language == "" {
			language = cfg.Upstream.Language
		}
		return openai.NewTranscriber(openai.Config{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    cfg.OpenAI.Model,
			Language: language,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown transcriber %q", cfg.Transcriber.Engine)
	}
}

func serveMetrics(addr string, m *metrics.Metrics, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return server
}

// CheckHealth probes the upstream collaborator.
func (s Services) CheckHealth(ctx context.Context) error {
	if s.collab == nil {
		return errors.New("collaborator is not configured")
	}
	return s.collab.Health(ctx)
}

// Close releases capture, pending requests, the metrics server and log files.
func (s Services) Close() error {
	var errs []error
	if s.Recorder != nil {
		s.Recorder.Shutdown()
	}
	if s.Stage != nil {
		errs = append(errs, s.Stage.Close())
	}
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, s.metricsServer.Shutdown(ctx))
		cancel()
	}
	if s.logCloser != nil {
		errs = append(errs, s.logCloser.Close())
	}
	return errors.Join(errs...)
}
