package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"voicestage/internal/domain"
	"voicestage/internal/metrics"
	"voicestage/internal/ports"
)

// RecorderConfig controls capture behavior.
type RecorderConfig struct {
	Audio     ports.AudioConfig
	ChunkSize int
}

// Recorder is the idle -> listening -> finalizing -> idle recording state machine.
// At most one capture session is open at a time, and only while listening.
type Recorder struct {
	capture   ports.AudioCapture
	analyzers ports.EnergyAnalyzers
	encoder   ports.ClipEncoder
	clips     ports.ClipHandler
	events    ports.EventSink
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	cfg       RecorderConfig

	// toggleMu serializes transitions; stateMu guards reads from Status.
	toggleMu sync.Mutex
	current  *activeRecording

	stateMu sync.Mutex
	state   domain.RecordingState
	message string
}

type activeRecording struct {
	cancel   context.CancelFunc
	capture  ports.CaptureSession
	analyzer ports.EnergyAnalyzer
	buffer   *recordingBuffer
	pumpDone chan struct{}
}

func NewRecorder(
	capture ports.AudioCapture,
	analyzers ports.EnergyAnalyzers,
	encoder ports.ClipEncoder,
	clips ports.ClipHandler,
	events ports.EventSink,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg RecorderConfig,
) *Recorder {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	return &Recorder{
		capture:   capture,
		analyzers: analyzers,
		encoder:   encoder,
		clips:     clips,
		events:    events,
		metrics:   m,
		logger:    logger.With().Str("component", "recorder").Logger(),
		cfg:       cfg,
		state:     domain.RecordingStateIdle,
	}
}

// Toggle starts listening from idle/error, or stops and dispatches the clip
// for transcription while listening.
func (r *Recorder) Toggle(ctx context.Context) (domain.RecordingStatus, error) {
	r.toggleMu.Lock()
	defer r.toggleMu.Unlock()

	if r.current != nil {
		err := r.finish()
		return r.Status(), err
	}
	err := r.start(ctx)
	return r.Status(), err
}

// Discard stops an active recording without transcribing it.
func (r *Recorder) Discard() error {
	r.toggleMu.Lock()
	defer r.toggleMu.Unlock()

	if r.current == nil {
		return domain.ErrNoActiveRecording
	}
	r.release(r.current)
	r.current = nil
	r.transition(domain.RecordingStateIdle, domain.RecordingReasonDiscarded, "")
	return nil
}

// Shutdown releases any open capture session.
func (r *Recorder) Shutdown() {
	r.toggleMu.Lock()
	defer r.toggleMu.Unlock()

	if r.current == nil {
		return
	}
	r.release(r.current)
	r.current = nil
	r.transition(domain.RecordingStateIdle, domain.RecordingReasonShutdown, "")
}

// Status returns the current recorder state.
func (r *Recorder) Status() domain.RecordingStatus {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return domain.RecordingStatus{
		State:   r.state,
		Active:  r.state == domain.RecordingStateListening,
		Message: r.message,
	}
}

func (r *Recorder) start(ctx context.Context) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	capture, err := r.capture.Start(sessionCtx, r.cfg.Audio)
	if err != nil {
		cancel()
		reason, code := classifyCaptureErr(err)
		r.metrics.RecordingFailed(string(code))
		r.logger.Warn().Err(err).Str("cause", string(code)).Msg("capture start failed")
		r.transition(domain.RecordingStateError, reason, captureErrMessage(err))
		r.events.SessionError(code, err.Error())
		return err
	}

	active := &activeRecording{
		cancel:   cancel,
		capture:  capture,
		buffer:   newRecordingBuffer(),
		pumpDone: make(chan struct{}),
	}
	active.analyzer = r.analyzers.Start(sessionCtx, r.events.EnergySample)
	go pumpFragments(active.capture, active.buffer, active.analyzer, r.cfg.ChunkSize, r.events, active.pumpDone)

	r.current = active
	r.metrics.RecordingStarted()
	r.logger.Info().Str("session", capture.ID()).Msg("listening")
	r.transition(domain.RecordingStateListening, domain.RecordingReasonListening, "")
	return nil
}

func (r *Recorder) finish() error {
	active := r.current
	r.current = nil
	r.release(active)

	r.transition(domain.RecordingStateFinalizing, domain.RecordingReasonFinalizing, "")

	fragments := active.buffer.Fragments()
	clip, err := r.encoder.Encode(active.buffer.Bytes(), r.cfg.Audio)
	if err != nil {
		r.logger.Error().Err(err).Msg("clip encoding failed")
		r.events.SessionError(domain.ErrorCodeEncoding, err.Error())
		r.transition(domain.RecordingStateIdle, domain.RecordingReasonEncodingFailed, err.Error())
		return err
	}

	r.metrics.ObserveClip(clip.Len())
	r.logger.Info().
		Str("session", active.capture.ID()).
		Int("fragments", fragments).
		Int("bytes", clip.Len()).
		Msg("recording finalized")

	r.clips.HandleClip(clip)
	r.transition(domain.RecordingStateIdle, domain.RecordingReasonDispatched, "")
	return nil
}

// release stops capture, the analyzer, and the pump. Safe on a failed device.
func (r *Recorder) release(active *activeRecording) {
	if err := active.capture.Stop(); err != nil {
		r.logger.Warn().Err(err).Str("session", active.capture.ID()).Msg("capture stop failed")
		r.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
	active.analyzer.Stop()
	<-active.pumpDone
	active.cancel()
}

func (r *Recorder) transition(state domain.RecordingState, reason domain.RecordingStateReason, message string) {
	r.stateMu.Lock()
	r.state = state
	r.message = message
	r.stateMu.Unlock()

	r.events.RecordingStateChanged(state, reason)
}

func classifyCaptureErr(err error) (domain.RecordingStateReason, domain.ErrorCode) {
	if errors.Is(err, domain.ErrPermissionDenied) {
		return domain.RecordingReasonPermissionDenied, domain.ErrorCodePermissionDenied
	}
	return domain.RecordingReasonDeviceUnavailable, domain.ErrorCodeDeviceUnavailable
}

func captureErrMessage(err error) string {
	if errors.Is(err, domain.ErrPermissionDenied) {
		return "Microphone permission denied. You can still type a message and request a reply."
	}
	return "Microphone not available. You can still type a message and request a reply."
}
