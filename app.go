package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicestage/internal/bootstrap"
	"voicestage/internal/domain"
)

const (
	eventRecording  = "voicestage:recording"
	eventEnergy     = "voicestage:energy"
	eventTranscript = "voicestage:transcript"
	eventReply      = "voicestage:reply"
	eventPlayback   = "voicestage:playback"
	eventError      = "voicestage:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = &services
	a.RecordingStateChanged(domain.RecordingStateIdle, domain.RecordingReasonMicCold)

	go func() {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := services.CheckHealth(probeCtx); err != nil {
			services.Logger.Warn().Err(err).Msg("upstream health check failed")
			return
		}
		services.Logger.Info().Msg("upstream healthy")
	}()
}

func (a *App) shutdown(_ context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.Warn().Err(err).Msg("shutdown incomplete")
	}
}

// ToggleRecording starts listening, or stops and sends the clip for transcription.
func (a *App) ToggleRecording() (domain.RecordingStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.RecordingStatus{}, err
	}
	return a.services.Recorder.Toggle(a.ctx)
}

// DiscardRecording drops an in-progress recording without transcribing it.
func (a *App) DiscardRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Recorder.Discard(); err != nil {
		if errors.Is(err, domain.ErrNoActiveRecording) {
			return nil
		}
		return err
	}
	return nil
}

// SetTranscript records a user edit of the transcript.
func (a *App) SetTranscript(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Stage.SetTranscript(text)
	return nil
}

// SubmitTranscript requests an assistant reply for the current transcript.
func (a *App) SubmitTranscript() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Stage.Submit()
}

// ClearSession resets transcript, reply and playback.
func (a *App) ClearSession() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Stage.Clear()
	return nil
}

// TogglePlay plays or pauses the reply audio.
func (a *App) TogglePlay() (domain.PlaybackState, error) {
	if err := a.requireReady(); err != nil {
		return domain.PlaybackState{}, err
	}
	return a.services.Stage.TogglePlay(a.ctx)
}

// ToggleMute flips the mute flag without affecting play/pause.
func (a *App) ToggleMute() (domain.PlaybackState, error) {
	if err := a.requireReady(); err != nil {
		return domain.PlaybackState{}, err
	}
	return a.services.Stage.ToggleMute()
}

// GetStatus returns the current recording status.
func (a *App) GetStatus() domain.RecordingStatus {
	if a.services == nil {
		if a.bootErr != nil {
			return domain.RecordingStatus{State: domain.RecordingStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.RecordingStatus{State: domain.RecordingStateIdle, Active: false}
	}
	return a.services.Recorder.Status()
}

// GetSnapshot returns transcript, reply, playback and error for rendering.
func (a *App) GetSnapshot() domain.Snapshot {
	if a.services == nil {
		snap := domain.Snapshot{Playback: domain.PlaybackState{Phase: domain.PlaybackUnloaded}}
		if a.bootErr != nil {
			snap.Error = a.bootErr.Error()
		}
		return snap
	}
	return a.services.Stage.Snapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"apiBase":          cfg.Upstream.BaseURL,
		"language":         cfg.Upstream.Language,
		"transcriber":      cfg.Transcriber.Engine,
		"stalePolicy":      cfg.Pipeline.StalePolicy,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"metricsAddr":      cfg.Metrics.Addr,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// RecordingStateChanged emits recorder lifecycle updates to the frontend.
func (a *App) RecordingStateChanged(state domain.RecordingState, reason domain.RecordingStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRecording, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": recordingReasonMessage(reason),
	})
}

// EnergySample emits the live input level in [0,1].
func (a *App) EnergySample(level float64) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventEnergy, level)
}

func (a *App) TranscriptChanged(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"text": text})
}

func (a *App) ReplyChanged(reply *domain.AssistantReply) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventReply, reply)
}

func (a *App) PlaybackChanged(state domain.PlaybackState) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPlayback, state)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func recordingReasonMessage(reason domain.RecordingStateReason) string {
	switch reason {
	case domain.RecordingReasonMicCold:
		return "Mic cold"
	case domain.RecordingReasonListening:
		return "Listening..."
	case domain.RecordingReasonFinalizing:
		return "Finishing recording"
	case domain.RecordingReasonDispatched:
		return "Recording stopped. Transcribing..."
	case domain.RecordingReasonDiscarded:
		return "Recording discarded"
	case domain.RecordingReasonEncodingFailed:
		return "Recording could not be encoded"
	case domain.RecordingReasonPermissionDenied:
		return "Microphone access denied"
	case domain.RecordingReasonDeviceUnavailable:
		return "Microphone unavailable"
	case domain.RecordingReasonShutdown:
		return "Recording stopped"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Microphone access denied"
	case domain.ErrorCodeDeviceUnavailable:
		return "Microphone unavailable"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeEncoding:
		return "Recording could not be encoded"
	case domain.ErrorCodeEmptyInput:
		return "Nothing to send"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
