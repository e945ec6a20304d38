package ports

import (
	"context"
	"io"

	"voicestage/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// CaptureSession is a live microphone stream yielding s16le PCM fragments.
// Stop releases every underlying handle and is safe to call repeatedly.
type CaptureSession interface {
	io.Reader
	ID() string
	Stop() error
}

// AudioCapture acquires microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (CaptureSession, error)
}

// EnergyAnalyzer turns the live PCM of one capture session into loudness samples.
// It cannot be restarted once stopped.
type EnergyAnalyzer interface {
	io.Writer
	Stop()
}

// EnergyAnalyzers creates one analyzer per capture session.
type EnergyAnalyzers interface {
	Start(ctx context.Context, sink func(level float64)) EnergyAnalyzer
}

// ClipEncoder finalizes concatenated PCM into an immutable clip.
type ClipEncoder interface {
	Encode(pcm []byte, cfg AudioConfig) (domain.Clip, error)
}

// ClipHandler receives finished clips from the recorder.
type ClipHandler interface {
	HandleClip(clip domain.Clip)
}

// Transcriber converts a finished clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip domain.Clip) (string, error)
}

// ReplyService asks the reply collaborator to answer a transcript.
type ReplyService interface {
	Reply(ctx context.Context, text string) (domain.AssistantReply, error)
}

// Media is reply audio that has been fetched and decoded, ready to load.
type Media interface {
	Source() string
	Close() error
}

// MediaPlayer plays a reply audio resource. Open does the slow fetch and decode
// without touching the loaded media; Load installs opened media and a nil
// media unloads. onEnded fires once per natural end of media.
type MediaPlayer interface {
	Open(ctx context.Context, source string) (Media, error)
	Load(media Media, onEnded func()) error
	Play(ctx context.Context) error
	Pause() error
	SetMuted(muted bool) error
	Close() error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	RecordingStateChanged(state domain.RecordingState, reason domain.RecordingStateReason)
	EnergySample(level float64)
	TranscriptChanged(text string)
	ReplyChanged(reply *domain.AssistantReply)
	PlaybackChanged(state domain.PlaybackState)
	SessionError(code domain.ErrorCode, detail string)
}
