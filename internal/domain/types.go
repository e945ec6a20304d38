package domain

// RecordingState models the microphone recording lifecycle.
type RecordingState string

const (
	RecordingStateIdle       RecordingState = "idle"
	RecordingStateListening  RecordingState = "listening"
	RecordingStateFinalizing RecordingState = "finalizing"
	RecordingStateError      RecordingState = "error"
)

// RecordingStateReason provides a structured reason for state transitions.
type RecordingStateReason string

const (
	RecordingReasonMicCold           RecordingStateReason = "mic_cold"
	RecordingReasonListening         RecordingStateReason = "listening"
	RecordingReasonFinalizing        RecordingStateReason = "finalizing"
	RecordingReasonDispatched        RecordingStateReason = "transcription_dispatched"
	RecordingReasonDiscarded         RecordingStateReason = "recording_discarded"
	RecordingReasonEncodingFailed    RecordingStateReason = "encoding_failed"
	RecordingReasonPermissionDenied  RecordingStateReason = "permission_denied"
	RecordingReasonDeviceUnavailable RecordingStateReason = "device_unavailable"
	RecordingReasonShutdown          RecordingStateReason = "shutdown"
)

// ErrorCode identifies user-visible error categories.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodePermissionDenied  ErrorCode = "permission_denied"
	ErrorCodeDeviceUnavailable ErrorCode = "device_unavailable"
	ErrorCodeAudioStop         ErrorCode = "audio_stop"
	ErrorCodeAudioStream       ErrorCode = "audio_stream"
	ErrorCodeEncoding          ErrorCode = "encoding"
	ErrorCodeEmptyInput        ErrorCode = "empty_input"
	ErrorCodeNetwork           ErrorCode = "network"
	ErrorCodeService           ErrorCode = "service"
	ErrorCodePlayback          ErrorCode = "playback"
)

// Clip is a finished, immutable recording handed to a transcriber.
type Clip struct {
	Data        []byte
	ContentType string
	Filename    string
	SampleRate  int
	Channels    int
}

// Len returns the encoded clip size in bytes.
func (c Clip) Len() int {
	return len(c.Data)
}

// AssistantReply is the normalized reply collaborator response.
type AssistantReply struct {
	Text     string `json:"text"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// HasAudio reports whether the reply carries a synthesized voice resource.
func (r AssistantReply) HasAudio() bool {
	return r.AudioURL != ""
}

// PlaybackPhase models the reply audio element lifecycle.
type PlaybackPhase string

const (
	PlaybackUnloaded PlaybackPhase = "unloaded"
	PlaybackLoaded   PlaybackPhase = "loaded"
	PlaybackPlaying  PlaybackPhase = "playing"
	PlaybackPaused   PlaybackPhase = "paused"
)

// PlaybackState is derived from and synchronized to the media player.
type PlaybackState struct {
	Phase   PlaybackPhase `json:"phase"`
	Source  string        `json:"source,omitempty"`
	Loaded  bool          `json:"loaded"`
	Playing bool          `json:"playing"`
	Muted   bool          `json:"muted"`
}

// RecordingStatus summarizes the recorder state.
type RecordingStatus struct {
	State   RecordingState `json:"state"`
	Active  bool           `json:"active"`
	Message string         `json:"message,omitempty"`
}

// Snapshot is the orchestrator-owned view rendered by the UI.
type Snapshot struct {
	Transcript   string          `json:"transcript"`
	Reply        *AssistantReply `json:"reply,omitempty"`
	Playback     PlaybackState   `json:"playback"`
	Error        string          `json:"error,omitempty"`
	Transcribing bool            `json:"transcribing"`
	Replying     bool            `json:"replying"`
}
