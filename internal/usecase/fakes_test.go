package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"voicestage/internal/domain"
	"voicestage/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*fakeCaptureSession
	err      error
	starts   int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.CaptureSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sessions) == 0 {
		return nil, errors.New("no fake capture session")
	}
	session := f.sessions[0]
	f.sessions = f.sessions[1:]
	return session, nil
}

// fakeCaptureSession yields its chunks, then blocks until stopped.
type fakeCaptureSession struct {
	mu      sync.Mutex
	id      string
	chunks  [][]byte
	stopErr error
	stops   int

	once    sync.Once
	stopped chan struct{}
}

func newFakeCaptureSession(id string, chunks ...[]byte) *fakeCaptureSession {
	return &fakeCaptureSession{id: id, chunks: chunks, stopped: make(chan struct{})}
}

func (f *fakeCaptureSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	if len(f.chunks) > 0 {
		chunk := f.chunks[0]
		f.chunks = f.chunks[1:]
		f.mu.Unlock()
		return copy(p, chunk), nil
	}
	f.mu.Unlock()

	<-f.stopped
	return 0, io.EOF
}

func (f *fakeCaptureSession) ID() string { return f.id }

func (f *fakeCaptureSession) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.once.Do(func() { close(f.stopped) })
	return f.stopErr
}

func (f *fakeCaptureSession) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeAnalyzers struct {
	mu        sync.Mutex
	analyzers []*fakeAnalyzer
}

func (f *fakeAnalyzers) Start(_ context.Context, sink func(level float64)) ports.EnergyAnalyzer {
	f.mu.Lock()
	defer f.mu.Unlock()
	analyzer := &fakeAnalyzer{sink: sink}
	f.analyzers = append(f.analyzers, analyzer)
	return analyzer
}

func (f *fakeAnalyzers) last() *fakeAnalyzer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.analyzers) == 0 {
		return nil
	}
	return f.analyzers[len(f.analyzers)-1]
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	sink    func(level float64)
	written int
	stopped bool
}

func (f *fakeAnalyzer) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written += len(p)
	return len(p), nil
}

func (f *fakeAnalyzer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAnalyzer) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeEncoder struct {
	mu  sync.Mutex
	pcm [][]byte
	err error
}

func (f *fakeEncoder) Encode(pcm []byte, cfg ports.AudioConfig) (domain.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pcm = append(f.pcm, append([]byte(nil), pcm...))
	if f.err != nil {
		return domain.Clip{}, f.err
	}
	return domain.Clip{
		Data:        append([]byte(nil), pcm...),
		ContentType: "audio/wav",
		Filename:    "clip.wav",
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
	}, nil
}

type fakeClipHandler struct {
	mu    sync.Mutex
	clips []domain.Clip
}

func (f *fakeClipHandler) HandleClip(clip domain.Clip) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = append(f.clips, clip)
}

func (f *fakeClipHandler) snapshot() []domain.Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Clip, len(f.clips))
	copy(out, f.clips)
	return out
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, clip domain.Clip) (string, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, clip domain.Clip) (string, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return string(clip.Data), nil
	}
	return fn(ctx, clip)
}

type fakeReplyService struct {
	mu    sync.Mutex
	texts []string
	fn    func(ctx context.Context, text string) (domain.AssistantReply, error)
}

func (f *fakeReplyService) Reply(ctx context.Context, text string) (domain.AssistantReply, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return domain.AssistantReply{Text: "You said: " + text}, nil
	}
	return fn(ctx, text)
}

func (f *fakeReplyService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fakePlayer struct {
	mu      sync.Mutex
	source  string
	onEnded func()
	playing bool
	muted   bool
	loads   []string
	loadErr error
	playErr error
	closed  bool
	// openGate, when set, holds Open until it is closed or ctx ends.
	openGate    chan struct{}
	closedMedia int
}

type fakeMedia struct {
	player *fakePlayer
	source string
}

func (m *fakeMedia) Source() string { return m.source }

func (m *fakeMedia) Close() error {
	m.player.mu.Lock()
	defer m.player.mu.Unlock()
	m.player.closedMedia++
	return nil
}

func (f *fakePlayer) Open(ctx context.Context, source string) (ports.Media, error) {
	f.mu.Lock()
	gate := f.openGate
	loadErr := f.loadErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if loadErr != nil {
		return nil, loadErr
	}
	return &fakeMedia{player: f, source: source}, nil
}

func (f *fakePlayer) Load(media ports.Media, onEnded func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	source := ""
	if media != nil {
		source = media.Source()
	}
	f.loads = append(f.loads, source)
	f.source = source
	f.onEnded = onEnded
	f.playing = false
	return nil
}

func (f *fakePlayer) snapshotLoads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loads...)
}

func (f *fakePlayer) Play(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}

func (f *fakePlayer) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}

func (f *fakePlayer) SetMuted(muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = muted
	return nil
}

func (f *fakePlayer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// end simulates the media reaching its natural end.
func (f *fakePlayer) end() {
	f.mu.Lock()
	f.playing = false
	onEnded := f.onEnded
	f.mu.Unlock()
	if onEnded != nil {
		onEnded()
	}
}

type fakeEventSink struct {
	mu sync.Mutex

	states      []stateEvent
	energy      []float64
	transcripts []string
	replies     []*domain.AssistantReply
	playback    []domain.PlaybackState
	errors      []errEvent
}

type stateEvent struct {
	state  domain.RecordingState
	reason domain.RecordingStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) RecordingStateChanged(state domain.RecordingState, reason domain.RecordingStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) EnergySample(level float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.energy = append(f.energy, level)
}

func (f *fakeEventSink) TranscriptChanged(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeEventSink) ReplyChanged(reply *domain.AssistantReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply)
}

func (f *fakeEventSink) PlaybackChanged(state domain.PlaybackState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playback = append(f.playback, state)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotPlayback() []domain.PlaybackState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PlaybackState, len(f.playback))
	copy(out, f.playback)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
