// Package playback plays reply audio through the system speaker.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/rs/zerolog"

	"voicestage/internal/ports"
)

const maxAudioBytes = 32 << 20

// output is the mixer the player streams into.
type output interface {
	Init(rate beep.SampleRate) error
	Play(s beep.Streamer)
	Lock()
	Unlock()
	Clear()
}

type speakerOutput struct{}

func (speakerOutput) Init(rate beep.SampleRate) error {
	return speaker.Init(rate, rate.N(time.Second/10))
}

func (speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerOutput) Lock()                { speaker.Lock() }
func (speakerOutput) Unlock()              { speaker.Unlock() }
func (speakerOutput) Clear()               { speaker.Clear() }

// BeepPlayer implements ports.MediaPlayer with faiface/beep.
type BeepPlayer struct {
	httpClient *http.Client
	out        output
	logger     zerolog.Logger

	mu         sync.Mutex
	rate       beep.SampleRate
	track      *track
	generation uint64
	muted      bool
}

type track struct {
	decoded  beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	onEnded  func()
	finished bool
}

func NewBeepPlayer(httpClient *http.Client, logger zerolog.Logger) *BeepPlayer {
	return newBeepPlayer(httpClient, speakerOutput{}, logger)
}

func newBeepPlayer(httpClient *http.Client, out output, logger zerolog.Logger) *BeepPlayer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &BeepPlayer{
		httpClient: httpClient,
		out:        out,
		logger:     logger.With().Str("component", "beep_player").Logger(),
	}
}

// decodedMedia is a fetched reply resource held in memory.
type decodedMedia struct {
	source  string
	decoded beep.StreamSeekCloser
	format  beep.Format
}

func (m *decodedMedia) Source() string { return m.source }
func (m *decodedMedia) Close() error   { return m.decoded.Close() }

// Open fetches and decodes source. It does not hold the player lock, so the
// current track keeps playing while the next one downloads.
func (p *BeepPlayer) Open(ctx context.Context, source string) (ports.Media, error) {
	data, err := p.fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	decoded, format, err := decode(source, data)
	if err != nil {
		return nil, err
	}
	return &decodedMedia{source: source, decoded: decoded, format: format}, nil
}

// Load replaces the current track with media opened by this player. A nil
// media unloads.
func (p *BeepPlayer) Load(media ports.Media, onEnded func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.releaseLocked()
	if media == nil {
		return nil
	}
	m, ok := media.(*decodedMedia)
	if !ok {
		_ = media.Close()
		return fmt.Errorf("unsupported media %T", media)
	}

	if p.rate == 0 {
		if err := p.out.Init(m.format.SampleRate); err != nil {
			_ = m.Close()
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		p.rate = m.format.SampleRate
	}

	t := &track{decoded: m.decoded, format: m.format, onEnded: onEnded}
	t.ctrl = &beep.Ctrl{Streamer: p.sequence(t, p.generation), Paused: true}
	t.volume = &effects.Volume{Streamer: t.ctrl, Base: 2, Silent: p.muted}
	p.track = t

	p.out.Play(t.volume)
	p.logger.Debug().
		Str("source", m.source).
		Int("sample_rate", int(m.format.SampleRate)).
		Dur("length", m.format.SampleRate.D(m.decoded.Len())).
		Msg("reply audio loaded")
	return nil
}

// sequence plays the track once, reports the end, then streams silence so
// the mixer keeps the track for a replay.
func (p *BeepPlayer) sequence(t *track, generation uint64) beep.Streamer {
	var s beep.Streamer = t.decoded
	if t.format.SampleRate != p.rate {
		s = beep.Resample(4, t.format.SampleRate, p.rate, s)
	}
	return beep.Seq(s, beep.Callback(func() {
		go p.handleEnded(generation)
	}), beep.Silence(-1))
}

func (p *BeepPlayer) Play(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.track
	if t == nil {
		return errors.New("no audio loaded")
	}

	p.out.Lock()
	defer p.out.Unlock()
	if t.finished {
		if err := t.decoded.Seek(0); err != nil {
			return fmt.Errorf("failed to rewind reply audio: %w", err)
		}
		t.finished = false
		t.ctrl.Streamer = p.sequence(t, p.generation)
	}
	t.ctrl.Paused = false
	return nil
}

func (p *BeepPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.track == nil {
		return errors.New("no audio loaded")
	}
	p.out.Lock()
	p.track.ctrl.Paused = true
	p.out.Unlock()
	return nil
}

func (p *BeepPlayer) SetMuted(muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.muted = muted
	if p.track == nil {
		return nil
	}
	p.out.Lock()
	p.track.volume.Silent = muted
	p.out.Unlock()
	return nil
}

func (p *BeepPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.releaseLocked()
	return nil
}

func (p *BeepPlayer) handleEnded(generation uint64) {
	p.mu.Lock()
	if generation != p.generation || p.track == nil {
		p.mu.Unlock()
		return
	}
	p.track.finished = true
	p.out.Lock()
	p.track.ctrl.Paused = true
	p.out.Unlock()
	onEnded := p.track.onEnded
	p.mu.Unlock()

	if onEnded != nil {
		onEnded()
	}
}

func (p *BeepPlayer) releaseLocked() {
	if p.track == nil {
		return
	}
	if p.rate != 0 {
		p.out.Clear()
	}
	if err := p.track.decoded.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("failed to close decoder")
	}
	p.track = nil
}

// fetch reads an http(s) URL, a file URL, or a local path into memory.
func (p *BeepPlayer) fetch(ctx context.Context, source string) ([]byte, error) {
	parsed, err := url.Parse(source)
	if err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch reply audio: %w", err)
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch reply audio: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("failed to fetch reply audio: status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	}

	path := source
	if err == nil && parsed.Scheme == "file" {
		path = parsed.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply audio: %w", err)
	}
	return data, nil
}

type seekNopCloser struct {
	*bytes.Reader
}

func (seekNopCloser) Close() error { return nil }

func decode(source string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	reader := seekNopCloser{bytes.NewReader(data)}
	if bytes.HasPrefix(data, []byte("RIFF")) || strings.HasSuffix(strings.ToLower(source), ".wav") {
		s, format, err := wav.Decode(reader)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("failed to decode wav: %w", err)
		}
		return s, format, nil
	}
	s, format, err := mp3.Decode(reader)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode mp3: %w", err)
	}
	return s, format, nil
}
