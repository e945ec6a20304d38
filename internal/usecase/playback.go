package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"voicestage/internal/domain"
	"voicestage/internal/metrics"
	"voicestage/internal/ports"
)

// PlaybackController keeps PlaybackState synchronized with the media player.
// Mute is orthogonal to the unloaded/loaded/playing/paused phase.
type PlaybackController struct {
	player  ports.MediaPlayer
	events  ports.EventSink
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu         sync.Mutex
	state      domain.PlaybackState
	generation uint64
}

func NewPlaybackController(player ports.MediaPlayer, events ports.EventSink, m *metrics.Metrics, logger zerolog.Logger) *PlaybackController {
	return &PlaybackController{
		player:  player,
		events:  events,
		metrics: m,
		logger:  logger.With().Str("component", "playback").Logger(),
		state:   domain.PlaybackState{Phase: domain.PlaybackUnloaded},
	}
}

// Prepare starts switching to a new source: the previous media is unloaded
// and its position discarded. The returned generation identifies the pending
// load for Install.
func (c *PlaybackController) Prepare() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.unloadLocked()
	return c.generation
}

// Open fetches and decodes source. It holds no lock and may be slow.
func (c *PlaybackController) Open(ctx context.Context, source string) (ports.Media, error) {
	return c.player.Open(ctx, source)
}

// Install loads media opened for generation. It reports false, and closes the
// media, when a newer Prepare or Unload superseded the load.
func (c *PlaybackController) Install(generation uint64, media ports.Media, openErr error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		if media != nil {
			_ = media.Close()
		}
		return false, nil
	}
	if openErr != nil {
		return true, fmt.Errorf("failed to load reply audio: %w", openErr)
	}
	if err := c.player.Load(media, func() { c.handleEnded(generation) }); err != nil {
		return true, fmt.Errorf("failed to load reply audio: %w", err)
	}
	if c.state.Muted {
		if err := c.player.SetMuted(true); err != nil {
			c.logger.Warn().Err(err).Msg("failed to carry mute to new source")
		}
	}

	c.state = domain.PlaybackState{
		Phase:  domain.PlaybackLoaded,
		Source: media.Source(),
		Loaded: true,
		Muted:  c.state.Muted,
	}
	c.logger.Debug().Str("source", media.Source()).Msg("reply audio loaded")
	c.emitLocked()
	return true, nil
}

// Unload drops the current source and any pending load; playback controls
// become unavailable.
func (c *PlaybackController) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.unloadLocked()
}

func (c *PlaybackController) unloadLocked() {
	if c.state.Phase == domain.PlaybackUnloaded {
		return
	}
	if err := c.player.Load(nil, nil); err != nil {
		c.logger.Warn().Err(err).Msg("failed to unload reply audio")
	}
	c.state = domain.PlaybackState{Phase: domain.PlaybackUnloaded, Muted: c.state.Muted}
	c.emitLocked()
}

// TogglePlay plays from loaded/paused and pauses while playing.
func (c *PlaybackController) TogglePlay(ctx context.Context) (domain.PlaybackState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Phase {
	case domain.PlaybackUnloaded:
		return c.state, domain.ErrNoMedia
	case domain.PlaybackPlaying:
		if err := c.player.Pause(); err != nil {
			return c.state, fmt.Errorf("failed to pause reply audio: %w", err)
		}
		c.metrics.PlaybackAction("pause")
		c.setPhaseLocked(domain.PlaybackPaused)
	default:
		if err := c.player.Play(ctx); err != nil {
			return c.state, fmt.Errorf("failed to play reply audio: %w", err)
		}
		c.metrics.PlaybackAction("play")
		c.setPhaseLocked(domain.PlaybackPlaying)
	}
	c.emitLocked()
	return c.state, nil
}

// ToggleMute flips muted without touching the play phase.
func (c *PlaybackController) ToggleMute() (domain.PlaybackState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	muted := !c.state.Muted
	if c.state.Phase != domain.PlaybackUnloaded {
		if err := c.player.SetMuted(muted); err != nil {
			return c.state, fmt.Errorf("failed to toggle mute: %w", err)
		}
	}
	c.metrics.PlaybackAction("mute")
	c.state.Muted = muted
	c.emitLocked()
	return c.state, nil
}

// State returns the current playback state.
func (c *PlaybackController) State() domain.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases the underlying player.
func (c *PlaybackController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.player.Close()
}

// handleEnded treats natural end of media like a manual pause. Callbacks from
// a previously loaded source are ignored.
func (c *PlaybackController) handleEnded(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation || c.state.Phase != domain.PlaybackPlaying {
		return
	}
	c.setPhaseLocked(domain.PlaybackPaused)
	c.emitLocked()
}

// setPhaseLocked keeps Playing in step with Phase.
func (c *PlaybackController) setPhaseLocked(phase domain.PlaybackPhase) {
	c.state.Phase = phase
	c.state.Playing = phase == domain.PlaybackPlaying
}

func (c *PlaybackController) emitLocked() {
	c.events.PlaybackChanged(c.state)
}
