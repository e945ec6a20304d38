package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"voicestage/internal/domain"
)

func newPlaybackFixture() (*PlaybackController, *fakePlayer, *fakeEventSink) {
	player := &fakePlayer{}
	events := &fakeEventSink{}
	return NewPlaybackController(player, events, nil, zerolog.Nop()), player, events
}

// load runs the prepare, open and install steps the stage spreads across
// its event loop.
func load(controller *PlaybackController, source string) error {
	generation := controller.Prepare()
	media, err := controller.Open(context.Background(), source)
	_, err = controller.Install(generation, media, err)
	return err
}

func TestPlaybackTogglePlayCycle(t *testing.T) {
	t.Parallel()

	controller, player, _ := newPlaybackFixture()
	if err := load(controller, "blob://x"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if state := controller.State(); state.Phase != domain.PlaybackLoaded || !state.Loaded || state.Source != "blob://x" {
		t.Fatalf("unexpected state after load: %+v", state)
	}

	state, err := controller.TogglePlay(context.Background())
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if state.Phase != domain.PlaybackPlaying || !state.Playing || !player.playing {
		t.Fatalf("expected playing, got %+v", state)
	}

	state, err = controller.TogglePlay(context.Background())
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if state.Phase != domain.PlaybackPaused || state.Playing || player.playing {
		t.Fatalf("expected paused, got %+v", state)
	}

	state, err = controller.TogglePlay(context.Background())
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if state.Phase != domain.PlaybackPlaying {
		t.Fatalf("expected playing after resume, got %+v", state)
	}
}

func TestPlaybackEndedBehavesLikePause(t *testing.T) {
	t.Parallel()

	controller, player, events := newPlaybackFixture()
	if err := load(controller, "blob://x"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := controller.TogglePlay(context.Background()); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	player.end()

	if state := controller.State(); state.Phase != domain.PlaybackPaused || state.Playing {
		t.Fatalf("expected paused after end, got %+v", state)
	}
	updates := events.snapshotPlayback()
	if updates[len(updates)-1].Phase != domain.PlaybackPaused {
		t.Fatalf("expected paused event, got %+v", updates[len(updates)-1])
	}
}

func TestPlaybackIgnoresEndedFromPreviousSource(t *testing.T) {
	t.Parallel()

	controller, player, _ := newPlaybackFixture()
	if err := load(controller, "blob://old"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	player.mu.Lock()
	staleEnded := player.onEnded
	player.mu.Unlock()

	if err := load(controller, "blob://new"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := controller.TogglePlay(context.Background()); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	staleEnded()

	if state := controller.State(); state.Phase != domain.PlaybackPlaying {
		t.Fatalf("stale ended callback changed phase to %s", state.Phase)
	}
}

func TestPlaybackMuteIsOrthogonal(t *testing.T) {
	t.Parallel()

	controller, player, _ := newPlaybackFixture()
	if err := load(controller, "blob://x"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := controller.TogglePlay(context.Background()); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	state, err := controller.ToggleMute()
	if err != nil {
		t.Fatalf("mute failed: %v", err)
	}
	if !state.Muted || state.Phase != domain.PlaybackPlaying {
		t.Fatalf("mute changed play phase: %+v", state)
	}
	if !player.muted {
		t.Fatalf("expected player to be muted")
	}

	state, err = controller.ToggleMute()
	if err != nil {
		t.Fatalf("unmute failed: %v", err)
	}
	if state.Muted || state.Phase != domain.PlaybackPlaying {
		t.Fatalf("unexpected state after unmute: %+v", state)
	}
}

func TestPlaybackMutedPersistsAcrossLoads(t *testing.T) {
	t.Parallel()

	controller, player, _ := newPlaybackFixture()
	if err := load(controller, "blob://a"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := controller.ToggleMute(); err != nil {
		t.Fatalf("mute failed: %v", err)
	}
	if err := load(controller, "blob://b"); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	state := controller.State()
	if !state.Muted {
		t.Fatalf("expected muted to survive a new source")
	}
	if !player.muted {
		t.Fatalf("expected player to stay muted")
	}
	if state.Phase != domain.PlaybackLoaded {
		t.Fatalf("expected loaded, got %s", state.Phase)
	}
}

func TestPlaybackUnloadedRejectsPlay(t *testing.T) {
	t.Parallel()

	controller, _, _ := newPlaybackFixture()
	_, err := controller.TogglePlay(context.Background())
	if !errors.Is(err, domain.ErrNoMedia) {
		t.Fatalf("expected ErrNoMedia, got %v", err)
	}

	if err := load(controller, "blob://x"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	controller.Unload()
	if _, err := controller.TogglePlay(context.Background()); !errors.Is(err, domain.ErrNoMedia) {
		t.Fatalf("expected ErrNoMedia after unload, got %v", err)
	}
}

func TestPlaybackLoadFailureLeavesUnloaded(t *testing.T) {
	t.Parallel()

	controller, player, _ := newPlaybackFixture()
	player.loadErr = errors.New("unsupported format")

	if err := load(controller, "blob://x"); err == nil {
		t.Fatalf("expected load error")
	}
	if state := controller.State(); state.Phase != domain.PlaybackUnloaded || state.Loaded {
		t.Fatalf("expected unloaded, got %+v", state)
	}
}

func TestPlaybackPlayFailureKeepsPhase(t *testing.T) {
	t.Parallel()

	controller, player, _ := newPlaybackFixture()
	if err := load(controller, "blob://x"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	player.playErr = errors.New("output busy")

	state, err := controller.TogglePlay(context.Background())
	if err == nil {
		t.Fatalf("expected play error")
	}
	if state.Phase != domain.PlaybackLoaded {
		t.Fatalf("expected loaded after failed play, got %s", state.Phase)
	}
}

func TestPlaybackSupersededInstallIsDropped(t *testing.T) {
	t.Parallel()

	controller, player, _ := newPlaybackFixture()
	first := controller.Prepare()
	firstMedia, firstErr := controller.Open(context.Background(), "blob://first")

	if err := load(controller, "blob://second"); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	current, err := controller.Install(first, firstMedia, firstErr)
	if current || err != nil {
		t.Fatalf("expected superseded install to be ignored, got current=%v err=%v", current, err)
	}
	if state := controller.State(); state.Source != "blob://second" || state.Phase != domain.PlaybackLoaded {
		t.Fatalf("superseded media replaced the newer source: %+v", state)
	}
	player.mu.Lock()
	closed := player.closedMedia
	player.mu.Unlock()
	if closed != 1 {
		t.Fatalf("expected superseded media to be closed, got %d", closed)
	}
}

func TestPlaybackUnloadCancelsPendingLoad(t *testing.T) {
	t.Parallel()

	controller, _, _ := newPlaybackFixture()
	generation := controller.Prepare()
	media, openErr := controller.Open(context.Background(), "blob://x")

	controller.Unload()

	if current, _ := controller.Install(generation, media, openErr); current {
		t.Fatalf("expected unload to supersede the pending load")
	}
	if state := controller.State(); state.Phase != domain.PlaybackUnloaded {
		t.Fatalf("expected unloaded, got %s", state.Phase)
	}
}
