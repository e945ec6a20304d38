package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"voicestage/internal/domain"
	"voicestage/internal/metrics"
	"voicestage/internal/ports"
)

// StageConfig controls orchestration policy.
type StageConfig struct {
	StalePolicy StalePolicy
}

// Stage owns the transcript, the assistant reply and the last error. Every
// mutation runs on a single event loop; asynchronous requests post exactly one
// completion event back into it.
type Stage struct {
	transcription *TranscriptionClient
	replies       *ReplyPipeline
	playback      *PlaybackController
	events        ports.EventSink
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	cfg           StageConfig

	ops   chan func(*stageState)
	quit  chan struct{}
	done  chan struct{}
	state stageState

	ctx       context.Context
	cancel    context.CancelFunc
	inFlight  sync.WaitGroup
	closeOnce sync.Once
}

type stageState struct {
	transcript string
	reply      *domain.AssistantReply
	err        string

	transcriptions requestSequence
	replies        requestSequence
}

func NewStage(
	transcription *TranscriptionClient,
	replies *ReplyPipeline,
	playback *PlaybackController,
	events ports.EventSink,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg StageConfig,
) *Stage {
	if cfg.StalePolicy == "" {
		cfg.StalePolicy = StaleDiscard
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stage{
		transcription: transcription,
		replies:       replies,
		playback:      playback,
		events:        events,
		metrics:       m,
		logger:        logger.With().Str("component", "stage").Logger(),
		cfg:           cfg,
		ops:           make(chan func(*stageState)),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
	go s.run()
	return s
}

func (s *Stage) run() {
	defer close(s.done)
	for {
		select {
		case op := <-s.ops:
			op(&s.state)
		case <-s.quit:
			return
		}
	}
}

// apply runs op on the event loop and waits for it. It returns false once the
// stage is closed.
func (s *Stage) apply(op func(*stageState)) bool {
	finished := make(chan struct{})
	select {
	case s.ops <- func(st *stageState) {
		defer close(finished)
		op(st)
	}:
	case <-s.quit:
		return false
	}
	<-finished
	return true
}

// HandleClip dispatches a finished recording for transcription without
// waiting for the network round-trip.
func (s *Stage) HandleClip(clip domain.Clip) {
	s.apply(func(st *stageState) {
		token := st.transcriptions.next()
		s.inFlight.Add(1)
		go func() {
			defer s.inFlight.Done()
			text, err := s.transcription.Transcribe(s.ctx, clip)
			s.apply(func(st *stageState) {
				s.completeTranscription(st, token, text, err)
			})
		}()
	})
}

func (s *Stage) completeTranscription(st *stageState, token uint64, text string, err error) {
	latest := st.transcriptions.complete(token)
	if !latest && s.cfg.StalePolicy == StaleDiscard {
		s.metrics.StaleResponse(metrics.PipelineTranscription)
		s.logger.Debug().Uint64("token", token).Msg("discarding stale transcription")
		return
	}
	if err != nil {
		s.failLocked(st, err, domain.ErrorCodeService)
		return
	}
	st.transcript = text
	st.err = ""
	s.events.TranscriptChanged(text)
}

// SetTranscript records a manual edit.
func (s *Stage) SetTranscript(text string) {
	s.apply(func(st *stageState) {
		st.transcript = text
		s.events.TranscriptChanged(text)
	})
}

// Submit requests a reply for the current transcript. The request runs in the
// background; blank transcripts fail immediately with ErrEmptyInput.
func (s *Stage) Submit() error {
	var submitErr error
	ok := s.apply(func(st *stageState) {
		text := strings.TrimSpace(st.transcript)
		if text == "" {
			submitErr = domain.ErrEmptyInput
			s.failLocked(st, submitErr, domain.ErrorCodeEmptyInput)
			return
		}

		token := st.replies.next()
		st.err = ""
		s.inFlight.Add(1)
		go func() {
			defer s.inFlight.Done()
			reply, err := s.replies.GetReply(s.ctx, text)
			s.apply(func(st *stageState) {
				s.completeReply(st, token, reply, err)
			})
		}()
	})
	if !ok {
		return errors.New("stage is closed")
	}
	return submitErr
}

func (s *Stage) completeReply(st *stageState, token uint64, reply domain.AssistantReply, err error) {
	latest := st.replies.complete(token)
	if !latest && s.cfg.StalePolicy == StaleDiscard {
		s.metrics.StaleResponse(metrics.PipelineReply)
		s.logger.Debug().Uint64("token", token).Msg("discarding stale reply")
		return
	}
	if err != nil {
		s.failLocked(st, err, domain.ErrorCodeService)
		return
	}

	st.reply = &reply
	st.err = ""
	s.events.ReplyChanged(&reply)

	if !reply.HasAudio() {
		s.playback.Unload()
		return
	}
	s.loadAudio(reply.AudioURL)
}

// loadAudio unloads the previous reply audio on the loop and fetches the new
// source in the background. The result is applied only if no newer load or
// Clear happened meanwhile.
func (s *Stage) loadAudio(source string) {
	generation := s.playback.Prepare()
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		media, openErr := s.playback.Open(s.ctx, source)
		s.apply(func(st *stageState) {
			if current, err := s.playback.Install(generation, media, openErr); current && err != nil {
				s.failLocked(st, err, domain.ErrorCodePlayback)
			}
		})
	}()
}

// Clear resets transcript, reply and error. Outstanding requests become stale.
func (s *Stage) Clear() {
	s.apply(func(st *stageState) {
		st.transcript = ""
		st.reply = nil
		st.err = ""
		st.transcriptions.invalidate()
		st.replies.invalidate()
		s.playback.Unload()
		s.events.TranscriptChanged("")
		s.events.ReplyChanged(nil)
	})
}

// TogglePlay plays or pauses the reply audio.
func (s *Stage) TogglePlay(ctx context.Context) (domain.PlaybackState, error) {
	state, err := s.playback.TogglePlay(ctx)
	if err != nil {
		s.reportError(err)
	}
	return state, err
}

// ToggleMute mutes or unmutes the reply audio.
func (s *Stage) ToggleMute() (domain.PlaybackState, error) {
	state, err := s.playback.ToggleMute()
	if err != nil {
		s.reportError(err)
	}
	return state, err
}

// Snapshot returns a copy of the orchestrator-owned state.
func (s *Stage) Snapshot() domain.Snapshot {
	var snap domain.Snapshot
	s.apply(func(st *stageState) {
		snap = domain.Snapshot{
			Transcript:   st.transcript,
			Error:        st.err,
			Transcribing: st.transcriptions.busy(),
			Replying:     st.replies.busy(),
		}
		if st.reply != nil {
			reply := *st.reply
			snap.Reply = &reply
		}
	})
	snap.Playback = s.playback.State()
	return snap
}

// Wait blocks until every dispatched request has posted its completion.
func (s *Stage) Wait() {
	s.inFlight.Wait()
}

// Close cancels outstanding requests and stops the event loop.
func (s *Stage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.inFlight.Wait()
		close(s.quit)
		<-s.done
		err = s.playback.Close()
	})
	return err
}

func (s *Stage) reportError(err error) {
	s.apply(func(st *stageState) {
		s.failLocked(st, err, domain.ErrorCodePlayback)
	})
}

// failLocked surfaces err to the user without touching transcript or reply.
func (s *Stage) failLocked(st *stageState, err error, fallback domain.ErrorCode) {
	st.err = err.Error()
	s.events.SessionError(domain.ErrorCodeFor(err, fallback), err.Error())
}
