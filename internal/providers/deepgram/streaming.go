package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voicestage/internal/domain"
)

const collaborator = "transcription"

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	ChunkSize   int
}

// Transcriber implements ports.Transcriber by replaying a finished clip over
// Deepgram's live websocket and collecting the final results.
type Transcriber struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger
}

func NewTranscriber(cfg Config, logger zerolog.Logger) *Transcriber {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8192
	}
	return &Transcriber{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: logger.With().Str("component", "deepgram").Logger(),
	}
}

func (t *Transcriber) Transcribe(ctx context.Context, clip domain.Clip) (string, error) {
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return "", errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(t.cfg, clip)
	if err != nil {
		return "", err
	}

	session, err := t.open(ctx, wsURL)
	if err != nil {
		return "", err
	}
	defer session.Close()

	pcm := pcmPayload(clip)
	for start := 0; start < len(pcm); start += t.cfg.ChunkSize {
		end := min(start+t.cfg.ChunkSize, len(pcm))
		if err := session.SendAudio(pcm[start:end]); err != nil {
			return "", sessionError(err)
		}
	}
	if err := session.CloseSend(); err != nil {
		return "", sessionError(err)
	}

	var aggregator transcriptAggregator
	for event := range session.Events() {
		aggregator.Add(event)
	}
	err = session.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &domain.NetworkError{Collaborator: collaborator, Err: ctxErr}
	}
	if err != nil {
		return "", err
	}

	text := aggregator.Raw()
	t.logger.Debug().Int("bytes", len(pcm)).Int("chars", len(text)).Msg("deepgram transcription done")
	return text, nil
}

func (t *Transcriber) open(ctx context.Context, wsURL string) (*streamingSession, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.cfg.APIKey)

	conn, resp, err := t.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, &domain.ServiceError{
				Collaborator: collaborator,
				Status:       resp.StatusCode,
				Body:         strings.TrimSpace(string(body)),
			}
		}
		return nil, &domain.NetworkError{Collaborator: collaborator, Err: err}
	}

	session := &streamingSession{
		conn:    conn,
		events:  make(chan transcriptEvent, 64),
		audio:   make(chan []byte, 32),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

// sessionError keeps errors the session already classified and wraps the
// rest as network failures.
func sessionError(err error) error {
	var serviceErr *domain.ServiceError
	var networkErr *domain.NetworkError
	if errors.As(err, &serviceErr) || errors.As(err, &networkErr) {
		return err
	}
	return &domain.NetworkError{Collaborator: collaborator, Err: err}
}

// pcmPayload strips the RIFF header so Deepgram receives raw linear16.
func pcmPayload(clip domain.Clip) []byte {
	data := clip.Data
	if len(data) >= 44 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return data[44:]
	}
	return data
}

type streamingSession struct {
	conn *websocket.Conn

	events  chan transcriptEvent
	audio   chan []byte
	done    chan struct{}
	closing chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// CloseSend ends the audio stream. It reports a failure the session already
// hit while reading or writing.
func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return s.waitErr()
}

func (s *streamingSession) Events() <-chan transcriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(&domain.NetworkError{Collaborator: collaborator, Err: fmt.Errorf("failed to send audio: %w", err)})
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(&domain.NetworkError{Collaborator: collaborator, Err: fmt.Errorf("failed to close stream: %w", err)})
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(&domain.NetworkError{Collaborator: collaborator, Err: fmt.Errorf("failed to read provider event: %w", err)})
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(&domain.ServiceError{Collaborator: collaborator, Status: http.StatusBadGateway, Body: message})
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}
		s.emit(transcriptEvent{Text: transcript, Final: response.IsFinal || response.SpeechFinal})
	}
}

// emit waits for the consumer so no final result is dropped.
func (s *streamingSession) emit(event transcriptEvent) {
	select {
	case s.events <- event:
	case <-s.closing:
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(cfg Config, clip domain.Clip) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	sampleRate := clip.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := clip.Channels
	if channels <= 0 {
		channels = 1
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	query.Set("channels", fmt.Sprintf("%d", channels))
	query.Set("interim_results", "false")
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
