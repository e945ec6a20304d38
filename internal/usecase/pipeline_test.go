package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voicestage/internal/domain"
)

func TestReplyPipelineEmptyInputSendsNothing(t *testing.T) {
	t.Parallel()

	service := &fakeReplyService{}
	pipeline := NewReplyPipeline(service, nil, zerolog.Nop(), time.Second)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := pipeline.GetReply(context.Background(), text)
		if !errors.Is(err, domain.ErrEmptyInput) {
			t.Fatalf("expected ErrEmptyInput for %q, got %v", text, err)
		}
	}
	if service.callCount() != 0 {
		t.Fatalf("expected no requests, got %d", service.callCount())
	}
}

func TestReplyPipelineTrimsInputAndReply(t *testing.T) {
	t.Parallel()

	service := &fakeReplyService{fn: func(_ context.Context, text string) (domain.AssistantReply, error) {
		return domain.AssistantReply{Text: "  hi " + text + "  ", AudioURL: " /audio/a.mp3 "}, nil
	}}
	pipeline := NewReplyPipeline(service, nil, zerolog.Nop(), time.Second)

	reply, err := pipeline.GetReply(context.Background(), "  there ")
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if reply.Text != "hi there" {
		t.Fatalf("unexpected text: %q", reply.Text)
	}
	if reply.AudioURL != "/audio/a.mp3" || !reply.HasAudio() {
		t.Fatalf("unexpected audio url: %q", reply.AudioURL)
	}
	if service.texts[0] != "there" {
		t.Fatalf("expected trimmed request text, got %q", service.texts[0])
	}
}

func TestReplyPipelineAppliesTimeout(t *testing.T) {
	t.Parallel()

	service := &fakeReplyService{fn: func(ctx context.Context, _ string) (domain.AssistantReply, error) {
		<-ctx.Done()
		return domain.AssistantReply{}, &domain.NetworkError{Collaborator: "reply", Err: ctx.Err()}
	}}
	pipeline := NewReplyPipeline(service, nil, zerolog.Nop(), 20*time.Millisecond)

	_, err := pipeline.GetReply(context.Background(), "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestTranscriptionClientTrimsText(t *testing.T) {
	t.Parallel()

	transcriber := &fakeTranscriber{fn: func(_ context.Context, _ domain.Clip) (string, error) {
		return "  hello world \n", nil
	}}
	client := NewTranscriptionClient(transcriber, nil, zerolog.Nop(), time.Second)

	text, err := client.Transcribe(context.Background(), domain.Clip{Data: []byte("pcm")})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestTranscriptionClientForwardsEmptyClip(t *testing.T) {
	t.Parallel()

	transcriber := &fakeTranscriber{fn: func(_ context.Context, clip domain.Clip) (string, error) {
		if clip.Len() != 0 {
			t.Errorf("expected empty clip, got %d bytes", clip.Len())
		}
		return "", nil
	}}
	client := NewTranscriptionClient(transcriber, nil, zerolog.Nop(), 0)

	if _, err := client.Transcribe(context.Background(), domain.Clip{}); err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if transcriber.calls != 1 {
		t.Fatalf("expected the empty clip to be sent, got %d calls", transcriber.calls)
	}
}

func TestOutcomeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{domain.ErrEmptyInput, "empty_input"},
		{context.Canceled, "canceled"},
		{&domain.ServiceError{Collaborator: "reply", Status: 500}, "server_error"},
		{&domain.ServiceError{Collaborator: "transcription", Status: 415, Body: "unsupported"}, "rejected"},
		{&domain.NetworkError{Collaborator: "reply", Err: errors.New("refused")}, "network_error"},
		{errors.New("other"), "error"},
	}
	for _, tc := range cases {
		if got := outcomeFor(tc.err); got != tc.want {
			t.Fatalf("outcomeFor(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
