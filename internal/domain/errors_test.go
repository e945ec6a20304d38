package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"permission", &CaptureError{Kind: ErrPermissionDenied, Err: errors.New("EACCES")}, ErrorCodePermissionDenied},
		{"device", &CaptureError{Kind: ErrDeviceUnavailable}, ErrorCodeDeviceUnavailable},
		{"empty", fmt.Errorf("reply: %w", ErrEmptyInput), ErrorCodeEmptyInput},
		{"no media", ErrNoMedia, ErrorCodePlayback},
		{"service", &ServiceError{Collaborator: "reply", Status: 500}, ErrorCodeService},
		{"network", &NetworkError{Collaborator: "reply", Err: errors.New("refused")}, ErrorCodeNetwork},
		{"other", errors.New("decode failed"), ErrorCodeEncoding},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorCodeFor(tc.err, ErrorCodeEncoding); got != tc.want {
				t.Fatalf("unexpected code: %s", got)
			}
		})
	}
}

func TestCaptureErrorUnwrapsBothKindAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("exit status 1")
	err := fmt.Errorf("start: %w", &CaptureError{Kind: ErrDeviceUnavailable, Err: cause})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected underlying cause")
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("unexpected permission kind")
	}
}

func TestServiceErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ServiceError{Collaborator: "transcription", Status: 502, Body: "bad gateway"}
	if err.Error() != "transcription error: 502 bad gateway" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if !err.IsServerError() {
		t.Fatalf("expected server error")
	}
	if (&ServiceError{Collaborator: "reply", Status: 404}).Error() != "reply error: 404" {
		t.Fatalf("unexpected bodyless message")
	}
}
