package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when the microphone cannot be opened due to access rights.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable is returned when no usable capture device or recorder exists.
	ErrDeviceUnavailable = errors.New("microphone not available")

	// ErrEmptyInput is returned by the reply pipeline for blank transcripts.
	ErrEmptyInput = errors.New("nothing to send: transcript is empty")

	// ErrNoMedia is returned by playback controls when the reply carries no audio.
	ErrNoMedia = errors.New("no reply audio loaded")

	// ErrNoActiveRecording is returned when discarding without a live recording.
	ErrNoActiveRecording = errors.New("no active recording")
)

// CaptureError wraps a capture start failure with its classification.
type CaptureError struct {
	Kind error
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ServiceError is a non-2xx response from a collaborator.
type ServiceError struct {
	Collaborator string
	Status       int
	Body         string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s error: %d", e.Collaborator, e.Status)
	}
	return fmt.Sprintf("%s error: %d %s", e.Collaborator, e.Status, e.Body)
}

// IsServerError returns true for 5xx responses.
func (e *ServiceError) IsServerError() bool {
	return e.Status >= 500 && e.Status < 600
}

// NetworkError is a transport failure talking to a collaborator.
type NetworkError struct {
	Collaborator string
	Err          error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Collaborator, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ErrorCodeFor maps an error onto the user-visible error taxonomy, returning
// fallback for errors outside it.
func ErrorCodeFor(err error, fallback ErrorCode) ErrorCode {
	var serviceErr *ServiceError
	var networkErr *NetworkError
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return ErrorCodePermissionDenied
	case errors.Is(err, ErrDeviceUnavailable):
		return ErrorCodeDeviceUnavailable
	case errors.Is(err, ErrEmptyInput):
		return ErrorCodeEmptyInput
	case errors.Is(err, ErrNoMedia):
		return ErrorCodePlayback
	case errors.As(err, &serviceErr):
		return ErrorCodeService
	case errors.As(err, &networkErr):
		return ErrorCodeNetwork
	default:
		return fallback
	}
}
