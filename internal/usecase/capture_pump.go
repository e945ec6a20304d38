package usecase

import (
	"errors"
	"fmt"
	"io"
	"os"

	"voicestage/internal/domain"
	"voicestage/internal/ports"
)

// pumpFragments copies capture output into the recording buffer and the
// energy analyzer until the session ends.
func pumpFragments(
	capture ports.CaptureSession,
	buffer *recordingBuffer,
	analyzer io.Writer,
	chunkSize int,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := capture.Read(buf)
		if n > 0 {
			buffer.Append(buf[:n])
			if analyzer != nil {
				_, _ = analyzer.Write(buf[:n])
			}
		}
		if err != nil {
			if !isEndOfCapture(err) {
				events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

// isEndOfCapture reports errors produced by a normal stop.
func isEndOfCapture(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
