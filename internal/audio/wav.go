package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"voicestage/internal/domain"
	"voicestage/internal/ports"
)

const wavContentType = "audio/wav"

// WAVEncoder finalizes s16le PCM into a RIFF/WAVE clip.
type WAVEncoder struct{}

func NewWAVEncoder() WAVEncoder {
	return WAVEncoder{}
}

// Encode wraps pcm in a WAV container. Empty input yields a zero-length clip.
func (WAVEncoder) Encode(pcm []byte, cfg ports.AudioConfig) (domain.Clip, error) {
	cfg = withCaptureDefaults(cfg)
	clip := domain.Clip{
		ContentType: wavContentType,
		Filename:    "clip.wav",
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
	}
	if len(pcm) == 0 {
		return clip, nil
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	out := &memWriteSeeker{}
	enc := wav.NewEncoder(out, cfg.SampleRate, 16, cfg.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: cfg.Channels,
			SampleRate:  cfg.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return domain.Clip{}, fmt.Errorf("failed to encode wav clip: %w", err)
	}
	if err := enc.Close(); err != nil {
		return domain.Clip{}, fmt.Errorf("failed to finalize wav clip: %w", err)
	}

	clip.Data = out.buf
	return clip, nil
}

// memWriteSeeker lets the wav encoder patch its header sizes in memory.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(next)
	return next, nil
}
