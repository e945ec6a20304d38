package usecase

import "sync"

// recordingBuffer is the append-only fragment list of one listening phase.
type recordingBuffer struct {
	mu        sync.Mutex
	fragments [][]byte
	size      int
}

func newRecordingBuffer() *recordingBuffer {
	return &recordingBuffer{}
}

func (b *recordingBuffer) Append(fragment []byte) {
	if len(fragment) == 0 {
		return
	}
	copied := append([]byte(nil), fragment...)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = append(b.fragments, copied)
	b.size += len(copied)
}

func (b *recordingBuffer) Fragments() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}

// Bytes concatenates all fragments in capture order.
func (b *recordingBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, b.size)
	for _, fragment := range b.fragments {
		out = append(out, fragment...)
	}
	return out
}
