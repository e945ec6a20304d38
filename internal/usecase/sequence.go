package usecase

// StalePolicy decides what happens to a response that resolves after a newer
// request of the same kind was issued.
type StalePolicy string

const (
	// StaleDiscard applies a completion only if it belongs to the latest request.
	StaleDiscard StalePolicy = "discard"
	// StaleAccept applies every completion; the last one to resolve wins.
	StaleAccept StalePolicy = "accept"
)

// ParseStalePolicy falls back to StaleDiscard for unknown values. StaleAccept
// must be asked for explicitly to get last-resolved-wins.
func ParseStalePolicy(value string) StalePolicy {
	if StalePolicy(value) == StaleAccept {
		return StaleAccept
	}
	return StaleDiscard
}

// requestSequence issues monotonically increasing tokens for one pipeline.
type requestSequence struct {
	issued   uint64
	inFlight int
}

func (s *requestSequence) next() uint64 {
	s.issued++
	s.inFlight++
	return s.issued
}

// complete reports whether token is still the latest issued.
func (s *requestSequence) complete(token uint64) bool {
	if s.inFlight > 0 {
		s.inFlight--
	}
	return token == s.issued
}

// invalidate makes every outstanding token stale.
func (s *requestSequence) invalidate() {
	s.issued++
}

func (s *requestSequence) busy() bool {
	return s.inFlight > 0
}
