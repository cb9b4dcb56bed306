package livestream

import (
	"sync"
	"time"
)

const detailOffline = "Livestream is offline."

// transitionFunc observes a committed status change. It runs while the
// state lock is held and must not call back into the state.
type transitionFunc func(from, to Status, detail string)

// StreamState holds the {status, detail, updatedAt} triple of one stream.
type StreamState struct {
	mu        sync.RWMutex
	status    Status
	detail    string
	updatedAt time.Time

	now      func() time.Time
	onChange transitionFunc
}

func newStreamState(now func() time.Time, onChange transitionFunc) *StreamState {
	return &StreamState{
		status:    StatusOffline,
		detail:    detailOffline,
		updatedAt: now(),
		now:       now,
		onChange:  onChange,
	}
}

// Set moves the state to (status, detail). Re-asserting the current pair
// is a no-op and leaves updatedAt untouched. It reports whether a change
// was committed.
func (s *StreamState) Set(status Status, detail string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(status, detail)
}

// CompareAndSet applies (to, detail) only if the current status is from.
func (s *StreamState) CompareAndSet(from, to Status, detail string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != from {
		return false
	}
	return s.setLocked(to, detail)
}

// Get returns the current triple.
func (s *StreamState) Get() (status Status, detail string, updatedAt time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.detail, s.updatedAt
}

// Status returns only the current status.
func (s *StreamState) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// setLocked commits a change. Caller must hold s.mu in write mode.
func (s *StreamState) setLocked(status Status, detail string) bool {
	if s.status == status && s.detail == detail {
		return false
	}
	from := s.status
	s.status = status
	s.detail = detail
	s.updatedAt = s.now()
	if s.onChange != nil {
		s.onChange(from, status, detail)
	}
	return true
}
