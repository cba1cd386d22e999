package s3stream

import (
	"sync"
	"time"
)

// Stats tracks the parts a stream transferred.
type Stats struct {
	sum           time.Duration
	finishedParts int64
	bytes         int64
	mu            sync.Mutex
}

// Update records a finished part of n bytes that took d.
func (s *Stats) Update(d time.Duration, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.finishedParts++
	s.bytes += n
}

// Average returns the average duration of finished parts.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedParts == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedParts)
}

// FinishedCount returns the number of finished parts.
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedParts
}

// Bytes returns the number of bytes in finished parts.
func (s *Stats) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
