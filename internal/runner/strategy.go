package runner

import (
	"math"
	"time"
)

// Strategy decides how many requests a worker fires per one-second chunk and
// when it must stop.
type Strategy interface {
	// NextChunk returns the request budget of the next chunk. ok is false once
	// the worker has nothing left to send.
	NextChunk() (size int, ok bool)
	// ShouldContinue reports whether another request may start, given the time
	// since the worker started.
	ShouldContinue(elapsed time.Duration) bool
	// Paced reports whether chunks are stretched to fill one second.
	Paced() bool
}

// GetChunks splits numberRequests into per-second chunks of at most rateLimit
// requests. A rateLimit below 1 means no pacing and yields a single chunk.
//
//	GetChunks(400, 180) == []int{180, 180, 40}
func GetChunks(numberRequests, rateLimit int) []int {
	if rateLimit < 1 || numberRequests <= rateLimit {
		if numberRequests < 0 {
			numberRequests = 0
		}
		return []int{numberRequests}
	}
	chunks := make([]int, 0, numberRequests/rateLimit+1)
	for remaining := numberRequests; remaining > 0; remaining -= rateLimit {
		chunks = append(chunks, min(rateLimit, remaining))
	}
	return chunks
}

// WorkerShare returns ceil(total/workers), the portion of a global budget one
// worker receives. Rounding up means the pool as a whole may exceed total by
// at most workers-1.
func WorkerShare(total, workers int) int {
	if total <= 0 {
		return 0
	}
	if workers <= 1 {
		return total
	}
	return (total + workers - 1) / workers
}

// NewCountStrategy fires exactly numberRequests, rateLimit per second.
func NewCountStrategy(numberRequests, rateLimit int) Strategy {
	return &countStrategy{chunks: GetChunks(numberRequests, rateLimit), rate: rateLimit}
}

// NewDurationStrategy fires until duration has elapsed, rateLimit per second.
func NewDurationStrategy(duration time.Duration, rateLimit int) Strategy {
	return &durationStrategy{duration: duration, rate: rateLimit}
}

type countStrategy struct {
	chunks []int
	next   int
	rate   int
}

func (s *countStrategy) NextChunk() (int, bool) {
	if s.next >= len(s.chunks) {
		return 0, false
	}
	size := s.chunks[s.next]
	s.next++
	return size, true
}

func (s *countStrategy) ShouldContinue(time.Duration) bool { return true }

func (s *countStrategy) Paced() bool { return s.rate >= 1 }

type durationStrategy struct {
	duration time.Duration
	rate     int
}

func (s *durationStrategy) NextChunk() (int, bool) {
	if s.rate < 1 {
		return math.MaxInt, true
	}
	return s.rate, true
}

func (s *durationStrategy) ShouldContinue(elapsed time.Duration) bool {
	return elapsed < s.duration
}

func (s *durationStrategy) Paced() bool { return s.rate >= 1 }
