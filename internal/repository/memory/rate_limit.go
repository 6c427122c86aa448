package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/arklim/deadline-jail/internal/core/port"
)

// RateLimitStore keeps sliding-window attempts in process memory. It is used when Redis is
// disabled, so limits are per instance.
type RateLimitStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

// NewRateLimitStore constructs an empty store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{attempts: make(map[string][]time.Time)}
}

// RecordAttempt stores an attempt, keeping the per-identifier slice sorted.
func (s *RateLimitStore) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.attempts[identifier], at)
	sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })
	s.attempts[identifier] = list
	return nil
}

// CountAttempts counts attempts in [reference-window, reference].
func (s *RateLimitStore) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := reference.Add(-window)
	count := 0
	for _, at := range s.attempts[identifier] {
		if !at.Before(start) && !at.After(reference) {
			count++
		}
	}
	return count, nil
}

// TrimWindow drops attempts older than the window.
func (s *RateLimitStore) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errors.New("window must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := reference.Add(-window)
	list := s.attempts[identifier]
	idx := sort.Search(len(list), func(i int) bool { return !list[i].Before(start) })
	if idx == len(list) {
		delete(s.attempts, identifier)
		return nil
	}
	s.attempts[identifier] = append([]time.Time(nil), list[idx:]...)
	return nil
}

// OldestAttempt returns the earliest attempt inside the window.
func (s *RateLimitStore) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errors.New("window must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := reference.Add(-window)
	for _, at := range s.attempts[identifier] {
		if !at.Before(start) && !at.After(reference) {
			return at, true, nil
		}
	}
	return time.Time{}, false, nil
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
