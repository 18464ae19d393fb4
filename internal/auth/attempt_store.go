package auth

import (
	"context"
	"strconv"
	"time"

	"lms/internal/cache"
)

const loginAttemptKeyPrefix = "login_attempts:"

// AttemptStoreInterface tracks failed logins per normalized email.
type AttemptStoreInterface interface {
	Failures(ctx context.Context, email string) int64
	RecordFailure(ctx context.Context, email string) int64
	Reset(ctx context.Context, email string)
}

// AttemptStore keeps failed login counters in Redis. Redis failures read as
// zero attempts.
type AttemptStore struct {
	cache  *cache.Client
	window time.Duration
}

// Ensure AttemptStore implements AttemptStoreInterface
var _ AttemptStoreInterface = (*AttemptStore)(nil)

// NewAttemptStore creates an attempt store whose counters expire after window.
func NewAttemptStore(cache *cache.Client, window time.Duration) *AttemptStore {
	return &AttemptStore{cache: cache, window: window}
}

// Failures returns the number of failures recorded inside the current window.
func (s *AttemptStore) Failures(ctx context.Context, email string) int64 {
	data, _ := s.cache.Get(ctx, loginAttemptKeyPrefix+email)
	if data == nil {
		return 0
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// RecordFailure increments the counter, starting the window on the first failure.
func (s *AttemptStore) RecordFailure(ctx context.Context, email string) int64 {
	n, _ := s.cache.Incr(ctx, loginAttemptKeyPrefix+email, s.window)
	return n
}

// Reset clears the counter after a successful login.
func (s *AttemptStore) Reset(ctx context.Context, email string) {
	_ = s.cache.Delete(ctx, loginAttemptKeyPrefix+email)
}
