package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lms/internal/cache"
)

func TestAttemptStore_FailsOpenWithoutRedis(t *testing.T) {
	store := NewAttemptStore(nil, 15*time.Minute)
	ctx := context.Background()

	assert.Zero(t, store.RecordFailure(ctx, "alice@example.com"))
	assert.Zero(t, store.Failures(ctx, "alice@example.com"))
	store.Reset(ctx, "alice@example.com")
}

func TestAttemptStore_UnreachableRedis(t *testing.T) {
	store := NewAttemptStore(cache.New("127.0.0.1:1", "", 0), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Zero(t, store.Failures(ctx, "alice@example.com"))
}
