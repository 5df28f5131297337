package booking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) *RedisConversationStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConversationStore(client, ttl, nil)
}

func TestRedisConversationStoreRoundTrip(t *testing.T) {
	store := newRedisStore(t, time.Hour)
	ctx := context.Background()

	completed := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)
	conv := &Conversation{
		ID:          "conv-1",
		PatientID:   "pat-1",
		PatientName: "Mei Ling",
		State:       StateConfirmed,
		Language:    "English",
		Dialect:     "Singlish",
		ExtractedSlots: SlotRequest{
			Specialty:     "cardiology",
			PreferredTime: "morning",
		},
		MatchedSlotID: "slot-1",
		BookingRef:    "BK-1A2B3C4D",
		CreatedAt:     completed.Add(-10 * time.Minute),
		CompletedAt:   &completed,
	}
	require.NoError(t, store.Save(ctx, conv))

	got, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, conv, got)
}

func TestRedisConversationStoreMissing(t *testing.T) {
	store := newRedisStore(t, time.Hour)

	_, err := store.Load(context.Background(), "no-such-conversation")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestRedisConversationStoreExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisConversationStore(client, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Conversation{ID: "conv-ttl", State: StateCollecting}))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "conv-ttl")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestMemoryConversationStoreIsolation(t *testing.T) {
	store := NewMemoryConversationStore()
	ctx := context.Background()

	conv := &Conversation{ID: "conv-1", State: StateCollecting}
	require.NoError(t, store.Save(ctx, conv))

	// Mutating the loaded copy must not leak into the store.
	loaded, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	loaded.State = StateCancelled

	again, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, StateCollecting, again.State)
}
