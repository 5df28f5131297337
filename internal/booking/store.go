package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultConversationTTL = 24 * time.Hour

// ConversationStore is the persistence port for booking conversations: a
// synchronous key-value load/save keyed by conversation ID.
type ConversationStore interface {
	Save(ctx context.Context, conv *Conversation) error
	Load(ctx context.Context, conversationID string) (*Conversation, error)
}

// RedisConversationStore keeps conversations in Redis with a TTL.
type RedisConversationStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisConversationStore builds a Redis-backed store. A non-positive TTL
// falls back to 24 hours.
func NewRedisConversationStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisConversationStore {
	if client == nil {
		panic("booking: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultConversationTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("voicebook.internal.booking.store")
	}
	return &RedisConversationStore{
		redis:  client,
		ttl:    ttl,
		tracer: tracer,
	}
}

func (s *RedisConversationStore) Save(ctx context.Context, conv *Conversation) error {
	ctx, span := s.tracer.Start(ctx, "booking.save_conversation")
	defer span.End()

	data, err := json.Marshal(conv)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("booking: failed to marshal conversation: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(conv.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("booking: failed to persist conversation: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) Load(ctx context.Context, conversationID string) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "booking.load_conversation")
	defer span.End()

	data, err := s.redis.Get(ctx, conversationKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrConversationNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("booking: failed to load conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: failed to decode conversation: %w", err)
	}
	return &conv, nil
}

func conversationKey(id string) string {
	return fmt.Sprintf("booking:conversation:%s", id)
}

// MemoryConversationStore is a mutex-guarded in-memory store for tests and
// local runs without Redis.
type MemoryConversationStore struct {
	mu    sync.RWMutex
	convs map[string]Conversation
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{convs: make(map[string]Conversation)}
}

func (s *MemoryConversationStore) Save(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = *conv
	return nil
}

func (s *MemoryConversationStore) Load(_ context.Context, conversationID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	copied := conv
	return &copied, nil
}
