package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	historyTTL         = 24 * time.Hour
	historyMaxMessages = 100
)

// HistoryStore keeps per-patient transcripts in Redis with a rolling TTL.
type HistoryStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewHistoryStore creates a Redis-backed transcript store.
func NewHistoryStore(client *redis.Client, tracer trace.Tracer) *HistoryStore {
	if client == nil {
		panic("chat: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("pharmacy.internal.chat.history")
	}
	return &HistoryStore{
		redis:  client,
		tracer: tracer,
	}
}

// Save overwrites the patient's transcript.
func (s *HistoryStore) Save(ctx context.Context, patientID string, history []ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "chat.save_history")
	defer span.End()

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, historyKey(patientID), data, historyTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: failed to persist history: %w", err)
	}
	return nil
}

// Load returns the patient's transcript. An unknown patient gets an empty
// transcript, not an error; every conversation has to start somewhere.
func (s *HistoryStore) Load(ctx context.Context, patientID string) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "chat.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, historyKey(patientID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to load history: %w", err)
	}

	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to decode history: %w", err)
	}
	return history, nil
}

// Append adds messages to the patient's transcript, trimming the oldest
// entries past the cap.
func (s *HistoryStore) Append(ctx context.Context, patientID string, messages ...ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "chat.append_history")
	defer span.End()

	history, err := s.Load(ctx, patientID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	history = append(history, messages...)
	if len(history) > historyMaxMessages {
		history = history[len(history)-historyMaxMessages:]
	}
	return s.Save(ctx, patientID, history)
}

func historyKey(patientID string) string {
	return fmt.Sprintf("chat_history:%s", patientID)
}
