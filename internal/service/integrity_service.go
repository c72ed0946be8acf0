package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/quizsession"
)

// IntegrityService queues integrity violations for persistence and
// broadcasts them to the quiz's live monitor channel.
type IntegrityService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewIntegrityService creates a new IntegrityService.
func NewIntegrityService(rdb *redis.Client, log zerolog.Logger) *IntegrityService {
	return &IntegrityService{
		rdb: rdb,
		log: log.With().Str("component", "integrity_service").Logger(),
	}
}

// monitorEvent is the payload pushed to monitor subscribers.
type monitorEvent struct {
	Type string                `json:"type"`
	Data quizsession.Violation `json:"data"`
}

// Record implements quizsession.IntegrityRecorder.
func (s *IntegrityService) Record(ctx context.Context, v quizsession.Violation) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	event, err := json.Marshal(monitorEvent{Type: "violation", Data: v})
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistIntegrityQueue, data)
	pipe.Publish(ctx, config.CacheKey.QuizMonitorChannel(v.QuizID), event)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue violation: %w", err)
	}

	s.log.Debug().
		Str("kind", string(v.Kind)).
		Int("student_id", v.StudentID).
		Int("count", v.Count).
		Msg("Violation queued")
	return nil
}

// Subscribe opens the live monitor channel of a quiz.
func (s *IntegrityService) Subscribe(ctx context.Context, quizID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.QuizMonitorChannel(quizID))
}
