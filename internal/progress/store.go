// Package progress keeps in-progress quiz snapshots and undelivered final
// submissions in Redis, keyed per student and quiz.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// ErrNoSubmission is returned when no backed-up submission exists.
var ErrNoSubmission = errors.New("no backed-up submission")

// Store implements the session progress cache and submission backup slot.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a Store. Snapshots expire after ttl; backups never expire.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// LoadProgress returns the saved snapshot or model.ErrNoProgress.
func (s *Store) LoadProgress(ctx context.Context, studentID int, quizID uuid.UUID) (*model.ProgressSnapshot, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.ProgressKey(studentID, quizID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNoProgress
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}

	var snap model.ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &snap, nil
}

// SaveProgress overwrites the snapshot and refreshes its expiry.
func (s *Store) SaveProgress(ctx context.Context, studentID int, quizID uuid.UUID, snap *model.ProgressSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ProgressKey(studentID, quizID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// ClearProgress removes the snapshot. Clearing a missing key is not an error.
func (s *Store) ClearProgress(ctx context.Context, studentID int, quizID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.ProgressKey(studentID, quizID)).Err()
}

// SaveSubmission writes a final attempt the attempt store did not accept.
func (s *Store) SaveSubmission(ctx context.Context, attempt *model.Attempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	key := config.CacheKey.SubmissionBackupKey(attempt.StudentID, attempt.QuizID)
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("set submission backup: %w", err)
	}
	return nil
}

// LoadSubmission returns the backed-up final attempt or ErrNoSubmission.
func (s *Store) LoadSubmission(ctx context.Context, studentID int, quizID uuid.UUID) (*model.Attempt, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.SubmissionBackupKey(studentID, quizID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSubmission
		}
		return nil, fmt.Errorf("get submission backup: %w", err)
	}

	var attempt model.Attempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return &attempt, nil
}

// ClearSubmission removes a delivered backup.
func (s *Store) ClearSubmission(ctx context.Context, studentID int, quizID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.SubmissionBackupKey(studentID, quizID)).Err()
}
