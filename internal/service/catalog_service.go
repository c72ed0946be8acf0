package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

// CatalogCacheTTL bounds how long quiz and question payloads stay in Redis.
const CatalogCacheTTL = 10 * time.Minute

// ErrQuizNotReleased is returned for quizzes students cannot take yet.
var ErrQuizNotReleased = errors.New("quiz is not released")

// CatalogService serves quiz definitions and question payloads through a
// Redis read-through cache.
type CatalogService struct {
	quizzes   repository.QuizRepo
	questions repository.QuestionRepo
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(quizzes repository.QuizRepo, questions repository.QuestionRepo, rdb *redis.Client, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		quizzes:   quizzes,
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "catalog_service").Logger(),
	}
}

// GetQuiz returns a released quiz.
func (s *CatalogService) GetQuiz(ctx context.Context, quizID uuid.UUID) (*model.Quiz, error) {
	key := config.CacheKey.QuizKey(quizID)

	var quiz *model.Quiz
	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached model.Quiz
		if err := json.Unmarshal(raw, &cached); err == nil {
			quiz = &cached
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Quiz cache read failed, falling back to store")
	}

	if quiz == nil {
		fetched, err := s.quizzes.GetByID(ctx, quizID)
		if err != nil {
			return nil, err
		}
		quiz = fetched
		if data, err := json.Marshal(quiz); err == nil {
			_ = s.rdb.Set(ctx, key, data, CatalogCacheTTL).Err()
		}
	}

	if !quiz.Released {
		return nil, ErrQuizNotReleased
	}
	return quiz, nil
}

// FetchQuestionsByIDs returns the questions with the given ids in no
// particular order. Unknown ids are skipped.
func (s *CatalogService) FetchQuestionsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = config.CacheKey.QuestionKey(id)
	}

	questions := make([]model.Question, 0, len(ids))
	missing := make([]uuid.UUID, 0)

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("Question cache read failed, falling back to store")
		missing = append(missing, ids...)
	} else {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var q model.Question
			if err := json.Unmarshal([]byte(str), &q); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			questions = append(questions, q)
		}
	}

	if len(missing) == 0 {
		return questions, nil
	}

	fetched, err := s.questions.ListByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	pipe := s.rdb.Pipeline()
	for i := range fetched {
		if data, err := json.Marshal(&fetched[i]); err == nil {
			pipe.Set(ctx, config.CacheKey.QuestionKey(fetched[i].ID), data, CatalogCacheTTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Int("count", len(fetched)).Msg("Question cache write failed")
	}

	return append(questions, fetched...), nil
}

// OrderedQuestions returns the questions in the given order and fails when
// any of them is missing.
func (s *CatalogService) OrderedQuestions(ctx context.Context, order []uuid.UUID) ([]model.Question, error) {
	questions, err := s.FetchQuestionsByIDs(ctx, order)
	if err != nil {
		return nil, err
	}

	return model.ArrangeQuestions(questions, order)
}
