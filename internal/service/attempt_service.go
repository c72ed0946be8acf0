package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

// Attempt errors.
var (
	ErrInvalidAttempt = errors.New("invalid attempt")
	// ErrAttemptOpen is returned when a result is requested for an attempt
	// that is still in progress.
	ErrAttemptOpen = errors.New("attempt is not submitted yet")
)

// AttemptService owns the attempt records: one per (quiz, student), a fixed
// start time and question order, and no changes after submission.
type AttemptService struct {
	attempts repository.AttemptRepo
	catalog  *CatalogService
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts repository.AttemptRepo, catalog *CatalogService, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		catalog:  catalog,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// FetchAttempt returns the student's attempt or model.ErrAttemptNotFound.
func (s *AttemptService) FetchAttempt(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	return s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
}

// CreateAttempt stores a new attempt. When the student already has one
// (another device got there first) the existing attempt is returned instead.
func (s *AttemptService) CreateAttempt(ctx context.Context, a *model.Attempt) (*model.Attempt, error) {
	if a.QuizID == uuid.Nil || a.StudentID == 0 || a.StartedAt.IsZero() {
		return nil, fmt.Errorf("%w: quiz, student and start time are required", ErrInvalidAttempt)
	}

	created := *a
	created.Answers = a.Answers.Clone()

	if err := s.attempts.Create(ctx, &created); err != nil {
		if !errors.Is(err, model.ErrAttemptExists) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		existing, fetchErr := s.attempts.GetByQuizAndStudent(ctx, a.QuizID, a.StudentID)
		if fetchErr != nil {
			return nil, fmt.Errorf("concurrent create detected, but fetch failed: %w", fetchErr)
		}
		s.log.Info().
			Str("attempt_id", existing.ID.String()).
			Int("student_id", a.StudentID).
			Msg("Attempt already existed, reusing it")
		return existing, nil
	}

	s.log.Info().
		Str("attempt_id", created.ID.String()).
		Str("quiz_id", created.QuizID.String()).
		Int("student_id", created.StudentID).
		Msg("Attempt created")
	return &created, nil
}

// UpdateAttempt applies a patch. Submitted attempts are refused with
// model.ErrAttemptSubmitted.
func (s *AttemptService) UpdateAttempt(ctx context.Context, attemptID uuid.UUID, patch model.AttemptPatch) (*model.Attempt, error) {
	updated, err := s.attempts.Update(ctx, attemptID, patch)
	if err != nil {
		return nil, err
	}
	if updated.Submitted {
		s.log.Info().
			Str("attempt_id", attemptID.String()).
			Int("score", updated.Score).
			Msg("Attempt submitted")
	}
	return updated, nil
}

// RecoverSubmission delivers a final attempt that was backed up locally
// because the store could not be reached at submit time. It reports whether
// the backup is settled and can be discarded.
func (s *AttemptService) RecoverSubmission(ctx context.Context, backup *model.Attempt) (bool, error) {
	if !backup.Submitted {
		return true, nil
	}

	if !backup.Persisted() {
		existing, err := s.attempts.GetByQuizAndStudent(ctx, backup.QuizID, backup.StudentID)
		switch {
		case errors.Is(err, model.ErrAttemptNotFound):
			return s.recreateSubmission(ctx, backup)
		case err != nil:
			return false, err
		}
		backup.ID = existing.ID
	}

	_, err := s.attempts.Update(ctx, backup.ID, backup.FinalPatch())
	switch {
	case err == nil, errors.Is(err, model.ErrAttemptSubmitted):
		s.log.Info().Str("attempt_id", backup.ID.String()).Msg("Backed-up submission delivered")
		return true, nil
	case errors.Is(err, model.ErrAttemptNotFound):
		// The row the backup points at is gone; store the submission anew.
		s.log.Warn().Str("attempt_id", backup.ID.String()).Msg("Backed-up attempt missing, recreating it")
		return s.recreateSubmission(ctx, backup)
	default:
		return false, err
	}
}

// recreateSubmission stores a backed-up final attempt as a new record. When
// another open attempt already holds the (quiz, student) slot, the final
// state is written onto it.
func (s *AttemptService) recreateSubmission(ctx context.Context, backup *model.Attempt) (bool, error) {
	fresh := *backup
	fresh.ID = uuid.Nil

	stored, err := s.CreateAttempt(ctx, &fresh)
	if err != nil {
		return false, err
	}
	if !stored.Submitted {
		_, err := s.attempts.Update(ctx, stored.ID, backup.FinalPatch())
		if err != nil && !errors.Is(err, model.ErrAttemptSubmitted) {
			return false, err
		}
	}
	backup.ID = stored.ID
	s.log.Info().Str("attempt_id", stored.ID.String()).Msg("Backed-up submission delivered")
	return true, nil
}

// QuestionResult is one graded question of a result view.
type QuestionResult struct {
	Question model.QuestionForStudent `json:"question"`
	Answer   *model.Answer            `json:"answer,omitempty"`
	Correct  *bool                    `json:"correct,omitempty"`
}

// AttemptResult is the student-facing view of a submitted attempt.
type AttemptResult struct {
	AttemptID      uuid.UUID        `json:"attempt_id"`
	QuizID         uuid.UUID        `json:"quiz_id"`
	Score          int              `json:"score"`
	AchievedPoints int              `json:"achieved_points"`
	TotalPoints    int              `json:"total_points"`
	TabSwitches    int              `json:"tab_switches"`
	AnswersShown   bool             `json:"answers_shown"`
	Questions      []QuestionResult `json:"questions"`
}

// Result builds the result view of a student's submitted attempt.
// Per-question correctness is only included once the quiz releases answers.
func (s *AttemptService) Result(ctx context.Context, quizID uuid.UUID, studentID int) (*AttemptResult, error) {
	attempt, err := s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		return nil, err
	}
	if !attempt.Submitted {
		return nil, ErrAttemptOpen
	}

	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	questions, err := s.catalog.OrderedQuestions(ctx, attempt.QuestionOrder)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}

	res := &AttemptResult{
		AttemptID:      attempt.ID,
		QuizID:         quizID,
		Score:          attempt.Score,
		AchievedPoints: attempt.AchievedPoints,
		TotalPoints:    quiz.TotalPoints,
		TabSwitches:    attempt.TabSwitches,
		AnswersShown:   quiz.AnswersReleased,
		Questions:      make([]QuestionResult, 0, len(questions)),
	}

	var graded grading.Result
	if quiz.AnswersReleased {
		graded = grading.Grade(questions, attempt.Answers, quiz.TotalPoints)
	}

	for i := range questions {
		q := &questions[i]
		qr := QuestionResult{Question: q.ForStudent()}
		if ans, ok := attempt.Answers[q.ID]; ok {
			qr.Answer = &ans
		}
		if quiz.AnswersReleased {
			correct := graded.Correct[q.ID]
			qr.Correct = &correct
		}
		res.Questions = append(res.Questions, qr)
	}
	return res, nil
}
