package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// QuizRepo reads quiz definitions. GetByID returns model.ErrQuizNotFound
// for unknown ids.
type QuizRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
}

// QuestionRepo reads question content. ListByIDs skips unknown ids and
// returns the rest in no particular order.
type QuestionRepo interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// AttemptRepo persists attempts.
//   - GetByQuizAndStudent returns model.ErrAttemptNotFound when none exists.
//   - Create returns model.ErrAttemptExists when the pair already has one.
//   - Update refuses submitted attempts with model.ErrAttemptSubmitted.
type AttemptRepo interface {
	GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	Update(ctx context.Context, id uuid.UUID, patch model.AttemptPatch) (*model.Attempt, error)
}
