package quizsession

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// QuizSource reads quiz definitions.
type QuizSource interface {
	GetQuiz(ctx context.Context, quizID uuid.UUID) (*model.Quiz, error)
}

// QuestionSource reads question content. Returned questions may come back in
// any order.
type QuestionSource interface {
	FetchQuestionsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// AttemptStore is the remote record of attempts. FetchAttempt returns
// model.ErrAttemptNotFound when the student has not started the quiz.
type AttemptStore interface {
	FetchAttempt(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error)
	CreateAttempt(ctx context.Context, attempt *model.Attempt) (*model.Attempt, error)
	UpdateAttempt(ctx context.Context, attemptID uuid.UUID, patch model.AttemptPatch) (*model.Attempt, error)
}

// ProgressCache keeps the in-progress snapshot of a session. LoadProgress
// returns model.ErrNoProgress when nothing is saved.
type ProgressCache interface {
	LoadProgress(ctx context.Context, studentID int, quizID uuid.UUID) (*model.ProgressSnapshot, error)
	SaveProgress(ctx context.Context, studentID int, quizID uuid.UUID, snap *model.ProgressSnapshot) error
	ClearProgress(ctx context.Context, studentID int, quizID uuid.UUID) error
}

// SubmissionBackup is the local slot a final attempt is written to when the
// attempt store cannot be reached.
type SubmissionBackup interface {
	SaveSubmission(ctx context.Context, attempt *model.Attempt) error
}

// Screen controls the display mode of the presentation layer. The outcome
// of RequestFullScreen is reported asynchronously through
// Controller.FullScreenEntered or Controller.FullScreenFailed.
type Screen interface {
	RequestFullScreen() error
	ExitFullScreen() error
}

// Sensors attaches the integrity listeners of the presentation layer.
// The returned release func detaches them and must be safe to call once.
type Sensors interface {
	Attach() (release func(), err error)
}

// View receives the derived display state after every change. Render is
// called with the controller lock held and must not block or call back
// into the controller.
type View interface {
	Render(Snapshot)
}

// Notifier shows user-facing notices.
type Notifier interface {
	Notify(Notice)
}

// IntegrityRecorder receives integrity violations for proctor review.
type IntegrityRecorder interface {
	Record(ctx context.Context, v Violation) error
}
