package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const attemptColumns = `id, quiz_id, student_id, question_order, answers, tab_switches,
	started_at, ended_at, submitted, score, achieved_points`

// AttemptRepository handles quiz attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.QuestionOrder, &a.Answers, &a.TabSwitches,
		&a.StartedAt, &a.EndedAt, &a.Submitted, &a.Score, &a.AchievedPoints)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAttemptNotFound
		}
		return nil, err
	}
	if a.Answers == nil {
		a.Answers = model.Answers{}
	}
	return a, nil
}

// GetByQuizAndStudent retrieves the attempt of a student at a quiz.
func (r *AttemptRepository) GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM quiz_attempts
		 WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID,
	))
}

// Create inserts a new attempt and fills in its id. A concurrent create for
// the same (quiz, student) yields model.ErrAttemptExists.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	answers := a.Answers
	if answers == nil {
		answers = model.Answers{}
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO quiz_attempts (quiz_id, student_id, question_order, answers, tab_switches,
		                            started_at, ended_at, submitted, score, achieved_points)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (quiz_id, student_id) DO NOTHING
		 RETURNING id`,
		a.QuizID, a.StudentID, a.QuestionOrder, answers, a.TabSwitches,
		a.StartedAt, a.EndedAt, a.Submitted, a.Score, a.AchievedPoints,
	).Scan(&a.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrAttemptExists
	}
	return err
}

// Update applies a patch to an unsubmitted attempt. started_at is never
// written and submitted never flips back.
func (r *AttemptRepository) Update(ctx context.Context, id uuid.UUID, patch model.AttemptPatch) (*model.Attempt, error) {
	var answers any
	if patch.Answers != nil {
		answers = patch.Answers
	}

	updated, err := scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE quiz_attempts SET
		     answers         = COALESCE($2::jsonb, answers),
		     tab_switches    = COALESCE($3, tab_switches),
		     ended_at        = COALESCE($4, ended_at),
		     submitted       = submitted OR COALESCE($5, false),
		     score           = COALESCE($6, score),
		     achieved_points = COALESCE($7, achieved_points)
		 WHERE id = $1 AND submitted = false
		 RETURNING `+attemptColumns,
		id, answers, patch.TabSwitches, patch.EndedAt, patch.Submitted, patch.Score, patch.AchievedPoints,
	))
	if errors.Is(err, model.ErrAttemptNotFound) {
		// Tell a missing attempt apart from a submitted one.
		var submitted bool
		if qerr := r.pool.QueryRow(ctx,
			`SELECT submitted FROM quiz_attempts WHERE id = $1`, id,
		).Scan(&submitted); qerr == nil && submitted {
			return nil, model.ErrAttemptSubmitted
		}
	}
	return updated, err
}
