package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Quiz is the definition a student session runs against. The session
// controller reads it once and never mutates it.
type Quiz struct {
	ID                 uuid.UUID   `json:"id"`
	Title              string      `json:"title"`
	ClassID            int         `json:"class_id"`
	QuestionIDs        []uuid.UUID `json:"question_ids"`
	DurationMinutes    int         `json:"duration_minutes"`
	TabSwitchThreshold int         `json:"tab_switch_threshold"`
	TotalPoints        int         `json:"total_points"`
	Released           bool        `json:"released"`
	AnswersReleased    bool        `json:"answers_released"`
	CreatedAt          time.Time   `json:"created_at"`
}

// Duration returns the configured time limit.
func (q *Quiz) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

// ErrQuestionsMismatch is returned when fetched questions do not cover an
// ordered id list.
var ErrQuestionsMismatch = errors.New("fetched questions do not match the question order")

// ArrangeQuestions returns questions in the given id order. Every id must be
// present; extra questions are ignored.
func ArrangeQuestions(questions []Question, order []uuid.UUID) ([]Question, error) {
	byID := make(map[uuid.UUID]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	out := make([]Question, 0, len(order))
	for _, id := range order {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrQuestionsMismatch, id)
		}
		out = append(out, q)
	}
	return out, nil
}

// SumPoints returns the total point value of the given questions.
func SumPoints(questions []Question) int {
	total := 0
	for i := range questions {
		total += questions[i].Points
	}
	return total
}
