package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-quiz/internal/model"
)

func single(points, correct int) model.Question {
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeSingleCorrect, Points: points, CorrectIndex: correct}
}

func multiple(points int, correct ...int) model.Question {
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeMultipleCorrect, Points: points, CorrectIndices: correct}
}

func blank(points int, expected string) model.Question {
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeFillInBlank, Points: points, ExpectedText: expected}
}

func TestIsCorrectSingle(t *testing.T) {
	q := single(1, 2)

	assert.True(t, IsCorrect(&q, model.SingleAnswer(2)))
	assert.False(t, IsCorrect(&q, model.SingleAnswer(1)))
	assert.False(t, IsCorrect(&q, model.SingleAnswer(99)), "out of range index")
	assert.False(t, IsCorrect(&q, model.SingleAnswer(-1)))
	assert.False(t, IsCorrect(&q, model.TextAnswer("2")), "wrong answer kind")
}

func TestIsCorrectMultiple(t *testing.T) {
	cases := []struct {
		name     string
		correct  []int
		selected model.Answer
		want     bool
	}{
		{"same set other order", []int{2, 1}, model.MultipleAnswer(1, 2), true},
		{"subset", []int{1, 2, 3}, model.MultipleAnswer(1, 2), false},
		{"superset", []int{1, 2}, model.MultipleAnswer(1, 2, 3), false},
		{"empty selection", []int{0}, model.MultipleAnswer(), false},
		{"duplicates ignored", []int{1, 2}, model.Answer{Kind: model.QuestionTypeMultipleCorrect, Indices: []int{2, 1, 2}}, true},
		{"same size different members", []int{1, 2}, model.MultipleAnswer(1, 3), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := multiple(1, tc.correct...)
			assert.Equal(t, tc.want, IsCorrect(&q, tc.selected))
		})
	}
}

func TestIsCorrectFillInBlank(t *testing.T) {
	q := blank(1, "paris")

	assert.True(t, IsCorrect(&q, model.TextAnswer(" Paris ")))
	assert.True(t, IsCorrect(&q, model.TextAnswer("PARIS")))
	assert.False(t, IsCorrect(&q, model.TextAnswer("Pari s")))
	assert.False(t, IsCorrect(&q, model.TextAnswer("")))
}

func TestGradeScenarios(t *testing.T) {
	q1 := single(2, 0)
	q2 := multiple(3, 1, 2)
	questions := []model.Question{q1, q2}
	total := model.SumPoints(questions)
	require.Equal(t, 5, total)

	t.Run("all correct", func(t *testing.T) {
		res := Grade(questions, model.Answers{
			q1.ID: model.SingleAnswer(0),
			q2.ID: model.MultipleAnswer(2, 1),
		}, total)
		assert.Equal(t, 5, res.AchievedPoints)
		assert.Equal(t, 100, res.Score)
		assert.True(t, res.Correct[q1.ID])
		assert.True(t, res.Correct[q2.ID])
	})

	t.Run("first only", func(t *testing.T) {
		res := Grade(questions, model.Answers{
			q1.ID: model.SingleAnswer(0),
			q2.ID: model.MultipleAnswer(1),
		}, total)
		assert.Equal(t, 2, res.AchievedPoints)
		assert.Equal(t, 40, res.Score)
		assert.False(t, res.Correct[q2.ID])
	})

	t.Run("unanswered", func(t *testing.T) {
		res := Grade(questions, model.Answers{}, total)
		assert.Zero(t, res.AchievedPoints)
		assert.Zero(t, res.Score)
	})
}

func TestGradeZeroTotalPoints(t *testing.T) {
	q := single(0, 1)
	res := Grade([]model.Question{q}, model.Answers{q.ID: model.SingleAnswer(1)}, 0)
	assert.Zero(t, res.Score)
	assert.Zero(t, Percentage(0, 0))
	assert.Zero(t, Percentage(3, 0))
}

func TestPercentageRounds(t *testing.T) {
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 50, Percentage(1, 2))
	assert.Equal(t, 13, Percentage(1, 8), "12.5 rounds half up")
}
