// Package grading scores a finished attempt against the question answer keys.
package grading

import (
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// Result is the outcome of grading one attempt.
type Result struct {
	AchievedPoints int
	// Score is the percentage of total points achieved, rounded.
	Score   int
	Correct map[uuid.UUID]bool
}

// Grade walks questions in the order the student saw them and awards each
// correctly answered question its point value. Unanswered questions score 0.
func Grade(questions []model.Question, answers model.Answers, totalPoints int) Result {
	res := Result{Correct: make(map[uuid.UUID]bool, len(questions))}

	for i := range questions {
		q := &questions[i]
		ans, ok := answers[q.ID]
		correct := ok && IsCorrect(q, ans)
		res.Correct[q.ID] = correct
		if correct {
			res.AchievedPoints += q.Points
		}
	}

	res.Score = Percentage(res.AchievedPoints, totalPoints)
	return res
}

// Percentage returns round(achieved / total * 100), or 0 when total is 0.
func Percentage(achieved, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(achieved) / float64(total) * 100))
}

// IsCorrect reports whether ans is the right answer to q.
func IsCorrect(q *model.Question, ans model.Answer) bool {
	if ans.Kind != q.Type {
		return false
	}

	switch q.Type {
	case model.QuestionTypeSingleCorrect:
		return ans.Index == q.CorrectIndex
	case model.QuestionTypeMultipleCorrect:
		return sameIndexSet(ans.Indices, q.CorrectIndices)
	case model.QuestionTypeFillInBlank:
		return normalizeText(ans.Text) == normalizeText(q.ExpectedText)
	default:
		return false
	}
}

// sameIndexSet compares two index lists as sets: order and duplicates are
// ignored. An empty selection never matches.
func sameIndexSet(selected, correct []int) bool {
	a := dedupe(selected)
	b := dedupe(correct)
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for _, idx := range a {
		if _, found := slices.BinarySearch(b, idx); !found {
			return false
		}
	}
	return true
}

func dedupe(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
