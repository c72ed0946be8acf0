package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates how a question is answered and graded.
type QuestionType string

const (
	QuestionTypeSingleCorrect   QuestionType = "single-correct"
	QuestionTypeMultipleCorrect QuestionType = "multiple-correct"
	QuestionTypeFillInBlank     QuestionType = "fill-in-blank"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleCorrect, QuestionTypeMultipleCorrect, QuestionTypeFillInBlank:
		return true
	}
	return false
}

// Difficulty is the question tier set by the author.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option is a single selectable choice of a question.
type Option struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// Question represents a single quiz question including its answer key.
type Question struct {
	ID             uuid.UUID    `json:"id"`
	Type           QuestionType `json:"type"`
	Prompt         string       `json:"prompt"`
	ImageURL       string       `json:"image_url,omitempty"`
	Options        []Option     `json:"options"`
	CorrectIndex   int          `json:"correct_index"`
	CorrectIndices []int        `json:"correct_indices,omitempty"`
	ExpectedText   string       `json:"expected_text,omitempty"`
	Difficulty     Difficulty   `json:"difficulty"`
	Points         int          `json:"points"`
	Subject        string       `json:"subject"`
	AuthorID       int          `json:"author_id"`
}

// QuestionForStudent is a question without its answer key, sent to students.
type QuestionForStudent struct {
	ID       uuid.UUID    `json:"id"`
	Type     QuestionType `json:"type"`
	Prompt   string       `json:"prompt"`
	ImageURL string       `json:"image_url,omitempty"`
	Options  []Option     `json:"options"`
	Points   int          `json:"points"`
}

// ForStudent strips the answer key.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:       q.ID,
		Type:     q.Type,
		Prompt:   q.Prompt,
		ImageURL: q.ImageURL,
		Options:  q.Options,
		Points:   q.Points,
	}
}
