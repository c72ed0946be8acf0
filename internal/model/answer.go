package model

import (
	"slices"

	"github.com/google/uuid"
)

// Answer is a student's response to one question. Kind selects which of
// the value fields is meaningful.
type Answer struct {
	Kind    QuestionType `json:"kind"`
	Index   int          `json:"index,omitempty"`
	Indices []int        `json:"indices,omitempty"`
	Text    string       `json:"text,omitempty"`
}

// SingleAnswer builds the answer to a single-correct question.
func SingleAnswer(index int) Answer {
	return Answer{Kind: QuestionTypeSingleCorrect, Index: index}
}

// MultipleAnswer builds the answer to a multiple-correct question. The
// indices are stored deduplicated in ascending order.
func MultipleAnswer(indices ...int) Answer {
	set := slices.Clone(indices)
	slices.Sort(set)
	return Answer{Kind: QuestionTypeMultipleCorrect, Indices: slices.Compact(set)}
}

// TextAnswer builds the answer to a fill-in-blank question.
func TextAnswer(text string) Answer {
	return Answer{Kind: QuestionTypeFillInBlank, Text: text}
}

// Toggle adds index to a multiple-correct answer or removes it when it is
// already selected.
func (a Answer) Toggle(index int) Answer {
	set := slices.Clone(a.Indices)
	if i, found := slices.BinarySearch(set, index); found {
		set = slices.Delete(set, i, i+1)
	} else {
		set = slices.Insert(set, i, index)
	}
	return Answer{Kind: QuestionTypeMultipleCorrect, Indices: set}
}

// Answers maps question ids to the student's answers.
type Answers map[uuid.UUID]Answer

// Clone returns a deep copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for id, ans := range a {
		ans.Indices = slices.Clone(ans.Indices)
		out[id] = ans
	}
	return out
}
