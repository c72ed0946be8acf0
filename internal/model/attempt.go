package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is the record of one student's one session against one quiz.
// At most one exists per (student, quiz); once Submitted it is immutable.
type Attempt struct {
	ID             uuid.UUID   `json:"id"`
	QuizID         uuid.UUID   `json:"quiz_id"`
	StudentID      int         `json:"student_id"`
	QuestionOrder  []uuid.UUID `json:"question_order"`
	Answers        Answers     `json:"answers"`
	TabSwitches    int         `json:"tab_switches"`
	StartedAt      time.Time   `json:"started_at"`
	EndedAt        *time.Time  `json:"ended_at,omitempty"`
	Submitted      bool        `json:"submitted"`
	Score          int         `json:"score"`
	AchievedPoints int         `json:"achieved_points"`
}

// Persisted reports whether the attempt has been assigned an id by the store.
func (a *Attempt) Persisted() bool {
	return a.ID != uuid.Nil
}

// AttemptPatch lists the mutable fields of an attempt. Nil fields are left
// untouched. StartedAt is deliberately absent.
type AttemptPatch struct {
	Answers        Answers    `json:"answers,omitempty"`
	TabSwitches    *int       `json:"tab_switches,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Submitted      *bool      `json:"submitted,omitempty"`
	Score          *int       `json:"score,omitempty"`
	AchievedPoints *int       `json:"achieved_points,omitempty"`
}

// Apply copies the patch fields onto a.
func (p *AttemptPatch) Apply(a *Attempt) {
	if p.Answers != nil {
		a.Answers = p.Answers.Clone()
	}
	if p.TabSwitches != nil {
		a.TabSwitches = *p.TabSwitches
	}
	if p.EndedAt != nil {
		t := *p.EndedAt
		a.EndedAt = &t
	}
	if p.Submitted != nil && *p.Submitted {
		a.Submitted = true
	}
	if p.Score != nil {
		a.Score = *p.Score
	}
	if p.AchievedPoints != nil {
		a.AchievedPoints = *p.AchievedPoints
	}
}

// FinalPatch returns the patch that carries a finished attempt to the store.
func (a *Attempt) FinalPatch() AttemptPatch {
	submitted := a.Submitted
	tabs := a.TabSwitches
	score := a.Score
	points := a.AchievedPoints
	return AttemptPatch{
		Answers:        a.Answers.Clone(),
		TabSwitches:    &tabs,
		EndedAt:        a.EndedAt,
		Submitted:      &submitted,
		Score:          &score,
		AchievedPoints: &points,
	}
}
