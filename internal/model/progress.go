package model

import (
	"time"

	"github.com/google/uuid"
)

// ProgressSnapshot is the full in-progress session state written to the
// local progress cache on every change, so a reload resumes exactly.
type ProgressSnapshot struct {
	QuestionOrder    []uuid.UUID `json:"question_order"`
	Answers          Answers     `json:"answers"`
	RemainingSeconds int         `json:"remaining_seconds"`
	TabSwitches      int         `json:"tab_switches"`
	FullScreenExits  int         `json:"full_screen_exits"`
	CurrentIndex     int         `json:"current_index"`
	Attempt          Attempt     `json:"attempt"`
	SavedAt          time.Time   `json:"saved_at"`
}
