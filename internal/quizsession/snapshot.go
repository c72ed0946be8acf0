package quizsession

import (
	"github.com/stemsi/exstem-quiz/internal/model"
)

// Snapshot is the read-only state the presentation layer renders.
type Snapshot struct {
	State            State                     `json:"state"`
	Loading          bool                      `json:"loading"`
	Ready            bool                      `json:"ready"`
	Warning          bool                      `json:"warning"`
	Finished         bool                      `json:"finished"`
	Question         *model.QuestionForStudent `json:"question,omitempty"`
	Index            int                       `json:"index"`
	Total            int                       `json:"total"`
	Answers          model.Answers             `json:"answers"`
	RemainingSeconds int                       `json:"remaining_seconds"`
	TabSwitches      int                       `json:"tab_switches"`
	FullScreenExits  int                       `json:"full_screen_exits"`
	Score            *int                      `json:"score,omitempty"`
	AchievedPoints   *int                      `json:"achieved_points,omitempty"`
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:            c.state,
		Loading:          c.state.Loading(),
		Ready:            c.state.Ready(),
		Warning:          c.state == StateWarned,
		Finished:         c.state == StateFinished,
		Index:            c.index,
		Total:            len(c.questions),
		Answers:          c.answers.Clone(),
		RemainingSeconds: c.countdown.remaining,
		TabSwitches:      c.tabSwitches,
		FullScreenExits:  c.fullScreenExits,
	}
	if c.index < len(c.questions) {
		q := c.questions[c.index].ForStudent()
		s.Question = &q
	}
	if c.result != nil && c.result.Submitted {
		score, points := c.result.Score, c.result.AchievedPoints
		s.Score = &score
		s.AchievedPoints = &points
	}
	return s
}
