package quizsession

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// Choice is the value of an answer intent. Option applies to choice
// questions and must be set for them; Text applies to fill-in-blank.
type Choice struct {
	Option *int
	Text   string
}

// OptionChoice selects (or toggles) option i.
func OptionChoice(i int) Choice { return Choice{Option: &i} }

// TextChoice answers a fill-in-blank question.
func TextChoice(text string) Choice { return Choice{Text: text} }

// SelectAnswer records an answer. Single-correct replaces the selection,
// multiple-correct toggles Option in the set, fill-in-blank stores Text.
func (c *Controller) SelectAnswer(questionID uuid.UUID, choice Choice) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return ErrNotRunning
	}
	q := c.questionLocked(questionID)
	if q == nil {
		return ErrUnknownQuestion
	}

	switch q.Type {
	case model.QuestionTypeSingleCorrect:
		if !validOption(q, choice.Option) {
			return ErrInvalidChoice
		}
		c.answers[q.ID] = model.SingleAnswer(*choice.Option)
	case model.QuestionTypeMultipleCorrect:
		if !validOption(q, choice.Option) {
			return ErrInvalidChoice
		}
		prev, ok := c.answers[q.ID]
		if !ok || prev.Kind != model.QuestionTypeMultipleCorrect {
			prev = model.MultipleAnswer()
		}
		c.answers[q.ID] = prev.Toggle(*choice.Option)
	case model.QuestionTypeFillInBlank:
		c.answers[q.ID] = model.TextAnswer(choice.Text)
	default:
		return ErrInvalidChoice
	}

	c.markChangedLocked(true)
	return nil
}

// NextQuestion moves forward; it is a no-op on the last question.
func (c *Controller) NextQuestion() error { return c.move(1) }

// PreviousQuestion moves back; it is a no-op on the first question.
func (c *Controller) PreviousQuestion() error { return c.move(-1) }

func (c *Controller) move(delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Ready() {
		return ErrNotRunning
	}
	next := c.index + delta
	if next < 0 || next >= len(c.questions) {
		return nil
	}
	c.index = next
	c.markChangedLocked(false)
	return nil
}

func (c *Controller) questionLocked(id uuid.UUID) *model.Question {
	for i := range c.questions {
		if c.questions[i].ID == id {
			return &c.questions[i]
		}
	}
	return nil
}

func validOption(q *model.Question, i *int) bool {
	return i != nil && *i >= 0 && *i < len(q.Options)
}
