package quizsession

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const (
	reasonManual          = "manual"
	reasonTimeUp          = "time_up"
	reasonTabSwitches     = "tab_switch_limit"
	reasonFullScreenExits = "full_screen_limit"
)

// effects are the side effects of an event that must run after the
// controller lock is released.
type effects struct {
	notices    []Notice
	violations []Violation
	submission *submission
}

// submission is the session data captured at the moment it finished.
type submission struct {
	reason      string
	attempt     model.Attempt
	questions   []model.Question
	answers     model.Answers
	tabSwitches int
	totalPoints int
}

func (c *Controller) dispatch(fx effects) {
	for _, n := range fx.notices {
		c.notify(n)
	}
	for _, v := range fx.violations {
		c.record(v)
	}
	if fx.submission != nil {
		c.completeSubmission(fx.submission)
	}
}

// Submit ends the session and grades it. Any call after the first, from
// any trigger, is a no-op.
func (c *Controller) Submit() {
	c.mu.Lock()
	sub := c.beginSubmissionLocked(reasonManual)
	c.mu.Unlock()

	if sub != nil {
		c.completeSubmission(sub)
	}
}

// beginSubmissionLocked moves the session to Finished and captures what the
// final write needs. It returns nil when the session cannot be submitted,
// which makes every submit trigger idempotent.
func (c *Controller) beginSubmissionLocked(reason string) *submission {
	if c.attempt == nil || c.state == StateFinished {
		return nil
	}
	if !c.setStateLocked(StateFinished) {
		return nil
	}

	c.startPending = false
	c.countdown.pause()
	c.releaseLocked()
	c.renderLocked()

	c.log.Info().Str("reason", reason).Int("answers", len(c.answers)).Msg("Submitting attempt")
	return &submission{
		reason:      reason,
		attempt:     *c.attempt,
		questions:   c.questions,
		answers:     c.answers.Clone(),
		tabSwitches: c.tabSwitches,
		totalPoints: c.quiz.TotalPoints,
	}
}

// completeSubmission grades and persists a captured submission. It runs
// outside the lock; a failed store write falls back to the local backup slot.
func (c *Controller) completeSubmission(sub *submission) {
	if err := c.cfg.Screen.ExitFullScreen(); err != nil {
		c.log.Debug().Err(err).Msg("Leaving full screen failed")
	}

	res := grading.Grade(sub.questions, sub.answers, sub.totalPoints)
	now := c.clock.Now()

	final := sub.attempt
	final.Answers = sub.answers
	final.TabSwitches = sub.tabSwitches
	final.Score = res.Score
	final.AchievedPoints = res.AchievedPoints
	final.EndedAt = &now
	final.Submitted = true

	ctx, cancel := c.ioContext()
	defer cancel()

	notice := newNotice(NoticeInfo, NoticeSubmitted)
	clearProgress := true
	if err := c.persistFinal(ctx, &final); err != nil {
		c.log.Error().Err(err).Str("attempt_id", final.ID.String()).Msg("Final submission failed, using local backup")
		if berr := c.cfg.Backup.SaveSubmission(ctx, &final); berr != nil {
			c.log.Error().Err(berr).Msg("Local submission backup failed")
			notice = newNotice(NoticeError, NoticeSubmitLost)
			clearProgress = false
		} else {
			notice = newNotice(NoticeWarning, NoticeSubmitFallback)
		}
	}

	if clearProgress {
		if err := c.cfg.Progress.ClearProgress(ctx, c.cfg.StudentID, c.cfg.QuizID); err != nil {
			c.log.Warn().Err(err).Msg("Clearing progress cache failed")
		}
	}

	c.mu.Lock()
	c.result = &final
	c.renderLocked()
	c.mu.Unlock()

	c.log.Info().
		Str("attempt_id", final.ID.String()).
		Str("reason", sub.reason).
		Int("score", final.Score).
		Int("achieved_points", final.AchievedPoints).
		Msg("Attempt submitted")
	c.notify(notice)

	c.clock.AfterFunc(c.cfg.CompletionDelay, func() { c.complete(final) })
}

// persistFinal updates the stored attempt, or creates it when the session
// never obtained an id.
func (c *Controller) persistFinal(ctx context.Context, final *model.Attempt) error {
	if final.Persisted() {
		if _, err := c.cfg.Attempts.UpdateAttempt(ctx, final.ID, final.FinalPatch()); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		return nil
	}

	created, err := c.cfg.Attempts.CreateAttempt(ctx, final)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	final.ID = created.ID
	return nil
}
