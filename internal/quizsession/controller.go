// Package quizsession implements the proctored quiz-taking session: the
// lifecycle state machine, countdown, integrity monitoring, answer
// collection, progress persistence and final grading of one student's
// attempt at one quiz.
//
// A Controller is the only writer of its session state, of the progress
// cache entry and of the attempt record. Presentation layers read Snapshot
// values through the View port and feed intents and sensor events back in.
package quizsession

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/shuffle"
)

const (
	DefaultBackupDebounce  = 2 * time.Second
	DefaultCompletionDelay = 3 * time.Second
	DefaultIOTimeout       = 10 * time.Second

	// MaxFullScreenExits is the exit count that submits the session. The
	// exit before it only warns.
	MaxFullScreenExits = 2
)

// Config wires a Controller to its collaborators.
type Config struct {
	StudentID int
	QuizID    uuid.UUID

	Quizzes   QuizSource
	Questions QuestionSource
	Attempts  AttemptStore
	Progress  ProgressCache
	Backup    SubmissionBackup
	Screen    Screen
	Sensors   Sensors
	View      View
	Notifier  Notifier
	// Recorder is optional.
	Recorder IntegrityRecorder

	Clock  clockwork.Clock
	Logger zerolog.Logger
	// Shuffle fixes the question order of a new attempt.
	Shuffle func([]model.Question) []model.Question

	BackupDebounce  time.Duration
	CompletionDelay time.Duration
	IOTimeout       time.Duration

	// OnComplete is invoked once the session is over: right away for an
	// attempt that was already submitted, CompletionDelay after a submit
	// otherwise.
	OnComplete func(model.Attempt)
}

// Controller runs one student's session against one quiz.
type Controller struct {
	cfg     Config
	clock   clockwork.Clock
	log     zerolog.Logger
	backup  *debouncer
	baseCtx context.Context

	completeOnce sync.Once

	mu              sync.Mutex
	state           State
	quiz            *model.Quiz
	questions       []model.Question
	index           int
	answers         model.Answers
	countdown       countdown
	tabSwitches     int
	fullScreenExits int
	attempt         *model.Attempt
	result          *model.Attempt
	startPending    bool
	monitor         *monitor
	closed          bool
}

// New creates a controller in the Loading state. Call Load to resolve it.
func New(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Shuffle == nil {
		cfg.Shuffle = shuffle.Shuffle[model.Question]
	}
	if cfg.BackupDebounce <= 0 {
		cfg.BackupDebounce = DefaultBackupDebounce
	}
	if cfg.CompletionDelay <= 0 {
		cfg.CompletionDelay = DefaultCompletionDelay
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}

	c := &Controller{
		cfg:   cfg,
		clock: cfg.Clock,
		log: cfg.Logger.With().
			Str("component", "quiz_session").
			Int("student_id", cfg.StudentID).
			Str("quiz_id", cfg.QuizID.String()).
			Logger(),
		state:   StateLoading,
		answers: model.Answers{},
	}
	c.backup = newDebouncer(c.clock, cfg.BackupDebounce, c.flushBackup)
	return c
}

// Snapshot returns the current display state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Load resolves the session: an already submitted attempt finishes it
// immediately, a saved snapshot resumes it, an unsubmitted remote attempt is
// reconciled, and otherwise a new attempt is created. ctx scopes all later
// I/O of the session; cancellation does not interrupt writes in flight.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.baseCtx != nil {
		c.mu.Unlock()
		return ErrAlreadyLoaded
	}
	c.baseCtx = ctx
	c.renderLocked()
	c.mu.Unlock()

	if err := c.load(ctx); err != nil {
		c.mu.Lock()
		c.setStateLocked(StateLoadFailed)
		c.renderLocked()
		c.mu.Unlock()

		c.log.Error().Err(err).Msg("Session initialization failed")
		c.notify(newNotice(NoticeError, NoticeLoadFailed))
		return fmt.Errorf("load session: %w", err)
	}
	return nil
}

func (c *Controller) load(ctx context.Context) error {
	quiz, err := c.cfg.Quizzes.GetQuiz(ctx, c.cfg.QuizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}

	existing, err := c.cfg.Attempts.FetchAttempt(ctx, quiz.ID, c.cfg.StudentID)
	if err != nil {
		if !errors.Is(err, model.ErrAttemptNotFound) {
			return fmt.Errorf("fetch attempt: %w", err)
		}
		existing = nil
	}

	if existing != nil && existing.Submitted {
		c.finishSubmitted(quiz, existing)
		return nil
	}

	snap, err := c.cfg.Progress.LoadProgress(ctx, c.cfg.StudentID, quiz.ID)
	if err != nil {
		if !errors.Is(err, model.ErrNoProgress) {
			c.log.Warn().Err(err).Msg("Progress cache unreadable, ignoring it")
		}
		snap = nil
	}

	switch {
	case snap != nil:
		return c.resume(ctx, quiz, snap)
	case existing != nil:
		return c.reconcile(ctx, quiz, existing)
	default:
		return c.initialize(ctx, quiz)
	}
}

// finishSubmitted is the re-entry guard: a completed quiz cannot be reopened.
func (c *Controller) finishSubmitted(quiz *model.Quiz, attempt *model.Attempt) {
	c.mu.Lock()
	c.quiz = quiz
	c.attempt = attempt
	c.result = attempt
	c.answers = attempt.Answers.Clone()
	c.tabSwitches = attempt.TabSwitches
	c.setStateLocked(StateFinished)
	c.renderLocked()
	c.mu.Unlock()

	c.log.Info().Str("attempt_id", attempt.ID.String()).Msg("Attempt already submitted")
	c.notify(newNotice(NoticeInfo, NoticeAlreadySubmitted))
	c.complete(*attempt)
}

func (c *Controller) resume(ctx context.Context, quiz *model.Quiz, snap *model.ProgressSnapshot) error {
	c.enterLoadStep(StateResuming)

	questions, err := c.fetchOrdered(ctx, snap.QuestionOrder)
	if err != nil {
		return err
	}

	attempt := snap.Attempt
	answers := snap.Answers.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.quiz = quiz
	c.questions = questions
	c.answers = answers
	c.countdown = newCountdown(snap.RemainingSeconds)
	c.tabSwitches = snap.TabSwitches
	c.fullScreenExits = snap.FullScreenExits
	c.index = clampIndex(snap.CurrentIndex, len(questions))
	c.attempt = &attempt
	c.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("remaining_seconds", snap.RemainingSeconds).
		Msg("Session resumed from progress cache")
	c.awaitReadyLocked()
	return nil
}

// reconcile adopts an unsubmitted remote attempt when this device holds no
// snapshot. Remaining time follows from the fixed start time.
func (c *Controller) reconcile(ctx context.Context, quiz *model.Quiz, existing *model.Attempt) error {
	c.enterLoadStep(StateReconciling)

	questions, err := c.fetchOrdered(ctx, existing.QuestionOrder)
	if err != nil {
		return err
	}

	remaining := quiz.Duration() - c.clock.Since(existing.StartedAt)
	if remaining < 0 {
		remaining = 0
	}

	attempt := *existing

	c.mu.Lock()
	defer c.mu.Unlock()
	c.quiz = quiz
	c.questions = questions
	c.answers = existing.Answers.Clone()
	c.countdown = newCountdown(int(remaining / time.Second))
	c.tabSwitches = existing.TabSwitches
	c.attempt = &attempt
	c.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Dur("remaining", remaining).
		Msg("Session reconciled from remote attempt")
	c.awaitReadyLocked()
	return nil
}

func (c *Controller) initialize(ctx context.Context, quiz *model.Quiz) error {
	c.enterLoadStep(StateInitializing)

	fetched, err := c.cfg.Questions.FetchQuestionsByIDs(ctx, quiz.QuestionIDs)
	if err != nil {
		return fmt.Errorf("fetch questions: %w", err)
	}
	questions, err := model.ArrangeQuestions(fetched, quiz.QuestionIDs)
	if err != nil {
		return err
	}

	questions = c.cfg.Shuffle(questions)
	order := questionIDs(questions)

	created, err := c.cfg.Attempts.CreateAttempt(ctx, &model.Attempt{
		QuizID:        quiz.ID,
		StudentID:     c.cfg.StudentID,
		QuestionOrder: order,
		Answers:       model.Answers{},
		StartedAt:     c.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}

	// The store keeps the first attempt when two devices race; follow it.
	if created.Submitted {
		c.finishSubmitted(quiz, created)
		return nil
	}
	if !slices.Equal(created.QuestionOrder, order) {
		if questions, err = model.ArrangeQuestions(fetched, created.QuestionOrder); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.quiz = quiz
	c.questions = questions
	c.answers = created.Answers.Clone()
	c.countdown = newCountdown(quiz.DurationMinutes * 60)
	c.tabSwitches = created.TabSwitches
	c.attempt = created
	c.log.Info().
		Str("attempt_id", created.ID.String()).
		Int("questions", len(questions)).
		Msg("Attempt created")
	c.awaitReadyLocked()
	return nil
}

func (c *Controller) enterLoadStep(step State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(step)
	c.renderLocked()
}

func (c *Controller) awaitReadyLocked() {
	c.setStateLocked(StateAwaitingReady)
	c.saveProgressLocked()
	c.renderLocked()
}

func (c *Controller) fetchOrdered(ctx context.Context, order []uuid.UUID) ([]model.Question, error) {
	fetched, err := c.cfg.Questions.FetchQuestionsByIDs(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	return model.ArrangeQuestions(fetched, order)
}

// Close tears down the monitoring scope and pending backup. An unfinished
// session stays resumable from the progress cache.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.releaseLocked()
	c.log.Debug().Stringer("state", c.state).Msg("Session closed")
}

// ─── Internal helpers ──────────────────────────────────────────────────

func (c *Controller) setStateLocked(next State) bool {
	if !c.state.CanTransition(next) {
		c.log.Error().
			Stringer("from", c.state).
			Stringer("to", next).
			Msg("Illegal session transition refused")
		return false
	}
	c.log.Debug().Stringer("from", c.state).Stringer("to", next).Msg("Session transition")
	c.state = next
	return true
}

func (c *Controller) releaseLocked() {
	if c.monitor != nil {
		c.monitor.release()
		c.monitor = nil
	}
	c.backup.stop()
}

func (c *Controller) monitoringLocked() bool {
	return c.monitor != nil && c.state.Ready()
}

// markChangedLocked writes the snapshot through to the progress cache and
// re-renders. remote also restarts the debounced backup to the store.
func (c *Controller) markChangedLocked(remote bool) {
	c.saveProgressLocked()
	if remote {
		c.backup.trigger()
	}
	c.renderLocked()
}

func (c *Controller) saveProgressLocked() {
	if c.attempt == nil {
		return
	}

	snap := &model.ProgressSnapshot{
		QuestionOrder:    questionIDs(c.questions),
		Answers:          c.answers.Clone(),
		RemainingSeconds: c.countdown.remaining,
		TabSwitches:      c.tabSwitches,
		FullScreenExits:  c.fullScreenExits,
		CurrentIndex:     c.index,
		Attempt:          *c.attempt,
		SavedAt:          c.clock.Now(),
	}

	ctx, cancel := c.ioContext()
	defer cancel()

	if err := c.cfg.Progress.SaveProgress(ctx, c.cfg.StudentID, c.cfg.QuizID, snap); err != nil {
		c.log.Error().Err(err).Msg("Progress cache write failed")
	}
}

func (c *Controller) flushBackup() {
	c.mu.Lock()
	if c.state == StateFinished || c.attempt == nil || !c.attempt.Persisted() {
		c.mu.Unlock()
		return
	}
	attemptID := c.attempt.ID
	tabs := c.tabSwitches
	patch := model.AttemptPatch{Answers: c.answers.Clone(), TabSwitches: &tabs}
	c.mu.Unlock()

	ctx, cancel := c.ioContext()
	defer cancel()

	if _, err := c.cfg.Attempts.UpdateAttempt(ctx, attemptID, patch); err != nil {
		c.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Backup write failed")
		return
	}
	c.log.Debug().Str("attempt_id", attemptID.String()).Int("answers", len(patch.Answers)).Msg("Backup written")
}

func (c *Controller) ioContext() (context.Context, context.CancelFunc) {
	base := c.baseCtx
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(base), c.cfg.IOTimeout)
}

func (c *Controller) renderLocked() {
	if c.cfg.View != nil {
		c.cfg.View.Render(c.snapshotLocked())
	}
}

func (c *Controller) notify(n Notice) {
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.Notify(n)
	}
}

func (c *Controller) complete(a model.Attempt) {
	c.completeOnce.Do(func() {
		if c.cfg.OnComplete != nil {
			c.cfg.OnComplete(a)
		}
	})
}

func questionIDs(questions []model.Question) []uuid.UUID {
	ids := make([]uuid.UUID, len(questions))
	for i := range questions {
		ids[i] = questions[i].ID
	}
	return ids
}

func clampIndex(i, n int) int {
	if i < 0 || n == 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
