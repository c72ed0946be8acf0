package quizsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("store unavailable")

// fakeStore serves quizzes, questions and attempts from memory. Like the
// real attempt service it refuses to touch a submitted attempt.
type fakeStore struct {
	mu sync.Mutex

	quiz      *model.Quiz
	questions map[uuid.UUID]model.Question
	attempt   *model.Attempt
	// raced is returned by CreateAttempt as the attempt that already exists.
	raced *model.Attempt

	quizErr   error
	fetchErr  error
	createErr error
	updateErr error

	creates       int
	updates       int
	finalUpdates  int
	failedUpdates int
	lastPatch     model.AttemptPatch
}

func (s *fakeStore) GetQuiz(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quizErr != nil {
		return nil, s.quizErr
	}
	if s.quiz == nil || s.quiz.ID != id {
		return nil, model.ErrQuizNotFound
	}
	q := *s.quiz
	return &q, nil
}

func (s *fakeStore) FetchQuestionsByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Question, 0, len(ids))
	// Reverse order: callers must not rely on it.
	for i := len(ids) - 1; i >= 0; i-- {
		if q, ok := s.questions[ids[i]]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeStore) FetchAttempt(_ context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.attempt == nil || s.attempt.QuizID != quizID || s.attempt.StudentID != studentID {
		return nil, model.ErrAttemptNotFound
	}
	a := *s.attempt
	a.Answers = s.attempt.Answers.Clone()
	return &a, nil
}

func (s *fakeStore) CreateAttempt(_ context.Context, a *model.Attempt) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.creates++
	if s.raced != nil {
		s.attempt = s.raced
		s.raced = nil
	}
	if s.attempt != nil {
		existing := *s.attempt
		return &existing, nil
	}
	created := *a
	created.ID = uuid.New()
	created.Answers = a.Answers.Clone()
	s.attempt = &created
	out := created
	return &out, nil
}

func (s *fakeStore) UpdateAttempt(_ context.Context, id uuid.UUID, patch model.AttemptPatch) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		s.failedUpdates++
		return nil, s.updateErr
	}
	if s.attempt == nil || s.attempt.ID != id {
		return nil, model.ErrAttemptNotFound
	}
	if s.attempt.Submitted {
		return nil, model.ErrAttemptSubmitted
	}
	s.updates++
	if patch.Submitted != nil && *patch.Submitted {
		s.finalUpdates++
	}
	s.lastPatch = patch
	patch.Apply(s.attempt)
	out := *s.attempt
	return &out, nil
}

func (s *fakeStore) stored() model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.attempt
}

func (s *fakeStore) counts() (creates, updates, finals int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.updates, s.finalUpdates
}

func (s *fakeStore) failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedUpdates
}

type fakeProgress struct {
	mu      sync.Mutex
	snap    *model.ProgressSnapshot
	loadErr error
	saves   int
	clears  int
	backup  *model.Attempt
	backErr error
}

func (p *fakeProgress) LoadProgress(context.Context, int, uuid.UUID) (*model.ProgressSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.snap == nil {
		return nil, model.ErrNoProgress
	}
	s := *p.snap
	return &s, nil
}

func (p *fakeProgress) SaveProgress(_ context.Context, _ int, _ uuid.UUID, snap *model.ProgressSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := *snap
	p.snap = &s
	p.saves++
	return nil
}

func (p *fakeProgress) ClearProgress(context.Context, int, uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = nil
	p.clears++
	return nil
}

func (p *fakeProgress) SaveSubmission(_ context.Context, a *model.Attempt) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backErr != nil {
		return p.backErr
	}
	saved := *a
	p.backup = &saved
	return nil
}

func (p *fakeProgress) saved() *model.ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

type fakeScreen struct {
	mu         sync.Mutex
	requests   int
	exits      int
	requestErr error
}

func (s *fakeScreen) RequestFullScreen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	return s.requestErr
}

func (s *fakeScreen) ExitFullScreen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exits++
	return nil
}

type fakeSensors struct {
	mu        sync.Mutex
	attached  int
	released  int
	attachErr error
}

func (s *fakeSensors) Attach() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachErr != nil {
		return nil, s.attachErr
	}
	s.attached++
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.released++
	}, nil
}

type fakeView struct {
	mu      sync.Mutex
	renders int
	last    Snapshot
}

func (v *fakeView) Render(s Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders++
	v.last = s
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *fakeNotifier) Notify(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *fakeNotifier) codes() []NoticeCode {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NoticeCode, len(n.notices))
	for i, notice := range n.notices {
		out[i] = notice.Code
	}
	return out
}

type fakeRecorder struct {
	mu         sync.Mutex
	violations []Violation
}

func (r *fakeRecorder) Record(_ context.Context, v Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, v)
	return nil
}

func (r *fakeRecorder) kinds() []ViolationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ViolationKind, len(r.violations))
	for i, v := range r.violations {
		out[i] = v.Kind
	}
	return out
}

// ─── Harness ───────────────────────────────────────────────────────────

const testStudentID = 42

var testStart = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type harness struct {
	t         *testing.T
	clock     *clockwork.FakeClock
	store     *fakeStore
	progress  *fakeProgress
	screen    *fakeScreen
	sensors   *fakeSensors
	view      *fakeView
	notes     *fakeNotifier
	recorder  *fakeRecorder
	completed chan model.Attempt
	ctrl      *Controller
}

// twoQuestions is the 2 + 3 point quiz: a single-correct question worth 2
// (answer: option 1) and a multiple-correct one worth 3 (answer: 0 and 2).
func twoQuestions() (*model.Quiz, []model.Question) {
	q1 := model.Question{
		ID:           uuid.New(),
		Type:         model.QuestionTypeSingleCorrect,
		Prompt:       "2 + 2 = ?",
		Options:      []model.Option{{Text: "3"}, {Text: "4"}, {Text: "5"}},
		CorrectIndex: 1,
		Points:       2,
	}
	q2 := model.Question{
		ID:             uuid.New(),
		Type:           model.QuestionTypeMultipleCorrect,
		Prompt:         "Pick the primes",
		Options:        []model.Option{{Text: "2"}, {Text: "4"}, {Text: "5"}},
		CorrectIndices: []int{0, 2},
		Points:         3,
	}
	quiz := &model.Quiz{
		ID:                 uuid.New(),
		Title:              "Arithmetic",
		QuestionIDs:        []uuid.UUID{q1.ID, q2.ID},
		DurationMinutes:    1,
		TabSwitchThreshold: 3,
		TotalPoints:        5,
		Released:           true,
	}
	return quiz, []model.Question{q1, q2}
}

func newHarness(t *testing.T, quiz *model.Quiz, questions []model.Question) *harness {
	t.Helper()

	byID := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	h := &harness{
		t:         t,
		clock:     clockwork.NewFakeClockAt(testStart),
		store:     &fakeStore{quiz: quiz, questions: byID},
		progress:  &fakeProgress{},
		screen:    &fakeScreen{},
		sensors:   &fakeSensors{},
		view:      &fakeView{},
		notes:     &fakeNotifier{},
		recorder:  &fakeRecorder{},
		completed: make(chan model.Attempt, 4),
	}
	return h
}

func (h *harness) build() *Controller {
	h.ctrl = New(Config{
		StudentID:  testStudentID,
		QuizID:     h.store.quiz.ID,
		Quizzes:    h.store,
		Questions:  h.store,
		Attempts:   h.store,
		Progress:   h.progress,
		Backup:     h.progress,
		Screen:     h.screen,
		Sensors:    h.sensors,
		View:       h.view,
		Notifier:   h.notes,
		Recorder:   h.recorder,
		Clock:      h.clock,
		Logger:     zerolog.Nop(),
		Shuffle:    func(q []model.Question) []model.Question { return q },
		OnComplete: func(a model.Attempt) { h.completed <- a },
	})
	h.t.Cleanup(h.ctrl.Close)
	return h.ctrl
}

func (h *harness) load() *Controller {
	h.t.Helper()
	c := h.build()
	require.NoError(h.t, c.Load(context.Background()))
	return c
}

// start loads the session and passes the readiness gate.
func (h *harness) start() *Controller {
	h.t.Helper()
	c := h.load()
	require.NoError(h.t, c.StartSession())
	c.FullScreenEntered()
	require.Equal(h.t, StateRunning, c.Snapshot().State)
	return c
}

// tick delivers n ticks of the current monitor scope.
func (h *harness) tick(n int) {
	for range n {
		h.ctrl.mu.Lock()
		m := h.ctrl.monitor
		h.ctrl.mu.Unlock()
		h.ctrl.onTick(m)
	}
}

func (h *harness) waitCompleted() model.Attempt {
	h.t.Helper()
	select {
	case a := <-h.completed:
		return a
	case <-time.After(2 * time.Second):
		h.t.Fatal("session did not complete")
		return model.Attempt{}
	}
}
