package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/progress"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
	ws "github.com/stemsi/exstem-quiz/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuizzes map[uuid.UUID]*model.Quiz

func (s stubQuizzes) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	q, ok := s[id]
	if !ok {
		return nil, model.ErrQuizNotFound
	}
	cp := *q
	return &cp, nil
}

type stubQuestions map[uuid.UUID]model.Question

func (s stubQuestions) ListByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := s[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

type stubAttempts struct {
	mu       sync.Mutex
	attempts []*model.Attempt
}

func (s *stubAttempts) GetByQuizAndStudent(_ context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, model.ErrAttemptNotFound
}

func (s *stubAttempts) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.New()
	cp := *a
	s.attempts = append(s.attempts, &cp)
	return nil
}

func (s *stubAttempts) Update(_ context.Context, id uuid.UUID, patch model.AttemptPatch) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ID == id {
			if a.Submitted {
				return nil, model.ErrAttemptSubmitted
			}
			patch.Apply(a)
			cp := *a
			return &cp, nil
		}
	}
	return nil, model.ErrAttemptNotFound
}

type testEnv struct {
	quiz     *model.Quiz
	question model.Question
	attempts *stubAttempts
	router   *gin.Engine
}

func newTestEnv(t *testing.T, claims *service.Claims) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := model.Question{
		ID:           uuid.New(),
		Type:         model.QuestionTypeSingleCorrect,
		Prompt:       "2 + 2?",
		Options:      []model.Option{{Text: "3"}, {Text: "4"}},
		CorrectIndex: 1,
		Points:       2,
	}
	quiz := &model.Quiz{
		ID:                 uuid.New(),
		Title:              "Arithmetic",
		ClassID:            4,
		QuestionIDs:        []uuid.UUID{q.ID},
		DurationMinutes:    5,
		TabSwitchThreshold: 3,
		TotalPoints:        2,
		Released:           true,
	}

	env := &testEnv{quiz: quiz, question: q, attempts: &stubAttempts{}}
	log := zerolog.Nop()
	cfg := &config.Config{BackupDebounce: 10 * time.Millisecond, CompletionDelay: 10 * time.Millisecond}

	catalog := service.NewCatalogService(stubQuizzes{quiz.ID: quiz}, stubQuestions{q.ID: q}, rdb, log)
	attempts := service.NewAttemptService(env.attempts, catalog, log)
	integrity := service.NewIntegrityService(rdb, log)

	quizHandler := NewStudentQuizHandler(catalog, attempts)
	sessionHandler := NewSessionHandler(catalog, attempts, integrity, progress.NewStore(rdb, time.Hour), cfg, log)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, claims)
		c.Next()
	})
	r.GET("/quizzes/:quiz_id", quizHandler.GetQuiz)
	r.GET("/quizzes/:quiz_id/attempt", quizHandler.GetAttemptResult)
	r.GET("/quizzes/:quiz_id/session", sessionHandler.QuizSessionStream)
	env.router = r
	return env
}

func studentClaims(classID int) *service.Claims {
	return &service.Claims{TokenType: service.TokenTypeStudent, UserID: 11, ClassID: classID}
}

func getJSON(t *testing.T, r http.Handler, path string, out interface{}) int {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func TestGetQuiz_Overview(t *testing.T) {
	env := newTestEnv(t, studentClaims(4))

	var body struct {
		Data QuizOverview `json:"data"`
	}
	code := getJSON(t, env.router, "/quizzes/"+env.quiz.ID.String(), &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusNotStarted, body.Data.Status)
	assert.Equal(t, 1, body.Data.QuestionCount)
	assert.Nil(t, body.Data.StartedAt)

	env.attempts.attempts = append(env.attempts.attempts, &model.Attempt{
		ID: uuid.New(), QuizID: env.quiz.ID, StudentID: 11, StartedAt: time.Now(),
	})
	code = getJSON(t, env.router, "/quizzes/"+env.quiz.ID.String(), &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusInProgress, body.Data.Status)
	assert.NotNil(t, body.Data.StartedAt)
}

func TestGetQuiz_Rejections(t *testing.T) {
	env := newTestEnv(t, studentClaims(9))

	assert.Equal(t, http.StatusForbidden, getJSON(t, env.router, "/quizzes/"+env.quiz.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, env.router, "/quizzes/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, env.router, "/quizzes/not-a-uuid", nil))
}

func TestGetAttemptResult_OpenAttempt(t *testing.T) {
	env := newTestEnv(t, studentClaims(4))
	path := "/quizzes/" + env.quiz.ID.String() + "/attempt"

	assert.Equal(t, http.StatusNotFound, getJSON(t, env.router, path, nil))

	env.attempts.attempts = append(env.attempts.attempts, &model.Attempt{
		ID: uuid.New(), QuizID: env.quiz.ID, StudentID: 11, StartedAt: time.Now(),
	})
	assert.Equal(t, http.StatusConflict, getJSON(t, env.router, path, nil))
}

func dialSession(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/quizzes/" + env.quiz.ID.String() + "/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type inbound struct {
	Event ws.Event        `json:"event"`
	Ref   string          `json:"ref"`
	Data  json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(inbound) bool) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg inbound
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func event(name ws.Event) func(inbound) bool {
	return func(m inbound) bool { return m.Event == name }
}

func stateIs(state string) func(inbound) bool {
	return func(m inbound) bool {
		if m.Event != ws.EventSnapshot {
			return false
		}
		var s struct {
			State string `json:"state"`
		}
		return json.Unmarshal(m.Data, &s) == nil && s.State == state
	}
}

func TestQuizSessionStream_TakeAndSubmit(t *testing.T) {
	env := newTestEnv(t, studentClaims(4))
	conn := dialSession(t, env)

	readUntil(t, conn, stateIs("awaiting_ready"))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "start"}))
	readUntil(t, conn, event(ws.EventRequestFullScreen))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "fullscreen_entered"}))
	readUntil(t, conn, event(ws.EventAttachSensors))
	readUntil(t, conn, stateIs("running"))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "select_answer", "ref": "a1",
		"payload": map[string]interface{}{"question_id": env.question.ID.String(), "option": 1},
	}))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "context_menu", "ref": "m1"}))
	verdict := readUntil(t, conn, event(ws.EventVerdict))
	assert.Equal(t, "m1", verdict.Ref)
	assert.JSONEq(t, `{"suppress":true}`, string(verdict.Data))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "submit"}))
	complete := readUntil(t, conn, event(ws.EventComplete))

	var data ws.CompleteData
	require.NoError(t, json.Unmarshal(complete.Data, &data))
	assert.Equal(t, 100, data.Score)
	assert.Contains(t, data.Redirect, env.quiz.ID.String())

	stored, err := env.attempts.GetByQuizAndStudent(context.Background(), env.quiz.ID, 11)
	require.NoError(t, err)
	assert.True(t, stored.Submitted)
	assert.Equal(t, 2, stored.AchievedPoints)
}

func TestQuizSessionStream_RejectsInvalidMessages(t *testing.T) {
	env := newTestEnv(t, studentClaims(4))
	conn := dialSession(t, env)
	readUntil(t, conn, stateIs("awaiting_ready"))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"ref": "x1"}))
	msg := readUntil(t, conn, event(ws.EventError))
	assert.Equal(t, "x1", msg.Ref)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "next", "ref": "x2"}))
	msg = readUntil(t, conn, event(ws.EventError))
	assert.Equal(t, "x2", msg.Ref)
	assert.Contains(t, string(msg.Data), "not running")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "ping", "ref": "p1"}))
	msg = readUntil(t, conn, event(ws.EventPong))
	assert.Equal(t, "p1", msg.Ref)
}

func TestQuizSessionStream_SelectWithoutOptionRejected(t *testing.T) {
	env := newTestEnv(t, studentClaims(4))
	conn := dialSession(t, env)

	readUntil(t, conn, stateIs("awaiting_ready"))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "start"}))
	readUntil(t, conn, event(ws.EventRequestFullScreen))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "fullscreen_entered"}))
	readUntil(t, conn, stateIs("running"))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "select_answer", "ref": "a1",
		"payload": map[string]interface{}{"question_id": env.question.ID.String(), "text": "3"},
	}))
	msg := readUntil(t, conn, event(ws.EventError))
	assert.Equal(t, "a1", msg.Ref)
	assert.Contains(t, string(msg.Data), "invalid choice")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "submit"}))
	readUntil(t, conn, event(ws.EventComplete))

	stored, err := env.attempts.GetByQuizAndStudent(context.Background(), env.quiz.ID, 11)
	require.NoError(t, err)
	assert.True(t, stored.Submitted)
	assert.Empty(t, stored.Answers)
	assert.Equal(t, 0, stored.Score)
}
