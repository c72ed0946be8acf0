package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/progress"
	"github.com/stemsi/exstem-quiz/internal/quizsession"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
	ws "github.com/stemsi/exstem-quiz/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionHandler streams a proctored quiz session over a WebSocket. Each
// connection drives one quizsession.Controller.
type SessionHandler struct {
	catalog   *service.CatalogService
	attempts  *service.AttemptService
	integrity *service.IntegrityService
	progress  *progress.Store
	cfg       *config.Config
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	catalog *service.CatalogService,
	attempts *service.AttemptService,
	integrity *service.IntegrityService,
	progress *progress.Store,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		catalog:   catalog,
		attempts:  attempts,
		integrity: integrity,
		progress:  progress,
		cfg:       cfg,
		log:       log.With().Str("component", "session_handler").Logger(),
		upgrader:  buildUpgrader(cfg.AllowedOrigins),
	}
}

// QuizSessionStream godoc
// WS /ws/v1/student/quizzes/:quiz_id/session
func (h *SessionHandler) QuizSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	student, ok := middleware.GetStudent(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if _, ok := availableQuiz(c, h.catalog, quizID, claims); !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := student.ID
	ctx := c.Request.Context()

	wsLog := h.log.With().
		Str("request_id", response.RequestID(c)).
		Int("student_id", studentID).
		Str("quiz_id", quizID.String()).
		Logger()

	// A submission that could not reach the store last time goes first.
	h.recoverSubmission(ctx, wsLog, studentID, quizID)

	sc := newSessionConn(conn, wsLog)
	go sc.writeLoop()
	defer sc.close()

	ctrl := quizsession.New(quizsession.Config{
		StudentID:       studentID,
		QuizID:          quizID,
		Quizzes:         h.catalog,
		Questions:       h.catalog,
		Attempts:        h.attempts,
		Progress:        h.progress,
		Backup:          h.progress,
		Screen:          sc,
		Sensors:         sc,
		View:            sc,
		Notifier:        sc,
		Recorder:        h.integrity,
		Logger:          wsLog,
		BackupDebounce:  h.cfg.BackupDebounce,
		CompletionDelay: h.cfg.CompletionDelay,
		OnComplete: func(a model.Attempt) {
			sc.send(ws.Message{Event: ws.EventComplete, Data: ws.CompleteData{
				AttemptID: a.ID.String(),
				Score:     a.Score,
				Redirect:  fmt.Sprintf("/student/quizzes/%s/result", quizID),
			}})
		},
	})
	defer ctrl.Close()

	wsLog.Info().Msg("Student connected")

	if err := ctrl.Load(ctx); err != nil {
		wsLog.Warn().Err(err).Msg("Session load failed")
		sc.fail("", "session could not be loaded", nil)
		waitDrain(sc)
		return
	}

	for {
		var env ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		if fields := validator.Struct(&env); fields != nil {
			sc.fail(env.Ref, "invalid message", fields)
			continue
		}
		h.dispatch(ctrl, sc, wsLog, &env)
	}
}

// dispatch forwards one client action to the controller.
func (h *SessionHandler) dispatch(ctrl *quizsession.Controller, sc *sessionConn, log zerolog.Logger, env *ws.RequestEnvelope) {
	var err error

	switch env.Action {
	case ws.ActionStart:
		err = ctrl.StartSession()
	case ws.ActionReEnterFullScreen:
		err = ctrl.ReEnterFullScreen()
	case ws.ActionFullScreenEntered:
		ctrl.FullScreenEntered()
	case ws.ActionFullScreenFailed:
		var req ws.FullScreenFailedRequest
		if !decodePayload(sc, env, &req) {
			return
		}
		ctrl.FullScreenFailed(req.Reason)
	case ws.ActionFullScreenExited:
		ctrl.FullScreenExited()
	case ws.ActionVisibilityHidden:
		ctrl.VisibilityHidden()
	case ws.ActionKeyDown:
		var req ws.KeyDownRequest
		if !decodePayload(sc, env, &req) {
			return
		}
		sc.verdict(env.Ref, ctrl.KeyDown(req.Key))
	case ws.ActionClipboard:
		var req ws.ClipboardRequest
		if !decodePayload(sc, env, &req) {
			return
		}
		sc.verdict(env.Ref, ctrl.Clipboard(quizsession.ClipboardOp(req.Op)))
	case ws.ActionContextMenu:
		sc.verdict(env.Ref, ctrl.ContextMenu())
	case ws.ActionSelectAnswer:
		var req ws.SelectAnswerRequest
		if !decodePayload(sc, env, &req) {
			return
		}
		choice := quizsession.Choice{Option: req.Option, Text: req.Text}
		err = ctrl.SelectAnswer(uuid.MustParse(req.QuestionID), choice)
	case ws.ActionNext:
		err = ctrl.NextQuestion()
	case ws.ActionPrevious:
		err = ctrl.PreviousQuestion()
	case ws.ActionSubmit:
		ctrl.Submit()
	case ws.ActionPing:
		sc.send(ws.Message{Event: ws.EventPong, Ref: env.Ref})
	default:
		log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		sc.fail(env.Ref, "unknown action: "+string(env.Action), nil)
		return
	}

	if err != nil {
		log.Debug().Err(err).Str("action", string(env.Action)).Msg("Action rejected")
		sc.fail(env.Ref, actionError(err), nil)
	}
}

// decodePayload parses and validates an action payload, reporting failures
// to the client.
func decodePayload(sc *sessionConn, env *ws.RequestEnvelope, dst interface{}) bool {
	if len(env.Payload) == 0 {
		sc.fail(env.Ref, "payload is required", nil)
		return false
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		sc.fail(env.Ref, "invalid payload", nil)
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		sc.fail(env.Ref, "invalid payload", fields)
		return false
	}
	return true
}

func actionError(err error) string {
	switch {
	case errors.Is(err, quizsession.ErrNotAwaitingStart):
		return "session is not waiting to start"
	case errors.Is(err, quizsession.ErrNotWarned):
		return "full-screen warning is not active"
	case errors.Is(err, quizsession.ErrNotRunning):
		return "session is not running"
	case errors.Is(err, quizsession.ErrUnknownQuestion):
		return "unknown question"
	case errors.Is(err, quizsession.ErrInvalidChoice):
		return "invalid choice"
	default:
		return "action failed"
	}
}

// recoverSubmission delivers a backed-up final attempt, if any.
func (h *SessionHandler) recoverSubmission(ctx context.Context, log zerolog.Logger, studentID int, quizID uuid.UUID) {
	backup, err := h.progress.LoadSubmission(ctx, studentID, quizID)
	if err != nil {
		if !errors.Is(err, progress.ErrNoSubmission) {
			log.Warn().Err(err).Msg("Submission backup unreadable")
		}
		return
	}

	settled, err := h.attempts.RecoverSubmission(ctx, backup)
	if err != nil {
		log.Warn().Err(err).Msg("Backed-up submission still undeliverable")
		return
	}
	if settled {
		if err := h.progress.ClearSubmission(ctx, studentID, quizID); err != nil {
			log.Warn().Err(err).Msg("Failed to clear submission backup")
		}
	}
}

// waitDrain gives the writer a moment to flush queued events before the
// connection closes.
func waitDrain(sc *sessionConn) {
	deadline := time.Now().Add(ws.WriteWait)
	for len(sc.out) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}
