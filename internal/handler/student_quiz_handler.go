package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// StudentQuizHandler handles the student-facing quiz REST endpoints.
type StudentQuizHandler struct {
	catalog  *service.CatalogService
	attempts *service.AttemptService
}

// NewStudentQuizHandler creates a new StudentQuizHandler.
func NewStudentQuizHandler(catalog *service.CatalogService, attempts *service.AttemptService) *StudentQuizHandler {
	return &StudentQuizHandler{catalog: catalog, attempts: attempts}
}

// QuizOverview is what a student sees before opening a session.
type QuizOverview struct {
	ID                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	DurationMinutes    int        `json:"duration_minutes"`
	QuestionCount      int        `json:"question_count"`
	TabSwitchThreshold int        `json:"tab_switch_threshold"`
	Status             string     `json:"status"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
}

// Attempt statuses of a QuizOverview.
const (
	StatusNotStarted = "NOT_STARTED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

// GetQuiz godoc
// GET /api/v1/student/quizzes/:quiz_id
func (h *StudentQuizHandler) GetQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	quiz, ok := availableQuiz(c, h.catalog, quizID, claims)
	if !ok {
		return
	}

	overview := QuizOverview{
		ID:                 quiz.ID,
		Title:              quiz.Title,
		DurationMinutes:    quiz.DurationMinutes,
		QuestionCount:      len(quiz.QuestionIDs),
		TabSwitchThreshold: quiz.TabSwitchThreshold,
		Status:             StatusNotStarted,
	}

	attempt, err := h.attempts.FetchAttempt(c.Request.Context(), quizID, claims.UserID)
	switch {
	case err == nil:
		overview.StartedAt = &attempt.StartedAt
		overview.Status = StatusInProgress
		if attempt.Submitted {
			overview.Status = StatusCompleted
		}
	case !errors.Is(err, model.ErrAttemptNotFound):
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, overview)
}

// GetAttemptResult godoc
// GET /api/v1/student/quizzes/:quiz_id/attempt
// Returns the graded attempt. Correctness is only shown once answers are released.
func (h *StudentQuizHandler) GetAttemptResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attempts.Result(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		case errors.Is(err, service.ErrAttemptOpen):
			response.Fail(c, http.StatusConflict, response.ErrAttemptOpen)
		case errors.Is(err, model.ErrQuizNotFound), errors.Is(err, service.ErrQuizNotReleased):
			response.Fail(c, http.StatusNotFound, response.ErrQuizNotAvailable)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// availableQuiz loads a quiz the student may take, writing the error
// response otherwise.
func availableQuiz(c *gin.Context, catalog *service.CatalogService, quizID uuid.UUID, claims *service.Claims) (*model.Quiz, bool) {
	quiz, err := catalog.GetQuiz(c.Request.Context(), quizID)
	if err != nil {
		if errors.Is(err, model.ErrQuizNotFound) || errors.Is(err, service.ErrQuizNotReleased) {
			response.Fail(c, http.StatusNotFound, response.ErrQuizNotAvailable)
		} else {
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return nil, false
	}
	if quiz.ClassID != 0 && quiz.ClassID != claims.ClassID {
		response.Fail(c, http.StatusForbidden, response.ErrQuizNotAvailable)
		return nil, false
	}
	return quiz, true
}
