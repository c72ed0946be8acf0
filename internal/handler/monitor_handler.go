package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams a quiz's integrity events to proctors.
type MonitorHandler struct {
	catalog   *service.CatalogService
	integrity *service.IntegrityService
	log       zerolog.Logger
}

func NewMonitorHandler(catalog *service.CatalogService, integrity *service.IntegrityService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		catalog:   catalog,
		integrity: integrity,
		log:       log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorQuizSSE godoc
// GET /api/v1/admin/quizzes/:quiz_id/monitor
func (h *MonitorHandler) MonitorQuizSSE(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	quiz, err := h.catalog.GetQuiz(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrQuizNotAvailable)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendHello(c, quiz)

	pubsub := h.integrity.Subscribe(reqCtx, quizID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("quiz_id", quizID.String()).Msg("Proctor attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("quiz_id", quizID.String()).Msg("Proctor detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON, no re-encoding needed.
			writeEvent(c, []byte(msg.Payload))

		case <-keepAlive.C:
			writeEvent(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendHello(c *gin.Context, quiz *model.Quiz) {
	c.SSEvent("message", map[string]interface{}{
		"type": "hello",
		"data": map[string]interface{}{
			"id":                   quiz.ID.String(),
			"title":                quiz.Title,
			"duration":             quiz.DurationMinutes,
			"total_questions":      len(quiz.QuestionIDs),
			"tab_switch_threshold": quiz.TabSwitchThreshold,
		},
	})
	c.Writer.Flush()
}

func writeEvent(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
