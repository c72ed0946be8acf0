package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// CheckSingleDeviceSession admits only the student's newest token. Logging
// in on a second device replaces the session id in Redis, so the first
// device can neither call the quiz API nor reopen its session stream.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		student, ok := GetStudent(c)
		if !ok {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		err := authService.ValidateStudentSession(c.Request.Context(), student.ID, GetClaims(c).ID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrNoActiveSession), errors.Is(err, service.ErrSessionInvalidated):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
		default:
			// Redis is down; the token may well be current.
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrSessionCheckUnavailable)
		}
	}
}
