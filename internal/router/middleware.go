package router

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"perio-go/internal/handlers"
	"perio-go/internal/session"
)

// ExamSessionRequired resolves the exam session held by the cookie session and puts its ID in
// the context. A cookie pointing at a session that no longer exists (committed, cancelled or
// evicted) is cleared.
func ExamSessionRequired(manager *session.Manager, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie := sessions.Default(c)
		id, ok := cookie.Get(handlers.SessionCookieKey).(string)
		if !ok || id == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no exam session"})
			return
		}

		if _, err := manager.Meta(id); err != nil {
			if !errors.Is(err, session.ErrSessionNotFound) {
				log.Error("Failed to resolve exam session", zap.String("session_id", id), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			cookie.Delete(handlers.SessionCookieKey)
			if err := cookie.Save(); err != nil {
				log.Warn("Failed to clear stale exam session", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": session.ErrSessionNotFound.Error()})
			return
		}

		c.Set(handlers.ExamSessionContextKey, id)
		c.Next()
	}
}
