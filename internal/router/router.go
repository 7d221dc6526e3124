package router

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"perio-go/internal/config"
	"perio-go/internal/handlers"
	"perio-go/internal/session"
	"perio-go/internal/utils"
)

const cookieSessionName = "perio_session"

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      "Too many requests. Try again later.",
		"retryAfter": time.Until(info.ResetTime).Round(time.Second).String(),
	})
}

// Setup builds the API engine around a session manager and an exam store.
func Setup(log *zap.Logger, server config.ServerConfig, manager *session.Manager, store handlers.ExamStore) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogger(log))

	secret, generated, err := utils.CookieSecret(server.SessionSecret)
	if err != nil {
		return nil, err
	}
	if generated {
		log.Warn("No session secret configured; cookie sessions will not survive a restart")
	}
	cookieStore := cookie.NewStore(secret)
	cookieStore.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   server.SecureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   86400,
	})
	router.Use(sessions.Sessions(cookieSessionName, cookieStore))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	examHandler := handlers.NewExamHandler(log, manager, store)
	metricsHandler := handlers.NewMetricsHandler(log, manager)
	resultsHandler := handlers.NewResultsHandler(log, store)

	limit := server.RateLimitPerMinute
	if limit == 0 {
		limit = 30
	}
	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: limit,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": manager.Len()})
	})

	api := router.Group("/api")
	api.Use(CSRFProtection())
	{
		api.GET("/csrf", CSRFToken)
		api.POST("/exam/sessions", limiter, examHandler.Create)

		sess := api.Group("/exam/session")
		sess.Use(ExamSessionRequired(manager, log))
		{
			sess.GET("", examHandler.State)
			sess.GET("/summary", metricsHandler.LiveSummary)
			sess.POST("/keypad", examHandler.Keypad)
			sess.POST("/skip", examHandler.Skip)
			sess.POST("/click", examHandler.Click)
			sess.POST("/navigate", examHandler.Navigate)
			sess.POST("/plaque", examHandler.Plaque)
			sess.POST("/mobility", examHandler.Mobility)
			sess.POST("/entry-mode", examHandler.EntryMode)
			sess.POST("/bulk", examHandler.BulkFill)
			sess.POST("/commit", examHandler.Commit)
			sess.POST("/cancel", examHandler.Cancel)

			voiceRoutes := sess.Group("/voice")
			{
				voiceRoutes.POST("/start", examHandler.StartRecording)
				voiceRoutes.POST("/stop", examHandler.StopRecording)
				voiceRoutes.POST("/events", examHandler.RecognitionEvent)
				voiceRoutes.POST("/mode", examHandler.VoiceMode)
				voiceRoutes.POST("/utterance", examHandler.Utterance)
			}
		}

		api.GET("/exams/:id", resultsHandler.GetExam)

		patients := api.Group("/patients/:patientId")
		{
			patients.GET("/exams", resultsHandler.ListExams)
			patients.GET("/timeline", resultsHandler.Timeline)
			patients.GET("/correlation", resultsHandler.Correlation)
		}
	}

	return router, nil
}
