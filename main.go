package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"perio-go/internal/config"
	"perio-go/internal/database"
	logger "perio-go/internal/logging"
	"perio-go/internal/repository"
	"perio-go/internal/router"
	"perio-go/internal/services"
	"perio-go/internal/session"
)

func main() {
	projectRoot, err := os.Getwd()
	if err != nil {
		panic("failed to resolve working directory: " + err.Error())
	}

	// A missing .env is normal outside development
	_ = godotenv.Load()

	// Logging settings come from the same sources as everything else
	_, bootConf, err := config.Load(projectRoot)
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize Logger
	log, err := logger.Init(projectRoot, bootConf.Logging)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := config.Init(projectRoot, log); err != nil {
		log.Fatal("Failed to initialize configuration", zap.Error(err))
	}
	conf := config.Conf

	// Initialize Database
	if err := database.Init(conf.Database, log); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	defaults, err := session.OptionsFromConfig(conf.Exam)
	if err != nil {
		log.Fatal("Failed to build session defaults", zap.Error(err))
	}
	manager := session.NewManager(defaults, log.Named("session"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper := services.NewScheduler(log.Named("reaper"), manager, time.Minute, conf.Exam.SessionIdle())
	reaperDone := reaper.Start(ctx)

	config.OnReload(func(c *config.Config) {
		manager.SetVoiceSettings(session.VoiceSettings(c.Exam))
		reaper.SetMaxIdle(c.Exam.SessionIdle())
		log.Info("Exam settings reloaded",
			zap.Int("duplicate_window_ms", c.Exam.DuplicateWindowMS),
			zap.Float64("confidence_threshold", c.Exam.ConfidenceThreshold))
	})

	r, err := router.Setup(log, conf.Server, manager, repository.Exams{})
	if err != nil {
		log.Fatal("Failed to set up router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + conf.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Server listening on http://localhost" + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to run Gin server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	<-reaperDone
	// Open sessions are discarded; nothing uncommitted is saved.
	manager.Shutdown(shutdownCtx)
}
