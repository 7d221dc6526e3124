package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"perio-go/internal/config"
)

// fileLevels each get their own rotated file.
var fileLevels = []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}

// Init builds the server logger: one JSON file per level under cfg.Directory, resolved against
// projectRoot when relative, plus a colored console.
func Init(projectRoot string, cfg config.LoggingConfig) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	logDir := cfg.Directory
	if logDir == "" {
		logDir = "logs"
	}
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(projectRoot, logDir)
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	cores := make([]zapcore.Core, 0, len(fileLevels)+1)
	for _, level := range fileLevels {
		cores = append(cores, newFileCore(logDir, level, encoderConfig, cfg))
	}
	cores = append(cores, newConsoleCore(zapcore.DebugLevel, os.Stdout))

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.Fields(zap.String("service", "perio"))), nil
}

// newFileCore writes exactly one level to perio-<level>.log. Lumberjack stamps rotated backups.
func newFileCore(logDir string, level zapcore.Level, encoderConfig zapcore.EncoderConfig, cfg config.LoggingConfig) zapcore.Core {
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, fmt.Sprintf("perio-%s.log", level.String())),
		MaxSize:    cfg.MaxSize, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
		LocalTime:  true,
	})

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		writer,
		zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l == level }),
	)
}

// NewConsole returns a console-only logger for command line tools. Output goes to stderr so it
// never mixes with a command's own output.
func NewConsole(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	return zap.New(newConsoleCore(level, os.Stderr))
}

// newConsoleCore creates a core that writes to the console.
func newConsoleCore(threshold zapcore.Level, out *os.File) zapcore.Core {
	levelEnabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= threshold
	})

	// Use a more human-readable encoder for the console.
	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // Add color to levels

	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig),
		zapcore.AddSync(out),
		levelEnabler,
	)
}
