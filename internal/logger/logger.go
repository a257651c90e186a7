// Package logger holds the process-wide zap logger.
//
// postman prints response bodies on stdout so they can be piped, which is why
// every log line goes to stderr (or a file) and never to stdout.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/brizzai/postman/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// base reports callers as-is; it backs GetLogger and With
	base = zap.NewNop()
	// helpers skips the package-level wrapper frame
	helpers = base
)

// InitLogger builds a logger from cfg and installs it
func InitLogger(cfg *config.LoggingConfig) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// SetLogger installs l. Passing nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	helpers = l.WithOptions(zap.AddCallerSkip(1))
}

// NewLogger builds a zap logger writing console or json lines to stderr
// and, when set, to cfg.OutputPath.
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %v", err)
		}
		level = parsed
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := cfg.Format
	switch encoding {
	case "json":
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	case "console", "":
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.Color && encoding == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var sinks []string
	if !cfg.DisableConsole {
		sinks = append(sinks, "stderr")
	}
	if cfg.OutputPath != "" {
		if err := prepareLogFile(cfg.OutputPath, cfg.AppendToFile); err != nil {
			return nil, err
		}
		sinks = append(sinks, cfg.OutputPath)
	}
	if len(sinks) == 0 {
		sinks = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		OutputPaths:      sinks,
		ErrorOutputPaths: sinks,
		EncoderConfig:    encoderConfig,
	}

	var opts []zap.Option
	if !cfg.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	l, err := zapConfig.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %v", err)
	}
	return l, nil
}

// prepareLogFile creates the directory of path and truncates the file unless
// appending
func prepareLogFile(path string, appendToFile bool) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %v", dir, err)
		}
	}
	if !appendToFile {
		_ = os.Remove(path)
	}
	return nil
}

// GetLogger returns the installed logger
func GetLogger() *zap.Logger {
	return base
}

func Debug(msg string, fields ...zap.Field) {
	helpers.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	helpers.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	helpers.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	helpers.Error(msg, fields...)
}

// With returns a child logger carrying fields. Calls on it report their own
// call site.
func With(fields ...zap.Field) *zap.Logger {
	return base.With(fields...)
}

// Sync flushes buffered entries
func Sync() error {
	return base.Sync()
}
