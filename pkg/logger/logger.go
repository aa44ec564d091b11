package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level, encoding and sink of the process logger
type Config struct {
	Name       string // logger name stamped on every entry, e.g. "server" or "fetch"
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// jsonEncoderConfig is shared with the category loggers so LogReader can parse
// either kind of file
func jsonEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	return encoderConfig
}

func consoleEncoderConfig(color bool) zapcore.EncoderConfig {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if color {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return encoderConfig
}

// New creates the process logger. Console output is colored only on stdout and
// stderr; a file sink gets plain levels.
func New(config Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var writer zapcore.WriteSyncer
	stream := true
	switch config.OutputPath {
	case "stdout", "":
		writer = zapcore.Lock(os.Stdout)
	case "stderr":
		writer = zapcore.Lock(os.Stderr)
	default:
		stream = false
		if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(config.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zapcore.AddSync(file)
	}

	var encoder zapcore.Encoder
	switch config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	case "console", "":
		encoder = zapcore.NewConsoleEncoder(consoleEncoderConfig(stream))
	default:
		return nil, fmt.Errorf("unknown log format: %s", config.Format)
	}

	log := zap.New(zapcore.NewCore(encoder, writer, level),
		zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if config.Name != "" {
		log = log.Named(config.Name)
	}
	return log, nil
}
