// Package logger builds the zap logger shared by the vaire CLI and its
// packages from a common configuration block.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Where log messages should be sent ('stderr', 'stdout', 'logfile').
	Type string `mapstructure:"type"`
	// Path to the log file when Type is 'logfile'.
	File string `mapstructure:"file"`
	// 0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug.
	Level int8 `mapstructure:"level"`
	// Maximum size of the log file in megabytes before rotation.
	MaxSize int `mapstructure:"max-size"`
	// Number of rotated files to keep.
	NumRotatedFiles int `mapstructure:"num-rotated-files"`
	// Developer enables debug logging with stack traces to stdout,
	// overriding the other settings.
	Developer bool `mapstructure:"developer"`
}

// Logger wraps *zap.Logger so callers can defer Sync without caring about the
// underlying sink.
type Logger struct {
	*zap.Logger
}

func New(cfg Config) (*Logger, error) {
	if cfg.Developer {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return &Logger{dev}, nil
	}

	var sink zapcore.WriteSyncer
	switch cfg.Type {
	case "", "stderr":
		sink = zapcore.Lock(os.Stderr)
	case "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "logfile":
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("unable to create log directory: %w", err)
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.NumRotatedFiles,
		})
	default:
		return nil, fmt.Errorf("unsupported log type %q", cfg.Type)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, levelFor(cfg.Level))
	return &Logger{zap.New(core)}, nil
}

func levelFor(level int8) zapcore.Level {
	switch {
	case level <= 0:
		return zapcore.FatalLevel
	case level == 1:
		return zapcore.ErrorLevel
	case level == 2:
		return zapcore.WarnLevel
	case level == 3:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
