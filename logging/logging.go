// Package logging builds the zap logger shared by the command-line tools.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lucasjlepore/training-report/config"
)

// Params selects level, encoding and sinks for New.
type Params struct {
	Level string
	// json or console
	Format string
	// rotated log file; empty logs to stdout only
	File   string
	Stdout bool
	// service name attached to every entry
	Service string
}

// ParseLevel maps a level name to zap, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New returns a logger writing to stdout, a lumberjack-rotated file, or both.
func New(p Params) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(p.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var sinks []zapcore.WriteSyncer
	if p.File != "" {
		name := p.File
		if !strings.HasSuffix(name, ".log") {
			name += ".log"
		}
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   name,
			MaxSize:    50, // megabytes
			MaxBackups: 10,
			Compress:   true,
		}))
	}
	if p.File == "" || p.Stdout {
		sinks = append(sinks, zapcore.Lock(os.Stdout))
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), zap.NewAtomicLevelAt(ParseLevel(p.Level)))
	logger := zap.New(core, zap.AddCaller())
	if p.Service != "" {
		logger = logger.With(zap.String("service_name", p.Service))
	}
	return logger
}

// FromConfig builds the logger for one command-line tool.
func FromConfig(c config.Logging, service string) *zap.Logger {
	return New(Params{
		Level:   c.Level,
		Format:  c.Format,
		File:    c.File,
		Stdout:  c.Stdout,
		Service: service,
	})
}
