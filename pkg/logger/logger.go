// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level.
type LogLevel string

// LogFormat represents the logging format.
type LogFormat string

const (
	// DebugLevel logs debug level messages.
	DebugLevel LogLevel = "DEBUG"
	// InfoLevel logs informational messages.
	InfoLevel LogLevel = "INFO"
	// WarnLevel logs warning messages.
	WarnLevel LogLevel = "WARN"
	// WarningLevel is the long spelling of WarnLevel used in config files.
	WarningLevel LogLevel = "WARNING"
	// ErrorLevel logs error messages.
	ErrorLevel LogLevel = "ERROR"
	// CriticalLevel logs critical errors. It maps to zap's DPanic slot.
	CriticalLevel LogLevel = "CRITICAL"
	// ProductionLevel is an alias for InfoLevel, used for easier configuration.
	ProductionLevel LogLevel = "PRODUCTION"

	// FormatConsole indicates human-readable console format.
	FormatConsole LogFormat = "CONSOLE"
	// FormatJSON indicates structured JSON format.
	FormatJSON LogFormat = "JSON"
	// FormatPretty indicates the line format also used by the log sink.
	FormatPretty LogFormat = "PRETTY"
)

var (
	loggerOnce  sync.Once
	initialized atomic.Bool
)

// ParseLevel converts a level name to a zapcore.Level.
// The second return value is false for unknown names, in which case InfoLevel is returned.
func ParseLevel(level string) (zapcore.Level, bool) {
	switch LogLevel(strings.ToUpper(strings.TrimSpace(level))) {
	case DebugLevel:
		return zapcore.DebugLevel, true
	case InfoLevel, ProductionLevel:
		return zapcore.InfoLevel, true
	case WarnLevel, WarningLevel:
		return zapcore.WarnLevel, true
	case ErrorLevel:
		return zapcore.ErrorLevel, true
	case CriticalLevel:
		return zapcore.DPanicLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// getLogFormat returns the log format based on the environment variable or default value.
func getLogFormat(defaultFormat LogFormat) LogFormat {
	format := LogFormat(strings.ToUpper(getEnv("LOGGING_FORMAT", string(defaultFormat))))
	if format != FormatConsole && format != FormatJSON && format != FormatPretty {
		return defaultFormat
	}

	return format
}

// getEnv gets environment variable with a default value.
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

// encoderConfig returns the shared encoder configuration for the given format.
func encoderConfig(logFormat LogFormat) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    LevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(TimeLayout),
	}

	if logFormat == FormatConsole {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.ConsoleSeparator = " | "
	}

	if logFormat == FormatJSON {
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	return cfg
}

// NewEncoder returns the encoder for a format.
func NewEncoder(logFormat LogFormat) zapcore.Encoder {
	cfg := encoderConfig(logFormat)

	switch logFormat {
	case FormatPretty:
		return NewLineEncoder(cfg)
	case FormatConsole:
		return zapcore.NewConsoleEncoder(cfg)
	default:
		return zapcore.NewJSONEncoder(cfg)
	}
}

// NewWithWriter creates a zap logger writing to ws.
func NewWithWriter(logLevel string, logFormat LogFormat, ws zapcore.WriteSyncer) *zap.Logger {
	level, _ := ParseLevel(logLevel)

	core := zapcore.NewCore(NewEncoder(logFormat), ws, zap.NewAtomicLevelAt(level))

	return zap.New(core, zap.AddCaller())
}

// New creates a new zap logger writing to stdout with the specified log level and format.
func New(logLevel string, logFormat LogFormat) *zap.Logger {
	return NewWithWriter(logLevel, logFormat, zapcore.AddSync(os.Stdout))
}

// Initialize sets up the global logger using zap.ReplaceGlobals().
// wrap, if not nil, can decorate the core (e.g. with the Sentry hook).
func Initialize(wrap ...func(zapcore.Core) zapcore.Core) {
	loggerOnce.Do(func() {
		logLevel := getEnv("LOGGING_LEVEL", string(ProductionLevel))
		logFormat := getLogFormat(FormatPretty)
		logger := New(logLevel, logFormat)

		for _, fn := range wrap {
			if fn != nil {
				logger = logger.WithOptions(zap.WrapCore(fn))
			}
		}

		logger.Info("Logger initialized",
			zap.String("level", logLevel),
			zap.String("format", string(logFormat)))

		zap.ReplaceGlobals(logger)

		initialized.Store(true)
	})
}

// Sync flushes any buffered log entries.
func Sync() error {
	return zap.L().Sync()
}

// For creates a named logger for a specific component.
func For(component string) *zap.SugaredLogger {
	if !initialized.Load() {
		Initialize()
	}

	return zap.S().Named(component)
}

// Stderr returns a named logger that writes to standard error. It is the
// fallback diagnostic channel for failures of the log pipeline itself.
func Stderr(component string) *zap.SugaredLogger {
	return NewWithWriter(string(DebugLevel), FormatPretty, zapcore.Lock(os.Stderr)).Sugar().Named(component)
}
