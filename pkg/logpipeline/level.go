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

package logpipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level is the severity of a Record. Levels are ordered, DEBUG < INFO < WARNING < ERROR < CRITICAL.
type Level int8

const (
	LevelDebug    Level = 10
	LevelInfo     Level = 20
	LevelWarning  Level = 30
	LevelError    Level = 40
	LevelCritical Level = 50
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Level(%d)", int8(l))
	}
}

// ZapLevel maps l onto zap. CRITICAL uses the DPanic slot, which does not
// panic outside development loggers.
func (l Level) ZapLevel() zapcore.Level {
	switch {
	case l >= LevelCritical:
		return zapcore.DPanicLevel
	case l >= LevelError:
		return zapcore.ErrorLevel
	case l >= LevelWarning:
		return zapcore.WarnLevel
	case l >= LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// LevelFromZap is the inverse of Level.ZapLevel. Panic and Fatal map to CRITICAL.
func LevelFromZap(level zapcore.Level) Level {
	switch {
	case level >= zapcore.DPanicLevel:
		return LevelCritical
	case level >= zapcore.ErrorLevel:
		return LevelError
	case level >= zapcore.WarnLevel:
		return LevelWarning
	case level >= zapcore.InfoLevel:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// ParseLevel accepts DEBUG, INFO, WARN, WARNING, ERROR and CRITICAL in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
