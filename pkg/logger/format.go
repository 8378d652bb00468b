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
	"fmt"
	"sort"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// TimeLayout is the timestamp layout of every rendered line.
const TimeLayout = "2006-01-02 15:04:05.000"

// ProcessKey is the field key carrying the producing process identifier. The
// line encoder renders it in its own column instead of the key=value tail.
const ProcessKey = "process"

// LevelLabel returns the label printed for a level.
func LevelLabel(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return "WARNING"
	case zapcore.DPanicLevel:
		return "CRITICAL"
	default:
		return level.CapitalString()
	}
}

// LevelEncoder encodes levels with LevelLabel.
func LevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(LevelLabel(level))
}

// LineEncoder produces one human-readable line per entry:
//
//	2006-01-02 15:04:05.000 worker:libera bot.libera WARNING  connection lost - attempt=3
//
// Context fields added through With are kept in the embedded map encoder.
type LineEncoder struct {
	*zapcore.MapObjectEncoder
	cfg  zapcore.EncoderConfig
	pool buffer.Pool
}

// NewLineEncoder creates a new LineEncoder instance.
func NewLineEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &LineEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		cfg:              cfg,
		pool:             buffer.NewPool(),
	}
}

// Clone implements zapcore.Encoder interface
func (e *LineEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}

	return &LineEncoder{
		MapObjectEncoder: clone,
		cfg:              e.cfg,
		pool:             e.pool,
	}
}

// EncodeEntry formats a log entry as a single line.
func (e *LineEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	all := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		all.Fields[k] = v
	}
	for _, field := range fields {
		field.AddTo(all)
	}

	process := ""
	if p, ok := all.Fields[ProcessKey].(string); ok {
		process = p
		delete(all.Fields, ProcessKey)
	}

	line := e.pool.Get()

	if !entry.Time.IsZero() {
		line.AppendString(entry.Time.Format(TimeLayout))
		line.AppendByte(' ')
	}

	if process != "" {
		line.AppendString(fmt.Sprintf("%-10s", process))
		line.AppendByte(' ')
	}

	if entry.LoggerName != "" {
		line.AppendString(entry.LoggerName)
		line.AppendByte(' ')
	}

	line.AppendString(fmt.Sprintf("%-8s", LevelLabel(entry.Level)))
	line.AppendByte(' ')

	line.AppendString(entry.Message)

	if len(all.Fields) > 0 {
		line.AppendString(" - ")
		addFields(line, all.Fields)
	}

	if entry.Stack != "" && e.cfg.StacktraceKey != "" {
		line.AppendByte('\n')
		line.AppendString(entry.Stack)
	}

	if e.cfg.LineEnding != "" {
		line.AppendString(e.cfg.LineEnding)
	} else {
		line.AppendString(zapcore.DefaultLineEnding)
	}

	return line, nil
}

// addFields appends key=value pairs in key order.
func addFields(line *buffer.Buffer, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if i > 0 {
			line.AppendString(", ")
		}
		line.AppendString(k)
		line.AppendByte('=')
		line.AppendString(fmt.Sprintf("%v", fields[k]))
	}
}
