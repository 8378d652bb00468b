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
	"go.uber.org/zap/zapcore"
)

// core turns zap entries into records on a producer.
type core struct {
	producer *Producer
	fields   []zapcore.Field
}

var _ zapcore.Core = (*core)(nil)

func (c *core) Enabled(level zapcore.Level) bool {
	return c.producer.level.Enabled(level)
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)

	return &core{producer: c.producer, fields: merged}
}

func (c *core) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}

	return ce
}

// Write never fails or blocks. Records written after the queue closed are discarded.
func (c *core) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	var recordFields map[string]interface{}

	if len(c.fields)+len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range c.fields {
			f.AddTo(enc)
		}

		for _, f := range fields {
			f.AddTo(enc)
		}

		recordFields = enc.Fields
	}

	c.producer.enqueue(Record{
		Time:    entry.Time,
		Fields:  recordFields,
		Logger:  entry.LoggerName,
		Message: entry.Message,
		Level:   LevelFromZap(entry.Level),
	})

	return nil
}

func (c *core) Sync() error {
	return nil
}
