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
	"time"

	"go.uber.org/zap"
)

// Producer is the handle a concurrent unit logs through. Producers derived
// from one another share the queue and the minimum level; all methods are
// safe for concurrent use.
type Producer struct {
	queue *Queue
	level zap.AtomicLevel
	id    string
}

// NewProducer creates a producer identified as id with minimum level min.
func (q *Queue) NewProducer(id string, min Level) *Producer {
	return &Producer{
		queue: q,
		level: zap.NewAtomicLevelAt(min.ZapLevel()),
		id:    id,
	}
}

// With returns a producer with another identifier sharing queue and level.
func (p *Producer) With(id string) *Producer {
	return &Producer{queue: p.queue, level: p.level, id: id}
}

// ID returns the producer identifier stamped on every record.
func (p *Producer) ID() string {
	return p.id
}

// SetLevel changes the minimum level for this producer and every producer derived from it.
func (p *Producer) SetLevel(min Level) {
	p.level.SetLevel(min.ZapLevel())
}

// Level returns the current minimum level.
func (p *Producer) Level() Level {
	return LevelFromZap(p.level.Level())
}

// Enabled reports whether records at level would be enqueued.
func (p *Producer) Enabled(level Level) bool {
	return p.level.Enabled(level.ZapLevel())
}

// Put enqueues record without blocking. It returns false if the record is
// below the minimum level or the queue was closed. Missing time and producer
// are filled in.
func (p *Producer) Put(record Record) bool {
	if !p.Enabled(record.Level) {
		return false
	}

	return p.enqueue(record)
}

func (p *Producer) enqueue(record Record) bool {
	if record.Time.IsZero() {
		record.Time = time.Now()
	}

	if record.Producer == "" {
		record.Producer = p.id
	}

	return p.queue.put(record)
}

// Logger returns a zap logger named name whose entries become records on this producer.
func (p *Producer) Logger(name string) *zap.SugaredLogger {
	return zap.New(&core{producer: p}).Named(name).Sugar()
}
