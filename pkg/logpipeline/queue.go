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
	"errors"
	"sync"
	"sync/atomic"

	"github.com/united-manufacturing-hub/ircmux/pkg/metrics"
)

type envelopeKind uint8

const (
	kindRecord envelopeKind = iota
	kindSentinel
)

// envelope is what travels through the queue: a record or the terminal sentinel.
type envelope struct {
	record Record
	kind   envelopeKind
}

// Queue is the multi-producer, single-consumer queue shared by every
// Producer and drained by exactly one Aggregator.
//
// Items go into a buffered channel. Once it is full they spill into an
// unbounded overflow list, and every later item follows them there until the
// consumer has emptied it. Channel items are therefore always older than
// overflow items, which keeps one total order without ever blocking a
// producer.
type Queue struct {
	ch       chan envelope
	mu       sync.Mutex
	overflow []envelope
	closed   bool
	dropped  atomic.Uint64
	spilled  atomic.Uint64
}

// NewQueue creates a queue whose channel holds size items before spilling.
func NewQueue(size int) (*Queue, error) {
	if size <= 0 {
		return nil, errors.New("log queue size must be positive")
	}

	return &Queue{ch: make(chan envelope, size)}, nil
}

// put never blocks. It only rejects records once the sentinel was sent.
func (q *Queue) put(record Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped.Add(1)
		metrics.RecordLogDropped()

		return false
	}

	q.push(envelope{kind: kindRecord, record: record})
	metrics.RecordLogEnqueued()

	return true
}

// push must be called with mu held.
func (q *Queue) push(env envelope) {
	if len(q.overflow) == 0 {
		select {
		case q.ch <- env:
			return
		default:
		}
	}

	q.overflow = append(q.overflow, env)

	if env.kind == kindRecord {
		q.spilled.Add(1)
		metrics.RecordLogSpilled()
	}
}

// next blocks for the next item. It returns false once the sentinel arrives.
func (q *Queue) next() (Record, bool) {
	env := q.take()
	if env.kind == kindSentinel {
		return Record{}, false
	}

	metrics.RecordLogDequeued()

	return env.record, true
}

func (q *Queue) take() envelope {
	q.mu.Lock()

	select {
	case env := <-q.ch:
		q.mu.Unlock()

		return env
	default:
	}

	if len(q.overflow) > 0 {
		env := q.overflow[0]
		q.overflow[0] = envelope{}
		q.overflow = q.overflow[1:]

		if len(q.overflow) == 0 {
			q.overflow = nil
		}

		q.mu.Unlock()

		return env
	}

	q.mu.Unlock()

	// Both were empty. Anything that arrives now enters the channel first.
	return <-q.ch
}

// Close enqueues the sentinel behind every record already put. It is sent
// exactly once and never blocks; records put after Close are rejected.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	q.push(envelope{kind: kindSentinel})
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.closed
}

// Len returns the number of items waiting in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ch) + len(q.overflow)
}

// Spilled returns how many records did not fit the channel and went to the overflow list.
func (q *Queue) Spilled() uint64 {
	return q.spilled.Load()
}

// Dropped returns how many records were rejected because the queue was closed.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
