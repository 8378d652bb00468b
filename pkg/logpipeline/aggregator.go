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
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/united-manufacturing-hub/ircmux/pkg/logger"
	"github.com/united-manufacturing-hub/ircmux/pkg/metrics"
	"github.com/united-manufacturing-hub/ircmux/pkg/sentry"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
)

// Sink receives rendered lines. Write must not retain line after returning.
type Sink interface {
	Write(line []byte) error
}

// Aggregator is the single consumer of a Queue. It renders each record and
// writes it to the sink in arrival order until the sentinel is received.
type Aggregator struct {
	queue        *Queue
	sink         Sink
	encoder      zapcore.Encoder
	fallback     *zap.SugaredLogger
	done         chan struct{}
	startOnce    sync.Once
	lastProgress atomic.Int64
	written      atomic.Uint64
	failures     atomic.Uint64
}

// AggregatorOption customises an Aggregator.
type AggregatorOption func(*Aggregator)

// WithFallback sets where sink failures are reported. Defaults to stderr.
func WithFallback(l *zap.SugaredLogger) AggregatorOption {
	return func(a *Aggregator) {
		a.fallback = l
	}
}

// WithEncoder replaces the line encoder.
func WithEncoder(enc zapcore.Encoder) AggregatorOption {
	return func(a *Aggregator) {
		a.encoder = enc
	}
}

// NewAggregator creates an aggregator draining queue into sink. Call Start to run it.
func NewAggregator(queue *Queue, sink Sink, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		queue:   queue,
		sink:    sink,
		encoder: logger.NewLineEncoder(zapcore.EncoderConfig{LineEnding: zapcore.DefaultLineEnding}),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.fallback == nil {
		a.fallback = logger.Stderr(logger.ComponentLogAggregator)
	}

	a.lastProgress.Store(time.Now().UnixNano())

	return a
}

// Start runs the consuming loop in its own goroutine. Further calls do nothing.
func (a *Aggregator) Start() {
	a.startOnce.Do(func() {
		go a.run()
	})
}

func (a *Aggregator) run() {
	defer close(a.done)

	for {
		record, ok := a.queue.next()
		if !ok {
			return
		}

		a.lastProgress.Store(time.Now().UnixNano())
		a.write(record)
	}
}

// write hands one record to the sink. Failures, including panics in the
// sink, are reported on the fallback logger and never stop the loop.
func (a *Aggregator) write(record Record) {
	defer a.lastProgress.Store(time.Now().UnixNano())

	defer func() {
		if r := recover(); r != nil {
			a.fail(record, fmt.Errorf("panic: %v", r))
		}
	}()

	line, err := a.render(record)
	if err != nil {
		a.fail(record, err)

		return
	}
	defer line.Free()

	start := time.Now()

	if err := a.sink.Write(line.Bytes()); err != nil {
		a.fail(record, err)

		return
	}

	a.written.Add(1)
	metrics.RecordLogWritten(time.Since(start))
}

func (a *Aggregator) render(record Record) (*buffer.Buffer, error) {
	fields := make([]zapcore.Field, 0, len(record.Fields)+1)
	fields = append(fields, zap.String(logger.ProcessKey, record.Producer))

	for k, v := range record.Fields {
		if k == logger.ProcessKey {
			// The producer column owns this key.
			k = "field." + k
		}

		fields = append(fields, zap.Any(k, v))
	}

	return a.encoder.EncodeEntry(zapcore.Entry{
		Level:      record.Level.ZapLevel(),
		Time:       record.Time,
		LoggerName: record.Logger,
		Message:    record.Message,
	}, fields)
}

func (a *Aggregator) fail(record Record, err error) {
	a.failures.Add(1)
	metrics.RecordLogWriteFailed()

	sentry.ReportIssueWithContext(
		fmt.Errorf("%w: %w", standarderrors.ErrSinkWriteFailure, err),
		sentry.IssueTypeError,
		a.fallback,
		map[string]interface{}{
			"component": metrics.ComponentLogSink,
			"logger":    record.Logger,
			"message":   record.Message,
		},
	)
}

// Wait blocks until the aggregator has consumed the sentinel.
func (a *Aggregator) Wait() {
	<-a.done
}

// Done is closed once the aggregator has stopped.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Pending returns the number of items still queued.
func (a *Aggregator) Pending() int {
	return a.queue.Len()
}

// LastProgress returns when the aggregator last took a record off the queue
// or finished handling one. An idle period does not age the next record.
func (a *Aggregator) LastProgress() time.Time {
	return time.Unix(0, a.lastProgress.Load())
}

// Written returns the number of records the sink accepted.
func (a *Aggregator) Written() uint64 {
	return a.written.Load()
}

// Failures returns the number of records the sink rejected.
func (a *Aggregator) Failures() uint64 {
	return a.failures.Load()
}
