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

package starvationchecker

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ircmux/pkg/logger"
	"github.com/united-manufacturing-hub/ircmux/pkg/metrics"
	"github.com/united-manufacturing-hub/ircmux/pkg/sentry"
)

// Progress is what the checker observes. The log aggregator implements it.
type Progress interface {
	// Pending returns the number of records waiting to be written.
	Pending() int
	// LastProgress returns the last time the consumer took or finished a record.
	LastProgress() time.Time
}

// StarvationChecker detects a log aggregator that has records pending
// but has not written any of them for longer than the threshold.
//
// A stalled aggregator lets the queue's overflow list grow without bound,
// so it is reported as a warning with the stall duration and counted in
// metrics.
type StarvationChecker struct {
	progress  Progress
	clock     clock.Clock
	ctx       context.Context //nolint:containedctx // background service lifecycle
	logger    *zap.SugaredLogger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	threshold time.Duration
	interval  time.Duration
	stopOnce  sync.Once

	mutex       sync.RWMutex
	lastCheck   time.Time
	lastStarved bool
}

// Option customises a StarvationChecker.
type Option func(*StarvationChecker)

// WithClock replaces the wall clock, used by tests.
func WithClock(c clock.Clock) Option {
	return func(s *StarvationChecker) {
		s.clock = c
	}
}

// WithInterval sets how often progress is checked. Defaults to one second.
func WithInterval(d time.Duration) Option {
	return func(s *StarvationChecker) {
		s.interval = d
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *StarvationChecker) {
		s.logger = l
	}
}

// NewStarvationChecker starts a background goroutine that checks progress
// every interval. It must be stopped with Stop.
func NewStarvationChecker(progress Progress, threshold time.Duration, opts ...Option) *StarvationChecker {
	ctx, cancel := context.WithCancel(context.Background())
	checker := &StarvationChecker{
		progress:  progress,
		clock:     clock.New(),
		threshold: threshold,
		interval:  time.Second,
		logger:    logger.For(logger.ComponentStarvationChecker),
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, opt := range opts {
		opt(checker)
	}

	checker.lastCheck = checker.clock.Now()

	checker.wg.Add(1)

	go checker.checkStarvationLoop()

	checker.logger.Debugf("Starvation checker created with threshold %s", threshold)

	return checker
}

func (s *StarvationChecker) checkStarvationLoop() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Check()
		}
	}
}

// Check evaluates progress once and returns whether the aggregator is starved
// along with the time since its last write.
func (s *StarvationChecker) Check() (bool, time.Duration) {
	now := s.clock.Now()

	pending := s.progress.Pending()
	lastProgress := s.progress.LastProgress()

	s.mutex.Lock()
	since := now.Sub(lastProgress)
	elapsed := now.Sub(s.lastCheck)
	s.lastCheck = now
	starved := pending > 0 && since > s.threshold
	wasStarved := s.lastStarved
	s.lastStarved = starved
	s.mutex.Unlock()

	switch {
	case starved:
		// Only the part of the stall since the previous check counts
		counted := elapsed
		if !wasStarved || counted > since {
			counted = since
		}

		metrics.AddStarvationTime(counted.Seconds())
		sentry.ReportIssuef(sentry.IssueTypeWarning, s.logger,
			"log pipeline starvation detected: %d records pending, %.2f seconds since last write", pending, since.Seconds())
	case wasStarved:
		s.logger.Infof("Log pipeline recovered, %d records pending", pending)
	}

	return starved, since
}

// Starved reports the result of the most recent check.
func (s *StarvationChecker) Starved() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.lastStarved
}

// Stop terminates the background checker. It is safe to call more than once.
func (s *StarvationChecker) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.logger.Debug("Starvation checker stopped")
	})
}
