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

package sentry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("SentryHook", func() {
	var (
		store    *eventStore
		observed *observer.ObservedLogs
		log      *zap.Logger
	)

	BeforeEach(func() {
		store = newEventStore()

		err := sentry.Init(sentry.ClientOptions{
			Dsn:       "https://test@sentry.io/123",
			Transport: &mockTransport{store: store},
		})
		Expect(err).NotTo(HaveOccurred())
		enableForTest()
		EnableTestMode()

		var core zapcore.Core
		core, observed = observer.New(zapcore.DebugLevel)
		log = zap.New(NewSentryHook(core))
	})

	AfterEach(func() {
		sentry.Flush(time.Second)
		DisableTestMode()
	})

	Describe("Level filtering", func() {
		It("captures Error level logs to Sentry", func() {
			log.Error("join rejected")

			Eventually(store.Len, time.Second, 10*time.Millisecond).Should(Equal(1))

			events := store.GetAll()
			Expect(events[0].Message).To(Equal("join rejected"))
			Expect(events[0].Level).To(Equal(sentry.LevelError))
		})

		It("captures Warn level logs to Sentry", func() {
			log.Warn("nickname in use")

			Eventually(store.Len, time.Second, 10*time.Millisecond).Should(Equal(1))
			Expect(store.GetAll()[0].Level).To(Equal(sentry.LevelWarning))
		})

		It("does not capture Info level logs", func() {
			log.Info("connected")

			Consistently(store.Len, 100*time.Millisecond, 10*time.Millisecond).Should(Equal(0))
		})

		It("still writes every entry to the wrapped core", func() {
			log.Debug("a")
			log.Info("b")
			log.Error("c")

			Expect(observed.Len()).To(Equal(3))
		})
	})

	Describe("Grouping", func() {
		It("adds fingerprint keys from fields and With context", func() {
			log.With(zap.String("server", "libera")).Error("lost connection", zap.String("operation", "read"), zap.Int("attempt", 3))

			Eventually(store.Len, time.Second, 10*time.Millisecond).Should(Equal(1))

			event := store.GetAll()[0]
			Expect(event.Fingerprint).To(ContainElements("server: libera", "operation: read"))
			Expect(event.Tags).To(HaveKeyWithValue("attempt", "3"))
		})
	})

	Describe("ReportIssue", func() {
		It("logs and sends errors with their context", func() {
			ReportWorkerError(log.Sugar(), "oftc", "dial", errors.New("dial tcp: connection refused"))

			Expect(observed.FilterMessage("dial tcp: connection refused").Len()).To(Equal(1))
			Eventually(store.Len, time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 1))

			var reported *sentry.Event
			for _, e := range store.GetAll() {
				if len(e.Exception) > 0 {
					reported = e
				}
			}
			Expect(reported).NotTo(BeNil())
			Expect(reported.Exception[0].Type).To(Equal("dial tcp"))
			Expect(reported.Tags).To(HaveKeyWithValue("server", "oftc"))
			Expect(reported.Fingerprint).To(ContainElement("server: oftc"))
		})

		It("ignores nil errors", func() {
			ReportIssue(nil, IssueTypeError, log.Sugar())

			Expect(observed.Len()).To(Equal(0))
		})

		It("does not panic on a nil logger", func() {
			Expect(func() {
				ReportIssuef(IssueTypeWarning, nil, "sink %s failed", "file")
			}).NotTo(Panic())
		})
	})
})

var _ = Describe("debouncer", func() {
	BeforeEach(func() {
		DisableTestMode()
	})

	It("allows a title once per window", func() {
		d := newDebouncer()
		now := time.Now()

		Expect(d.allow("dial tcp", now)).To(BeTrue())
		Expect(d.allow("dial tcp", now.Add(time.Minute))).To(BeFalse())
		Expect(d.allow("write", now.Add(time.Minute))).To(BeTrue())
		Expect(d.allow("dial tcp", now.Add(debounceWindow+time.Second))).To(BeTrue())
	})

	It("never debounces in test mode", func() {
		EnableTestMode()
		defer DisableTestMode()

		d := newDebouncer()
		now := time.Now()

		Expect(d.allow("x", now)).To(BeTrue())
		Expect(d.allow("x", now)).To(BeTrue())
	})
})

var _ = Describe("getMeaningfulErrorTitle", func() {
	It("cuts at the first separator", func() {
		Expect(getMeaningfulErrorTitle(errors.New("sink write failure: disk full"))).To(Equal("sink write failure"))
	})

	It("limits the length", func() {
		long := make([]byte, 150)
		for i := range long {
			long[i] = 'a'
		}

		Expect(getMeaningfulErrorTitle(errors.New(string(long)))).To(HaveLen(100))
	})
})

type eventStore struct {
	events []*sentry.Event
	mu     sync.Mutex
}

func newEventStore() *eventStore {
	return &eventStore{}
}

func (s *eventStore) Add(event *sentry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

func (s *eventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.events)
}

func (s *eventStore) GetAll() []*sentry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*sentry.Event, len(s.events))
	copy(out, s.events)

	return out
}

// mockTransport captures Sentry events for testing.
type mockTransport struct {
	store *eventStore
}

func (t *mockTransport) Configure(options sentry.ClientOptions)    {}
func (t *mockTransport) Flush(timeout time.Duration) bool          { return true }
func (t *mockTransport) FlushWithContext(ctx context.Context) bool { return true }
func (t *mockTransport) Close()                                    {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.store.Add(event)
}
