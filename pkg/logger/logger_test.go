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

package logger_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/united-manufacturing-hub/ircmux/pkg/logger"
)

var _ = Describe("ParseLevel", func() {
	DescribeTable("maps level names",
		func(name string, want zapcore.Level, known bool) {
			level, ok := logger.ParseLevel(name)
			Expect(level).To(Equal(want))
			Expect(ok).To(Equal(known))
		},
		Entry("debug", "debug", zapcore.DebugLevel, true),
		Entry("production alias", "PRODUCTION", zapcore.InfoLevel, true),
		Entry("long warning spelling", " Warning ", zapcore.WarnLevel, true),
		Entry("critical", "CRITICAL", zapcore.DPanicLevel, true),
		Entry("unknown", "verbose", zapcore.InfoLevel, false),
	)
})

var _ = Describe("For", func() {
	It("can be used from many goroutines before the logger is initialized", func() {
		var wg sync.WaitGroup

		names := make([]string, 32)
		for i := range names {
			wg.Add(1)

			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()

				if i%4 == 0 {
					logger.Initialize()
				}

				log := logger.For(logger.ComponentCoordinator)
				log.Debugf("goroutine %d", i)
				names[i] = log.Desugar().Name()
			}(i)
		}

		wg.Wait()

		for _, name := range names {
			Expect(name).To(Equal(logger.ComponentCoordinator))
		}

		Expect(zap.L().Core().Enabled(zapcore.ErrorLevel)).To(BeTrue())
	})
})

var _ = Describe("Sync", func() {
	It("flushes the global logger", func() {
		core, logs := observer.New(zapcore.InfoLevel)
		DeferCleanup(zap.ReplaceGlobals(zap.New(core)))

		zap.L().Info("before exit")

		Expect(logger.Sync()).To(Succeed())
		Expect(logs.FilterMessage("before exit").Len()).To(Equal(1))
	})
})
