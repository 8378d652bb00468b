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
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

const debounceWindow = 2 * time.Hour

// debouncer limits how often an issue with the same title reaches Sentry.
type debouncer struct {
	lastSent map[string]time.Time
	mu       sync.Mutex
}

func newDebouncer() *debouncer {
	return &debouncer{lastSent: make(map[string]time.Time)}
}

// allow reports whether key may be sent now and records the send.
func (d *debouncer) allow(key string, now time.Time) bool {
	if !shouldDebounceErrors.Load() {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastSent[key]; ok && now.Sub(last) < debounceWindow {
		return false
	}

	d.lastSent[key] = now

	return true
}

var (
	errorDebouncer   = newDebouncer()
	warningDebouncer = newDebouncer()
)

func reportError(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	log.Errorw(err.Error(), contextFields(context)...)

	if !Enabled() || !errorDebouncer.allow(getMeaningfulErrorTitle(err), time.Now()) {
		return
	}

	sendSentryEvent(createSentryEventWithContext(sentry.LevelError, err, context))
}

func reportWarning(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	log.Warnw(err.Error(), contextFields(context)...)

	if !Enabled() || !warningDebouncer.allow(getMeaningfulErrorTitle(err), time.Now()) {
		return
	}

	sendSentryEvent(createSentryEventWithContext(sentry.LevelWarning, err, context))
}

func contextFields(context map[string]interface{}) []interface{} {
	if len(context) == 0 {
		return nil
	}

	fields := make([]interface{}, 0, len(context)*2)
	for key, value := range context {
		fields = append(fields, key, value)
	}

	return fields
}
