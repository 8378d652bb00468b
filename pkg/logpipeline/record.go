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

import "time"

// Record is one structured log event. It is immutable once enqueued; the
// queue and then the aggregator own it until it is written.
type Record struct {
	Time time.Time
	// Fields holds structured context rendered as key=value pairs.
	Fields map[string]interface{}
	// Logger is the hierarchical logger name, e.g. bot.libera.
	Logger string
	// Producer identifies the concurrent unit that created the record.
	Producer string
	Message  string
	Level    Level
}
