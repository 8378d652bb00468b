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

package constants

import "time"

const (
	// DefaultLogPath is used when the configuration does not name a log file.
	DefaultLogPath = "/var/log/ircmux.log"

	// DefaultLogLevel is used when the configuration has no or an unknown level.
	DefaultLogLevel = "INFO"

	// LogQueueSize is the channel capacity of the shared log queue. Records
	// that do not fit spill into an unbounded overflow list, producers never block.
	LogQueueSize = 8192

	// LogStarvationThreshold is the time a non-empty log queue may go without a
	// completed sink write before a stall is reported.
	LogStarvationThreshold = 30 * time.Second

	// RotatedLogSuffixFormat is the time layout appended to rotated log files.
	RotatedLogSuffixFormat = "2006-01-02"
)

const (
	// DefaultAppVersion is the version string of local development builds.
	DefaultAppVersion = "0.0.0-dev"

	// DefaultDevelopmentEnvironment is reported to Sentry for prerelease builds.
	DefaultDevelopmentEnvironment = "development"

	// DefaultProductionEnvironment is reported to Sentry for release builds.
	DefaultProductionEnvironment = "production"
)
