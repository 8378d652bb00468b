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
	// ShutdownGraceTimeout is how long the coordinator waits for a worker to
	// report termination after a shutdown command before cancelling it.
	ShutdownGraceTimeout = 10 * time.Second

	// ForcedTerminationTimeout is the additional time granted to a cancelled
	// worker to close its socket and exit.
	ForcedTerminationTimeout = 2 * time.Second

	// EventBufferSize is the capacity of the worker → coordinator event channel.
	EventBufferSize = 256
)
