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

package standarderrors

import "errors"

var (
	// ErrConfigInvalid marks a server definition with a missing or blank
	// required field. The server is skipped, others still start.
	ErrConfigInvalid = errors.New("invalid server configuration")

	// ErrConnectFailure is a transport or TLS handshake failure. It is
	// recoverable and triggers a backoff reconnect.
	ErrConnectFailure = errors.New("connect failed")

	// ErrProtocolReject is returned when the server refuses registration or the
	// nickname. The worker still reconnects.
	ErrProtocolReject = errors.New("server rejected registration")

	// ErrSinkWriteFailure wraps errors returned by the log sink.
	ErrSinkWriteFailure = errors.New("log sink write failed")

	// ErrCommandTargetNotFound is returned by dispatch for unknown server names.
	ErrCommandTargetNotFound = errors.New("command target not found")

	// ErrCommandQueueFull is returned when a worker's command channel is full.
	ErrCommandQueueFull = errors.New("command queue full")

	// ErrNotConnected is returned for send-raw while no session is open.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionLost marks a read/write failure or peer close of an open session.
	ErrConnectionLost = errors.New("connection lost")

	// ErrCoordinatorStopped is returned by dispatch after shutdown completed.
	ErrCoordinatorStopped = errors.New("coordinator stopped")
)
