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
	// DialTimeout bounds a single TCP connect attempt, including the TLS handshake.
	DialTimeout = 15 * time.Second

	// HandshakeTimeout is how long a worker waits for RPL_WELCOME after sending
	// its registration before treating the session as lost.
	HandshakeTimeout = 60 * time.Second

	// WriteTimeout bounds every socket write so a stalled peer cannot block the
	// worker loop.
	WriteTimeout = 10 * time.Second

	// PingInterval is the amount of inbound silence after which the worker sends
	// its own PING.
	PingInterval = 120 * time.Second

	// PingTimeout is how long the worker waits for any traffic after its own PING.
	PingTimeout = 60 * time.Second

	// MaxNickRetries is the number of ERR_NICKNAMEINUSE replies tolerated during a
	// single handshake before the session is dropped.
	MaxNickRetries = 5

	// NickCollisionMarker is appended to the nickname on every collision.
	NickCollisionMarker = "_"

	// MaxResolveFailures is the number of consecutive "no such host" results
	// after which name resolution is considered permanently failed.
	MaxResolveFailures = 3

	// CommandBufferSize is the capacity of each worker's command channel.
	CommandBufferSize = 16

	// DefaultQuitMessage is sent with QUIT when no reason was given.
	DefaultQuitMessage = "ircmux shutting down"
)

const (
	// ReconnectInitialDelay is the first backoff delay after a failed connect.
	ReconnectInitialDelay = 2 * time.Second

	// ReconnectMaxDelay caps the reconnect backoff.
	ReconnectMaxDelay = 5 * time.Minute

	// ReconnectMultiplier grows the delay between consecutive attempts.
	ReconnectMultiplier = 2.0

	// ReconnectMaxAttempts limits consecutive failed attempts. 0 means unbounded.
	ReconnectMaxAttempts = 0
)
