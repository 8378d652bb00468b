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

package worker

import "github.com/looplab/fsm"

// Connection states.
const (
	StateIdle          = "idle"
	StateConnecting    = "connecting"
	StateHandshaking   = "handshaking"
	StateJoining       = "joining"
	StateActive        = "active"
	StateReconnecting  = "reconnecting"
	StateDisconnecting = "disconnecting"
	StateTerminated    = "terminated"
)

// State machine events.
const (
	EventConnect        = "connect"
	EventConnected      = "connected"
	EventConnectFailed  = "connect_failed"
	EventRegistered     = "registered"
	EventJoined         = "joined"
	EventConnectionLost = "connection_lost"
	EventRetry          = "retry"
	EventDisconnect     = "disconnect"
	EventDisconnectDone = "disconnect_done"
)

// transitions is the connection lifecycle:
//
//	idle -> connecting -> handshaking -> joining -> active
//	connecting | handshaking | joining | active -> reconnecting -> connecting
//	any but terminated -> disconnecting -> terminated
var transitions = []fsm.EventDesc{
	{Name: EventConnect, Src: []string{StateIdle}, Dst: StateConnecting},
	{Name: EventConnected, Src: []string{StateConnecting}, Dst: StateHandshaking},
	{Name: EventConnectFailed, Src: []string{StateConnecting}, Dst: StateReconnecting},
	{Name: EventRegistered, Src: []string{StateHandshaking}, Dst: StateJoining},
	{Name: EventJoined, Src: []string{StateJoining}, Dst: StateActive},
	{Name: EventConnectionLost, Src: []string{StateHandshaking, StateJoining, StateActive}, Dst: StateReconnecting},
	{Name: EventRetry, Src: []string{StateReconnecting}, Dst: StateConnecting},
	{
		Name: EventDisconnect,
		Src: []string{
			StateIdle, StateConnecting, StateHandshaking, StateJoining,
			StateActive, StateReconnecting,
		},
		Dst: StateDisconnecting,
	},
	{Name: EventDisconnectDone, Src: []string{StateDisconnecting}, Dst: StateTerminated},
}

// sessionOpen reports whether state has a registered or registering socket.
func sessionOpen(state string) bool {
	switch state {
	case StateHandshaking, StateJoining, StateActive:
		return true
	default:
		return false
	}
}
