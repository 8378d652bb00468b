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

import (
	"time"

	"github.com/google/uuid"
)

// CommandKind is the operation a Command requests.
type CommandKind string

const (
	CommandConnect    CommandKind = "connect"
	CommandDisconnect CommandKind = "disconnect"
	CommandSendRaw    CommandKind = "send-raw"
	CommandShutdown   CommandKind = "shutdown"
)

// Valid reports whether k is a known kind.
func (k CommandKind) Valid() bool {
	switch k {
	case CommandConnect, CommandDisconnect, CommandSendRaw, CommandShutdown:
		return true
	default:
		return false
	}
}

// Command is an operator instruction for one server. It is consumed exactly
// once by the worker it was dispatched to.
type Command struct {
	// Reply, if set, receives the outcome once the worker acted on the command.
	// It should be buffered; the worker never blocks on it.
	Reply   chan error
	ID      uuid.UUID
	Kind    CommandKind
	Server  string
	Payload string
}

// NewCommand creates a command with a fresh ID.
func NewCommand(kind CommandKind, server, payload string) Command {
	return Command{
		ID:      uuid.New(),
		Kind:    kind,
		Server:  server,
		Payload: payload,
	}
}

// WithReply returns a copy of c carrying a buffered reply channel.
func (c Command) WithReply() Command {
	c.Reply = make(chan error, 1)

	return c
}

func (c Command) reply(err error) {
	if c.Reply == nil {
		return
	}

	select {
	case c.Reply <- err:
	default:
	}
}

// Event reports a state transition to the coordinator.
type Event struct {
	Time   time.Time
	Err    error
	Server string
	From   string
	To     string
	// Trigger is the state machine event that caused the transition.
	Trigger string
	// Delay is the backoff before the next attempt when To is reconnecting.
	Delay time.Duration
}

// Status is a point-in-time snapshot of a worker, safe to read from any goroutine.
type Status struct {
	Since        time.Time         `json:"since"`
	LastActivity time.Time         `json:"lastActivity"`
	JoinSet      map[string]string `json:"-"`
	Server       string            `json:"server"`
	State        string            `json:"state"`
	Nickname     string            `json:"nickname,omitempty"`
	LastError    string            `json:"lastError,omitempty"`
	SessionID    string            `json:"sessionId,omitempty"`
	Channels     []string          `json:"channels"`
	Joined       []string          `json:"joined"`
	Attempts     int               `json:"reconnectAttempts"`
	NextRetry    time.Duration     `json:"nextRetryNs,omitempty"`
}

// Terminated reports whether the worker has exited.
func (s Status) Terminated() bool {
	return s.State == StateTerminated
}
