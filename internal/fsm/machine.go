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

package fsm

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// TransitionHook observes every completed transition.
type TransitionHook func(ctx context.Context, event, from, to string)

// MachineConfig describes a state machine.
type MachineConfig struct {
	// ID names the machine in logs.
	ID string
	// Initial is the state the machine starts in.
	Initial string
	// Transitions are the allowed events.
	Transitions []fsm.EventDesc
}

// Machine wraps a looplab FSM with per-state enter callbacks and transition
// hooks. It is safe for concurrent use.
type Machine struct {
	fsm *fsm.FSM

	logger *zap.SugaredLogger

	// Registered "enter_<state>" callbacks, purely for logging or minor side-effects.
	callbacks map[string]fsm.Callback
	hooks     []TransitionHook

	id string

	mu sync.RWMutex
}

// NewMachine creates a machine in cfg.Initial.
func NewMachine(cfg MachineConfig, logger *zap.SugaredLogger) *Machine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	m := &Machine{
		callbacks: make(map[string]fsm.Callback),
		logger:    logger,
		id:        cfg.ID,
	}

	m.fsm = fsm.NewFSM(
		cfg.Initial,
		fsm.Events(cfg.Transitions),
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				m.mu.RLock()
				cb, ok := m.callbacks["enter_"+e.Dst]
				hooks := m.hooks
				m.mu.RUnlock()

				m.logger.Debugf("%s: %s -> %s (%s)", m.id, e.Src, e.Dst, e.Event)

				if ok {
					cb(ctx, e)
				}

				for _, hook := range hooks {
					hook(ctx, e.Event, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// AddCallback registers cb for a callback name such as "enter_active".
func (m *Machine) AddCallback(name string, cb fsm.Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callbacks[name] = cb
}

// OnTransition registers a hook called after every transition.
func (m *Machine) OnTransition(hook TransitionHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = append(m.hooks, hook)
}

// Current returns the current state.
func (m *Machine) Current() string {
	return m.fsm.Current()
}

// Is reports whether the machine is in state.
func (m *Machine) Is(state string) bool {
	return m.fsm.Is(state)
}

// Can reports whether event is allowed in the current state.
func (m *Machine) Can(event string) bool {
	return m.fsm.Can(event)
}

// SendEvent fires event. A cancelled context is rejected before the
// transition starts so the machine is never left mid-transition.
func (m *Machine) SendEvent(ctx context.Context, event string, args ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return m.fsm.Event(ctx, event, args...)
}
