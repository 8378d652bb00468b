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
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	internalfsm "github.com/united-manufacturing-hub/ircmux/internal/fsm"
	"github.com/united-manufacturing-hub/ircmux/pkg/backoff"
	"github.com/united-manufacturing-hub/ircmux/pkg/config"
	"github.com/united-manufacturing-hub/ircmux/pkg/constants"
	"github.com/united-manufacturing-hub/ircmux/pkg/logpipeline"
	"github.com/united-manufacturing-hub/ircmux/pkg/metrics"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
)

// Dialer opens transport connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options tunes a worker. Zero values are replaced by the defaults from constants.
type Options struct {
	Dialer Dialer
	// TLSConfig is cloned for every TLS session. ServerName and
	// InsecureSkipVerify are taken from the server definition.
	TLSConfig *tls.Config
	// Events receives transitions. Sends never block; a full channel drops the event.
	Events           chan<- Event
	QuitMessage      string
	Policy           backoff.PolicyConfig
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	MaxNickRetries   int
	CommandBuffer    int
}

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		o.Dialer = &net.Dialer{KeepAlive: 30 * time.Second}
	}

	if o.QuitMessage == "" {
		o.QuitMessage = constants.DefaultQuitMessage
	}

	if o.DialTimeout <= 0 {
		o.DialTimeout = constants.DialTimeout
	}

	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = constants.HandshakeTimeout
	}

	if o.WriteTimeout <= 0 {
		o.WriteTimeout = constants.WriteTimeout
	}

	if o.PingInterval <= 0 {
		o.PingInterval = constants.PingInterval
	}

	if o.PingTimeout <= 0 {
		o.PingTimeout = constants.PingTimeout
	}

	if o.MaxNickRetries <= 0 {
		o.MaxNickRetries = constants.MaxNickRetries
	}

	if o.CommandBuffer <= 0 {
		o.CommandBuffer = constants.CommandBufferSize
	}

	if o.Policy == (backoff.PolicyConfig{}) {
		o.Policy = backoff.DefaultPolicyConfig()
	}

	return o
}

// Worker owns the connection to one server. All connection state is owned by
// the goroutine running Run; other goroutines interact through Send, Status
// and Done only.
type Worker struct {
	lastActivity time.Time
	pingSent     time.Time
	registerBy   time.Time

	lastError error
	session   *session

	log      *zap.SugaredLogger
	producer *logpipeline.Producer
	machine  *internalfsm.Machine
	policy   *backoff.ReconnectPolicy
	commands chan Command
	done     chan struct{}
	joined   map[string]struct{}
	status   atomic.Pointer[Status]

	quitReason string
	nick       string
	sessionID  string

	def  config.ServerDefinition
	opts Options

	retryDelay      time.Duration
	nickRetries     int
	resolveFailures int
	terminalErr     bool
}

// New creates a worker for def. The definition must have passed Validate.
// Records are logged as bot.<name> through a producer derived from producer.
func New(def config.ServerDefinition, producer *logpipeline.Producer, opts Options) *Worker {
	opts = opts.withDefaults()
	def = def.Clone()

	p := producer.With("worker:" + def.Name)

	w := &Worker{
		def:      def,
		opts:     opts,
		producer: p,
		log:      p.Logger("bot." + def.Name),
		policy:   backoff.NewReconnectPolicy(opts.Policy),
		commands: make(chan Command, opts.CommandBuffer),
		done:     make(chan struct{}),
		joined:   make(map[string]struct{}),
		nick:     def.Nick(),
	}

	w.machine = internalfsm.NewMachine(internalfsm.MachineConfig{
		ID:          def.Name,
		Initial:     StateIdle,
		Transitions: transitions,
	}, nil)
	w.machine.OnTransition(w.onTransition)

	metrics.InitErrorCounter(metrics.ComponentWorker, def.Name)
	metrics.UpdateWorkerState(def.Name, StateIdle)
	w.publish()

	return w
}

// Name returns the server name.
func (w *Worker) Name() string {
	return w.def.Name
}

// Definition returns a copy of the server definition.
func (w *Worker) Definition() config.ServerDefinition {
	return w.def.Clone()
}

// Send enqueues cmd without blocking.
func (w *Worker) Send(cmd Command) error {
	select {
	case w.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: %s", standarderrors.ErrCommandQueueFull, w.def.Name)
	}
}

// Status returns the latest snapshot.
func (w *Worker) Status() Status {
	return *w.status.Load()
}

// Done is closed when Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run drives the connection until the worker is terminated by a disconnect
// or shutdown command, a permanent failure, or cancellation of ctx. The
// socket is always closed before Run returns.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	if w.def.AutoConnect {
		w.fire(EventConnect)
	}

	for {
		switch w.machine.Current() {
		case StateIdle:
			w.idle(ctx)
		case StateConnecting:
			w.connect(ctx)
		case StateHandshaking, StateJoining, StateActive:
			w.serve(ctx)
		case StateReconnecting:
			w.waitRetry(ctx)
		case StateDisconnecting:
			w.disconnect()
		case StateTerminated:
			return
		}
	}
}

// idle waits for a connect command.
func (w *Worker) idle(ctx context.Context) {
	select {
	case cmd := <-w.commands:
		w.handleCommand(cmd)
	case <-ctx.Done():
		w.requestDisconnect("context cancelled")
	}
}

// waitRetry sleeps for the backoff delay. A connect command retries at once.
func (w *Worker) waitRetry(ctx context.Context) {
	timer := time.NewTimer(w.retryDelay)
	defer timer.Stop()

	for w.machine.Is(StateReconnecting) {
		select {
		case <-timer.C:
			w.fire(EventRetry)
		case cmd := <-w.commands:
			if cmd.Kind == CommandConnect {
				w.log.Infof("Reconnect requested, skipping remaining backoff")
				cmd.reply(nil)
				w.fire(EventRetry)

				continue
			}

			w.handleCommand(cmd)
		case <-ctx.Done():
			w.requestDisconnect("context cancelled")
		}
	}
}

// handleCommand acts on one command in any state but terminated.
func (w *Worker) handleCommand(cmd Command) {
	switch cmd.Kind {
	case CommandConnect:
		if w.machine.Is(StateIdle) {
			w.fire(EventConnect)
		} else {
			w.log.Debugf("Ignoring connect command in state %s", w.machine.Current())
		}

		cmd.reply(nil)
	case CommandDisconnect, CommandShutdown:
		reason := cmd.Payload
		if reason == "" {
			reason = w.opts.QuitMessage
		}

		w.log.Infof("%s requested: %s", cmd.Kind, reason)
		w.requestDisconnect(reason)
		cmd.reply(nil)
	case CommandSendRaw:
		if !sessionOpen(w.machine.Current()) {
			cmd.reply(fmt.Errorf("%w: %s is %s", standarderrors.ErrNotConnected, w.def.Name, w.machine.Current()))

			return
		}

		err := w.sendRaw(cmd.Payload)
		cmd.reply(err)

		if err != nil && !isInvalidPayload(err) {
			w.sessionFailed(err)
		}
	default:
		cmd.reply(fmt.Errorf("unknown command kind %q", cmd.Kind))
	}
}

// requestDisconnect moves to disconnecting unless already there.
func (w *Worker) requestDisconnect(reason string) {
	if !w.machine.Can(EventDisconnect) {
		return
	}

	w.quitReason = reason
	w.fire(EventDisconnect)
}

// disconnect closes the session cleanly and terminates.
func (w *Worker) disconnect() {
	if w.session != nil {
		if err := w.send("QUIT", w.quitReason); err != nil {
			w.log.Debugf("QUIT not delivered: %v", err)
		}

		w.closeSession()
	}

	if w.terminalErr {
		w.log.Errorw(fmt.Sprintf("Terminated: %s", w.quitReason),
			"category", backoff.CategoryOf(w.lastError).String(),
			"cause", backoff.ExtractOriginalError(w.lastError))
	} else {
		w.log.Infof("Disconnected: %s", w.quitReason)
	}

	w.fire(EventDisconnectDone)
}

// pendingDisconnect consumes queued commands and reports whether one of them
// asks to disconnect. Other commands are handled normally.
func (w *Worker) pendingDisconnect() bool {
	for {
		select {
		case cmd := <-w.commands:
			switch cmd.Kind {
			case CommandDisconnect, CommandShutdown:
				reason := cmd.Payload
				if reason == "" {
					reason = w.opts.QuitMessage
				}

				w.quitReason = reason
				cmd.reply(nil)

				return true
			case CommandSendRaw:
				cmd.reply(fmt.Errorf("%w: %s lost its connection", standarderrors.ErrNotConnected, w.def.Name))
			default:
				cmd.reply(nil)
			}
		default:
			return false
		}
	}
}

// scheduleReconnect picks the next backoff delay and logs the failure once,
// at level, with that delay. A bounded policy that ran out ends the worker.
func (w *Worker) scheduleReconnect(event string, err error, level logpipeline.Level) {
	w.lastError = err

	if w.pendingDisconnect() {
		w.log.Warnf("Connection to %s failed while disconnecting: %v", w.def.Addr(), err)
		w.fire(EventDisconnect)

		return
	}

	delay, perr := w.policy.Next()
	if perr != nil {
		w.fail(fmt.Errorf("%w: %w", perr, err))

		return
	}

	w.retryDelay = delay
	metrics.RecordReconnect(w.def.Name, delay)

	msg := fmt.Sprintf("Connection to %s failed: %v, retrying in %s", w.def.Addr(), err, delay)
	fields := []interface{}{"attempt", w.policy.Attempts(), "delay", delay}

	switch level {
	case logpipeline.LevelError:
		w.log.Errorw(msg, fields...)
	default:
		w.log.Warnw(msg, fields...)
	}

	w.fire(event)
}

// fail ends the worker after an unrecoverable error.
func (w *Worker) fail(err error) {
	w.lastError = err
	w.terminalErr = true
	metrics.IncErrorCount(metrics.ComponentWorker, w.def.Name)
	w.requestDisconnect(err.Error())
}

// fire sends a state machine event. It never uses the run context so that
// shutdown transitions still happen after cancellation.
func (w *Worker) fire(event string) {
	if err := w.machine.SendEvent(context.Background(), event); err != nil {
		w.log.Debugf("Event %s rejected in state %s: %v", event, w.machine.Current(), err)
	}
}

func (w *Worker) onTransition(_ context.Context, event, from, to string) {
	metrics.UpdateWorkerState(w.def.Name, to)

	if to == StateActive {
		w.policy.Reset()
	}

	w.publish()

	if w.opts.Events == nil {
		return
	}

	ev := Event{
		Time:    time.Now(),
		Server:  w.def.Name,
		From:    from,
		To:      to,
		Trigger: event,
	}

	if to == StateReconnecting {
		ev.Delay = w.retryDelay
		ev.Err = w.lastError
	}

	if to == StateTerminated && w.terminalErr {
		ev.Err = w.lastError
	}

	select {
	case w.opts.Events <- ev:
	default:
	}
}

// publish stores a fresh status snapshot.
func (w *Worker) publish() {
	joined := make([]string, 0, len(w.joined))
	for ch := range w.joined {
		joined = append(joined, ch)
	}

	sort.Strings(joined)

	joinSet := make(map[string]string, len(w.def.Channels))
	for ch, key := range w.def.Channels {
		joinSet[ch] = key
	}

	st := &Status{
		Since:        time.Now(),
		LastActivity: w.lastActivity,
		JoinSet:      joinSet,
		Server:       w.def.Name,
		State:        w.machine.Current(),
		Nickname:     w.nick,
		SessionID:    w.sessionID,
		Channels:     w.def.ChannelNames(),
		Joined:       joined,
		Attempts:     w.policy.Attempts(),
	}

	if w.lastError != nil {
		st.LastError = w.lastError.Error()
	}

	if st.State == StateReconnecting {
		st.NextRetry = w.retryDelay
	}

	metrics.SetJoinedChannels(w.def.Name, len(joined))
	w.status.Store(st)
}
