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
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/united-manufacturing-hub/ircmux/pkg/backoff"
	"github.com/united-manufacturing-hub/ircmux/pkg/constants"
	"github.com/united-manufacturing-hub/ircmux/pkg/logpipeline"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
)

// maxLineLength covers 8191 bytes of message tags plus a 512 byte message.
const maxLineLength = 8703

// session is one open socket and the goroutine reading from it.
type session struct {
	conn       net.Conn
	lines      chan string
	readErr    chan error
	stop       chan struct{}
	readerDone chan struct{}
}

func newSession(conn net.Conn) *session {
	s := &session{
		conn:       conn,
		lines:      make(chan string, 64),
		readErr:    make(chan error, 1),
		stop:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	go s.read()

	return s
}

func (s *session) read() {
	defer close(s.readerDone)

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 1024), maxLineLength)

	for scanner.Scan() {
		select {
		case s.lines <- scanner.Text():
		case <-s.stop:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}

	s.readErr <- err
}

// close closes the socket and waits for the reader to exit.
func (s *session) close() {
	close(s.stop)
	_ = s.conn.Close()
	<-s.readerDone
}

type dialResult struct {
	conn net.Conn
	err  error
}

// connect dials the server. Commands stay observable while the dial is in flight.
func (w *Worker) connect(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, w.opts.DialTimeout)
	defer cancel()

	results := make(chan dialResult, 1)

	go func() {
		conn, err := w.dial(dialCtx)
		results <- dialResult{conn: conn, err: err}
	}()

	abort := func() {
		cancel()

		if res := <-results; res.conn != nil {
			_ = res.conn.Close()
		}
	}

	for {
		select {
		case res := <-results:
			w.connectDone(res)

			return
		case cmd := <-w.commands:
			if cmd.Kind == CommandDisconnect || cmd.Kind == CommandShutdown {
				abort()
				w.handleCommand(cmd)

				return
			}

			w.handleCommand(cmd)
		case <-ctx.Done():
			abort()
			w.requestDisconnect("context cancelled")

			return
		}
	}
}

// dial opens the transport and, if configured, completes the TLS handshake
// before anything is written to the socket.
func (w *Worker) dial(ctx context.Context) (net.Conn, error) {
	conn, err := w.opts.Dialer.DialContext(ctx, "tcp", w.def.Addr())
	if err != nil {
		return nil, err
	}

	if !w.def.TLS {
		return conn, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if w.opts.TLSConfig != nil {
		cfg = w.opts.TLSConfig.Clone()
	}

	cfg.ServerName = w.def.Address
	cfg.InsecureSkipVerify = cfg.InsecureSkipVerify || w.def.TLSSkipVerify //nolint:gosec // opt-in per server

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}

func (w *Worker) connectDone(res dialResult) {
	if res.err != nil {
		err := backoff.NewTransientError(fmt.Errorf("%w: %w", standarderrors.ErrConnectFailure, res.err))

		if w.resolvePermanentlyFailed(res.err) {
			err = backoff.NewPermanentError(fmt.Errorf("%w: %s did not resolve %d times in a row",
				err, w.def.Address, constants.MaxResolveFailures))
		}

		if backoff.IsPermanentError(err) {
			w.fail(err)

			return
		}

		w.scheduleReconnect(EventConnectFailed, err, logpipeline.LevelError)

		return
	}

	w.openSession(res.conn)
	w.fire(EventConnected)

	if err := w.register(); err != nil {
		w.sessionFailed(err)
	}
}

// resolvePermanentlyFailed counts consecutive "no such host" results.
func (w *Worker) resolvePermanentlyFailed(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		w.resolveFailures++

		return w.resolveFailures >= constants.MaxResolveFailures
	}

	w.resolveFailures = 0

	return false
}

func (w *Worker) openSession(conn net.Conn) {
	now := time.Now()

	w.session = newSession(conn)
	w.sessionID = uuid.NewString()
	w.resolveFailures = 0
	w.lastActivity = now
	w.pingSent = time.Time{}
	w.registerBy = now.Add(w.opts.HandshakeTimeout)
	w.nickRetries = 0
	w.nick = w.def.Nick()

	w.log.Infow(fmt.Sprintf("Connected to %s", w.def.Addr()), "session", w.sessionID, "tls", w.def.TLS)
}

// closeSession closes the socket and forgets the joined channels.
func (w *Worker) closeSession() {
	if w.session == nil {
		return
	}

	w.session.close()
	w.session = nil
	w.pingSent = time.Time{}
	clear(w.joined)
}

// sessionFailed handles a read/write error, a peer close or a protocol
// error of the open session according to its category.
func (w *Worker) sessionFailed(err error) {
	if w.session == nil {
		return
	}

	err = backoff.CategorizeError(err)

	switch backoff.CategoryOf(err) {
	case backoff.CategoryIgnored:
		w.log.Warnf("Server refused request: %v", err)

		return
	case backoff.CategoryPermanent:
		w.closeSession()
		w.fail(err)

		return
	case backoff.CategoryTransient:
	}

	w.closeSession()

	level := logpipeline.LevelWarning
	if errors.Is(err, standarderrors.ErrProtocolReject) {
		level = logpipeline.LevelError
	}

	w.scheduleReconnect(EventConnectionLost, err, level)
}

// serve multiplexes socket lines, commands and keep-alive checks while a session is open.
func (w *Worker) serve(ctx context.Context) {
	ticker := time.NewTicker(w.keepaliveTick())
	defer ticker.Stop()

	for sessionOpen(w.machine.Current()) {
		select {
		case line := <-w.session.lines:
			w.lastActivity = time.Now()
			w.pingSent = time.Time{}

			if err := w.handleLine(line); err != nil {
				w.sessionFailed(err)
			}

			w.publish()
		case err := <-w.session.readErr:
			w.sessionFailed(fmt.Errorf("%w: %w", standarderrors.ErrConnectionLost, err))
		case cmd := <-w.commands:
			w.handleCommand(cmd)
		case now := <-ticker.C:
			if err := w.keepalive(now); err != nil {
				w.sessionFailed(err)
			}
		case <-ctx.Done():
			w.requestDisconnect("context cancelled")
		}
	}
}

func (w *Worker) keepaliveTick() time.Duration {
	tick := min(w.opts.PingInterval, w.opts.PingTimeout, w.opts.HandshakeTimeout) / 4

	return max(10*time.Millisecond, min(tick, 5*time.Second))
}

// keepalive enforces the registration deadline and the ping cycle.
func (w *Worker) keepalive(now time.Time) error {
	if w.machine.Is(StateHandshaking) && now.After(w.registerBy) {
		return fmt.Errorf("%w: no welcome within %s", standarderrors.ErrConnectionLost, w.opts.HandshakeTimeout)
	}

	if !w.pingSent.IsZero() {
		if now.Sub(w.pingSent) >= w.opts.PingTimeout {
			return fmt.Errorf("%w: no reply to PING within %s", standarderrors.ErrConnectionLost, w.opts.PingTimeout)
		}

		return nil
	}

	if now.Sub(w.lastActivity) >= w.opts.PingInterval {
		w.pingSent = now

		return w.send("PING", strconv.FormatInt(now.Unix(), 10))
	}

	return nil
}

// write sends one encoded line with a bounded deadline.
func (w *Worker) write(line string) error {
	if w.session == nil {
		return standarderrors.ErrNotConnected
	}

	if err := w.session.conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: %w", standarderrors.ErrConnectionLost, err)
	}

	if _, err := io.WriteString(w.session.conn, line); err != nil {
		return fmt.Errorf("%w: %w", standarderrors.ErrConnectionLost, err)
	}

	return nil
}
