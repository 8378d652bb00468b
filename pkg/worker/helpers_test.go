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

package worker_test

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/ircmux/internal/ircdtest"
	"github.com/united-manufacturing-hub/ircmux/pkg/backoff"
	"github.com/united-manufacturing-hub/ircmux/pkg/config"
	"github.com/united-manufacturing-hub/ircmux/pkg/logpipeline"
	"github.com/united-manufacturing-hub/ircmux/pkg/logsink"
	"github.com/united-manufacturing-hub/ircmux/pkg/worker"
)

// harness wires a log pipeline into an in-memory sink.
type harness struct {
	producer *logpipeline.Producer
	sink     *logsink.Memory
	events   chan worker.Event
}

func newHarness() *harness {
	queue, err := logpipeline.NewQueue(4096)
	Expect(err).NotTo(HaveOccurred())

	sink := logsink.NewMemory(nil)
	aggregator := logpipeline.NewAggregator(queue, sink)
	aggregator.Start()

	DeferCleanup(func() {
		queue.Close()
		aggregator.Wait()
	})

	return &harness{
		producer: queue.NewProducer("coordinator", logpipeline.LevelDebug),
		sink:     sink,
		events:   make(chan worker.Event, 256),
	}
}

func (h *harness) options() worker.Options {
	return worker.Options{
		Events:           h.events,
		DialTimeout:      time.Second,
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     time.Second,
		Policy: backoff.PolicyConfig{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     80 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

// start runs a worker until the test ends.
func (h *harness) start(def config.ServerDefinition, opts worker.Options) *worker.Worker {
	w := worker.New(def, h.producer, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	DeferCleanup(func() {
		cancel()
		Eventually(w.Done()).Should(BeClosed())
	})

	return w
}

// waitFor consumes events until one enters state to.
func (h *harness) waitFor(to string) worker.Event {
	var ev worker.Event

	EventuallyWithOffset(1, func() string {
		select {
		case ev = <-h.events:
			return ev.To
		default:
			return ""
		}
	}).Should(Equal(to))

	return ev
}

// collectUntil consumes events up to and including the first one entering state to.
func (h *harness) collectUntil(to string) []worker.Event {
	var seen []worker.Event

	EventuallyWithOffset(1, func() string {
		select {
		case ev := <-h.events:
			seen = append(seen, ev)

			return ev.To
		default:
			return ""
		}
	}).Should(Equal(to))

	return seen
}

func newServer(opts ...ircdtest.Option) *ircdtest.Server {
	srv, err := ircdtest.New(opts...)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(srv.Close)

	return srv
}

func definition(srv *ircdtest.Server, channels map[string]string) config.ServerDefinition {
	return config.ServerDefinition{
		Name:        "local",
		Address:     srv.Host(),
		Port:        srv.Port(),
		Username:    "bot",
		Nickname:    "bot",
		RealName:    "Test Bot",
		Channels:    channels,
		AutoConnect: true,
	}
}

// closedPort returns a loopback port nothing listens on.
func closedPort() int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	port := ln.Addr().(*net.TCPAddr).Port
	Expect(ln.Close()).To(Succeed())

	return port
}

// nxDialer fails every dial with a "no such host" error.
type nxDialer struct {
	calls atomic.Int32
}

func (d *nxDialer) DialContext(_ context.Context, _, address string) (net.Conn, error) {
	d.calls.Add(1)

	host, _, _ := net.SplitHostPort(address)

	return nil, &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &net.DNSError{Err: "no such host", Name: host, IsNotFound: true},
	}
}

// hangingDialer blocks every dial until its context is done.
type hangingDialer struct {
	started   chan struct{}
	cancelled atomic.Bool
	once      sync.Once
}

func newHangingDialer() *hangingDialer {
	return &hangingDialer{started: make(chan struct{})}
}

func (d *hangingDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	d.once.Do(func() { close(d.started) })

	<-ctx.Done()
	d.cancelled.Store(true)

	return nil, ctx.Err()
}

// stallingDialer dials for real but holds the first write on the returned
// connection until release is closed, then fails it.
type stallingDialer struct {
	writing chan struct{}
	release chan struct{}
}

func newStallingDialer() *stallingDialer {
	return &stallingDialer{
		writing: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (d *stallingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	var nd net.Dialer

	conn, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	return &stallingConn{Conn: conn, dialer: d}, nil
}

type stallingConn struct {
	net.Conn
	dialer *stallingDialer
	once   sync.Once
}

func (c *stallingConn) Write(_ []byte) (int, error) {
	c.once.Do(func() { close(c.dialer.writing) })
	<-c.dialer.release

	return 0, io.ErrClosedPipe
}

func acceptConn(srv *ircdtest.Server) *ircdtest.Conn {
	var conn *ircdtest.Conn

	EventuallyWithOffset(1, srv.Conns()).Should(Receive(&conn))

	return conn
}
