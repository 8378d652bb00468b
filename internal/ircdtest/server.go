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

// Package ircdtest provides a minimal in-process IRC server for tests.
package ircdtest

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ergochat/irc-go/ircmsg"
)

const serverName = "irc.test"

// Option configures a Server.
type Option func(*Server)

// WithNickCollisions answers the first n NICK commands with 433.
func WithNickCollisions(n int) Option {
	return func(s *Server) {
		s.collisions.Store(int32(n))
	}
}

// WithoutWelcome never completes registration.
func WithoutWelcome() Option {
	return func(s *Server) {
		s.welcome = false
	}
}

// WithoutPong ignores PING.
func WithoutPong() Option {
	return func(s *Server) {
		s.pong = false
	}
}

// WithTLS serves TLS with a self-signed certificate for 127.0.0.1.
func WithTLS() Option {
	return func(s *Server) {
		s.useTLS = true
	}
}

// Server accepts IRC clients on a loopback port.
type Server struct {
	listener net.Listener
	cert     *x509.Certificate
	conns    chan *Conn
	done     chan struct{}

	mu  sync.Mutex
	all []*Conn

	collisions atomic.Int32
	accepted   atomic.Int32

	welcome bool
	pong    bool
	useTLS  bool

	closeOnce sync.Once
}

// New starts a server on 127.0.0.1 with a random port.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		conns:   make(chan *Conn, 16),
		done:    make(chan struct{}),
		welcome: true,
		pong:    true,
	}

	for _, opt := range opts {
		opt(s)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	if s.useTLS {
		cfg, cert := selfSigned()
		s.cert = cert
		ln = tls.NewListener(ln, cfg)
	}

	s.listener = ln

	go s.accept()

	return s, nil
}

// selfSigned borrows the loopback certificate of net/http/httptest.
func selfSigned() (*tls.Config, *x509.Certificate) {
	hs := httptest.NewUnstartedServer(http.NotFoundHandler())
	hs.StartTLS()
	defer hs.Close()

	return &tls.Config{
		Certificates: hs.TLS.Certificates,
		MinVersion:   tls.VersionTLS12,
	}, hs.Certificate()
}

// Host returns the listening IP.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())

	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	p, _ := strconv.Atoi(port)

	return p
}

// CertPool trusts the TLS certificate. It is nil without WithTLS.
func (s *Server) CertPool() *x509.CertPool {
	if s.cert == nil {
		return nil
	}

	pool := x509.NewCertPool()
	pool.AddCert(s.cert)

	return pool
}

// Conns delivers every accepted connection.
func (s *Server) Conns() <-chan *Conn {
	return s.conns
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

// Close stops listening and closes every connection.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.listener.Close()

		s.mu.Lock()
		defer s.mu.Unlock()

		for _, c := range s.all {
			c.Close()
		}
	})
}

func (s *Server) accept() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}

		c := &Conn{
			conn:   nc,
			server: s,
			closed: make(chan struct{}),
		}

		s.mu.Lock()
		s.all = append(s.all, c)
		s.mu.Unlock()
		s.accepted.Add(1)

		go c.serve()

		select {
		case s.conns <- c:
		default:
		}
	}
}

// Conn is one client connection seen by the server.
type Conn struct {
	conn   net.Conn
	server *Server
	closed chan struct{}

	mu         sync.Mutex
	received   []string
	nick       string
	hasUser    bool
	registered bool

	closeOnce sync.Once
}

// Received returns the lines read from the client so far.
func (c *Conn) Received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.received...)
}

// Commands returns the received lines starting with command.
func (c *Conn) Commands(command string) []string {
	var out []string

	for _, line := range c.Received() {
		if line == command || strings.HasPrefix(line, command+" ") {
			out = append(out, line)
		}
	}

	return out
}

// Params returns the parameters of every received command, in order.
func (c *Conn) Params(command string) [][]string {
	var out [][]string

	for _, line := range c.Received() {
		msg, err := ircmsg.ParseLine(line)
		if err != nil || !strings.EqualFold(msg.Command, command) {
			continue
		}

		out = append(out, msg.Params)
	}

	return out
}

// Index returns the position of the first received line starting with
// command, or -1.
func (c *Conn) Index(command string) int {
	for i, line := range c.Received() {
		if line == command || strings.HasPrefix(line, command+" ") {
			return i
		}
	}

	return -1
}

// Nick returns the nickname the client registered with.
func (c *Conn) Nick() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.nick
}

// Send writes a raw line to the client.
func (c *Conn) Send(line string) error {
	_, err := fmt.Fprintf(c.conn, "%s\r\n", line)

	return err
}

// Closed is closed once the connection is gone.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Close drops the connection without a goodbye.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

func (c *Conn) serve() {
	defer close(c.closed)
	defer c.Close()

	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		line := scanner.Text()

		c.mu.Lock()
		c.received = append(c.received, line)
		c.mu.Unlock()

		msg, err := ircmsg.ParseLine(line)
		if err != nil {
			continue
		}

		if err := c.handle(msg); err != nil {
			return
		}
	}
}

var errQuit = errors.New("client quit")

func (c *Conn) handle(msg ircmsg.Message) error {
	switch strings.ToUpper(msg.Command) {
	case "NICK":
		if len(msg.Params) == 0 {
			return nil
		}

		if c.server.collisions.Add(-1) >= 0 {
			return c.Send(fmt.Sprintf(":%s 433 * %s :Nickname is already in use", serverName, msg.Params[0]))
		}

		c.mu.Lock()
		c.nick = msg.Params[0]
		c.mu.Unlock()

		return c.maybeWelcome()
	case "USER":
		c.mu.Lock()
		c.hasUser = true
		c.mu.Unlock()

		return c.maybeWelcome()
	case "JOIN":
		if len(msg.Params) == 0 {
			return nil
		}

		for _, channel := range strings.Split(msg.Params[0], ",") {
			if err := c.Send(fmt.Sprintf(":%s!bot@127.0.0.1 JOIN %s", c.Nick(), channel)); err != nil {
				return err
			}
		}
	case "PART":
		if len(msg.Params) == 0 {
			return nil
		}

		return c.Send(fmt.Sprintf(":%s!bot@127.0.0.1 PART %s", c.Nick(), msg.Params[0]))
	case "PING":
		if !c.server.pong {
			return nil
		}

		token := ""
		if len(msg.Params) > 0 {
			token = msg.Params[0]
		}

		return c.Send(fmt.Sprintf(":%s PONG %s :%s", serverName, serverName, token))
	case "QUIT":
		_ = c.Send("ERROR :Closing link")

		return errQuit
	}

	return nil
}

func (c *Conn) maybeWelcome() error {
	c.mu.Lock()
	ready := c.nick != "" && c.hasUser && !c.registered && c.server.welcome
	if ready {
		c.registered = true
	}
	nick := c.nick
	c.mu.Unlock()

	if !ready {
		return nil
	}

	return c.Send(fmt.Sprintf(":%s 001 %s :Welcome to the test network %s", serverName, nick, nick))
}
