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

package ircdtest

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// Socks is a no-auth SOCKS5 relay supporting CONNECT.
type Socks struct {
	listener net.Listener
	wg       sync.WaitGroup
	relayed  atomic.Int32
	targets  chan string
}

// NewSocks starts a relay on a loopback port.
func NewSocks() (*Socks, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Socks{listener: l, targets: make(chan string, 16)}

	s.wg.Add(1)

	go s.accept()

	return s, nil
}

// Addr is the host:port clients dial.
func (s *Socks) Addr() string { return s.listener.Addr().String() }

// Relayed counts successful CONNECT requests.
func (s *Socks) Relayed() int { return int(s.relayed.Load()) }

// Targets yields the address of every CONNECT request.
func (s *Socks) Targets() <-chan string { return s.targets }

// Close stops accepting. Open tunnels end when either side closes.
func (s *Socks) Close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Socks) accept() {
	defer s.wg.Done()

	for {
		c, err := s.listener.Accept()
		if err != nil {
			return
		}

		go s.serve(c)
	}
}

func (s *Socks) serve(c net.Conn) {
	target, err := handshake(c)
	if err != nil {
		_ = c.Close()

		return
	}

	select {
	case s.targets <- target:
	default:
	}

	upstream, err := net.Dial("tcp", target)
	if err != nil {
		// general failure
		_, _ = c.Write([]byte{5, 1, 0, 1, 0, 0, 0, 0, 0, 0})
		_ = c.Close()

		return
	}

	s.relayed.Add(1)

	if _, err := c.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}); err != nil {
		_ = c.Close()
		_ = upstream.Close()

		return
	}

	go pipe(upstream, c)
	pipe(c, upstream)
}

func pipe(dst, src net.Conn) {
	_, _ = io.Copy(dst, src)
	_ = dst.Close()
	_ = src.Close()
}

func handshake(c net.Conn) (string, error) {
	head := make([]byte, 2)
	if _, err := io.ReadFull(c, head); err != nil {
		return "", err
	}

	if head[0] != 5 {
		return "", errors.New("not socks5")
	}

	methods := make([]byte, head[1])
	if _, err := io.ReadFull(c, methods); err != nil {
		return "", err
	}

	if _, err := c.Write([]byte{5, 0}); err != nil {
		return "", err
	}

	req := make([]byte, 4)
	if _, err := io.ReadFull(c, req); err != nil {
		return "", err
	}

	if req[1] != 1 {
		return "", errors.New("only CONNECT is supported")
	}

	var host string

	switch req[3] {
	case 1:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(c, ip); err != nil {
			return "", err
		}

		host = net.IP(ip).String()
	case 3:
		n := make([]byte, 1)
		if _, err := io.ReadFull(c, n); err != nil {
			return "", err
		}

		name := make([]byte, n[0])
		if _, err := io.ReadFull(c, name); err != nil {
			return "", err
		}

		host = string(name)
	case 4:
		ip := make([]byte, 16)
		if _, err := io.ReadFull(c, ip); err != nil {
			return "", err
		}

		host = net.IP(ip).String()
	default:
		return "", errors.New("unknown address type")
	}

	port := make([]byte, 2)
	if _, err := io.ReadFull(c, port); err != nil {
		return "", err
	}

	return net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(port)))), nil
}
