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
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// ProxyDialer returns a Dialer that tunnels every connection through the
// SOCKS5 proxy at rawURL ("socks5://[user:pass@]host:port" or bare
// "host:port"). The proxy resolves server names.
func ProxyDialer(rawURL string) (Dialer, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty proxy address")
	}

	if !strings.Contains(rawURL, "://") {
		rawURL = "socks5://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy address: %w", err)
	}

	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("proxy address %q has no host", rawURL)
	}

	var auth *proxy.Auth
	if u.User != nil {
		pw, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pw}
	}

	d, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{KeepAlive: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer does not support contexts")
	}

	return cd, nil
}
