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

package backoff

import (
	"errors"
	"fmt"
	"time"

	cbackoff "github.com/cenkalti/backoff"

	"github.com/united-manufacturing-hub/ircmux/pkg/constants"
)

// ErrAttemptsExhausted is returned, wrapped as permanent, once a bounded policy has no retries left.
var ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")

// PolicyConfig configures a ReconnectPolicy.
type PolicyConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxAttempts bounds consecutive failed attempts. Zero retries forever.
	MaxAttempts int
}

// DefaultPolicyConfig returns the reconnect defaults from constants.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		InitialDelay: constants.ReconnectInitialDelay,
		MaxDelay:     constants.ReconnectMaxDelay,
		Multiplier:   constants.ReconnectMultiplier,
		MaxAttempts:  constants.ReconnectMaxAttempts,
	}
}

// ReconnectPolicy hands out reconnect delays. Delays grow by Multiplier from
// InitialDelay and stay at MaxDelay once reached. There is no jitter, so
// consecutive delays never decrease.
//
// A policy belongs to one worker goroutine and is not safe for concurrent use.
type ReconnectPolicy struct {
	exp         *cbackoff.ExponentialBackOff
	maxAttempts int
	attempts    int
}

// NewReconnectPolicy creates a policy. Values that would not let the delay
// grow fall back to the defaults: a non-positive InitialDelay, a Multiplier
// of at most 1 and a MaxDelay not above InitialDelay.
func NewReconnectPolicy(cfg PolicyConfig) *ReconnectPolicy {
	def := DefaultPolicyConfig()

	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}

	if cfg.MaxDelay <= cfg.InitialDelay {
		cfg.MaxDelay = def.MaxDelay
		if cfg.MaxDelay <= cfg.InitialDelay {
			cfg.MaxDelay = cfg.InitialDelay * (def.MaxDelay / def.InitialDelay)
		}
	}

	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}

	exp := &cbackoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxDelay,
		MaxElapsedTime:      0,
		Clock:               cbackoff.SystemClock,
	}
	exp.Reset()

	return &ReconnectPolicy{
		exp:         exp,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Next records a failed attempt and returns the delay before the next one.
// A bounded policy returns a permanent error once MaxAttempts is reached.
func (p *ReconnectPolicy) Next() (time.Duration, error) {
	p.attempts++

	if p.maxAttempts > 0 && p.attempts > p.maxAttempts {
		return 0, NewPermanentError(fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, p.maxAttempts))
	}

	delay := p.exp.NextBackOff()
	if delay == cbackoff.Stop {
		return 0, NewPermanentError(ErrAttemptsExhausted)
	}

	return delay, nil
}

// Attempts returns the number of failed attempts since the last Reset.
func (p *ReconnectPolicy) Attempts() int {
	return p.attempts
}

// Reset starts over from InitialDelay. Called once a session is established.
func (p *ReconnectPolicy) Reset() {
	p.attempts = 0
	p.exp.Reset()
}
