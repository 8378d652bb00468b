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
	"errors"
	"fmt"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/united-manufacturing-hub/ircmux/pkg/backoff"
	"github.com/united-manufacturing-hub/ircmux/pkg/constants"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
)

// maxRawLength is the longest raw line accepted, without the trailing CRLF.
const maxRawLength = 510

var errInvalidPayload = errors.New("invalid raw line")

func isInvalidPayload(err error) bool {
	return errors.Is(err, errInvalidPayload)
}

// send encodes and writes one IRC message.
func (w *Worker) send(command string, params ...string) error {
	msg := ircmsg.MakeMessage(nil, "", command, params...)

	line, err := msg.Line()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errInvalidPayload, command, err)
	}

	return w.write(strings.TrimRight(line, "\r\n") + "\r\n")
}

// sendRaw writes an operator supplied line verbatim.
func (w *Worker) sendRaw(payload string) error {
	payload = strings.TrimRight(payload, "\r\n")

	switch {
	case strings.TrimSpace(payload) == "":
		return fmt.Errorf("%w: empty", errInvalidPayload)
	case strings.ContainsAny(payload, "\r\n\x00"):
		return fmt.Errorf("%w: contains a line break", errInvalidPayload)
	case len(payload) > maxRawLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", errInvalidPayload, len(payload), maxRawLength)
	}

	return w.write(payload + "\r\n")
}

// register sends the credentials. It only runs after the transport
// (including TLS) is established.
func (w *Worker) register() error {
	if w.def.ServerPassword != "" {
		if err := w.send("PASS", w.def.ServerPassword); err != nil {
			return err
		}
	}

	if err := w.send("NICK", w.nick); err != nil {
		return err
	}

	return w.send("USER", w.def.Username, "0", "*", w.def.RealNameOrDefault())
}

// handleLine reacts to one inbound line. Returned errors are categorized:
// ignored ones are only logged, anything else ends the session.
func (w *Worker) handleLine(line string) error {
	msg, err := ircmsg.ParseLine(line)
	if err != nil {
		w.log.Debugf("Ignoring malformed line %q: %v", line, err)

		return nil
	}

	switch strings.ToUpper(msg.Command) {
	case "PING":
		return w.send("PONG", msg.Params...)
	case "001":
		return w.welcome(msg)
	case "433":
		return w.nickInUse(msg)
	case "432", "464", "465":
		err := fmt.Errorf("%w: %s %s", standarderrors.ErrProtocolReject, msg.Command, trailing(msg))
		if w.machine.Is(StateHandshaking) {
			return backoff.NewTransientError(err)
		}

		return backoff.NewIgnoredError(err)
	case "ERROR":
		if w.machine.Is(StateHandshaking) {
			return backoff.NewTransientError(fmt.Errorf("%w: %s", standarderrors.ErrProtocolReject, trailing(msg)))
		}

		return fmt.Errorf("%w: server closed link: %s", standarderrors.ErrConnectionLost, trailing(msg))
	case "JOIN":
		w.onJoin(msg)
	case "PART":
		w.onPart(msg)
	case "KICK":
		w.onKick(msg)
	case "NICK":
		if w.isSelf(msg.Source) && len(msg.Params) > 0 {
			w.log.Infof("Nickname changed from %s to %s", w.nick, msg.Params[0])
			w.nick = msg.Params[0]
		}
	case "471", "473", "474", "475":
		channel := ""
		if len(msg.Params) > 1 {
			channel = msg.Params[1]
		}

		return backoff.NewIgnoredError(fmt.Errorf("cannot join %s: %s (%s)", channel, trailing(msg), msg.Command))
	case "PRIVMSG", "NOTICE":
		if len(msg.Params) > 1 {
			w.log.Debugf("%s <%s> %s", msg.Params[0], sourceNick(msg.Source), msg.Params[len(msg.Params)-1])
		}
	}

	return nil
}

// welcome completes registration, identifies and requests the join set.
func (w *Worker) welcome(msg ircmsg.Message) error {
	if !w.machine.Is(StateHandshaking) {
		return nil
	}

	if len(msg.Params) > 0 && msg.Params[0] != "" && msg.Params[0] != "*" {
		w.nick = msg.Params[0]
	}

	w.log.Infow(fmt.Sprintf("Registered on %s as %s", w.def.Addr(), w.nick), "session", w.sessionID)
	w.fire(EventRegistered)

	if w.def.NickServPassword != "" {
		if err := w.send("PRIVMSG", "NickServ", "IDENTIFY "+w.def.NickServPassword); err != nil {
			return err
		}
	}

	for _, channel := range w.def.ChannelNames() {
		params := []string{channel}
		if key := w.def.Channels[channel]; key != "" {
			params = append(params, key)
		}

		if err := w.send("JOIN", params...); err != nil {
			return err
		}
	}

	w.fire(EventJoined)

	return nil
}

// nickInUse retries registration with a marked nickname. The rejection is
// logged at error level; repeated collisions end the session.
func (w *Worker) nickInUse(msg ircmsg.Message) error {
	if !w.machine.Is(StateHandshaking) {
		return backoff.NewIgnoredError(fmt.Errorf("nickname change refused: %s", trailing(msg)))
	}

	w.nickRetries++
	if w.nickRetries > w.opts.MaxNickRetries {
		return backoff.NewTransientError(fmt.Errorf("%w: nickname %s still in use after %d attempts",
			standarderrors.ErrProtocolReject, w.nick, w.opts.MaxNickRetries))
	}

	rejected := w.nick
	w.nick = rejected + constants.NickCollisionMarker

	w.log.Errorw(fmt.Sprintf("%v: nickname %s is already in use, trying %s", standarderrors.ErrProtocolReject, rejected, w.nick),
		"attempt", w.nickRetries)

	return w.send("NICK", w.nick)
}

func (w *Worker) onJoin(msg ircmsg.Message) {
	if !w.isSelf(msg.Source) || len(msg.Params) == 0 {
		return
	}

	for _, channel := range strings.Split(msg.Params[0], ",") {
		w.joined[channel] = struct{}{}
		w.log.Infof("Joined %s", channel)
	}
}

func (w *Worker) onPart(msg ircmsg.Message) {
	if !w.isSelf(msg.Source) || len(msg.Params) == 0 {
		return
	}

	for _, channel := range strings.Split(msg.Params[0], ",") {
		w.forget(channel)
		w.log.Infof("Left %s", channel)
	}
}

func (w *Worker) onKick(msg ircmsg.Message) {
	if len(msg.Params) < 2 || !strings.EqualFold(msg.Params[1], w.nick) {
		return
	}

	w.forget(msg.Params[0])
	w.log.Warnf("Kicked from %s by %s: %s", msg.Params[0], sourceNick(msg.Source), trailing(msg))
}

// forget removes channel from the joined set, ignoring case.
func (w *Worker) forget(channel string) {
	for joined := range w.joined {
		if strings.EqualFold(joined, channel) {
			delete(w.joined, joined)
		}
	}
}

func (w *Worker) isSelf(source string) bool {
	return strings.EqualFold(sourceNick(source), w.nick)
}

func sourceNick(source string) string {
	nick, _, _ := strings.Cut(source, "!")

	return nick
}

func trailing(msg ircmsg.Message) string {
	if len(msg.Params) == 0 {
		return ""
	}

	return msg.Params[len(msg.Params)-1]
}
