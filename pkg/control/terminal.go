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

package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ircmux/pkg/coordinator"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
	"github.com/united-manufacturing-hub/ircmux/pkg/worker"
)

const terminalHelp = `commands:
  connect <server>             connect or reconnect a server
  disconnect <server> [reason] close the connection and stop the worker
  raw <server> <line>          send a raw protocol line (alias: send)
  status [server]              show connection state
  shutdown                     disconnect everything and exit (alias: quit)
  help                         show this text
`

var stateColors = map[string]func(format string, a ...interface{}) string{
	worker.StateActive:       color.GreenString,
	worker.StateReconnecting: color.YellowString,
	worker.StateTerminated:   color.RedString,
}

// Terminal reads operator commands line by line.
type Terminal struct {
	dispatcher Dispatcher
	in         io.Reader
	out        io.Writer
	log        *zap.SugaredLogger
}

// NewTerminal creates a terminal. Accepted commands are logged to log.
func NewTerminal(dispatcher Dispatcher, in io.Reader, out io.Writer, log *zap.SugaredLogger) *Terminal {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Terminal{
		dispatcher: dispatcher,
		in:         in,
		out:        out,
		log:        log,
	}
}

// Run executes lines until the input ends, a shutdown is issued or ctx is done.
func (t *Terminal) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		readErr <- scanner.Err()
	}()

	for {
		select {
		case line := <-lines:
			if quit := t.Execute(line); quit {
				return nil
			}
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Execute runs one command line and reports whether it asked to shut down.
func (t *Terminal) Execute(line string) bool {
	verb, rest := cut(line)
	if verb == "" {
		return false
	}

	switch strings.ToLower(verb) {
	case "help", "?":
		fmt.Fprint(t.out, terminalHelp)
	case "status":
		t.status(strings.TrimSpace(rest))
	case "connect":
		server, extra := cut(rest)
		if server == "" || extra != "" {
			t.usage("connect <server>")

			return false
		}

		t.dispatch(worker.NewCommand(worker.CommandConnect, server, ""))
	case "disconnect":
		server, reason := cut(rest)
		if server == "" {
			t.usage("disconnect <server> [reason]")

			return false
		}

		t.dispatch(worker.NewCommand(worker.CommandDisconnect, server, reason))
	case "raw", "send":
		server, payload := cut(rest)
		if server == "" || payload == "" {
			t.usage("raw <server> <line>")

			return false
		}

		t.dispatch(worker.NewCommand(worker.CommandSendRaw, server, payload))
	case "shutdown", "quit", "exit":
		if t.dispatch(worker.NewCommand(worker.CommandShutdown, coordinator.ShutdownTarget, strings.TrimSpace(rest))) {
			return true
		}
	default:
		fmt.Fprintf(t.out, "unknown command %q, type help for a list\n", verb)
	}

	return false
}

// dispatch hands cmd to the coordinator and prints the outcome.
func (t *Terminal) dispatch(cmd worker.Command) bool {
	err := t.dispatcher.Dispatch(cmd)

	switch {
	case err == nil:
		t.log.Infow(fmt.Sprintf("Operator command %s %s", cmd.Kind, cmd.Server), "command", cmd.ID.String())
		fmt.Fprintf(t.out, "ok: %s %s\n", cmd.Kind, cmd.Server)

		return true
	case errors.Is(err, standarderrors.ErrCommandTargetNotFound):
		fmt.Fprintf(t.out, "no such server: %s\n", cmd.Server)
	default:
		fmt.Fprintf(t.out, "error: %v\n", err)
	}

	return false
}

func (t *Terminal) status(server string) {
	var statuses []worker.Status

	if server == "" {
		statuses = t.dispatcher.Statuses()
	} else {
		st, err := t.dispatcher.Status(server)
		if err != nil {
			fmt.Fprintf(t.out, "no such server: %s\n", server)

			return
		}

		statuses = []worker.Status{st}
	}

	if len(statuses) == 0 {
		fmt.Fprintln(t.out, "no servers")

		return
	}

	tw := tabwriter.NewWriter(t.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tSTATE\tNICK\tJOINED\tSINCE\tLAST ERROR")

	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Server,
			colorState(st.State),
			st.Nickname,
			strings.Join(st.Joined, ","),
			st.Since.Format(time.TimeOnly),
			st.LastError,
		)
	}

	_ = tw.Flush()
}

func (t *Terminal) usage(text string) {
	fmt.Fprintf(t.out, "usage: %s\n", text)
}

func colorState(state string) string {
	if paint, ok := stateColors[state]; ok {
		return paint("%s", state)
	}

	return state
}

// cut splits off the first word and trims the rest.
func cut(s string) (string, string) {
	s = strings.TrimSpace(s)

	head, tail, _ := strings.Cut(s, " ")

	return head, strings.TrimSpace(tail)
}
