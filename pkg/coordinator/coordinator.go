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

// Package coordinator owns the connection workers and the log pipeline.
//
// The coordinator validates server definitions, spawns one worker per valid
// definition, routes operator commands by server name and shuts everything
// down in order: workers first, then the log aggregator. It never touches a
// socket itself.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/ircmux/pkg/config"
	"github.com/united-manufacturing-hub/ircmux/pkg/constants"
	"github.com/united-manufacturing-hub/ircmux/pkg/logger"
	"github.com/united-manufacturing-hub/ircmux/pkg/logpipeline"
	"github.com/united-manufacturing-hub/ircmux/pkg/metrics"
	"github.com/united-manufacturing-hub/ircmux/pkg/sentry"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
	"github.com/united-manufacturing-hub/ircmux/pkg/starvationchecker"
	"github.com/united-manufacturing-hub/ircmux/pkg/worker"
)

// ShutdownTarget addresses every worker with a shutdown command.
const ShutdownTarget = "*"

// Options configures a Coordinator.
type Options struct {
	// Sink receives the rendered log stream. Required.
	Sink logpipeline.Sink
	// Fallback receives diagnostics that cannot go through the log stream.
	Fallback *zap.SugaredLogger
	// Worker is the template for every spawned worker. Events is overridden.
	Worker              worker.Options
	MinLevel            logpipeline.Level
	QueueSize           int
	GraceTimeout        time.Duration
	ForcedTimeout       time.Duration
	StarvationThreshold time.Duration
}

// StartReport lists the outcome of Start per server.
type StartReport struct {
	Spawned  []string
	Rejected []config.Issue
}

// Coordinator supervises the workers. All methods are safe for concurrent use.
type Coordinator struct {
	ctx    context.Context //nolint:containedctx // parent of every worker run
	cancel context.CancelFunc

	queue      *logpipeline.Queue
	aggregator *logpipeline.Aggregator
	starvation *starvationchecker.StarvationChecker
	producer   *logpipeline.Producer
	log        *zap.SugaredLogger
	fallback   *zap.SugaredLogger

	events    chan worker.Event
	stopLoop  chan struct{}
	loopDone  chan struct{}
	done      chan struct{}
	workers   map[string]*worker.Worker
	opts      Options
	startOnce sync.Once
	stopOnce  sync.Once

	mu      sync.RWMutex
	started bool
	stopped bool
}

// New creates the log queue and starts the aggregator. Failing to create the
// queue is fatal for the process.
func New(opts Options) (*Coordinator, error) {
	if opts.Sink == nil {
		return nil, errors.New("coordinator: no log sink")
	}

	if opts.Fallback == nil {
		opts.Fallback = logger.Stderr(logger.ComponentCoordinator)
	}

	if opts.MinLevel == 0 {
		opts.MinLevel = logpipeline.LevelInfo
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = constants.LogQueueSize
	}

	if opts.GraceTimeout <= 0 {
		opts.GraceTimeout = constants.ShutdownGraceTimeout
	}

	if opts.ForcedTimeout <= 0 {
		opts.ForcedTimeout = constants.ForcedTerminationTimeout
	}

	if opts.StarvationThreshold <= 0 {
		opts.StarvationThreshold = constants.LogStarvationThreshold
	}

	queue, err := logpipeline.NewQueue(opts.QueueSize)
	if err != nil {
		return nil, fmt.Errorf("create log queue: %w", err)
	}

	aggregator := logpipeline.NewAggregator(queue, opts.Sink, logpipeline.WithFallback(opts.Fallback))
	aggregator.Start()

	producer := queue.NewProducer("coordinator", opts.MinLevel)
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		ctx:        ctx,
		cancel:     cancel,
		queue:      queue,
		aggregator: aggregator,
		starvation: starvationchecker.NewStarvationChecker(aggregator, opts.StarvationThreshold,
			starvationchecker.WithLogger(opts.Fallback)),
		producer: producer,
		log:      producer.Logger("bot"),
		fallback: opts.Fallback,
		events:   make(chan worker.Event, constants.EventBufferSize),
		stopLoop: make(chan struct{}),
		loopDone: make(chan struct{}),
		done:     make(chan struct{}),
		workers:  make(map[string]*worker.Worker),
		opts:     opts,
	}

	go c.watchEvents()

	metrics.InitErrorCounter(metrics.ComponentCoordinator, "coordinator")
	metrics.RegisterStatusProvider("coordinator", c)

	return c, nil
}

// Producer returns the coordinator's log producer. Control surfaces derive
// their loggers from it.
func (c *Coordinator) Producer() *logpipeline.Producer {
	return c.producer
}

// Done is closed once ShutdownAll has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// ReportIssues logs configuration issues found before Start, one WARNING
// record each.
func (c *Coordinator) ReportIssues(issues []config.Issue) {
	for _, issue := range issues {
		c.log.Warnw(issue.Error(), "server", issue.Server, "severity", string(issue.Severity))
	}
}

// Start validates every definition and spawns one worker for each valid one.
// Invalid and duplicate definitions are reported and skipped. Workers stop
// when ctx is cancelled. Start may only be called once.
func (c *Coordinator) Start(ctx context.Context, defs []config.ServerDefinition) (StartReport, error) {
	var report StartReport

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return report, standarderrors.ErrCoordinatorStopped
	}

	if c.started {
		return report, errors.New("coordinator already started")
	}

	c.started = true

	go func() {
		select {
		case <-ctx.Done():
			c.cancel()
		case <-c.ctx.Done():
		}
	}()

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			report.Rejected = append(report.Rejected, c.reject(def.Name, err))

			continue
		}

		if _, exists := c.workers[def.Name]; exists {
			report.Rejected = append(report.Rejected, c.reject(def.Name, fmt.Errorf("%w: %w: %s", standarderrors.ErrConfigInvalid, config.ErrDuplicateServer, def.Name)))

			continue
		}

		c.spawn(def)
		report.Spawned = append(report.Spawned, def.Name)
	}

	c.log.Infof("Started %d of %d servers", len(report.Spawned), len(defs))

	return report, nil
}

func (c *Coordinator) reject(name string, err error) config.Issue {
	issue := config.Issue{Err: err, Server: name, Severity: config.IssueRejected}
	c.log.Warnw(fmt.Sprintf("Skipping server: %v", err), "server", name)

	return issue
}

// spawn starts a worker. The caller holds c.mu.
func (c *Coordinator) spawn(def config.ServerDefinition) {
	opts := c.opts.Worker
	opts.Events = c.events

	w := worker.New(def, c.producer, opts)
	c.workers[def.Name] = w

	go w.Run(c.ctx)
}

// Dispatch hands cmd to the worker named by cmd.Server without blocking.
// A shutdown command addressed to "" or "*" shuts the coordinator down in the
// background; wait on Done for it to complete.
func (c *Coordinator) Dispatch(cmd worker.Command) (err error) {
	defer func() {
		metrics.RecordCommand(string(cmd.Kind), dispatchResult(err))
	}()

	if !cmd.Kind.Valid() {
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}

	if cmd.Kind == worker.CommandShutdown && (cmd.Server == "" || cmd.Server == ShutdownTarget) {
		c.mu.RLock()
		stopped := c.stopped
		c.mu.RUnlock()

		if stopped {
			return standarderrors.ErrCoordinatorStopped
		}

		c.log.Infof("Shutdown requested")

		go c.ShutdownAll()

		return nil
	}

	if cmd.Kind == worker.CommandConnect {
		return c.connect(cmd)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	w, err := c.lookup(cmd.Server)
	if err != nil {
		return err
	}

	if w.Status().Terminated() {
		if cmd.Kind == worker.CommandSendRaw {
			return fmt.Errorf("%w: %s is terminated", standarderrors.ErrNotConnected, cmd.Server)
		}

		replyNil(cmd)

		return nil
	}

	return w.Send(cmd)
}

// connect forwards a connect command, replacing a terminated worker with a
// fresh one for the same definition.
func (c *Coordinator) connect(cmd worker.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, err := c.lookup(cmd.Server)
	if err != nil {
		return err
	}

	if !w.Status().Terminated() {
		return w.Send(cmd)
	}

	def := w.Definition()
	def.AutoConnect = true

	c.log.Infof("Respawning worker for %s", def.Name)
	c.spawn(def)
	replyNil(cmd)

	return nil
}

// lookup finds a worker. The caller holds c.mu.
func (c *Coordinator) lookup(name string) (*worker.Worker, error) {
	if c.stopped {
		return nil, standarderrors.ErrCoordinatorStopped
	}

	w, ok := c.workers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", standarderrors.ErrCommandTargetNotFound, name)
	}

	return w, nil
}

func replyNil(cmd worker.Command) {
	if cmd.Reply == nil {
		return
	}

	select {
	case cmd.Reply <- nil:
	default:
	}
}

func dispatchResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, standarderrors.ErrCommandTargetNotFound):
		return "not_found"
	case errors.Is(err, standarderrors.ErrCommandQueueFull):
		return "queue_full"
	case errors.Is(err, standarderrors.ErrCoordinatorStopped):
		return "stopped"
	case errors.Is(err, standarderrors.ErrNotConnected):
		return "not_connected"
	default:
		return "invalid"
	}
}

// Status returns the snapshot of one worker.
func (c *Coordinator) Status(name string) (worker.Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.workers[name]
	if !ok {
		return worker.Status{}, fmt.Errorf("%w: %q", standarderrors.ErrCommandTargetNotFound, name)
	}

	return w.Status(), nil
}

// Statuses returns every worker snapshot sorted by server name.
func (c *Coordinator) Statuses() []worker.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]worker.Status, 0, len(c.workers))
	for _, w := range c.workers {
		out = append(out, w.Status())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Server < out[j].Server })

	return out
}

// GetDebugInfo implements metrics.StatusProvider.
func (c *Coordinator) GetDebugInfo() interface{} {
	return c.Statuses()
}

// watchEvents follows worker transitions until ShutdownAll stops it.
func (c *Coordinator) watchEvents() {
	defer close(c.loopDone)

	for {
		select {
		case ev := <-c.events:
			c.handleEvent(ev)
		case <-c.stopLoop:
			for {
				select {
				case ev := <-c.events:
					c.handleEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (c *Coordinator) handleEvent(ev worker.Event) {
	c.log.Debugw(fmt.Sprintf("%s: %s -> %s", ev.Server, ev.From, ev.To), "trigger", ev.Trigger)

	if ev.To != worker.StateTerminated || ev.Err == nil {
		return
	}

	// The worker already logged the reason to the stream; this is for Sentry only.
	sentry.ReportWorkerError(c.fallback, ev.Server, "terminate", ev.Err)
}

// ShutdownAll sends a shutdown command to every worker and waits up to the
// grace timeout for each to terminate. Workers still running are cancelled
// and given the forced termination timeout. Finally the log sentinel is sent
// and the aggregator drained. Calls after the first wait for it to finish.
func (c *Coordinator) ShutdownAll() {
	c.stopOnce.Do(c.shutdown)
	<-c.done
}

func (c *Coordinator) shutdown() {
	defer close(c.done)

	c.mu.Lock()
	c.stopped = true

	workers := make([]*worker.Worker, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	c.log.Infof("Shutting down %d workers", len(workers))

	if err := c.awaitWorkers(workers); err != nil {
		c.log.Warnf("Forcing termination: %v", err)
		c.cancel()
		c.forceWorkers(workers)
	}

	c.cancel()

	close(c.stopLoop)
	<-c.loopDone

	metrics.UnregisterStatusProvider("coordinator")
	c.log.Infof("All workers stopped")

	c.starvation.Stop()
	c.queue.Close()
	c.aggregator.Wait()
}

// awaitWorkers asks every worker to shut down and waits for all of them
// within the grace timeout.
func (c *Coordinator) awaitWorkers(workers []*worker.Worker) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.GraceTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	for _, w := range workers {
		if err := w.Send(worker.NewCommand(worker.CommandShutdown, w.Name(), c.opts.Worker.QuitMessage)); err != nil {
			c.log.Warnf("Shutdown command for %s not delivered: %v", w.Name(), err)
		}

		g.Go(func() error {
			select {
			case <-w.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("%s did not terminate within %s", w.Name(), c.opts.GraceTimeout)
			}
		})
	}

	return g.Wait()
}

// forceWorkers waits for cancelled workers and abandons those that still
// do not exit.
func (c *Coordinator) forceWorkers(workers []*worker.Worker) {
	deadline := time.NewTimer(c.opts.ForcedTimeout)
	defer deadline.Stop()

	for _, w := range workers {
		select {
		case <-w.Done():
		case <-deadline.C:
			for _, left := range workers {
				select {
				case <-left.Done():
				default:
					c.log.Errorf("Abandoning worker %s", left.Name())
					metrics.IncErrorCount(metrics.ComponentCoordinator, left.Name())
				}
			}

			return
		}
	}
}
