// Copyright (c) 2015 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package host runs the singleton host manager: one per node, it decides
// whether the singleton instance runs on this node, and hands it over to or
// takes it over from other nodes when the oldest eligible member changes.
//
// The decisions are made by a pure transition function; the Manager serializes
// every input through an inbox processed by a single goroutine and carries out
// the effects the transition function returns.
package host

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/uber-common/bark"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/membership"
	"github.com/uber/singleton-go/oldest"
	"github.com/uber/singleton-go/protocol"
)

// An Instance is a running singleton.
type Instance interface {
	// Receive handles an application message forwarded by a proxy.
	Receive(ctx context.Context, env protocol.Envelope) error
}

// A Factory starts and stops the singleton. Stop must only return nil once
// the instance has terminated.
type Factory interface {
	Start(ctx context.Context) (Instance, error)
	Stop(ctx context.Context, instance Instance) error
}

// A Transport sends handover messages to other managers.
type Transport interface {
	Send(ctx context.Context, to string, msg protocol.Message) error
}

// A Manager decides whether the singleton runs on this node.
type Manager struct {
	events.SyncEventEmitter

	address   string
	factory   Factory
	transport Transport
	notifier  *oldest.Notifier
	clock     clock.Clock
	logger    bark.Logger
	opts      *Options
	fsm       fsm

	inbox   *inbox
	started atomic.Bool
	hosting atomic.Bool
	quit    chan struct{}
	closed  sync.Once

	// mu guards state and instance, which are read outside the manager
	// goroutine.
	mu       sync.RWMutex
	state    State
	instance Instance

	// owned by the manager goroutine
	data        data
	grace       *clock.Timer
	retry       *clock.Timer
	retryGen    uint64
	retryActive bool

	// stopCtx is handed to Factory.Stop and cancelled when a forced stop
	// times out or the manager is closed.
	stopCtx    context.Context
	cancelStop context.CancelFunc

	done chan struct{}
	err  error
}

// NewManager returns a manager for the node at address.
func NewManager(address string, factory Factory, transport Transport, opts *Options) *Manager {
	opts = mergeDefaultOptions(opts)

	logger := opts.Logger.WithField("local", address)
	notifier := oldest.NewNotifier(membership.NewAgeTracker(opts.Role), &oldest.Options{
		Logger: logger,
	})

	stopCtx, cancelStop := context.WithCancel(context.Background())

	return &Manager{
		address:   address,
		factory:   factory,
		transport: transport,
		notifier:  notifier,
		clock:     opts.Clock,
		logger:    logger,
		opts:      opts,
		fsm: fsm{
			self:       address,
			grace:      opts.RemovalGracePeriod,
			maxRetries: opts.MaxHandOverRetries,
		},
		inbox:      newInbox(),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		state:      Idle,
		stopCtx:    stopCtx,
		cancelStop: cancelStop,
	}
}

// Address of the node the manager runs on.
func (m *Manager) Address() string {
	return m.address
}

// Notifier is the oldest-change notifier driving the manager.
func (m *Manager) Notifier() *oldest.Notifier {
	return m.notifier
}

// Start the manager goroutine. Membership events handled before Start are
// kept and processed once it runs.
func (m *Manager) Start() {
	if !m.started.CAS(false, true) {
		return
	}
	go m.run()
	m.notifier.Subscribe(m)
}

// HandleEvent takes membership events. Removals are recorded before the age
// view is updated so the removal grace period is measured from the removal.
// Reachability changes are ignored.
func (m *Manager) HandleEvent(event events.Event) {
	switch e := event.(type) {
	case membership.ChangeEvent:
		now := m.clock.Now()
		for _, change := range e.Changes {
			if change.Removed() {
				m.inbox.push(memberRemoved{address: change.Address(), at: now})
				continue
			}
			if change.After.Address == m.address &&
				(change.After.Status == membership.Leaving || change.After.Status == membership.Exiting) {
				m.inbox.push(selfLeaving{})
			}
		}
	case membership.ReachabilityEvent:
		m.logger.WithFields(bark.Fields{
			"member":    e.Member.Address,
			"reachable": e.Reachable,
		}).Debug("ignoring reachability change")
		return
	}

	m.notifier.HandleEvent(event)
}

// HandleOldestChanged queues a change from the notifier. It is acknowledged
// once the manager has acted on it.
func (m *Manager) HandleOldestChanged(change oldest.Change) {
	m.inbox.push(oldestChanged{
		id:     change.ID,
		oldest: change.OldestAddress(),
		view:   change.View,
		at:     m.clock.Now(),
	})
}

// HandleMessage queues a handover message from another manager.
func (m *Manager) HandleMessage(msg protocol.Message) {
	m.inbox.push(received{msg: msg})
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Hosting reports whether the instance runs on this node and accepts
// messages.
func (m *Manager) Hosting() bool {
	return m.hosting.Load()
}

// Deliver hands env to the running instance.
func (m *Manager) Deliver(ctx context.Context, env protocol.Envelope) error {
	m.mu.RLock()
	instance := m.instance
	m.mu.RUnlock()

	if instance == nil || !m.hosting.Load() {
		return ErrNotHosting
	}
	return instance.Receive(ctx, env)
}

// Done is closed when the manager reaches End.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns why the manager ended. It is nil after a graceful stop.
func (m *Manager) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Stop asks the manager to hand the singleton over and end. If ctx expires
// first the instance is stopped without waiting for a handover and the
// context error is returned. An instance that was already stopping when ctx
// expired, or that does not stop within StopTimeout of a forced stop, is
// abandoned and the manager ends with ErrStopFailed.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return ErrNotStarted
	}

	m.inbox.push(selfLeaving{})
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
	}

	m.logger.Warn("handover did not complete in time, forcing stop")
	m.inbox.push(forceStop{})
	select {
	case <-m.done:
	case <-m.clock.After(m.opts.StopTimeout):
		m.logger.WithField("timeout", m.opts.StopTimeout.String()).Error("singleton instance did not stop in time")
		m.cancelStop()
		m.inbox.push(stopTimedOut{})
		<-m.done
	}
	return multierr.Append(ctx.Err(), m.Err())
}

// Close stops the manager goroutine. A manager in End keeps answering
// handover requests until it is closed.
func (m *Manager) Close() {
	m.closed.Do(func() {
		m.cancelStop()
		close(m.quit)
	})
}

func (m *Manager) run() {
	for {
		select {
		case <-m.quit:
			m.stopTimers()
			return
		case <-m.inbox.ready():
		}

		for _, in := range m.inbox.drain() {
			m.process(in)
		}
	}
}

// process runs in and any inputs its effects produce through the state
// machine.
func (m *Manager) process(in input) {
	if tick, ok := in.(retryTick); ok {
		if !m.retryActive || tick.gen != m.retryGen {
			return
		}
		m.retry = nil
	}

	queue := []input{in}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		queue = append(queue, m.step(next)...)
	}

	if m.retryActive && m.retry == nil {
		m.armRetry()
	}

	if oc, ok := in.(oldestChanged); ok {
		m.notifier.Acknowledge(oc.id)
	}
}

func (m *Manager) step(in input) []input {
	m.mu.Lock()
	from := m.state
	to, d, effects := m.fsm.transition(from, m.data, in)
	m.state, m.data = to, d
	m.mu.Unlock()

	if from != to {
		m.logger.WithFields(bark.Fields{
			"from": from.String(),
			"to":   to.String(),
		}).Info("singleton host state changed")
		m.EmitEvent(StateChangedEvent{From: from, To: to})
	}

	var follow []input
	for _, e := range effects {
		if in := m.execute(e); in != nil {
			follow = append(follow, in)
		}
	}
	return follow
}

func (m *Manager) execute(e effect) input {
	switch e := e.(type) {
	case startInstance:
		instance, err := m.factory.Start(context.Background())
		if err != nil {
			m.logger.WithField("error", err.Error()).Error("singleton instance failed to start")
			return instanceStartFailed{err: err}
		}
		m.mu.Lock()
		m.instance = instance
		m.mu.Unlock()
		m.hosting.Store(true)
		m.logger.Info("singleton instance started")
		m.EmitEvent(InstanceStartedEvent{})

	case stopInstance:
		m.hosting.Store(false)
		m.mu.Lock()
		instance := m.instance
		m.instance = nil
		m.mu.Unlock()

		m.logger.Info("stopping singleton instance")
		go func() {
			err := m.factory.Stop(m.stopCtx, instance)
			if err != nil {
				m.logger.WithField("error", err.Error()).Error("singleton instance failed to stop")
			}
			m.inbox.push(instanceStopped{err: err})
		}()

	case sendMessage:
		msg := protocol.Message{Type: e.typ, From: m.address}
		go func() {
			if err := m.transport.Send(context.Background(), e.to, msg); err != nil {
				m.logger.WithFields(bark.Fields{
					"to":      e.to,
					"message": msg.Type.String(),
					"error":   err.Error(),
				}).Warn("failed to send handover message")
			}
		}()

	case scheduleGrace:
		m.stopGrace()
		member := e.member
		m.logger.WithFields(bark.Fields{
			"member": member,
			"after":  e.after.String(),
		}).Info("previous host removed, scheduling takeover")
		m.grace = m.clock.AfterFunc(e.after, func() {
			m.inbox.push(graceElapsed{member: member})
		})

	case cancelGrace:
		m.stopGrace()

	case startRetry:
		m.retryActive = true
		if m.retry != nil {
			m.retry.Stop()
		}
		m.armRetry()

	case stopRetry:
		m.retryActive = false
		if m.retry != nil {
			m.retry.Stop()
			m.retry = nil
		}

	case terminate:
		m.stopTimers()
		m.err = e.err
		if e.err == ErrStopFailed {
			m.cancelStop()
		}
		if e.err != nil {
			m.logger.WithField("error", e.err.Error()).Error("singleton host manager ended")
		} else {
			m.logger.Info("singleton host manager ended")
		}
		close(m.done)

	case emit:
		if stale, ok := e.event.(StaleMessageEvent); ok {
			m.logger.WithFields(bark.Fields{
				"from":    stale.Message.From,
				"message": stale.Message.Type.String(),
				"state":   stale.State.String(),
			}).Debug("ignoring stale handover message")
		}
		if stuck, ok := e.event.(HandOverStuckEvent); ok {
			m.logger.WithFields(bark.Fields{
				"to":       stuck.Correspondent,
				"message":  stuck.Message.String(),
				"attempts": stuck.Attempts,
			}).Warn("handover is not progressing, still retrying")
		}
		m.EmitEvent(e.event)
	}
	return nil
}

func (m *Manager) armRetry() {
	m.retryGen++
	gen := m.retryGen
	m.retry = m.clock.AfterFunc(m.opts.HandOverRetryInterval, func() {
		m.inbox.push(retryTick{gen: gen})
	})
}

func (m *Manager) stopGrace() {
	if m.grace != nil {
		m.grace.Stop()
		m.grace = nil
	}
}

func (m *Manager) stopTimers() {
	m.stopGrace()
	m.retryActive = false
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}
