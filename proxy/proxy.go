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

// Package proxy implements the singleton locator proxy: a client side
// component that tracks which member hosts the singleton and forwards messages
// to it, buffering them while the host is unknown or changing.
package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rcrowley/go-metrics"
	"github.com/uber-common/bark"

	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/membership"
	"github.com/uber/singleton-go/oldest"
	"github.com/uber/singleton-go/protocol"
)

// A Forwarder reaches the host managers of other members.
type Forwarder interface {
	// Identify asks host whether it runs the singleton instance.
	Identify(ctx context.Context, host string) (bool, error)

	// Deliver hands env to the instance on host.
	Deliver(ctx context.Context, host string, env protocol.Envelope) error
}

// DropError is returned by Send when the buffer overflowed and the oldest
// buffered message had to make room. The message passed to Send was accepted.
type DropError struct {
	Envelope protocol.Envelope
}

func (e *DropError) Error() string {
	return fmt.Sprintf("proxy buffer full, dropped oldest message from %q", e.Envelope.Sender)
}

// MessageDroppedEvent is sent for every message dropped from the buffer.
type MessageDroppedEvent struct {
	Envelope protocol.Envelope
}

// HostIdentifiedEvent is sent when the believed host confirmed it runs the
// singleton.
type HostIdentifiedEvent struct {
	Host string
}

// Stats is a snapshot of the proxy.
type Stats struct {
	Host        string
	Confirmed   bool
	Buffered    int
	Forwarded   int64
	Dropped     int64
	ForwardRate float64
}

// Proxy forwards messages to the member hosting the singleton.
type Proxy struct {
	events.SyncEventEmitter

	address   string
	forwarder Forwarder
	notifier  *oldest.Notifier
	clock     clock.Clock
	logger    bark.Logger
	opts      *Options

	mu        sync.Mutex
	buffer    *buffer
	host      string
	confirmed bool

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	start   sync.Once
	stop    sync.Once

	forwarded metrics.Meter
	dropped   metrics.Counter
	buffered  metrics.Gauge
}

// New returns a proxy running on the member at address.
func New(address string, forwarder Forwarder, opts *Options) *Proxy {
	opts = mergeDefaultOptions(opts)

	logger := opts.Logger.WithField("local", address)
	p := &Proxy{
		address:   address,
		forwarder: forwarder,
		clock:     opts.Clock,
		logger:    logger,
		opts:      opts,
		buffer:    newBuffer(opts.BufferSize),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		forwarded: metrics.NewMeter(),
		dropped:   metrics.NewCounter(),
		buffered:  metrics.NewGauge(),
	}
	p.notifier = oldest.NewNotifier(membership.NewAgeTracker(opts.Role), &oldest.Options{
		Logger: logger,
	})

	if opts.Registry != nil {
		opts.Registry.Register("singleton.proxy.forwarded", p.forwarded)
		opts.Registry.Register("singleton.proxy.dropped", p.dropped)
		opts.Registry.Register("singleton.proxy.buffered", p.buffered)
	}
	return p
}

// Start the dispatcher.
func (p *Proxy) Start() {
	p.start.Do(func() {
		p.notifier.Subscribe(p)
		go p.run()
	})
}

// Stop the dispatcher. Buffered messages are discarded.
func (p *Proxy) Stop() {
	p.stop.Do(func() {
		close(p.quit)
	})
	p.start.Do(func() {
		close(p.stopped)
	})
	<-p.stopped
}

// HandleEvent takes membership events.
func (p *Proxy) HandleEvent(event events.Event) {
	p.notifier.HandleEvent(event)
}

// HandleOldestChanged points the proxy at the new oldest member. The new host
// has to identify itself before anything is forwarded to it.
func (p *Proxy) HandleOldestChanged(change oldest.Change) {
	p.mu.Lock()
	p.host = change.OldestAddress()
	p.confirmed = false
	p.mu.Unlock()

	p.logger.WithField("host", change.OldestAddress()).Debug("singleton host changed")
	p.notifier.Acknowledge(change.ID)
	p.poke()
}

// Send queues env for the singleton and returns without waiting for it to be
// forwarded. When the buffer is full the oldest buffered message is dropped
// and reported with a *DropError.
func (p *Proxy) Send(env protocol.Envelope) error {
	p.mu.Lock()
	dropped, ok := p.buffer.push(env)
	p.buffered.Update(int64(p.buffer.Len()))
	p.mu.Unlock()

	p.poke()

	if ok {
		p.drop(dropped)
		return &DropError{Envelope: dropped}
	}
	return nil
}

// Stats returns a snapshot of the proxy.
func (p *Proxy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Host:        p.host,
		Confirmed:   p.confirmed,
		Buffered:    p.buffer.Len(),
		Forwarded:   p.forwarded.Count(),
		Dropped:     p.dropped.Count(),
		ForwardRate: p.forwarded.Rate1(),
	}
}

func (p *Proxy) drop(env protocol.Envelope) {
	p.dropped.Inc(1)
	p.logger.WithField("sender", env.Sender).Warn("proxy buffer full, dropping oldest message")
	if p.opts.OnDrop != nil {
		p.opts.OnDrop(env)
	}
	p.EmitEvent(MessageDroppedEvent{Envelope: env})
}

// poke wakes the dispatcher without blocking. A pending wake-up already
// covers this one.
func (p *Proxy) poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Proxy) run() {
	defer close(p.stopped)

	ticker := p.clock.Ticker(p.opts.IdentificationInterval)
	defer ticker.Stop()

	for {
		p.dispatch()

		select {
		case <-p.quit:
			return
		case <-p.wake:
		case <-ticker.C:
		}
	}
}

// dispatch identifies the host if needed and forwards buffered messages in
// order until the buffer is empty or forwarding fails.
func (p *Proxy) dispatch() {
	for {
		select {
		case <-p.quit:
			return
		default:
		}

		p.mu.Lock()
		host, confirmed := p.host, p.confirmed
		p.mu.Unlock()

		if host == "" {
			return
		}

		if !confirmed {
			if !p.identify(host) {
				return
			}
			continue
		}

		p.mu.Lock()
		env, ok := p.buffer.pop()
		p.mu.Unlock()
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
		err := p.forwarder.Deliver(ctx, host, env)
		cancel()

		if err != nil {
			p.logger.WithFields(bark.Fields{
				"host":  host,
				"error": err.Error(),
			}).Info("failed to forward message, buffering it again")

			p.mu.Lock()
			dropped, full := p.buffer.pushFront(env)
			if p.host == host {
				p.confirmed = false
			}
			p.buffered.Update(int64(p.buffer.Len()))
			p.mu.Unlock()

			if full {
				p.drop(dropped)
			}
			return
		}

		p.forwarded.Mark(1)
		p.mu.Lock()
		p.buffered.Update(int64(p.buffer.Len()))
		p.mu.Unlock()
	}
}

func (p *Proxy) identify(host string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	hosting, err := p.forwarder.Identify(ctx, host)
	cancel()

	if err != nil {
		p.logger.WithFields(bark.Fields{
			"host":  host,
			"error": err.Error(),
		}).Debug("failed to identify singleton host")
		return false
	}
	if !hosting {
		p.logger.WithField("host", host).Debug("singleton not running on host yet")
		return false
	}

	p.mu.Lock()
	current := p.host == host
	if current {
		p.confirmed = true
	}
	p.mu.Unlock()

	if current {
		p.logger.WithField("host", host).Info("identified singleton host")
		p.EmitEvent(HostIdentifiedEvent{Host: host})
	}
	return current
}
