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

// Package singleton runs exactly one instance of a unit of work across a
// cluster. Every node runs a host manager that starts the instance when the
// node becomes the oldest eligible member and hands it over when it stops
// being the oldest, and a locator proxy that forwards messages to whichever
// node hosts the instance.
package singleton

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
	"github.com/uber-common/bark"
	"go.uber.org/multierr"

	"github.com/uber/singleton-go/discovery"
	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/host"
	"github.com/uber/singleton-go/logging"
	"github.com/uber/singleton-go/protocol"
	"github.com/uber/singleton-go/proxy"
	"github.com/uber/singleton-go/shared"
	"github.com/uber/singleton-go/stats"
	"github.com/uber/singleton-go/transport"
)

var (
	// ErrNotStarted is returned when the node is used before Start.
	ErrNotStarted = errors.New("singleton node is not started")

	// ErrStopped is returned when a stopped node is started again.
	ErrStopped = errors.New("singleton node has been stopped")

	// ErrEphemeralIdentity is returned by the default identity resolver when
	// the channel is not listening on a concrete host:port yet.
	ErrEphemeralIdentity = errors.New("channel is not listening on a concrete host:port, use the Identity option")

	// ErrNoMembership is returned when neither the Membership option nor the
	// membership configuration was given.
	ErrNoMembership = errors.New("no membership source configured")
)

// Singleton is a node of the cluster the singleton runs on.
type Singleton struct {
	config           *Configuration
	channel          shared.TChannel
	identityResolver IdentityResolver
	factory          host.Factory
	source           discovery.Source
	logger           bark.Logger
	statter          bark.StatsReporter
	registerer       prometheus.Registerer
	metrics          metrics.Registry
	clock            clock.Clock

	address   string
	log       bark.Logger
	transport *transport.Transport
	manager   *host.Manager
	proxy     *proxy.Proxy

	// members fans membership events out to the manager and the proxy, in
	// order.
	members events.SyncEventEmitter
	// observers receives every other event of the node.
	observers relay

	state struct {
		sync.Mutex
		started, stopped bool
	}
}

// relay forwards events to its own listeners without blocking the sender.
type relay struct {
	events.AsyncEventEmitter
}

func (r *relay) HandleEvent(event events.Event) {
	r.EmitEvent(event)
}

// New returns a node configured by opts. Channel and WorkUnit are required.
func New(opts ...Option) (*Singleton, error) {
	s := &Singleton{}

	if err := applyOptions(s, defaultOptions); err != nil {
		panic(fmt.Errorf("error applying default Singleton options: %v", err))
	}
	if err := applyOptions(s, opts); err != nil {
		return nil, err
	}

	if errs := checkOptions(s); len(errs) != 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return nil, errors.New(strings.Join(msgs, ", "))
	}

	address, err := s.identityResolver()
	if err != nil {
		return nil, err
	}
	s.address = address

	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Singleton) init() error {
	facility := logging.NewFacility(s.logger)
	if err := facility.SetLevels(s.config.Logging); err != nil {
		return err
	}
	s.log = facility.Logger("singleton").WithField("local", s.address)

	if s.source == nil {
		source, err := s.config.Membership.source(s.address, s.config.roles(), facility.Logger("membership"))
		if err != nil {
			return err
		}
		if source == nil {
			return ErrNoMembership
		}
		s.source = source
	}

	s.transport = transport.New(s.channel, &transport.Options{
		Timeout: s.config.CallTimeout,
		Logger:  facility.Logger("transport"),
	})

	s.manager = host.NewManager(s.address, s.factory, s.transport, &host.Options{
		Role:                  s.config.Role,
		RemovalGracePeriod:    s.config.RemovalGracePeriod,
		HandOverRetryInterval: s.config.HandOverRetryInterval,
		MaxHandOverRetries:    s.config.MaxHandOverRetries,
		StopTimeout:           s.config.StopTimeout,
		Clock:                 s.clock,
		Logger:                facility.Logger("host"),
	})
	if err := s.transport.Attach(s.manager); err != nil {
		return err
	}

	s.proxy = proxy.New(s.address, s.transport, &proxy.Options{
		Role:                   s.config.Role,
		BufferSize:             s.config.BufferSize,
		IdentificationInterval: s.config.IdentificationInterval,
		Timeout:                s.config.CallTimeout,
		Registry:               s.metrics,
		Clock:                  s.clock,
		Logger:                 facility.Logger("proxy"),
	})

	s.members.AddListener(s.manager)
	s.members.AddListener(s.proxy)

	s.manager.AddListener(&s.observers)
	s.manager.Notifier().AddListener(&s.observers)
	s.proxy.AddListener(&s.observers)

	if _, ok := s.statter.(noopStatsReporter); !ok {
		s.observers.AddListener(stats.NewStatter(s.address, s.statter))
	}
	if s.registerer != nil {
		collector := stats.NewCollector("singleton")
		if err := s.registerer.Register(collector); err != nil {
			return fmt.Errorf("registering metrics: %v", err)
		}
		s.observers.AddListener(collector)
	}
	return nil
}

func (s *Singleton) channelIdentityResolver() (string, error) {
	if s.channel == nil {
		return "", errors.New("Channel is required")
	}
	hostport := s.channel.PeerInfo().HostPort
	if hostport == "" || hostport == "0.0.0.0:0" {
		return "", ErrEphemeralIdentity
	}
	return hostport, nil
}

// Start runs the host manager and the proxy, then joins the membership.
func (s *Singleton) Start() error {
	s.state.Lock()
	defer s.state.Unlock()

	if s.state.stopped {
		return ErrStopped
	}
	if s.state.started {
		return nil
	}

	s.manager.Start()
	s.proxy.Start()
	if err := s.source.Start(&s.members); err != nil {
		s.proxy.Stop()
		s.manager.Close()
		s.state.stopped = true
		return fmt.Errorf("starting membership: %v", err)
	}

	s.state.started = true
	s.log.Info("singleton node started")
	return nil
}

// Stop leaves the cluster, handing the instance over if it runs here. If
// ctx expires before the handover completes the instance is stopped
// regardless and the context error is part of the returned error.
func (s *Singleton) Stop(ctx context.Context) error {
	s.state.Lock()
	defer s.state.Unlock()

	if !s.state.started {
		return ErrNotStarted
	}
	if s.state.stopped {
		return nil
	}
	s.state.stopped = true

	var err error
	if leaveErr := s.source.Leave(s.address); leaveErr != nil {
		err = multierr.Append(err, fmt.Errorf("leaving membership: %v", leaveErr))
	}
	err = multierr.Append(err, s.manager.Stop(ctx))
	s.proxy.Stop()
	s.manager.Close()
	err = multierr.Append(err, s.source.Close())

	s.log.Info("singleton node stopped")
	return err
}

// Send forwards env to the singleton instance without waiting. When the
// proxy buffer overflows the oldest buffered message is dropped and returned
// as a *proxy.DropError.
func (s *Singleton) Send(env protocol.Envelope) error {
	if env.Sender == "" {
		env.Sender = s.address
	}
	return s.proxy.Send(env)
}

// WhoAmI returns the address of the node.
func (s *Singleton) WhoAmI() string {
	return s.address
}

// Hosting reports whether the instance runs on this node.
func (s *Singleton) Hosting() bool {
	return s.manager.Hosting()
}

// State returns the state of the host manager.
func (s *Singleton) State() host.State {
	return s.manager.State()
}

// ProxyStats returns a snapshot of the proxy.
func (s *Singleton) ProxyStats() proxy.Stats {
	return s.proxy.Stats()
}

// Done is closed when the host manager has ended, after Stop or because the
// instance failed to start or stop.
func (s *Singleton) Done() <-chan struct{} {
	return s.manager.Done()
}

// Err returns why the host manager ended.
func (s *Singleton) Err() error {
	return s.manager.Err()
}

// AddListener registers l for the events of the host manager, the oldest
// change notifier and the proxy. Events are delivered asynchronously.
func (s *Singleton) AddListener(l events.EventListener) bool {
	return s.observers.AddListener(l)
}

// RemoveListener deregisters l.
func (s *Singleton) RemoveListener(l events.EventListener) bool {
	return s.observers.RemoveListener(l)
}
