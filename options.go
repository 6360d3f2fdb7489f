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

package singleton

import (
	"errors"
	"io/ioutil"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/uber-common/bark"

	"github.com/uber/singleton-go/discovery"
	"github.com/uber/singleton-go/host"
	"github.com/uber/singleton-go/shared"
)

// "Options" are modifier functions that configure a Singleton node.
//
// There are two kinds: flags, functions that modify the node directly, and
// value options, functions that take an argument and return a function that
// modifies the node.
type Option func(*Singleton) error

// applyOptions applies runtime configuration options to the node.
func applyOptions(s *Singleton, opts []Option) error {
	for _, option := range opts {
		if err := option(s); err != nil {
			return err
		}
	}
	return nil
}

// checkOptions checks that the node has been given everything it needs.
func checkOptions(s *Singleton) []error {
	errs := []error{}
	if s.channel == nil {
		errs = append(errs, errors.New("Channel is required"))
	}
	if s.factory == nil {
		errs = append(errs, errors.New("WorkUnit is required"))
	}
	if s.identityResolver == nil {
		errs = append(errs, errors.New("Identity resolver is nil"))
	}
	if err := s.config.validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// Runtime options

// Channel is the TChannel the node talks to other nodes on. It must be
// listening before New is called unless Identity is given.
func Channel(ch shared.TChannel) Option {
	return func(s *Singleton) error {
		s.channel = ch
		return nil
	}
}

// WorkUnit is the factory of the singleton instance.
func WorkUnit(f host.Factory) Option {
	return func(s *Singleton) error {
		s.factory = f
		return nil
	}
}

// Membership is where the node learns about the other members. It takes
// precedence over the membership section of the configuration.
func Membership(source discovery.Source) Option {
	return func(s *Singleton) error {
		s.source = source
		return nil
	}
}

// Config replaces the whole configuration.
func Config(c *Configuration) Option {
	return func(s *Singleton) error {
		if c == nil {
			return errors.New("configuration is nil")
		}
		copied := *c
		s.config = &copied
		return nil
	}
}

// Role sets the role members need to host the singleton.
func Role(role string) Option {
	return func(s *Singleton) error {
		s.config.Role = role
		return nil
	}
}

// RemovalGracePeriod sets how long a new oldest member waits before taking
// over from a host that vanished without handing over.
func RemovalGracePeriod(d time.Duration) Option {
	return func(s *Singleton) error {
		if d < 0 {
			return errors.New("removal grace period cannot be negative")
		}
		s.config.RemovalGracePeriod = d
		return nil
	}
}

// HandOverRetry sets the resend cadence of handover messages and how many
// resends happen before the handover is reported stuck.
func HandOverRetry(interval time.Duration, max int) Option {
	return func(s *Singleton) error {
		if interval < 0 || max < 0 {
			return errors.New("handover retry cannot be negative")
		}
		s.config.HandOverRetryInterval = interval
		s.config.MaxHandOverRetries = max
		return nil
	}
}

// BufferSize sets how many messages the proxy keeps while the host is
// unknown.
func BufferSize(size int) Option {
	return func(s *Singleton) error {
		if size < 0 {
			return errors.New("buffer size cannot be negative")
		}
		s.config.BufferSize = size
		return nil
	}
}

// StopTimeout sets how long a forced stop waits for the instance to
// terminate.
func StopTimeout(d time.Duration) Option {
	return func(s *Singleton) error {
		if d < 0 {
			return errors.New("stop timeout cannot be negative")
		}
		s.config.StopTimeout = d
		return nil
	}
}

// Logger sets the logger every component logs to.
func Logger(l bark.Logger) Option {
	return func(s *Singleton) error {
		s.logger = l
		return nil
	}
}

// Statter sets where counters, gauges and timers are reported.
func Statter(r bark.StatsReporter) Option {
	return func(s *Singleton) error {
		s.statter = r
		return nil
	}
}

// Prometheus registers the node metrics with r.
func Prometheus(r prometheus.Registerer) Option {
	return func(s *Singleton) error {
		s.registerer = r
		return nil
	}
}

// Metrics registers the proxy meters in r.
func Metrics(r metrics.Registry) Option {
	return func(s *Singleton) error {
		s.metrics = r
		return nil
	}
}

// Clock sets the clock timers are created from.
func Clock(c clock.Clock) Option {
	return func(s *Singleton) error {
		s.clock = c
		return nil
	}
}

// IdentityResolver is a function that returns the host:port the node
// identifies as.
type IdentityResolver func() (string, error)

// IdentityResolverFunc sets how the node finds its identity.
func IdentityResolverFunc(resolver IdentityResolver) Option {
	return func(s *Singleton) error {
		s.identityResolver = resolver
		return nil
	}
}

// Identity specifies a static host:port as the node identity.
func Identity(hostport string) Option {
	return IdentityResolverFunc(func() (string, error) {
		return hostport, nil
	})
}

// Default options

func defaultIdentityResolver(s *Singleton) error {
	s.identityResolver = s.channelIdentityResolver
	return nil
}

// defaultLogger discards everything.
func defaultLogger(s *Singleton) error {
	return Logger(bark.NewLoggerFromLogrus(&logrus.Logger{
		Out: ioutil.Discard,
	}))(s)
}

func defaultStatter(s *Singleton) error {
	return Statter(noopStatsReporter{})(s)
}

func defaultClock(s *Singleton) error {
	return Clock(clock.New())(s)
}

func defaultConfig(s *Singleton) error {
	return Config(&Configuration{})(s)
}

// defaultOptions are applied before the options given to New.
var defaultOptions = []Option{
	defaultIdentityResolver,
	defaultLogger,
	defaultStatter,
	defaultClock,
	defaultConfig,
}

type noopStatsReporter struct{}

func (noopStatsReporter) IncCounter(name string, tags bark.Tags, value int64)      {}
func (noopStatsReporter) UpdateGauge(name string, tags bark.Tags, value int64)     {}
func (noopStatsReporter) RecordTimer(name string, tags bark.Tags, d time.Duration) {}
