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

// Package stats turns the events of the singleton components into metrics.
// Statter reports to a bark.StatsReporter (statsd in production) and
// Collector exposes the same events as Prometheus metrics. Both are
// events.EventListener and are attached to the emitters of a node.
package stats

import (
	"strings"
	"sync"

	"github.com/uber-common/bark"

	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/host"
	"github.com/uber/singleton-go/oldest"
	"github.com/uber/singleton-go/proxy"
	"github.com/uber/singleton-go/util"
)

// Statter reports events under the prefix singleton.<host_port>.
type Statter struct {
	reporter bark.StatsReporter
	prefix   string

	mu   sync.RWMutex
	keys map[string]string
}

// NewStatter returns a statter for the member at address.
func NewStatter(address string, reporter bark.StatsReporter) *Statter {
	return &Statter{
		reporter: reporter,
		prefix:   "singleton." + util.StatsKey(address) + ".",
		keys:     make(map[string]string),
	}
}

// HandleEvent reports event. Unknown events are ignored.
func (s *Statter) HandleEvent(event events.Event) {
	switch event := event.(type) {
	case host.StateChangedEvent:
		s.reporter.IncCounter(s.key("host.state."+event.To.String()), nil, 1)
		leading := int64(0)
		if event.To == host.Leading || event.To == host.Resigning {
			leading = 1
		}
		s.reporter.UpdateGauge(s.key("host.hosting"), nil, leading)

	case host.InstanceStartedEvent:
		s.reporter.IncCounter(s.key("host.instance.started"), nil, 1)

	case host.InstanceStoppedEvent:
		if event.Err != nil {
			s.reporter.IncCounter(s.key("host.instance.stop-failed"), nil, 1)
			return
		}
		s.reporter.IncCounter(s.key("host.instance.stopped"), nil, 1)

	case host.HandOverCompletedEvent:
		s.reporter.IncCounter(s.key("host.handover.completed"), nil, 1)

	case host.TakeOverScheduledEvent:
		s.reporter.IncCounter(s.key("host.takeover.scheduled"), nil, 1)
		s.reporter.RecordTimer(s.key("host.takeover.delay"), nil, event.After)

	case host.HandOverStuckEvent:
		s.reporter.IncCounter(s.key("host.handover.stuck"), nil, 1)

	case host.StaleMessageEvent:
		s.reporter.IncCounter(s.key("host.stale."+strings.ToLower(event.Message.Type.String())), nil, 1)

	case oldest.OldestChangedEvent:
		s.reporter.IncCounter(s.key("oldest.changed"), nil, 1)

	case proxy.MessageDroppedEvent:
		s.reporter.IncCounter(s.key("proxy.dropped"), nil, 1)

	case proxy.HostIdentifiedEvent:
		s.reporter.IncCounter(s.key("proxy.identified"), nil, 1)
	}
}

func (s *Statter) key(suffix string) string {
	s.mu.RLock()
	key, ok := s.keys[suffix]
	s.mu.RUnlock()
	if ok {
		return key
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok = s.keys[suffix]
	if !ok {
		key = s.prefix + suffix
		s.keys[suffix] = key
	}
	return key
}
