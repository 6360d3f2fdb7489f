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

package stats

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/host"
	"github.com/uber/singleton-go/oldest"
	"github.com/uber/singleton-go/proxy"
)

// Collector counts events as Prometheus metrics. Register it with a
// prometheus.Registerer and add it as a listener.
type Collector struct {
	transitions *prometheus.CounterVec
	hosting     prometheus.Gauge
	instances   *prometheus.CounterVec
	handovers   *prometheus.CounterVec
	stale       *prometheus.CounterVec
	oldest      prometheus.Counter
	proxy       *prometheus.CounterVec
}

// NewCollector returns a collector with metrics in namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_transitions_total",
				Help:      "Number of host manager state changes by target state.",
			},
			[]string{"state"},
		),
		hosting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_hosting",
			Help:      "1 while the singleton instance runs on this node.",
		}),
		instances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_instance_events_total",
				Help:      "Singleton instance starts and stops on this node.",
			},
			[]string{"event"},
		),
		handovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_handovers_total",
				Help:      "Handovers and takeovers by outcome.",
			},
			[]string{"outcome"},
		),
		stale: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_stale_messages_total",
				Help:      "Handover messages that did not match the host state.",
			},
			[]string{"message"},
		),
		oldest: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oldest_changes_total",
			Help:      "Oldest member changes delivered.",
		}),
		proxy: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_events_total",
				Help:      "Locator proxy drops and host identifications.",
			},
			[]string{"event"},
		),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.transitions, c.hosting, c.instances, c.handovers, c.stale, c.oldest, c.proxy,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors() {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors() {
		col.Collect(ch)
	}
}

// HandleEvent counts event. Unknown events are ignored.
func (c *Collector) HandleEvent(event events.Event) {
	switch event := event.(type) {
	case host.StateChangedEvent:
		c.transitions.WithLabelValues(event.To.String()).Inc()
		if event.To == host.Leading || event.To == host.Resigning {
			c.hosting.Set(1)
		} else {
			c.hosting.Set(0)
		}

	case host.InstanceStartedEvent:
		c.instances.WithLabelValues("started").Inc()

	case host.InstanceStoppedEvent:
		if event.Err != nil {
			c.instances.WithLabelValues("stop_failed").Inc()
			return
		}
		c.instances.WithLabelValues("stopped").Inc()

	case host.HandOverCompletedEvent:
		c.handovers.WithLabelValues("completed").Inc()

	case host.TakeOverScheduledEvent:
		c.handovers.WithLabelValues("takeover_scheduled").Inc()

	case host.HandOverStuckEvent:
		c.handovers.WithLabelValues("stuck").Inc()

	case host.StaleMessageEvent:
		c.stale.WithLabelValues(strings.ToLower(event.Message.Type.String())).Inc()

	case oldest.OldestChangedEvent:
		c.oldest.Inc()

	case proxy.MessageDroppedEvent:
		c.proxy.WithLabelValues("dropped").Inc()

	case proxy.HostIdentifiedEvent:
		c.proxy.WithLabelValues("identified").Inc()
	}
}
