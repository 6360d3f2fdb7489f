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

// Package oldest turns the age-ordered membership view into a serialized
// stream of "the oldest eligible member changed" notifications. The consumer
// acknowledges every notification it receives and is never handed a newer one
// before that; notifications produced in the meantime collapse into a single
// pending one carrying the latest value.
package oldest

import (
	"sync"

	"github.com/uber-common/bark"
	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/logging"
	"github.com/uber/singleton-go/membership"
)

// A Change tells the consumer who the oldest eligible member is now.
type Change struct {
	// ID is strictly increasing per notifier and identifies the change in the
	// acknowledgement.
	ID uint64

	// Oldest is nil when no member is eligible.
	Oldest *membership.Member

	// View is the view the change was computed from.
	View membership.View
}

// OldestAddress returns the address of the oldest member, or the empty string
// when there is none.
func (c Change) OldestAddress() string {
	if c.Oldest == nil {
		return ""
	}
	return c.Oldest.Address
}

// A Consumer receives changes. HandleOldestChanged must not block; the
// consumer calls Notifier.Acknowledge with the change ID once it has acted on
// it.
type Consumer interface {
	HandleOldestChanged(change Change)
}

// OldestChangedEvent is emitted whenever a change is handed to the consumer.
type OldestChangedEvent struct {
	ID       uint64
	Previous string
	Oldest   string
}

// Options to create a Notifier with.
type Options struct {
	Logger bark.Logger
}

func defaultOptions() *Options {
	return &Options{
		Logger: logging.Logger("oldest"),
	}
}

func mergeDefaultOptions(opts *Options) *Options {
	def := defaultOptions()
	if opts == nil {
		return def
	}

	merged := *opts
	if merged.Logger == nil {
		merged.Logger = def.Logger
	}
	return &merged
}

// A Notifier feeds membership events to an AgeTracker and publishes changes of
// the oldest eligible member to a single consumer.
type Notifier struct {
	events.SyncEventEmitter

	mu      sync.Mutex
	tracker *membership.AgeTracker
	logger  bark.Logger

	consumer Consumer
	nextID   uint64

	// delivered is the oldest member last handed to the consumer.
	delivered *membership.Member

	// outstanding is the change handed to the consumer and not acknowledged.
	outstanding *Change

	// pending is the next change to deliver.
	pending *Change
}

// NewNotifier returns a notifier driving tracker.
func NewNotifier(tracker *membership.AgeTracker, opts *Options) *Notifier {
	opts = mergeDefaultOptions(opts)
	return &Notifier{
		tracker: tracker,
		logger:  opts.Logger.WithField("role", tracker.Role()),
		nextID:  1,
	}
}

// Subscribe sets the consumer. A change that was computed before there was a
// consumer is delivered right away.
func (n *Notifier) Subscribe(consumer Consumer) {
	n.mu.Lock()
	n.consumer = consumer
	next := n.next()
	n.mu.Unlock()

	n.deliver(next)
}

// View returns the most recent view.
func (n *Notifier) View() membership.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tracker.View()
}

// HandleEvent feeds membership events to the tracker. Other events are
// ignored.
func (n *Notifier) HandleEvent(event events.Event) {
	e, ok := event.(membership.Event)
	if !ok {
		return
	}

	n.mu.Lock()
	view := n.tracker.OnMembershipEvent(e)
	n.publishIfChanged(view)
	next := n.next()
	n.mu.Unlock()

	n.deliver(next)
}

// Acknowledge tells the notifier the consumer has acted on the change with
// id. It returns false when id is not the outstanding change.
func (n *Notifier) Acknowledge(id uint64) bool {
	n.mu.Lock()
	if n.outstanding == nil || n.outstanding.ID != id {
		n.mu.Unlock()
		n.logger.WithField("id", id).Debug("ignoring stale acknowledgement")
		return false
	}
	n.outstanding = nil
	next := n.next()
	n.mu.Unlock()

	n.deliver(next)
	return true
}

// publishIfChanged must be called with the lock held.
func (n *Notifier) publishIfChanged(view membership.View) {
	var current *membership.Member
	if m, ok := view.Oldest(); ok {
		current = &m
	}

	if sameMember(current, n.delivered) {
		if n.pending != nil {
			n.logger.WithField("id", n.pending.ID).Debug("oldest reverted, dropping pending change")
			n.pending = nil
		}
		return
	}

	if n.pending != nil {
		n.pending.Oldest = current
		n.pending.View = view
		return
	}

	n.pending = &Change{
		ID:     n.nextID,
		Oldest: current,
		View:   view,
	}
	n.nextID++
}

// next takes the pending change when it can be delivered. It must be called
// with the lock held.
func (n *Notifier) next() *delivery {
	if n.consumer == nil || n.outstanding != nil || n.pending == nil {
		return nil
	}

	change := n.pending
	n.pending = nil
	n.outstanding = change

	d := &delivery{
		consumer: n.consumer,
		change:   *change,
		previous: addressOf(n.delivered),
	}
	n.delivered = change.Oldest
	return d
}

type delivery struct {
	consumer Consumer
	change   Change
	previous string
}

func (n *Notifier) deliver(d *delivery) {
	if d == nil {
		return
	}

	n.logger.WithFields(bark.Fields{
		"id":       d.change.ID,
		"previous": d.previous,
		"oldest":   d.change.OldestAddress(),
	}).Debug("oldest member changed")

	n.EmitEvent(OldestChangedEvent{
		ID:       d.change.ID,
		Previous: d.previous,
		Oldest:   d.change.OldestAddress(),
	})
	d.consumer.HandleOldestChanged(d.change)
}

func sameMember(a, b *membership.Member) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Address == b.Address && a.UpNumber == b.UpNumber
}

func addressOf(m *membership.Member) string {
	if m == nil {
		return ""
	}
	return m.Address
}
