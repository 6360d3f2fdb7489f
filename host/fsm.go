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

package host

import (
	"time"

	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/membership"
	"github.com/uber/singleton-go/protocol"
	"github.com/uber/singleton-go/util"
)

// An input is anything that can make the state machine move.
type input interface {
	isInput()
}

// oldestChanged is an acknowledged-on-completion notification from the
// oldest-change notifier. An empty oldest means nobody is eligible.
type oldestChanged struct {
	id     uint64
	oldest string
	view   membership.View
	at     time.Time
}

// memberRemoved is a confirmed removal of a member from the cluster.
type memberRemoved struct {
	address string
	at      time.Time
}

// selfLeaving is a graceful stop request: the local member is leaving the
// cluster or the manager was asked to stop.
type selfLeaving struct{}

// forceStop stops a running instance without waiting for a handover. A stop
// already in flight when it arrives has missed the deadline and is fatal.
type forceStop struct{}

// stopTimedOut reports that the forced stop of the instance did not complete
// in time.
type stopTimedOut struct{}

type received struct {
	msg protocol.Message
}

type graceElapsed struct {
	member string
}

// retryTick is a resend cadence tick. The generation tells the runtime
// whether the tick belongs to the current retry timer.
type retryTick struct {
	gen uint64
}

type instanceStopped struct {
	err error
}

type instanceStartFailed struct {
	err error
}

func (oldestChanged) isInput()       {}
func (memberRemoved) isInput()       {}
func (selfLeaving) isInput()         {}
func (forceStop) isInput()           {}
func (stopTimedOut) isInput()        {}
func (received) isInput()            {}
func (graceElapsed) isInput()        {}
func (retryTick) isInput()           {}
func (instanceStopped) isInput()     {}
func (instanceStartFailed) isInput() {}

// An effect is what the runtime carries out after a transition, in order.
type effect interface {
	isEffect()
}

type startInstance struct{}

type stopInstance struct{}

type sendMessage struct {
	to  string
	typ protocol.Type
}

type scheduleGrace struct {
	member string
	after  time.Duration
}

type cancelGrace struct{}

type startRetry struct{}

type stopRetry struct{}

type terminate struct {
	err error
}

type emit struct {
	event events.Event
}

func (startInstance) isEffect() {}
func (stopInstance) isEffect()  {}
func (sendMessage) isEffect()   {}
func (scheduleGrace) isEffect() {}
func (cancelGrace) isEffect()   {}
func (startRetry) isEffect()    {}
func (stopRetry) isEffect()     {}
func (terminate) isEffect()     {}
func (emit) isEffect()          {}

// data is everything the state machine knows besides its state. It is passed
// and returned by value; the removed map is copied before it is written.
type data struct {
	// oldest is the believed oldest member. An oldest change to nobody keeps
	// the previous value so a later takeover knows whom to ask.
	oldest string

	// correspondent is the peer pinned for the handover in flight.
	correspondent string

	// replyTo are the members waiting for HandOverDone once the instance
	// has stopped.
	replyTo []string

	// retries counts resends to the correspondent.
	retries int

	// graceFor is the vanished member whose removal grace is running.
	graceFor string

	// removed remembers when members were removed so the grace period is
	// measured from the removal rather than from when this node noticed.
	removed map[string]time.Time

	leaving  bool
	running  bool
	stopping bool
	failed   bool
}

func (d data) withRemoved(address string, at time.Time) data {
	removed := make(map[string]time.Time, len(d.removed)+1)
	for k, v := range d.removed {
		removed[k] = v
	}
	removed[address] = at
	d.removed = removed
	return d
}

func (d data) withReplyTo(address string) data {
	if util.StringInSlice(d.replyTo, address) {
		return d
	}
	replyTo := make([]string, 0, len(d.replyTo)+1)
	replyTo = append(replyTo, d.replyTo...)
	d.replyTo = append(replyTo, address)
	return d
}

// fsm holds the fixed parameters of the state machine.
type fsm struct {
	self       string
	grace      time.Duration
	maxRetries int
}

// transition is the host manager: given the current state, its data and an
// input it returns the next state, the next data and the effects to carry out.
// It has no side effects.
func (f fsm) transition(s State, d data, in input) (State, data, []effect) {
	if s == End {
		return f.inEnd(d, in)
	}

	switch in := in.(type) {
	case oldestChanged:
		return f.onOldestChanged(s, d, in)
	case memberRemoved:
		return f.onMemberRemoved(s, d, in)
	case selfLeaving:
		d.leaving = true
		return f.leave(s, d)
	case forceStop:
		d.leaving = true
		if d.running {
			if d.stopping {
				return f.abandon(d, ErrStopTimedOut)
			}
			return f.stop(d)
		}
		return f.end(d, nil)
	case stopTimedOut:
		if d.stopping {
			return f.abandon(d, ErrStopTimedOut)
		}
	case received:
		return f.onReceived(s, d, in.msg)
	case graceElapsed:
		if s == TakingOver && d.graceFor != "" && d.graceFor == in.member && d.correspondent == in.member {
			return f.start(d)
		}
	case retryTick:
		return f.onRetry(s, d)
	case instanceStopped:
		return f.onInstanceStopped(s, d, in.err)
	case instanceStartFailed:
		d.running = false
		d.failed = true
		next, d, effects := f.end(d, ErrStartFailed)
		return next, d, append([]effect{emit{InstanceStoppedEvent{Err: in.err}}}, effects...)
	}

	return s, d, nil
}

func (f fsm) onOldestChanged(s State, d data, in oldestChanged) (State, data, []effect) {
	previous := d.oldest
	if in.oldest != "" {
		d.oldest = in.oldest
	}
	self := in.oldest == f.self

	switch s {
	case Idle:
		if in.oldest == "" {
			return Idle, d, nil
		}
		if self {
			return f.start(d)
		}
		return Following, d, nil

	case Following:
		if !self {
			return Following, d, nil
		}
		if previous == "" {
			return f.start(d)
		}
		if previous == f.self {
			return Following, d, nil
		}
		if in.view.IsMember(previous) {
			return f.requestHandOver(d, previous)
		}
		return f.scheduleTakeOver(d, previous, in.at)

	case TakingOver:
		if self || in.oldest == "" {
			return TakingOver, d, nil
		}
		d.correspondent = ""
		d.graceFor = ""
		d.retries = 0
		return Following, d, []effect{cancelGrace{}, stopRetry{}}

	case Leading:
		if self {
			return Leading, d, nil
		}
		if in.oldest == "" {
			if d.leaving {
				return f.stop(d)
			}
			return Leading, d, nil
		}
		return f.resign(d, in.oldest)

	case Resigning:
		if d.stopping {
			return Resigning, d, nil
		}
		if in.oldest == "" {
			if d.leaving {
				return f.stop(d)
			}
			return Resigning, d, nil
		}
		if self {
			if d.leaving {
				return Resigning, d, nil
			}
			d.correspondent = ""
			d.retries = 0
			return Leading, d, []effect{stopRetry{}}
		}
		return f.resign(d, in.oldest)
	}

	return s, d, nil
}

func (f fsm) onMemberRemoved(s State, d data, in memberRemoved) (State, data, []effect) {
	d = d.withRemoved(in.address, in.at)

	if in.address == f.self {
		d.leaving = true
		if d.running {
			if d.stopping {
				return s, d, nil
			}
			return f.stop(d)
		}
		return f.end(d, nil)
	}

	switch s {
	case TakingOver:
		if in.address == d.correspondent && d.graceFor == "" {
			return f.scheduleTakeOver(d, in.address, in.at)
		}
	case Resigning:
		if in.address == d.correspondent && !d.stopping {
			d.correspondent = ""
			d.retries = 0
			return Resigning, d, []effect{stopRetry{}}
		}
	}
	return s, d, nil
}

func (f fsm) leave(s State, d data) (State, data, []effect) {
	switch s {
	case Idle, Following, TakingOver:
		return f.end(d, nil)
	case Leading:
		// wait for the next oldest to ask for the handover
		d.correspondent = ""
		return Resigning, d, nil
	}
	return s, d, nil
}

func (f fsm) onReceived(s State, d data, msg protocol.Message) (State, data, []effect) {
	stale := emit{StaleMessageEvent{Message: msg, State: s}}

	switch msg.Type {
	case protocol.HandOverToMe:
		switch s {
		case Leading, Resigning:
			// only the member believed to be the oldest may take over, unless
			// this node is leaving anyway
			if msg.From != d.oldest && !d.leaving {
				return s, d, []effect{stale}
			}
			d = d.withReplyTo(msg.From)
			if d.stopping {
				return s, d, []effect{sendMessage{to: msg.From, typ: protocol.HandOverInProgress}}
			}
			d.correspondent = msg.From
			return f.stop(d)
		}
		// nothing runs here, nothing to hand over
		return s, d, []effect{sendMessage{to: msg.From, typ: protocol.HandOverDone}, stale}

	case protocol.HandOverDone:
		if s == TakingOver && msg.From == d.correspondent {
			next, d, effects := f.start(d)
			return next, d, append(effects, emit{HandOverCompletedEvent{From: msg.From}})
		}

	case protocol.HandOverInProgress:
		if s == TakingOver && msg.From == d.correspondent {
			d.retries = 0
			return s, d, nil
		}

	case protocol.TakeOverFromMe:
		switch s {
		case TakingOver:
			if msg.From == d.correspondent && d.graceFor == "" {
				return s, d, []effect{sendMessage{to: msg.From, typ: protocol.HandOverToMe}}
			}
		case Following:
			if d.oldest == f.self && !d.leaving {
				return f.requestHandOver(d, msg.From)
			}
		case Leading:
			// the sender believes it still runs an instance
			return s, d, []effect{sendMessage{to: msg.From, typ: protocol.HandOverToMe}}
		}
	}

	return s, d, []effect{stale}
}

func (f fsm) onRetry(s State, d data) (State, data, []effect) {
	var typ protocol.Type
	switch {
	case s == TakingOver && d.correspondent != "" && d.graceFor == "":
		typ = protocol.HandOverToMe
	case s == Resigning && d.correspondent != "" && !d.stopping:
		typ = protocol.TakeOverFromMe
	default:
		return s, d, []effect{stopRetry{}}
	}

	effects := []effect{sendMessage{to: d.correspondent, typ: typ}}
	d.retries++
	if d.retries >= f.maxRetries {
		effects = append(effects, emit{HandOverStuckEvent{
			Correspondent: d.correspondent,
			Message:       typ,
			Attempts:      d.retries,
		}})
		d.retries = 0
	}
	return s, d, effects
}

func (f fsm) onInstanceStopped(s State, d data, err error) (State, data, []effect) {
	if s != Resigning || !d.stopping {
		return s, d, nil
	}
	if err != nil {
		return f.abandon(d, err)
	}
	d.stopping = false
	d.running = false

	if d.oldest == f.self && !d.leaving {
		// the oldest moved back to this node while the instance was stopping
		d.replyTo = nil
		next, d, rest := f.start(d)
		return next, d, append([]effect{emit{InstanceStoppedEvent{}}}, rest...)
	}

	effects := make([]effect, 0, len(d.replyTo)+1)
	for _, to := range d.replyTo {
		effects = append(effects, sendMessage{to: to, typ: protocol.HandOverDone})
	}
	effects = append(effects, emit{InstanceStoppedEvent{}})
	d.replyTo = nil
	d.correspondent = ""
	d.retries = 0

	if d.leaving {
		next, d, rest := f.end(d, nil)
		return next, d, append(effects, rest...)
	}
	return Following, d, effects
}

// inEnd keeps answering handover requests so a late or duplicated request
// does not leave the requester waiting, unless the instance could not be
// stopped.
func (f fsm) inEnd(d data, in input) (State, data, []effect) {
	r, ok := in.(received)
	if !ok || r.msg.Type != protocol.HandOverToMe || d.failed {
		return End, d, nil
	}
	return End, d, []effect{
		sendMessage{to: r.msg.From, typ: protocol.HandOverDone},
		emit{StaleMessageEvent{Message: r.msg, State: End}},
	}
}

func (f fsm) start(d data) (State, data, []effect) {
	d.running = true
	d.correspondent = ""
	d.graceFor = ""
	d.retries = 0
	return Leading, d, []effect{cancelGrace{}, stopRetry{}, startInstance{}}
}

func (f fsm) stop(d data) (State, data, []effect) {
	d.stopping = true
	return Resigning, d, []effect{stopRetry{}, stopInstance{}}
}

func (f fsm) resign(d data, to string) (State, data, []effect) {
	d.correspondent = to
	d.retries = 0
	return Resigning, d, []effect{sendMessage{to: to, typ: protocol.TakeOverFromMe}, startRetry{}}
}

func (f fsm) requestHandOver(d data, from string) (State, data, []effect) {
	d.correspondent = from
	d.graceFor = ""
	d.retries = 0
	return TakingOver, d, []effect{sendMessage{to: from, typ: protocol.HandOverToMe}, startRetry{}}
}

func (f fsm) scheduleTakeOver(d data, previous string, now time.Time) (State, data, []effect) {
	after := f.grace
	if at, ok := d.removed[previous]; ok {
		after = util.Remaining(f.grace, now.Sub(at))
	}

	if after <= 0 {
		return f.start(d)
	}

	d.correspondent = previous
	d.graceFor = previous
	d.retries = 0
	return TakingOver, d, []effect{
		stopRetry{},
		scheduleGrace{member: previous, after: after},
		emit{TakeOverScheduledEvent{Previous: previous, After: after}},
	}
}

// abandon gives up on an instance that did not stop. HandOverDone is never
// sent for it.
func (f fsm) abandon(d data, cause error) (State, data, []effect) {
	d.stopping = false
	d.running = false
	d.failed = true
	d.replyTo = nil
	next, d, effects := f.end(d, ErrStopFailed)
	return next, d, append([]effect{emit{InstanceStoppedEvent{Err: cause}}}, effects...)
}

func (f fsm) end(d data, err error) (State, data, []effect) {
	d.correspondent = ""
	d.graceFor = ""
	return End, d, []effect{cancelGrace{}, stopRetry{}, terminate{err: err}}
}
