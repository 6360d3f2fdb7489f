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

	"github.com/uber/singleton-go/protocol"
)

// StateChangedEvent is sent when the manager moves to another state.
type StateChangedEvent struct {
	From State
	To   State
}

// InstanceStartedEvent is sent when the instance was started on this node.
type InstanceStartedEvent struct{}

// InstanceStoppedEvent is sent when the instance on this node has stopped.
// Err is set when the work unit failed to confirm its termination.
type InstanceStoppedEvent struct {
	Err error
}

// HandOverCompletedEvent is sent when this node took over the singleton
// from the previous host after it confirmed the handover.
type HandOverCompletedEvent struct {
	From string
}

// TakeOverScheduledEvent is sent when the previous host left the cluster
// without handing over and this node will start the instance after the
// remaining removal grace period.
type TakeOverScheduledEvent struct {
	Previous string
	After    time.Duration
}

// HandOverStuckEvent is sent every time a handover message has been resent
// the maximum number of times without an answer. Retrying continues.
type HandOverStuckEvent struct {
	Correspondent string
	Message       protocol.Type
	Attempts      int
}

// StaleMessageEvent is sent when a handover message did not match the
// current state and was ignored or answered with a no-op reply.
type StaleMessageEvent struct {
	Message protocol.Message
	State   State
}
