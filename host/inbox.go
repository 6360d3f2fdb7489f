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

import "sync"

// inbox is an unbounded FIFO of inputs for the manager goroutine. Pushing
// never blocks, so timers, the transport and the notifier can hand inputs
// over from any goroutine.
type inbox struct {
	mu     sync.Mutex
	items  []input
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (b *inbox) push(in input) {
	b.mu.Lock()
	b.items = append(b.items, in)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// drain takes every queued input.
func (b *inbox) drain() []input {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.items
	b.items = nil
	return items
}

// ready is signalled after a push.
func (b *inbox) ready() <-chan struct{} {
	return b.signal
}
