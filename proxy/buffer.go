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

package proxy

import "github.com/uber/singleton-go/protocol"

// buffer is a bounded FIFO ring of envelopes that drops the oldest envelope
// when it overflows. It is not safe for concurrent use.
type buffer struct {
	items []protocol.Envelope
	head  int
	size  int
}

func newBuffer(capacity int) *buffer {
	return &buffer{items: make([]protocol.Envelope, capacity)}
}

func (b *buffer) Len() int {
	return b.size
}

func (b *buffer) Cap() int {
	return len(b.items)
}

func (b *buffer) full() bool {
	return b.size == len(b.items)
}

// push appends env. When the buffer is full the oldest envelope makes room
// and is returned.
func (b *buffer) push(env protocol.Envelope) (dropped protocol.Envelope, ok bool) {
	if len(b.items) == 0 {
		return env, true
	}
	if b.full() {
		dropped, _ = b.pop()
		ok = true
	}
	b.items[(b.head+b.size)%len(b.items)] = env
	b.size++
	return dropped, ok
}

// pushFront puts back an envelope taken with pop. Being older than everything
// buffered, it is the one dropped when the buffer filled up in the meantime.
func (b *buffer) pushFront(env protocol.Envelope) (dropped protocol.Envelope, ok bool) {
	if b.full() {
		return env, true
	}
	b.head = (b.head - 1 + len(b.items)) % len(b.items)
	b.items[b.head] = env
	b.size++
	return protocol.Envelope{}, false
}

func (b *buffer) pop() (protocol.Envelope, bool) {
	if b.size == 0 {
		return protocol.Envelope{}, false
	}
	env := b.items[b.head]
	b.items[b.head] = protocol.Envelope{}
	b.head = (b.head + 1) % len(b.items)
	b.size--
	return env, true
}
