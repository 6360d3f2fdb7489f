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

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rcrowley/go-metrics"
	"github.com/uber-common/bark"
	"github.com/uber/singleton-go/logging"
	"github.com/uber/singleton-go/protocol"
	"github.com/uber/singleton-go/util"
)

// Options to create a Proxy with.
type Options struct {
	// Role members need to be eligible to host the singleton.
	Role string

	// BufferSize is the number of messages kept while the host is unknown
	// or changing.
	BufferSize int

	// IdentificationInterval is how often an unconfirmed host is asked
	// whether it runs the singleton.
	IdentificationInterval time.Duration

	// Timeout bounds every identify and deliver call.
	Timeout time.Duration

	// OnDrop is called with every message dropped from the buffer.
	OnDrop func(protocol.Envelope)

	// Registry, when set, receives the proxy metrics.
	Registry metrics.Registry

	Clock  clock.Clock
	Logger bark.Logger
}

func defaultOptions() *Options {
	return &Options{
		BufferSize:             1000,
		IdentificationInterval: time.Second,
		Timeout:                3 * time.Second,
		Clock:                  clock.New(),
		Logger:                 logging.Logger("proxy"),
	}
}

func mergeDefaultOptions(opts *Options) *Options {
	def := defaultOptions()
	if opts == nil {
		return def
	}

	merged := *opts
	merged.BufferSize = util.SelectInt(opts.BufferSize, def.BufferSize)
	merged.IdentificationInterval = util.SelectDuration(opts.IdentificationInterval, def.IdentificationInterval)
	merged.Timeout = util.SelectDuration(opts.Timeout, def.Timeout)

	if merged.Clock == nil {
		merged.Clock = def.Clock
	}
	if merged.Logger == nil {
		merged.Logger = def.Logger
	}
	return &merged
}
