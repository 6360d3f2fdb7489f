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

	"github.com/benbjohnson/clock"
	"github.com/uber-common/bark"
	"github.com/uber/singleton-go/logging"
	"github.com/uber/singleton-go/util"
)

// Options to create a Manager with.
type Options struct {
	// Role members need to be eligible to host the singleton. Empty means
	// every member is eligible.
	Role string

	// RemovalGracePeriod is how long a new oldest member waits after the
	// previous host was removed without handing over before it starts the
	// instance. It must exceed the worst-case propagation delay of the
	// membership service.
	RemovalGracePeriod time.Duration

	// HandOverRetryInterval is the resend cadence of HandOverToMe and
	// TakeOverFromMe.
	HandOverRetryInterval time.Duration

	// MaxHandOverRetries is how many resends happen before the handover is
	// reported stuck.
	MaxHandOverRetries int

	// StopTimeout bounds how long a forced stop waits for the instance to
	// terminate before it is abandoned.
	StopTimeout time.Duration

	Clock  clock.Clock
	Logger bark.Logger
}

func defaultOptions() *Options {
	return &Options{
		RemovalGracePeriod:    20 * time.Second,
		HandOverRetryInterval: time.Second,
		MaxHandOverRetries:    15,
		StopTimeout:           5 * time.Second,
		Clock:                 clock.New(),
		Logger:                logging.Logger("host"),
	}
}

func mergeDefaultOptions(opts *Options) *Options {
	def := defaultOptions()
	if opts == nil {
		return def
	}

	merged := *opts
	merged.RemovalGracePeriod = util.SelectDuration(opts.RemovalGracePeriod, def.RemovalGracePeriod)
	merged.HandOverRetryInterval = util.SelectDuration(opts.HandOverRetryInterval, def.HandOverRetryInterval)
	merged.MaxHandOverRetries = util.SelectInt(opts.MaxHandOverRetries, def.MaxHandOverRetries)
	merged.StopTimeout = util.SelectDuration(opts.StopTimeout, def.StopTimeout)

	if merged.Clock == nil {
		merged.Clock = def.Clock
	}
	if merged.Logger == nil {
		merged.Logger = def.Logger
	}
	return &merged
}
