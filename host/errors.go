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

import "errors"

var (
	// ErrNotHosting is returned by Deliver when no instance is running on
	// this node, or the running instance is being stopped.
	ErrNotHosting = errors.New("singleton is not hosted on this node")

	// ErrStartFailed ends a manager whose work unit failed to start.
	ErrStartFailed = errors.New("singleton instance failed to start")

	// ErrStopFailed ends a manager whose work unit did not confirm its
	// termination. The handover is never reported done in that case.
	ErrStopFailed = errors.New("singleton instance failed to stop")

	// ErrStopTimedOut is the cause reported when the instance was still
	// stopping after the stop deadline.
	ErrStopTimedOut = errors.New("singleton instance did not stop in time")

	// ErrNotStarted is returned when a manager that was never started is
	// asked to stop.
	ErrNotStarted = errors.New("host manager is not started")
)
