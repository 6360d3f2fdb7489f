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

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/uber/singleton-go/protocol"
)

// Forwarder is a mock of proxy.Forwarder.
type Forwarder struct {
	mock.Mock
}

// Identify provides a mock function with given fields: ctx, host
func (_m *Forwarder) Identify(ctx context.Context, host string) (bool, error) {
	ret := _m.Called(ctx, host)

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context, string) bool); ok {
		r0 = rf(ctx, host)
	} else {
		r0 = ret.Bool(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, host)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Deliver provides a mock function with given fields: ctx, host, env
func (_m *Forwarder) Deliver(ctx context.Context, host string, env protocol.Envelope) error {
	ret := _m.Called(ctx, host, env)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, protocol.Envelope) error); ok {
		r0 = rf(ctx, host, env)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
