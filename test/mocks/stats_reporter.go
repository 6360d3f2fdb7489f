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
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/uber-common/bark"
)

// StatsReporter is a mock of bark.StatsReporter.
type StatsReporter struct {
	mock.Mock
}

// IncCounter provides a mock function with given fields: name, tags, value
func (_m *StatsReporter) IncCounter(name string, tags bark.Tags, value int64) {
	_m.Called(name, tags, value)
}

// UpdateGauge provides a mock function with given fields: name, tags, value
func (_m *StatsReporter) UpdateGauge(name string, tags bark.Tags, value int64) {
	_m.Called(name, tags, value)
}

// RecordTimer provides a mock function with given fields: name, tags, d
func (_m *StatsReporter) RecordTimer(name string, tags bark.Tags, d time.Duration) {
	_m.Called(name, tags, d)
}
