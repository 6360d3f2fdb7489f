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

// Package logging provides named loggers on top of bark. Every component of
// the singleton library logs through a logger obtained from a Facility, so
// the verbosity of, for example, the host manager can be raised without
// flooding the output with proxy messages.
package logging

import (
	"fmt"
	"sync"

	"github.com/uber-common/bark"
)

// Facility is a collection of named loggers that share one underlying
// bark.Logger but can each be silenced below their own minimum level.
type Facility struct {
	mu     sync.RWMutex
	logger bark.Logger
	levels map[string]Level
}

// NewFacility creates a facility writing to log. A nil log discards
// everything.
func NewFacility(log bark.Logger) *Facility {
	if log == nil {
		log = NoLogger
	}
	return &Facility{
		logger: log,
		levels: make(map[string]Level),
	}
}

// SetLogger replaces the underlying logger.
func (f *Facility) SetLogger(log bark.Logger) {
	if log == nil {
		log = NoLogger
	}
	f.mu.Lock()
	f.logger = log
	f.mu.Unlock()
}

// SetLevel sets the minimum severity for a named logger. Messages of lower
// severity are dropped. Panic cannot be silenced, so levels above Fatal are
// rejected.
func (f *Facility) SetLevel(name string, level Level) error {
	return f.SetLevels(map[string]Level{name: level})
}

// SetLevels is SetLevel for several named loggers at once. Either all levels
// are applied or none.
func (f *Facility) SetLevels(levels map[string]Level) error {
	for name, level := range levels {
		if level < Fatal {
			return fmt.Errorf("cannot set a level above %s for %s", Fatal, name)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for name, level := range levels {
		f.levels[name] = level
	}
	return nil
}

// Logger returns the named logger.
func (f *Facility) Logger(name string) bark.Logger {
	return &namedLogger{name: name, facility: f}
}

// emit hands the message to the underlying logger unless the named logger is
// configured to drop messages of this level.
func (f *Facility) emit(name string, level Level, fields bark.Fields, write func(bark.Logger)) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if min, ok := f.levels[name]; ok && level > min {
		return
	}

	logger := f.logger
	if len(fields) > 0 {
		logger = logger.WithFields(fields)
	}
	write(logger)
}
