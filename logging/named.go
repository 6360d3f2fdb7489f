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

package logging

import (
	"github.com/uber-common/bark"
)

// namedLogger implements bark.Logger and forwards every message to its
// facility together with the fields accumulated through WithField(s).
type namedLogger struct {
	name     string
	facility *Facility
	fields   bark.Fields
}

func (l *namedLogger) log(level Level, write func(bark.Logger)) {
	l.facility.emit(l.name, level, l.fields, write)
}

func (l *namedLogger) Debug(args ...interface{}) {
	l.log(Debug, func(b bark.Logger) { b.Debug(args...) })
}

func (l *namedLogger) Debugf(format string, args ...interface{}) {
	l.log(Debug, func(b bark.Logger) { b.Debugf(format, args...) })
}

func (l *namedLogger) Info(args ...interface{}) {
	l.log(Info, func(b bark.Logger) { b.Info(args...) })
}

func (l *namedLogger) Infof(format string, args ...interface{}) {
	l.log(Info, func(b bark.Logger) { b.Infof(format, args...) })
}

func (l *namedLogger) Warn(args ...interface{}) {
	l.log(Warn, func(b bark.Logger) { b.Warn(args...) })
}

func (l *namedLogger) Warnf(format string, args ...interface{}) {
	l.log(Warn, func(b bark.Logger) { b.Warnf(format, args...) })
}

func (l *namedLogger) Error(args ...interface{}) {
	l.log(Error, func(b bark.Logger) { b.Error(args...) })
}

func (l *namedLogger) Errorf(format string, args ...interface{}) {
	l.log(Error, func(b bark.Logger) { b.Errorf(format, args...) })
}

func (l *namedLogger) Fatal(args ...interface{}) {
	l.log(Fatal, func(b bark.Logger) { b.Fatal(args...) })
}

func (l *namedLogger) Fatalf(format string, args ...interface{}) {
	l.log(Fatal, func(b bark.Logger) { b.Fatalf(format, args...) })
}

func (l *namedLogger) Panic(args ...interface{}) {
	l.log(Panic, func(b bark.Logger) { b.Panic(args...) })
}

func (l *namedLogger) Panicf(format string, args ...interface{}) {
	l.log(Panic, func(b bark.Logger) { b.Panicf(format, args...) })
}

func (l *namedLogger) WithField(key string, value interface{}) bark.Logger {
	return l.with(bark.Fields{key: value})
}

func (l *namedLogger) WithFields(fields bark.LogFields) bark.Logger {
	return l.with(fields.Fields())
}

func (l *namedLogger) WithError(err error) bark.Logger {
	return l.with(bark.Fields{"error": err})
}

// with returns a copy of the logger carrying the union of the current and the
// given fields. Given fields win on conflicts.
func (l *namedLogger) with(fields map[string]interface{}) bark.Logger {
	merged := make(bark.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &namedLogger{
		name:     l.name,
		facility: l.facility,
		fields:   merged,
	}
}

func (l *namedLogger) Fields() bark.Fields {
	return l.fields
}
