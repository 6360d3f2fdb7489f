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
	"fmt"
	"strings"
)

// Level is the severity of a log message. Lower values are more severe.
type Level uint8

const (
	// Panic log level
	Panic Level = iota
	// Fatal log level
	Fatal
	// Error log level
	Error
	// Warn log level
	Warn
	// Info log level
	Info
	// Debug log level
	Debug
)

var levelNames = [...]string{
	Panic: "panic",
	Fatal: "fatal",
	Error: "error",
	Warn:  "warn",
	Info:  "info",
	Debug: "debug",
}

func (lvl Level) String() string {
	if int(lvl) < len(levelNames) {
		return levelNames[lvl]
	}
	return fmt.Sprintf("level(%d)", uint8(lvl))
}

// Parse converts a level name such as "warn" into a Level. Names are matched
// case-insensitively and "warning" is accepted as an alias of "warn".
func Parse(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return Warn, nil
	}
	for lvl, n := range levelNames {
		if n == name {
			return Level(lvl), nil
		}
	}
	return Debug, fmt.Errorf("unknown log level %q", name)
}

// UnmarshalText lets levels be read straight out of configuration files.
func (lvl *Level) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*lvl = parsed
	return nil
}
