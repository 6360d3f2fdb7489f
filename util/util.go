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

// Package util contains small helpers shared by the singleton packages.
package util

import (
	"strings"
	"time"
)

// SelectInt takes an option and a default value and returns the default value if
// the option is equal to zero, and the option otherwise.
func SelectInt(opt, def int) int {
	if opt == 0 {
		return def
	}
	return opt
}

// SelectDuration takes an option and a default value and returns the default value if
// the option is equal to zero, and the option otherwise.
func SelectDuration(opt, def time.Duration) time.Duration {
	if opt == time.Duration(0) {
		return def
	}
	return opt
}

// SelectString returns def when opt is empty.
func SelectString(opt, def string) string {
	if opt == "" {
		return def
	}
	return opt
}

// StringInSlice returns whether the string is contained within the slice.
func StringInSlice(slice []string, str string) bool {
	for _, b := range slice {
		if str == b {
			return true
		}
	}
	return false
}

// StatsKey transforms a host:port into a stats-compatible key segment, for
// example 192.168.0.12:3000 becomes 192_168_0_12_3000.
func StatsKey(hostport string) string {
	return strings.NewReplacer(".", "_", ":", "_").Replace(hostport)
}

// Remaining returns how much of d is left once elapsed has passed. It never
// returns a negative duration.
func Remaining(d, elapsed time.Duration) time.Duration {
	if elapsed >= d {
		return 0
	}
	return d - elapsed
}
