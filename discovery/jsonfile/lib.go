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

// Package jsonfile lists members from a file holding a JSON array of
// host:port strings.
package jsonfile

import (
	"encoding/json"
	"io/ioutil"
)

// HostList reads the file on every call so an edited file is picked up.
type HostList struct {
	path string
}

// New returns a provider for the file at path.
func New(path string) *HostList {
	return &HostList{path: path}
}

// Hosts reads the host list.
func (p *HostList) Hosts() ([]string, error) {
	content, err := ioutil.ReadFile(p.path)
	if err != nil {
		return nil, err
	}

	var hosts []string
	if err := json.Unmarshal(content, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}
