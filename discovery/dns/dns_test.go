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

package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiteralAddress(t *testing.T) {
	p := &Provider{Hostname: "127.0.0.1", Port: 3000}
	hosts, err := p.Hosts()
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:3000"}, hosts)
}

func TestIPv6Literal(t *testing.T) {
	p := &Provider{Hostname: "::1", Port: 3000}
	hosts, err := p.Hosts()
	require.NoError(t, err)
	assert.Equal(t, []string{"[::1]:3000"}, hosts)
}

func TestUnresolvable(t *testing.T) {
	p := &Provider{Hostname: "does-not-exist.invalid", Port: 3000}
	_, err := p.Hosts()
	assert.Error(t, err)
}
