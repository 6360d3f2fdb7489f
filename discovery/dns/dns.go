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

// Package dns lists members by resolving a hostname.
package dns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"
)

// Provider resolves Hostname and pairs every address with Port.
type Provider struct {
	Hostname string
	Port     int

	// Timeout bounds the lookup. Zero means no timeout.
	Timeout time.Duration

	// Resolver defaults to net.DefaultResolver.
	Resolver *net.Resolver
}

// Hosts returns the resolved host:port list, sorted so that every node
// derives the same join order from it.
func (p *Provider) Hosts() ([]string, error) {
	ctx := context.Background()
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupHost(ctx, p.Hostname)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %v", p.Hostname, err)
	}

	hosts := make([]string, len(addrs))
	for i, addr := range addrs {
		hosts[i] = net.JoinHostPort(addr, strconv.Itoa(p.Port))
	}
	sort.Strings(hosts)
	return hosts, nil
}
