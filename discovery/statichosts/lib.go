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

// Package statichosts provides a fixed list of members. The position of a
// host in the list is its join order, so the first host is the oldest.
package statichosts

import (
	"errors"
	"fmt"
	"sync"

	"github.com/uber/singleton-go/discovery"
	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/membership"
)

// HostList is a DiscoverProvider returning the hosts it was created with.
type HostList struct {
	hosts []string
}

// Hosts returns the list.
func (p *HostList) Hosts() ([]string, error) {
	return p.hosts, nil
}

// New returns a HostList with hosts.
func New(hosts ...string) *HostList {
	return &HostList{hosts}
}

var (
	// ErrNotStarted is returned when the source is used before Start.
	ErrNotStarted = errors.New("static membership source is not started")

	// ErrUnknownMember is returned for an address that is not a member.
	ErrUnknownMember = errors.New("unknown member")
)

// Source turns the hosts of a DiscoverProvider into members that are all Up
// from the start. Changes are made locally with Add, Leave and Remove; the
// source does not talk to other nodes, so every node must see the same list
// and the same changes.
type Source struct {
	provider discovery.DiscoverProvider
	roles    []string

	mu       sync.Mutex
	listener events.EventListener
	members  map[string]membership.Member
	nextUp   int64
}

// NewSource returns a source for the hosts of provider. Every member carries
// roles.
func NewSource(provider discovery.DiscoverProvider, roles ...string) *Source {
	return &Source{
		provider: provider,
		roles:    roles,
		members:  make(map[string]membership.Member),
		nextUp:   1,
	}
}

// Start sends the initial snapshot to listener.
func (s *Source) Start(listener events.EventListener) error {
	hosts, err := s.provider.Hosts()
	if err != nil {
		return fmt.Errorf("listing static hosts: %v", err)
	}

	s.mu.Lock()
	s.listener = listener
	snapshot := make([]membership.Member, 0, len(hosts))
	for _, host := range hosts {
		if _, ok := s.members[host]; ok {
			continue
		}
		m := s.admit(host)
		snapshot = append(snapshot, m)
	}
	s.mu.Unlock()

	listener.HandleEvent(membership.StateEvent{Members: snapshot})
	return nil
}

// Members returns the current members.
func (s *Source) Members() []membership.Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]membership.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	return out
}

// Add admits address as the youngest member.
func (s *Source) Add(address string) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if _, ok := s.members[address]; ok {
		s.mu.Unlock()
		return nil
	}
	m := s.admit(address)
	listener := s.listener
	s.mu.Unlock()

	listener.HandleEvent(membership.ChangeEvent{Changes: []membership.MemberChange{{After: &m}}})
	return nil
}

// Leave moves address through Leaving to Exiting.
func (s *Source) Leave(address string) error {
	if err := s.transition(address, membership.Leaving); err != nil {
		return err
	}
	return s.transition(address, membership.Exiting)
}

// Remove removes address from the cluster, whether or not it left.
func (s *Source) Remove(address string) error {
	return s.transition(address, membership.Removed)
}

// Close is a no-op; a static source holds no resources.
func (s *Source) Close() error {
	return nil
}

// admit must be called with the lock held.
func (s *Source) admit(address string) membership.Member {
	m := membership.Member{
		Address:  address,
		UpNumber: s.nextUp,
		Status:   membership.Up,
		Roles:    s.roles,
	}
	s.nextUp++
	s.members[address] = m
	return m
}

func (s *Source) transition(address string, status membership.Status) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	before, ok := s.members[address]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownMember
	}
	if before.Status >= status {
		s.mu.Unlock()
		return nil
	}

	after := before.WithStatus(status)
	if status == membership.Removed {
		delete(s.members, address)
	} else {
		s.members[address] = after
	}
	listener := s.listener
	s.mu.Unlock()

	listener.HandleEvent(membership.ChangeEvent{Changes: []membership.MemberChange{{Before: &before, After: &after}}})
	return nil
}
