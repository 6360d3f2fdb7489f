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

package membership

// An Event is anything the membership service tells the library.
type Event interface {
	membershipEvent()
}

// MemberChange shows the state before and after the change of a member.
type MemberChange struct {
	// Before is the state of the member before the change, nil if the member
	// is new.
	Before *Member
	// After is the state of the member after the change, nil or Removed if
	// the member is gone.
	After *Member
}

// Address returns the address of the member the change is about.
func (c MemberChange) Address() string {
	if c.After != nil {
		return c.After.Address
	}
	if c.Before != nil {
		return c.Before.Address
	}
	return ""
}

// Removed reports whether the change removes the member from the cluster.
func (c MemberChange) Removed() bool {
	return c.After == nil || c.After.Status == Removed
}

// ChangeEvent indicates that the membership has changed: a member joined,
// became Up, started leaving, is exiting, was removed or had its roles
// changed.
type ChangeEvent struct {
	Changes []MemberChange
}

// StateEvent carries a complete snapshot of the membership. It is typically
// delivered once when a source starts and replaces whatever was known before.
type StateEvent struct {
	Members []Member
}

// ReachabilityEvent reports that the failure detector considers a member
// unreachable, or reachable again. The singleton components deliberately do
// not act on it; only a confirmed removal moves the singleton.
type ReachabilityEvent struct {
	Member    Member
	Reachable bool
}

func (ChangeEvent) membershipEvent()       {}
func (StateEvent) membershipEvent()        {}
func (ReachabilityEvent) membershipEvent() {}

// MemberUp is a convenience constructor for a change admitting m as Up.
func MemberUp(m Member) ChangeEvent {
	after := m.WithStatus(Up)
	return ChangeEvent{Changes: []MemberChange{{After: &after}}}
}

// MemberTransition is a convenience constructor for a change moving m from
// its current status to status.
func MemberTransition(m Member, status Status) ChangeEvent {
	before := m
	after := m.WithStatus(status)
	return ChangeEvent{Changes: []MemberChange{{Before: &before, After: &after}}}
}
