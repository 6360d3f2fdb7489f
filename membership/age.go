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

import (
	"sort"
	"strings"

	"github.com/dgryski/go-farm"
)

// View is an age-ordered snapshot of the members eligible to host the
// singleton: members in Up or Leaving status carrying the configured role,
// oldest first. It also remembers every member that has not been removed, of
// any role or status, so consumers can tell a departed member from one that
// merely stopped being eligible.
type View struct {
	eligible []Member
	members  map[string]Member
	checksum uint32
}

// Oldest returns the oldest eligible member. The second return value is false
// when no member is eligible.
func (v View) Oldest() (Member, bool) {
	if len(v.eligible) == 0 {
		return Member{}, false
	}
	return v.eligible[0], true
}

// Eligible returns the eligible members, oldest first.
func (v View) Eligible() []Member {
	out := make([]Member, len(v.eligible))
	copy(out, v.eligible)
	return out
}

// Len is the number of eligible members.
func (v View) Len() int {
	return len(v.eligible)
}

// IsMember reports whether address belongs to a member that has not been
// removed from the cluster, regardless of its role or status.
func (v View) IsMember(address string) bool {
	_, ok := v.members[address]
	return ok
}

// Member returns the latest snapshot of the member at address.
func (v View) Member(address string) (Member, bool) {
	m, ok := v.members[address]
	return m, ok
}

// Checksum fingerprints the eligible members and their order.
func (v View) Checksum() uint32 {
	return v.checksum
}

// An AgeTracker consumes membership events and maintains the View for one
// role. Every event recomputes the View from the full member snapshot rather
// than patching the previous View. An AgeTracker is not safe for concurrent
// use; the notifier owning it serializes access.
type AgeTracker struct {
	role    string
	members map[string]Member
	view    View
}

// NewAgeTracker returns a tracker for members carrying role. The empty role
// makes every member eligible.
func NewAgeTracker(role string) *AgeTracker {
	t := &AgeTracker{
		role:    role,
		members: make(map[string]Member),
	}
	t.view = t.compute()
	return t
}

// Role is the role members need to be eligible.
func (t *AgeTracker) Role() string {
	return t.role
}

// View returns the most recently computed view.
func (t *AgeTracker) View() View {
	return t.view
}

// OnMembershipEvent applies the event to the member snapshot and returns the
// recomputed view.
func (t *AgeTracker) OnMembershipEvent(event Event) View {
	switch event := event.(type) {
	case StateEvent:
		t.members = make(map[string]Member, len(event.Members))
		for _, m := range event.Members {
			if m.Status != Removed {
				t.members[m.Address] = m
			}
		}

	case ChangeEvent:
		for _, change := range event.Changes {
			if change.Removed() {
				delete(t.members, change.Address())
				continue
			}
			t.members[change.After.Address] = *change.After
		}

	case ReachabilityEvent:
		// reachability never changes who is eligible
		return t.view
	}

	t.view = t.compute()
	return t.view
}

func (t *AgeTracker) compute() View {
	members := make(map[string]Member, len(t.members))
	var eligible []Member
	for address, m := range t.members {
		members[address] = m
		if t.eligible(m) {
			eligible = append(eligible, m)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].IsOlderThan(eligible[j])
	})

	return View{
		eligible: eligible,
		members:  members,
		checksum: checksum(eligible),
	}
}

func (t *AgeTracker) eligible(m Member) bool {
	return (m.Status == Up || m.Status == Leaving) && m.HasRole(t.role)
}

func checksum(members []Member) uint32 {
	addresses := make([]string, len(members))
	for i, m := range members {
		addresses[i] = m.Address
	}
	return farm.Fingerprint32([]byte(strings.Join(addresses, ";")))
}
