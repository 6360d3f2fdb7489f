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

// Package membership defines the view of the cluster the singleton library
// consumes from an external membership service, and the AgeTracker that turns
// that stream of changes into an age-ordered list of eligible hosts.
package membership

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a member as reported by the membership
// service.
type Status int

const (
	// Joining members are known but not yet admitted.
	Joining Status = iota
	// Up members are full members of the cluster.
	Up
	// Leaving members asked to leave and are still serving.
	Leaving
	// Exiting members are about to be removed.
	Exiting
	// Removed members are gone for good.
	Removed
)

var statusNames = [...]string{
	Joining: "joining",
	Up:      "up",
	Leaving: "leaving",
	Exiting: "exiting",
	Removed: "removed",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == strings.ToLower(name) {
			return Status(s), nil
		}
	}
	return Joining, fmt.Errorf("unknown member status %q", name)
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// A Member is an immutable snapshot of a cluster member. A new snapshot is
// produced for every change; fields are never updated in place.
type Member struct {
	// Address is the unique host:port used to reach the member.
	Address string `json:"address"`

	// UpNumber is the join-order token. It is strictly increasing in the
	// order members joined and is what defines a member's age.
	UpNumber int64 `json:"upNumber"`

	Status Status   `json:"status"`
	Roles  []string `json:"roles,omitempty"`
}

// HasRole reports whether the member carries role. The empty role matches
// every member.
func (m Member) HasRole(role string) bool {
	if role == "" {
		return true
	}
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsOlderThan reports whether m joined before other. Members with equal join
// tokens, which a well behaved membership service never produces, are ordered
// by address so that every node agrees on the outcome.
func (m Member) IsOlderThan(other Member) bool {
	if m.UpNumber != other.UpNumber {
		return m.UpNumber < other.UpNumber
	}
	return m.Address < other.Address
}

// WithStatus returns a copy of the member in the given status.
func (m Member) WithStatus(status Status) Member {
	if m.Roles != nil {
		roles := make([]string, len(m.Roles))
		copy(roles, m.Roles)
		m.Roles = roles
	}
	m.Status = status
	return m
}

func (m Member) String() string {
	return fmt.Sprintf("%s(%d,%s)", m.Address, m.UpNumber, m.Status)
}
