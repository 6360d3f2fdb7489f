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

package host

import "fmt"

// State of a host manager.
type State int

const (
	// Idle is the initial state: no oldest member is known yet.
	Idle State = iota

	// Following means another member is the oldest and hosts the singleton.
	Following

	// TakingOver means this node just became the oldest and is waiting for
	// the previous host to hand over, or for the removal grace period of a
	// previous host that vanished.
	TakingOver

	// Leading means the instance runs on this node.
	Leading

	// Resigning means the instance still runs on this node but is, or soon
	// will be, stopped so another node can take over.
	Resigning

	// End is terminal.
	End
)

var stateNames = [...]string{
	Idle:       "idle",
	Following:  "following",
	TakingOver: "taking-over",
	Leading:    "leading",
	Resigning:  "resigning",
	End:        "end",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}
