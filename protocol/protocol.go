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

// Package protocol defines what singleton host managers say to each other
// during a handover, and what the locator proxy forwards to the host.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Type names a handover message.
type Type int

const (
	// HandOverToMe is sent by the new oldest member to the previous oldest
	// to ask for the singleton.
	HandOverToMe Type = iota + 1

	// HandOverInProgress answers a repeated HandOverToMe while the instance
	// is already being stopped.
	HandOverInProgress

	// HandOverDone tells the requester that the instance has stopped and it
	// may start its own.
	HandOverDone

	// TakeOverFromMe is sent by a host that learned it is no longer the
	// oldest, prompting the new oldest to request the handover.
	TakeOverFromMe
)

var typeNames = map[Type]string{
	HandOverToMe:       "HandOverToMe",
	HandOverInProgress: "HandOverInProgress",
	HandOverDone:       "HandOverDone",
	TakeOverFromMe:     "TakeOverFromMe",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// MarshalJSON encodes the type by name.
func (t Type) MarshalJSON() ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown message type %d", int(t))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a type name.
func (t *Type) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for typ, n := range typeNames {
		if n == name {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown message type %q", name)
}

// A Message is exchanged between host managers. From is the address of the
// sender; replies go there.
type Message struct {
	Type Type   `json:"type"`
	From string `json:"from"`
}

func (m Message) String() string {
	return fmt.Sprintf("%v from %s", m.Type, m.From)
}

// An Envelope is an application message for the singleton instance. The
// payload is opaque to the library.
type Envelope struct {
	Sender  string `json:"sender,omitempty"`
	Payload []byte `json:"payload"`
}
