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

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/multierr"

	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/membership"
	"github.com/uber/singleton-go/protocol"
)

var errUnreachable = errors.New("unreachable")

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// network delivers handover messages between managers in memory.
type network struct {
	sync.Mutex
	managers map[string]*Manager
	down     map[string]bool
}

func (n *network) Send(ctx context.Context, to string, msg protocol.Message) error {
	n.Lock()
	m, ok := n.managers[to]
	down := n.down[to]
	n.Unlock()

	if !ok || down {
		return errUnreachable
	}
	m.HandleMessage(msg)
	return nil
}

// history records instance starts and stops across all nodes.
type history struct {
	sync.Mutex
	log        []string
	live       map[string]bool
	violations int
}

func (h *history) started(address string) {
	h.Lock()
	defer h.Unlock()
	if len(h.live) > 0 {
		h.violations++
	}
	h.live[address] = true
	h.log = append(h.log, "start "+address)
}

func (h *history) stopped(address string) {
	h.Lock()
	defer h.Unlock()
	delete(h.live, address)
	h.log = append(h.log, "stop "+address)
}

func (h *history) entries() []string {
	h.Lock()
	defer h.Unlock()
	return append([]string(nil), h.log...)
}

type testInstance struct {
	sync.Mutex
	received []protocol.Envelope
}

func (i *testInstance) Receive(ctx context.Context, env protocol.Envelope) error {
	i.Lock()
	i.received = append(i.received, env)
	i.Unlock()
	return nil
}

type testFactory struct {
	sync.Mutex
	address  string
	history  *history
	starts   int
	stops    int
	startErr error
	stopErr  error
	hang     bool
	last     *testInstance
}

func (f *testFactory) Start(ctx context.Context) (Instance, error) {
	f.Lock()
	defer f.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.starts++
	f.last = &testInstance{}
	f.history.started(f.address)
	return f.last, nil
}

func (f *testFactory) Stop(ctx context.Context, instance Instance) error {
	f.Lock()
	if f.hang {
		f.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	defer f.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stops++
	f.history.stopped(f.address)
	return nil
}

func (f *testFactory) counts() (int, int) {
	f.Lock()
	defer f.Unlock()
	return f.starts, f.stops
}

type recorder struct {
	sync.Mutex
	events []events.Event
}

func (r *recorder) HandleEvent(event events.Event) {
	r.Lock()
	r.events = append(r.events, event)
	r.Unlock()
}

func (r *recorder) count(match func(events.Event) bool) int {
	r.Lock()
	defer r.Unlock()
	n := 0
	for _, e := range r.events {
		if match(e) {
			n++
		}
	}
	return n
}

type node struct {
	manager  *Manager
	factory  *testFactory
	recorder *recorder
}

type ManagerTestSuite struct {
	suite.Suite
	clock   *clock.Mock
	network *network
	history *history
	nodes   map[string]*node
	members map[string]membership.Member
	crashed map[string]bool
	nextUp  int64
}

func (s *ManagerTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.network = &network{managers: make(map[string]*Manager), down: make(map[string]bool)}
	s.history = &history{live: make(map[string]bool)}
	s.nodes = make(map[string]*node)
	s.members = make(map[string]membership.Member)
	s.crashed = make(map[string]bool)
	s.nextUp = 1
}

func (s *ManagerTestSuite) TearDownTest() {
	for _, n := range s.nodes {
		n.manager.Close()
	}
}

// join starts a manager for address and admits it to the cluster.
func (s *ManagerTestSuite) join(address string) *node {
	n := &node{
		factory:  &testFactory{address: address, history: s.history},
		recorder: &recorder{},
	}
	n.manager = NewManager(address, n.factory, s.network, &Options{
		RemovalGracePeriod:    10 * time.Second,
		HandOverRetryInterval: time.Second,
		Clock:                 s.clock,
	})
	n.manager.AddListener(n.recorder)

	s.network.Lock()
	s.network.managers[address] = n.manager
	s.network.Unlock()
	s.nodes[address] = n

	var snapshot []membership.Member
	for _, m := range s.members {
		snapshot = append(snapshot, m)
	}
	n.manager.Start()
	n.manager.HandleEvent(membership.StateEvent{Members: snapshot})

	m := membership.Member{Address: address, UpNumber: s.nextUp, Status: membership.Up}
	s.nextUp++
	s.members[address] = m
	s.broadcast(membership.MemberUp(m))
	return n
}

func (s *ManagerTestSuite) broadcast(event membership.Event) {
	for address, n := range s.nodes {
		if !s.crashed[address] {
			n.manager.HandleEvent(event)
		}
	}
}

func (s *ManagerTestSuite) transition(address string, status membership.Status) {
	m := s.members[address]
	s.broadcast(membership.MemberTransition(m, status))
	if status == membership.Removed {
		delete(s.members, address)
		return
	}
	s.members[address] = m.WithStatus(status)
}

func (s *ManagerTestSuite) leave(address string) {
	s.transition(address, membership.Leaving)
	s.transition(address, membership.Exiting)
}

func (s *ManagerTestSuite) crash(address string) {
	s.crashed[address] = true
	s.network.Lock()
	s.network.down[address] = true
	s.network.Unlock()
	s.nodes[address].manager.Close()
}

func (s *ManagerTestSuite) waitState(address string, state State) {
	m := s.nodes[address].manager
	s.Eventually(func() bool { return m.State() == state }, waitFor, tick,
		fmt.Sprintf("expected %s to become %v, is %v", address, state, m.State()))
}

func (s *ManagerTestSuite) threeNodes() {
	s.join(n1)
	s.waitState(n1, Leading)
	s.join(n2)
	s.join(n3)
	s.waitState(n2, Following)
	s.waitState(n3, Following)
}

func (s *ManagerTestSuite) TestOldestLeadsOthersFollow() {
	s.threeNodes()

	s.True(s.nodes[n1].manager.Hosting())
	s.False(s.nodes[n2].manager.Hosting())
	s.False(s.nodes[n3].manager.Hosting())
	s.Equal([]string{"start " + n1}, s.history.entries())
}

func (s *ManagerTestSuite) TestGracefulHandOver() {
	s.threeNodes()

	s.leave(n1)

	s.waitState(n2, Leading)
	s.waitState(n1, End)
	s.waitState(n3, Following)

	s.Equal([]string{"start " + n1, "stop " + n1, "start " + n2}, s.history.entries())
	s.Equal(0, s.history.violations)
	s.NoError(s.nodes[n1].manager.Err())
	s.Equal(1, s.nodes[n2].recorder.count(func(e events.Event) bool {
		_, ok := e.(HandOverCompletedEvent)
		return ok
	}))
}

func (s *ManagerTestSuite) TestTakeOverAfterCrash() {
	s.threeNodes()

	s.crash(n1)
	s.transition(n1, membership.Removed)

	s.waitState(n2, TakingOver)
	s.Eventually(func() bool {
		return s.nodes[n2].recorder.count(func(e events.Event) bool {
			_, ok := e.(TakeOverScheduledEvent)
			return ok
		}) == 1
	}, waitFor, tick)
	s.False(s.nodes[n2].manager.Hosting(), "expected the grace period to be waited out")

	s.clock.Add(10 * time.Second)

	s.waitState(n2, Leading)
	s.waitState(n3, Following)
	starts, _ := s.nodes[n2].factory.counts()
	s.Equal(1, starts)
}

func (s *ManagerTestSuite) TestDuplicateHandOverToMeAfterCompletion() {
	s.threeNodes()
	s.leave(n1)
	s.waitState(n2, Leading)
	s.transition(n1, membership.Removed)

	s.leave(n2)
	s.waitState(n3, Leading)
	s.waitState(n2, End)

	isStale := func(e events.Event) bool {
		_, ok := e.(StaleMessageEvent)
		return ok
	}
	before := s.nodes[n3].recorder.count(isStale)

	for i := 0; i < 2; i++ {
		s.nodes[n2].manager.HandleMessage(protocol.Message{Type: protocol.HandOverToMe, From: n3})
	}

	s.Eventually(func() bool {
		return s.nodes[n3].recorder.count(isStale) == before+2
	}, waitFor, tick, "expected both no-op replies to reach n3")

	s.Equal(End, s.nodes[n2].manager.State())
	s.Equal(Leading, s.nodes[n3].manager.State())

	starts, stops := s.nodes[n2].factory.counts()
	s.Equal(1, starts)
	s.Equal(1, stops)
	starts, stops = s.nodes[n3].factory.counts()
	s.Equal(1, starts)
	s.Equal(0, stops)
}

func (s *ManagerTestSuite) TestUnreachableIsIgnored() {
	s.threeNodes()

	s.broadcast(membership.ReachabilityEvent{Member: s.members[n1], Reachable: false})
	s.clock.Add(time.Minute)

	s.Never(func() bool {
		return s.nodes[n2].manager.State() != Following
	}, 50*time.Millisecond, tick)
	s.Equal(Leading, s.nodes[n1].manager.State())
}

func (s *ManagerTestSuite) TestDeliver() {
	s.threeNodes()

	env := protocol.Envelope{Sender: "client", Payload: []byte("ping")}
	s.NoError(s.nodes[n1].manager.Deliver(context.Background(), env))
	s.Equal(ErrNotHosting, s.nodes[n2].manager.Deliver(context.Background(), env))

	instance := s.nodes[n1].factory.last
	instance.Lock()
	defer instance.Unlock()
	s.Equal([]protocol.Envelope{env}, instance.received)
}

func (s *ManagerTestSuite) TestStartFailure() {
	n := &node{factory: &testFactory{address: n1, history: s.history, startErr: errors.New("boom")}}
	n.manager = NewManager(n1, n.factory, s.network, &Options{Clock: s.clock})
	s.nodes[n1] = n

	n.manager.Start()
	n.manager.HandleEvent(membership.MemberUp(membership.Member{Address: n1, UpNumber: 1}))

	select {
	case <-n.manager.Done():
	case <-time.After(waitFor):
		s.FailNow("manager did not end")
	}
	s.Equal(ErrStartFailed, n.manager.Err())
	s.False(n.manager.Hosting())
}

func (s *ManagerTestSuite) TestStopForcedWhenNobodyTakesOver() {
	s.join(n1)
	s.waitState(n1, Leading)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.nodes[n1].manager.Stop(ctx)
	s.Equal(context.DeadlineExceeded, err)
	s.Equal(End, s.nodes[n1].manager.State())

	_, stops := s.nodes[n1].factory.counts()
	s.Equal(1, stops)
}

func (s *ManagerTestSuite) TestStopAbandonsHangingInstance() {
	n := s.join(n1)
	s.waitState(n1, Leading)

	n.factory.Lock()
	n.factory.hang = true
	n.factory.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- n.manager.Stop(ctx) }()

	var err error
	s.Eventually(func() bool {
		s.clock.Add(5 * time.Second)
		select {
		case err = <-result:
			return true
		default:
			return false
		}
	}, waitFor, tick, "expected Stop to return once the stop timeout passed")

	s.Equal([]error{context.DeadlineExceeded, ErrStopFailed}, multierr.Errors(err))
	s.Equal(ErrStopFailed, n.manager.Err())
	s.Equal(End, n.manager.State())
	s.False(n.manager.Hosting())
}

func (s *ManagerTestSuite) TestStopFollower() {
	s.threeNodes()

	s.NoError(s.nodes[n3].manager.Stop(context.Background()))
	s.Equal(End, s.nodes[n3].manager.State())
}

func (s *ManagerTestSuite) TestStopNotStarted() {
	m := NewManager(n1, &testFactory{history: s.history}, s.network, nil)
	s.Equal(ErrNotStarted, m.Stop(context.Background()))
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
