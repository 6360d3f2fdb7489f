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

package singleton

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/uber/tchannel-go"

	"github.com/uber/singleton-go/discovery/statichosts"
	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/host"
	"github.com/uber/singleton-go/membership"
	"github.com/uber/singleton-go/protocol"
	"github.com/uber/singleton-go/test/mocks"
	"github.com/uber/singleton-go/util"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// sharedMembership hands the changes of one static source to every node of
// a test cluster.
type sharedMembership struct {
	events.SyncEventEmitter
	static *statichosts.Source
}

func newSharedMembership(t *testing.T, hosts ...string) *sharedMembership {
	m := &sharedMembership{}
	m.static = statichosts.NewSource(statichosts.New(hosts...))
	require.NoError(t, m.static.Start(m))
	return m
}

func (m *sharedMembership) HandleEvent(event events.Event) {
	m.EmitEvent(event)
}

// member is the discovery.Source of one node.
type member struct {
	shared *sharedMembership
}

func (m member) Start(listener events.EventListener) error {
	m.shared.AddListener(listener)
	listener.HandleEvent(membership.StateEvent{Members: m.shared.static.Members()})
	return nil
}

func (m member) Leave(address string) error {
	return m.shared.static.Leave(address)
}

func (m member) Close() error {
	return nil
}

// ledger records which node runs the instance and what it received.
type ledger struct {
	sync.Mutex
	live       map[string]bool
	overlaps   int
	received   map[string][]string
	startCount map[string]int
}

func newLedger() *ledger {
	return &ledger{
		live:       make(map[string]bool),
		received:   make(map[string][]string),
		startCount: make(map[string]int),
	}
}

func (l *ledger) messages(address string) []string {
	l.Lock()
	defer l.Unlock()
	return append([]string(nil), l.received[address]...)
}

func (l *ledger) starts(address string) int {
	l.Lock()
	defer l.Unlock()
	return l.startCount[address]
}

type workUnit struct {
	address string
	ledger  *ledger
}

type work struct {
	unit *workUnit
}

func (u *workUnit) Start(ctx context.Context) (host.Instance, error) {
	u.ledger.Lock()
	defer u.ledger.Unlock()
	if len(u.ledger.live) > 0 {
		u.ledger.overlaps++
	}
	u.ledger.live[u.address] = true
	u.ledger.startCount[u.address]++
	return &work{unit: u}, nil
}

func (u *workUnit) Stop(ctx context.Context, instance host.Instance) error {
	u.ledger.Lock()
	defer u.ledger.Unlock()
	delete(u.ledger.live, u.address)
	return nil
}

func (w *work) Receive(ctx context.Context, env protocol.Envelope) error {
	w.unit.ledger.Lock()
	defer w.unit.ledger.Unlock()
	w.unit.ledger.received[w.unit.address] = append(w.unit.ledger.received[w.unit.address], string(env.Payload))
	return nil
}

type SingletonTestSuite struct {
	suite.Suite
	channels []*tchannel.Channel
	nodes    []*Singleton
	ledger   *ledger
	members  *sharedMembership
}

func (s *SingletonTestSuite) SetupTest() {
	s.ledger = newLedger()

	addresses := make([]string, 3)
	for i := range addresses {
		ch, err := tchannel.NewChannel("singleton-test", nil)
		s.Require().NoError(err, "channel must create successfully")
		s.Require().NoError(ch.ListenAndServe("127.0.0.1:0"), "channel must listen")
		s.channels = append(s.channels, ch)
		addresses[i] = ch.PeerInfo().HostPort
	}
	s.members = newSharedMembership(s.T(), addresses...)

	for i, ch := range s.channels {
		node, err := New(
			Config(&Configuration{
				HandOverRetryInterval:  50 * time.Millisecond,
				IdentificationInterval: 20 * time.Millisecond,
				CallTimeout:            time.Second,
			}),
			Channel(ch),
			WorkUnit(&workUnit{address: addresses[i], ledger: s.ledger}),
			Membership(member{shared: s.members}),
		)
		s.Require().NoError(err)
		s.nodes = append(s.nodes, node)
	}

	for _, node := range s.nodes {
		s.Require().NoError(node.Start())
	}
}

func (s *SingletonTestSuite) TearDownTest() {
	for _, node := range s.nodes {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		node.Stop(ctx)
		cancel()
	}
	for _, ch := range s.channels {
		ch.Close()
	}
	s.channels = nil
	s.nodes = nil
}

func (s *SingletonTestSuite) send(node *Singleton, payload string) {
	s.NoError(node.Send(protocol.Envelope{Payload: []byte(payload)}))
}

func (s *SingletonTestSuite) TestOldestHosts() {
	n1, n2, n3 := s.nodes[0], s.nodes[1], s.nodes[2]

	s.Eventually(n1.Hosting, waitFor, tick)
	s.Eventually(func() bool { return n2.State() == host.Following && n3.State() == host.Following }, waitFor, tick)
	s.False(n2.Hosting())
	s.False(n3.Hosting())
}

func (s *SingletonTestSuite) TestEveryNodeReachesTheInstance() {
	n1 := s.nodes[0]
	s.Eventually(n1.Hosting, waitFor, tick)

	for _, node := range s.nodes {
		s.send(node, node.WhoAmI())
	}

	s.Eventually(func() bool { return len(s.ledger.messages(n1.WhoAmI())) == 3 }, waitFor, tick)
	s.ElementsMatch([]string{
		s.nodes[0].WhoAmI(), s.nodes[1].WhoAmI(), s.nodes[2].WhoAmI(),
	}, s.ledger.messages(n1.WhoAmI()))
}

func (s *SingletonTestSuite) TestHandOverOnLeave() {
	n1, n2, n3 := s.nodes[0], s.nodes[1], s.nodes[2]
	s.Eventually(n1.Hosting, waitFor, tick)

	s.send(n3, "before")
	s.Eventually(func() bool { return len(s.ledger.messages(n1.WhoAmI())) == 1 }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	s.Require().NoError(n1.Stop(ctx))
	s.False(n1.Hosting())
	s.Equal(host.End, n1.State())
	s.NoError(n1.Err())

	s.Eventually(n2.Hosting, waitFor, tick)

	s.send(n3, "after")
	s.Eventually(func() bool { return len(s.ledger.messages(n2.WhoAmI())) == 1 }, waitFor, tick)
	s.Equal([]string{"after"}, s.ledger.messages(n2.WhoAmI()))
	s.Equal([]string{"before"}, s.ledger.messages(n1.WhoAmI()))

	s.ledger.Lock()
	defer s.ledger.Unlock()
	s.Zero(s.ledger.overlaps, "two instances ran at the same time")
}

func (s *SingletonTestSuite) TestFollowerLeaves() {
	n1, n3 := s.nodes[0], s.nodes[2]
	s.Eventually(n1.Hosting, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	s.Require().NoError(n3.Stop(ctx))
	s.Equal(host.End, n3.State())

	s.True(n1.Hosting())
	s.Equal(1, s.ledger.starts(n1.WhoAmI()))
}

func (s *SingletonTestSuite) TestListenersSeeEvents() {
	n1 := s.nodes[0]
	s.Eventually(n1.Hosting, waitFor, tick)

	seen := make(chan events.Event, 64)
	s.True(n1.AddListener(listenerFunc(seen)))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	s.Require().NoError(n1.Stop(ctx))

	timeout := time.After(waitFor)
	for {
		select {
		case e := <-seen:
			if stopped, ok := e.(host.InstanceStoppedEvent); ok {
				s.NoError(stopped.Err)
				return
			}
		case <-timeout:
			s.FailNow("no InstanceStoppedEvent seen")
		}
	}
}

func (s *SingletonTestSuite) TestStartTwiceAndRestart() {
	n1 := s.nodes[0]
	s.NoError(n1.Start())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	s.NoError(n1.Stop(ctx))
	s.NoError(n1.Stop(ctx))
	s.Equal(ErrStopped, n1.Start())
}

func TestSingletonTestSuite(t *testing.T) {
	suite.Run(t, new(SingletonTestSuite))
}

// listenerFunc sends every event to a channel without blocking.
type listenerFunc chan events.Event

func (l listenerFunc) HandleEvent(event events.Event) {
	select {
	case l <- event:
	default:
	}
}

func listeningChannel(t *testing.T) *tchannel.Channel {
	ch, err := tchannel.NewChannel("singleton-test", nil)
	require.NoError(t, err)
	require.NoError(t, ch.ListenAndServe("127.0.0.1:0"))
	return ch
}

func TestNewRequiresChannelAndWorkUnit(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Channel is required")
	assert.Contains(t, err.Error(), "WorkUnit is required")
}

func TestNewRequiresMembership(t *testing.T) {
	ch := listeningChannel(t)
	defer ch.Close()

	_, err := New(Channel(ch), WorkUnit(&mocks.Factory{}))
	assert.Equal(t, ErrNoMembership, err)
}

func TestNewWithEphemeralChannel(t *testing.T) {
	ch, err := tchannel.NewChannel("singleton-test", nil)
	require.NoError(t, err)
	defer ch.Close()

	_, err = New(Channel(ch), WorkUnit(&mocks.Factory{}))
	assert.Equal(t, ErrEphemeralIdentity, err)
}

func TestNewFromConfiguredHosts(t *testing.T) {
	ch := listeningChannel(t)
	defer ch.Close()

	config := &Configuration{}
	config.Membership.Hosts = []string{ch.PeerInfo().HostPort}

	node, err := New(Channel(ch), WorkUnit(&mocks.Factory{}), Config(config))
	require.NoError(t, err)
	assert.Equal(t, ch.PeerInfo().HostPort, node.WhoAmI())
	assert.Equal(t, ErrNotStarted, node.Stop(context.Background()))
}

func TestStartFailureEndsTheNode(t *testing.T) {
	ch := listeningChannel(t)
	defer ch.Close()

	factory := &mocks.Factory{}
	factory.On("Start", mock.Anything).Return(nil, errors.New("no database"))

	registry := prometheus.NewRegistry()
	node, err := New(
		Channel(ch),
		WorkUnit(factory),
		Membership(statichosts.NewSource(statichosts.New(ch.PeerInfo().HostPort))),
		Prometheus(registry),
		Metrics(metrics.NewRegistry()),
	)
	require.NoError(t, err)
	require.NoError(t, node.Start())

	select {
	case <-node.Done():
	case <-time.After(waitFor):
		t.Fatal("node did not end")
	}
	assert.Equal(t, host.ErrStartFailed, node.Err())
	assert.False(t, node.Hosting())
	factory.AssertExpectations(t)
}

func TestDeliveryThroughMockedInstance(t *testing.T) {
	ch := listeningChannel(t)
	defer ch.Close()

	received := make(chan string, 1)
	instance := &mocks.Instance{}
	instance.On("Receive", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		received <- string(args.Get(1).(protocol.Envelope).Payload)
	})

	factory := &mocks.Factory{}
	factory.On("Start", mock.Anything).Return(instance, nil)
	factory.On("Stop", mock.Anything, instance).Return(nil)

	statter := &mocks.StatsReporter{}
	statter.On("IncCounter", mock.Anything, mock.Anything, mock.Anything)
	statter.On("UpdateGauge", mock.Anything, mock.Anything, mock.Anything)
	statter.On("RecordTimer", mock.Anything, mock.Anything, mock.Anything)

	node, err := New(
		Channel(ch),
		WorkUnit(factory),
		Membership(statichosts.NewSource(statichosts.New(ch.PeerInfo().HostPort))),
		Statter(statter),
	)
	require.NoError(t, err)
	require.NoError(t, node.Start())
	require.Eventually(t, node.Hosting, waitFor, tick)

	require.NoError(t, node.Send(protocol.Envelope{Payload: []byte("ping")}))
	select {
	case payload := <-received:
		assert.Equal(t, "ping", payload)
	case <-time.After(waitFor):
		t.Fatal("instance did not receive the message")
	}

	// a lone node has nobody to hand over to, the deadline forces the stop
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, node.Stop(ctx))
	factory.AssertCalled(t, "Stop", mock.Anything, instance)

	statter.AssertCalled(t, "IncCounter", "singleton."+util.StatsKey(node.WhoAmI())+".host.instance.started", mock.Anything, int64(1))
}
