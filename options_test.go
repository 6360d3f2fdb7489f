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
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/uber/tchannel-go"

	"github.com/uber/singleton-go/discovery/statichosts"
	"github.com/uber/singleton-go/logging"
	"github.com/uber/singleton-go/test/mocks"
	"github.com/uber/singleton-go/test/mocks/logger"
)

type SingletonOptionsTestSuite struct {
	suite.Suite
	channel *tchannel.Channel
	factory *mocks.Factory
	source  *statichosts.Source
}

func (s *SingletonOptionsTestSuite) SetupTest() {
	ch, err := tchannel.NewChannel("test", nil)
	s.Require().NoError(err, "Channel creation failed")
	s.Require().NoError(ch.ListenAndServe("127.0.0.1:0"))

	s.channel = ch
	s.factory = &mocks.Factory{}
	s.source = statichosts.NewSource(statichosts.New(ch.PeerInfo().HostPort))
}

func (s *SingletonOptionsTestSuite) TearDownTest() {
	s.channel.Close()
}

func (s *SingletonOptionsTestSuite) newNode(opts ...Option) (*Singleton, error) {
	required := []Option{Channel(s.channel), WorkUnit(s.factory), Membership(s.source)}
	return New(append(required, opts...)...)
}

// TestDefaults tests that the default options are applied when none are
// given.
func (s *SingletonOptionsTestSuite) TestDefaults() {
	node, err := s.newNode()
	s.Require().NoError(err)
	s.Require().NotNil(node)

	s.NotNil(node.logger)
	s.NotNil(node.clock)
	s.Equal(noopStatsReporter{}, node.statter)
	s.Equal(&Configuration{}, node.config)
	s.Nil(node.registerer)
}

// TestDefaultAddressResolver tests that the node identifies as the hostport
// of its channel.
func (s *SingletonOptionsTestSuite) TestDefaultAddressResolver() {
	node, err := s.newNode()
	s.Require().NoError(err)
	s.Equal(s.channel.PeerInfo().HostPort, node.WhoAmI())
}

func (s *SingletonOptionsTestSuite) TestIdentity() {
	node, err := s.newNode(Identity("10.0.0.1:3000"))
	s.Require().NoError(err)
	s.Equal("10.0.0.1:3000", node.WhoAmI())
}

func (s *SingletonOptionsTestSuite) TestChannelRequired() {
	node, err := New(WorkUnit(s.factory), Membership(s.source))
	s.Nil(node)
	s.Error(err)
}

// TestLogger tests that the logger that's passed in receives the messages of
// the node.
func (s *SingletonOptionsTestSuite) TestLogger() {
	mockLogger := &mocklogger.Logger{}
	for _, meth := range []string{"Debug", "Info", "Warn", "Error"} {
		mockLogger.On(meth, mock.Anything)
		mockLogger.On(meth+"f", mock.Anything, mock.Anything)
	}
	mockLogger.On("WithField", mock.Anything, mock.Anything).Return(mockLogger)
	mockLogger.On("WithFields", mock.Anything).Return(mockLogger)

	node, err := s.newNode(Logger(mockLogger))
	s.Require().NoError(err)

	node.log.Info("hello")
	mockLogger.AssertCalled(s.T(), "Info", []interface{}{"hello"})
}

// TestLogLevelsError tests that named loggers can't have a severity level
// above Fatal.
func (s *SingletonOptionsTestSuite) TestLogLevelsError() {
	config := &Configuration{Logging: map[string]logging.Level{"host": logging.Panic}}
	_, err := s.newNode(Config(config))
	s.Error(err, "Setting log levels above Fatal should fail.")
}

func (s *SingletonOptionsTestSuite) TestStatter() {
	mockStatter := &mocks.StatsReporter{}
	node, err := s.newNode(Statter(mockStatter))
	s.Require().NoError(err)
	s.Equal(mockStatter, node.statter)
}

func (s *SingletonOptionsTestSuite) TestClock() {
	mockClock := clock.NewMock()
	node, err := s.newNode(Clock(mockClock))
	s.Require().NoError(err)
	s.Equal(mockClock, node.clock)
}

func (s *SingletonOptionsTestSuite) TestTunables() {
	node, err := s.newNode(
		Role("worker"),
		RemovalGracePeriod(5*time.Second),
		HandOverRetry(200*time.Millisecond, 4),
		BufferSize(10),
		StopTimeout(2*time.Second),
	)
	s.Require().NoError(err)

	s.Equal("worker", node.config.Role)
	s.Equal(5*time.Second, node.config.RemovalGracePeriod)
	s.Equal(200*time.Millisecond, node.config.HandOverRetryInterval)
	s.Equal(4, node.config.MaxHandOverRetries)
	s.Equal(10, node.config.BufferSize)
	s.Equal(2*time.Second, node.config.StopTimeout)
}

func (s *SingletonOptionsTestSuite) TestConfigIsCopied() {
	config := &Configuration{Role: "worker"}
	node, err := s.newNode(Config(config), Role("db"))
	s.Require().NoError(err)

	s.Equal("db", node.config.Role)
	s.Equal("worker", config.Role, "the given configuration must not change")
}

func (s *SingletonOptionsTestSuite) TestInvalidTunables() {
	_, err := s.newNode(RemovalGracePeriod(-time.Second))
	s.Error(err)

	_, err = s.newNode(HandOverRetry(time.Second, -1))
	s.Error(err)

	_, err = s.newNode(BufferSize(-1))
	s.Error(err)

	_, err = s.newNode(Config(nil))
	s.Error(err)

	_, err = s.newNode(StopTimeout(-time.Second))
	s.Error(err)
}

// TestInvalidConfig tests that a configuration built in code is checked like
// a parsed one instead of reaching the components.
func (s *SingletonOptionsTestSuite) TestInvalidConfig() {
	node, err := s.newNode(Config(&Configuration{BufferSize: -1}))
	s.Nil(node)
	s.Error(err)

	node, err = s.newNode(Config(&Configuration{CallTimeout: -time.Second}))
	s.Nil(node)
	s.Error(err)
}

func TestSingletonOptionsTestSuite(t *testing.T) {
	suite.Run(t, new(SingletonOptionsTestSuite))
}
