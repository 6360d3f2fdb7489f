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

// Package transport carries handover messages between host managers and
// forwards proxy traffic to the singleton host over TChannel, encoding every
// call as JSON.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/uber-common/bark"
	"github.com/uber/tchannel-go"
	"github.com/uber/tchannel-go/json"

	"github.com/uber/singleton-go/logging"
	"github.com/uber/singleton-go/protocol"
	"github.com/uber/singleton-go/shared"
	"github.com/uber/singleton-go/util"
)

// ServiceName is the TChannel service the endpoints are registered under.
const ServiceName = "singleton"

const (
	handoverEndpoint = "/singleton/handover"
	identifyEndpoint = "/singleton/identify"
	deliverEndpoint  = "/singleton/deliver"
)

var (
	// ErrRefused is returned by Deliver when the remote member does not run
	// the singleton.
	ErrRefused = errors.New("remote member refused the message")

	// ErrAlreadyAttached is returned when a second host is attached.
	ErrAlreadyAttached = errors.New("a host is already attached to the transport")

	// ErrChannelClosed is returned for calls on a closed channel.
	ErrChannelClosed = errors.New("tchannel is closed")
)

// A Host is the local end of the transport, usually a *host.Manager.
type Host interface {
	HandleMessage(msg protocol.Message)
	Hosting() bool
	Deliver(ctx context.Context, env protocol.Envelope) error
}

// Options to create a Transport with.
type Options struct {
	// Timeout bounds every outgoing call.
	Timeout time.Duration
	Logger  bark.Logger
}

func defaultOptions() *Options {
	return &Options{
		Timeout: 3 * time.Second,
		Logger:  logging.Logger("transport"),
	}
}

func mergeDefaultOptions(opts *Options) *Options {
	def := defaultOptions()
	if opts == nil {
		return def
	}

	merged := *opts
	merged.Timeout = util.SelectDuration(opts.Timeout, def.Timeout)
	if merged.Logger == nil {
		merged.Logger = def.Logger
	}
	return &merged
}

// Transport implements host.Transport and proxy.Forwarder.
type Transport struct {
	channel    shared.TChannel
	subChannel shared.SubChannel
	address    string
	timeout    time.Duration
	logger     bark.Logger

	host Host
}

// New returns a transport on the sub-channel ServiceName of ch. Handlers are
// registered when a host is attached; until then the transport can only
// call out.
func New(ch shared.TChannel, opts *Options) *Transport {
	opts = mergeDefaultOptions(opts)
	address := ch.PeerInfo().HostPort
	return &Transport{
		channel:    ch,
		subChannel: ch.GetSubChannel(ServiceName),
		address:    address,
		timeout:    opts.Timeout,
		logger:     opts.Logger.WithField("local", address),
	}
}

// Address is the host:port the channel listens on.
func (t *Transport) Address() string {
	return t.address
}

// Attach registers the endpoints, answered by h.
func (t *Transport) Attach(h Host) error {
	if t.host != nil {
		return ErrAlreadyAttached
	}
	t.host = h

	handlers := map[string]interface{}{
		handoverEndpoint: t.handoverHandler,
		identifyEndpoint: t.identifyHandler,
		deliverEndpoint:  t.deliverHandler,
	}

	return json.Register(t.subChannel, handlers, func(ctx context.Context, err error) {
		t.logger.WithField("error", err.Error()).Info("error occurred")
	})
}

// local reports whether to is served by the attached host of this transport.
func (t *Transport) local(to string) bool {
	return t.host != nil && to == t.address
}

// Send delivers a handover message to the manager at to.
func (t *Transport) Send(ctx context.Context, to string, msg protocol.Message) error {
	if t.local(to) {
		t.host.HandleMessage(msg)
		return nil
	}

	res := &ack{}
	return t.call(ctx, to, handoverEndpoint, &msg, res)
}

// Identify asks host whether it runs the singleton.
func (t *Transport) Identify(ctx context.Context, host string) (bool, error) {
	if t.local(host) {
		return t.host.Hosting(), nil
	}

	res := &identifyResponse{}
	if err := t.call(ctx, host, identifyEndpoint, &identifyRequest{Source: t.address}, res); err != nil {
		return false, err
	}
	return res.Hosting, nil
}

// Deliver hands env to the singleton on host. ErrRefused means host does not
// run the singleton.
func (t *Transport) Deliver(ctx context.Context, host string, env protocol.Envelope) error {
	if t.local(host) {
		if err := t.host.Deliver(ctx, env); err != nil {
			t.logger.WithField("reason", err.Error()).Debug("message refused locally")
			return ErrRefused
		}
		return nil
	}

	res := &deliverResponse{}
	if err := t.call(ctx, host, deliverEndpoint, &env, res); err != nil {
		return err
	}
	if !res.Accepted {
		t.logger.WithFields(bark.Fields{
			"host":   host,
			"reason": res.Reason,
		}).Debug("message refused")
		return ErrRefused
	}
	return nil
}

func (t *Transport) call(ctx context.Context, to, endpoint string, req, res interface{}) error {
	switch t.channel.State() {
	case tchannel.ChannelClient, tchannel.ChannelListening:
	default:
		return ErrChannelClosed
	}

	callCtx, cancel := shared.NewTChannelContext(ctx, t.timeout)
	defer cancel()

	peer := t.subChannel.Peers().GetOrAdd(to)
	return json.CallPeer(callCtx, peer, ServiceName, endpoint, req, res)
}

type ack struct{}

type identifyRequest struct {
	Source string `json:"source"`
}

type identifyResponse struct {
	Hosting bool `json:"hosting"`
}

type deliverResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func (t *Transport) handoverHandler(ctx json.Context, msg *protocol.Message) (*ack, error) {
	t.logger.WithFields(bark.Fields{
		"from":    msg.From,
		"message": msg.Type.String(),
	}).Debug("handover message received")

	t.host.HandleMessage(*msg)
	return &ack{}, nil
}

func (t *Transport) identifyHandler(ctx json.Context, req *identifyRequest) (*identifyResponse, error) {
	return &identifyResponse{Hosting: t.host.Hosting()}, nil
}

func (t *Transport) deliverHandler(ctx json.Context, env *protocol.Envelope) (*deliverResponse, error) {
	if err := t.host.Deliver(ctx, *env); err != nil {
		return &deliverResponse{Reason: err.Error()}, nil
	}
	return &deliverResponse{Accepted: true}, nil
}
