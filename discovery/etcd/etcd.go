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

// Package etcd keeps the membership of the cluster in etcd. Every node
// registers itself under <prefix>/members/<address> with a lease; the
// revision that created the key is the node's join order, so the node that
// registered first is the oldest. Expiry of the lease removes a crashed node.
package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/uber-common/bark"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/multierr"

	"github.com/uber/singleton-go/events"
	"github.com/uber/singleton-go/logging"
	"github.com/uber/singleton-go/membership"
	"github.com/uber/singleton-go/util"
)

var (
	// ErrNotLocal is returned by Leave for any address but the local one.
	ErrNotLocal = errors.New("only the local member can leave through etcd")

	// ErrNotStarted is returned when the source is used before Start.
	ErrNotStarted = errors.New("etcd membership source is not started")
)

// NewClient connects to the etcd cluster at endpoints.
func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
}

// Options to create a Source with.
type Options struct {
	// Prefix is the root of the keys of the cluster.
	Prefix string

	// TTL of the registration lease, in seconds. A crashed node is removed
	// once it expires.
	TTL int64

	// LeaveInterval is how long the member stays Leaving, and then Exiting,
	// before its key is deleted.
	LeaveInterval time.Duration

	// Roles the local member carries.
	Roles []string

	// OwnsClient closes the client when the source is closed.
	OwnsClient bool

	Clock  clock.Clock
	Logger bark.Logger
}

func defaultOptions() *Options {
	return &Options{
		Prefix:        "/singleton",
		TTL:           10,
		LeaveInterval: time.Second,
		Clock:         clock.New(),
		Logger:        logging.Logger("etcd"),
	}
}

func mergeDefaultOptions(opts *Options) *Options {
	def := defaultOptions()
	if opts == nil {
		return def
	}

	merged := *opts
	merged.Prefix = util.SelectString(opts.Prefix, def.Prefix)
	merged.LeaveInterval = util.SelectDuration(opts.LeaveInterval, def.LeaveInterval)
	if merged.TTL == 0 {
		merged.TTL = def.TTL
	}
	if merged.Clock == nil {
		merged.Clock = def.Clock
	}
	if merged.Logger == nil {
		merged.Logger = def.Logger
	}
	return &merged
}

// record is the value stored under a member key.
type record struct {
	Status membership.Status `json:"status"`
	Roles  []string          `json:"roles,omitempty"`
}

// Source registers the local member in etcd and watches every member.
type Source struct {
	client  *clientv3.Client
	kv      clientv3.KV
	watcher clientv3.Watcher
	lease   clientv3.Lease

	address string
	prefix  string
	opts    *Options
	logger  bark.Logger

	mu       sync.Mutex
	leaseID  clientv3.LeaseID
	listener events.EventListener
	cancel   context.CancelFunc
	left     bool
	done     chan struct{}
}

// New returns a source registering address. The client is closed with the
// source only when Options.OwnsClient is set.
func New(client *clientv3.Client, address string, opts *Options) *Source {
	opts = mergeDefaultOptions(opts)
	return &Source{
		client:  client,
		kv:      client.KV,
		watcher: client.Watcher,
		lease:   client.Lease,
		address: address,
		prefix:  strings.TrimSuffix(opts.Prefix, "/") + "/members/",
		opts:    opts,
		logger:  opts.Logger.WithField("local", address),
		done:    make(chan struct{}),
	}
}

func (s *Source) key(address string) string {
	return s.prefix + address
}

// Start registers the local member, sends the current members to listener
// and keeps watching for changes.
func (s *Source) Start(listener events.EventListener) error {
	ctx, cancel := context.WithCancel(context.Background())

	grant, err := s.lease.Grant(ctx, s.opts.TTL)
	if err != nil {
		cancel()
		return fmt.Errorf("granting lease: %v", err)
	}

	if err := s.put(ctx, grant.ID, membership.Up); err != nil {
		cancel()
		return err
	}

	keepAlive, err := s.lease.KeepAlive(ctx, grant.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("keeping lease alive: %v", err)
	}

	snapshot, rev, err := s.snapshot(ctx)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.leaseID = grant.ID
	s.listener = listener
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.WithFields(bark.Fields{
		"members": len(snapshot),
		"lease":   int64(grant.ID),
	}).Info("registered in etcd")

	listener.HandleEvent(membership.StateEvent{Members: snapshot})

	go s.drainKeepAlive(ctx, keepAlive)
	go s.watch(ctx, listener, rev)
	return nil
}

// Leave walks the local member through Leaving and Exiting, then deletes its
// key and revokes the lease.
func (s *Source) Leave(address string) error {
	if address != s.address {
		return ErrNotLocal
	}

	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	leaseID := s.leaseID
	left := s.left
	s.left = true
	s.mu.Unlock()

	if left {
		return nil
	}

	ctx := context.Background()
	for _, status := range []membership.Status{membership.Leaving, membership.Exiting} {
		if err := s.put(ctx, leaseID, status); err != nil {
			return err
		}
		s.opts.Clock.Sleep(s.opts.LeaveInterval)
	}

	_, err := s.kv.Delete(ctx, s.key(s.address))
	_, revokeErr := s.lease.Revoke(ctx, leaseID)
	return multierr.Append(err, revokeErr)
}

// Close stops watching and revokes the lease of a member that did not leave.
func (s *Source) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	leaseID := s.leaseID
	left := s.left
	s.left = true
	s.cancel = nil
	s.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		<-s.done

		if !left {
			_, err = s.lease.Revoke(context.Background(), leaseID)
		}
	}

	if s.opts.OwnsClient {
		err = multierr.Append(err, s.client.Close())
	}
	return err
}

func (s *Source) put(ctx context.Context, leaseID clientv3.LeaseID, status membership.Status) error {
	value, err := json.Marshal(record{Status: status, Roles: s.opts.Roles})
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, s.key(s.address), string(value), clientv3.WithLease(leaseID)); err != nil {
		return fmt.Errorf("registering %s as %v: %v", s.address, status, err)
	}
	return nil
}

func (s *Source) snapshot(ctx context.Context) ([]membership.Member, int64, error) {
	res, err := s.kv.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, 0, fmt.Errorf("listing members: %v", err)
	}

	members := make([]membership.Member, 0, len(res.Kvs))
	for _, kv := range res.Kvs {
		m, err := memberFromKV(s.prefix, kv)
		if err != nil {
			s.logger.WithFields(bark.Fields{
				"key":   string(kv.Key),
				"error": err.Error(),
			}).Warn("skipping malformed member")
			continue
		}
		members = append(members, m)
	}
	return members, res.Header.Revision, nil
}

func (s *Source) drainKeepAlive(ctx context.Context, ch <-chan *clientv3.LeaseKeepAliveResponse) {
	for range ch {
	}
	if ctx.Err() == nil {
		s.logger.Error("etcd lease keep alive stopped, this member will be removed")
	}
}

func (s *Source) watch(ctx context.Context, listener events.EventListener, rev int64) {
	defer close(s.done)

	for ctx.Err() == nil {
		wch := s.watcher.Watch(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1), clientv3.WithPrevKV())
		for res := range wch {
			if err := res.Err(); err != nil {
				s.logger.WithField("error", err.Error()).Warn("etcd watch failed, resyncing")
				break
			}
			rev = res.Header.Revision

			changes := make([]membership.MemberChange, 0, len(res.Events))
			for _, ev := range res.Events {
				change, ok := changeFromEvent(s.prefix, ev)
				if ok {
					changes = append(changes, change)
				}
			}
			if len(changes) > 0 {
				listener.HandleEvent(membership.ChangeEvent{Changes: changes})
			}
		}

		if ctx.Err() != nil {
			return
		}

		// the watch ended or fell behind a compaction, start over from a
		// fresh snapshot
		snapshot, next, err := s.snapshot(ctx)
		if err != nil {
			s.logger.WithField("error", err.Error()).Warn("etcd resync failed")
			s.opts.Clock.Sleep(time.Second)
			continue
		}
		rev = next
		listener.HandleEvent(membership.StateEvent{Members: snapshot})
	}
}

// memberFromKV decodes the member stored in kv.
func memberFromKV(prefix string, kv *mvccpb.KeyValue) (membership.Member, error) {
	key := string(kv.Key)
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return membership.Member{}, fmt.Errorf("key %q is not a member key", key)
	}

	var r record
	if err := json.Unmarshal(kv.Value, &r); err != nil {
		return membership.Member{}, err
	}

	return membership.Member{
		Address:  strings.TrimPrefix(key, prefix),
		UpNumber: kv.CreateRevision,
		Status:   r.Status,
		Roles:    r.Roles,
	}, nil
}

// changeFromEvent turns a watch event into a member change. A delete, from
// Leave or from lease expiry, is a removal.
func changeFromEvent(prefix string, ev *clientv3.Event) (membership.MemberChange, bool) {
	var change membership.MemberChange

	if ev.PrevKv != nil {
		if before, err := memberFromKV(prefix, ev.PrevKv); err == nil {
			change.Before = &before
		}
	}

	switch ev.Type {
	case mvccpb.PUT:
		after, err := memberFromKV(prefix, ev.Kv)
		if err != nil {
			return change, false
		}
		change.After = &after
		return change, true

	case mvccpb.DELETE:
		if change.Before == nil {
			key := string(ev.Kv.Key)
			if !strings.HasPrefix(key, prefix) {
				return change, false
			}
			change.Before = &membership.Member{Address: strings.TrimPrefix(key, prefix)}
		}
		removed := change.Before.WithStatus(membership.Removed)
		change.After = &removed
		return change, true
	}

	return change, false
}
