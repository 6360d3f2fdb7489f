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
	"errors"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/uber-common/bark"
	"gopkg.in/yaml.v2"

	"github.com/uber/singleton-go/discovery"
	"github.com/uber/singleton-go/discovery/dns"
	"github.com/uber/singleton-go/discovery/etcd"
	"github.com/uber/singleton-go/discovery/jsonfile"
	"github.com/uber/singleton-go/discovery/statichosts"
	"github.com/uber/singleton-go/logging"
)

// Configuration holds the tunables of a node. Zero values fall back to the
// defaults of each component.
type Configuration struct {
	// Role members need to be eligible to host the singleton. Empty means
	// every member is eligible.
	Role string `yaml:"role"`

	// Roles the members listed in Membership carry. Defaults to Role.
	Roles []string `yaml:"roles"`

	RemovalGracePeriod     time.Duration `yaml:"removalGracePeriod"`
	HandOverRetryInterval  time.Duration `yaml:"handOverRetryInterval"`
	MaxHandOverRetries     int           `yaml:"maxHandOverRetries"`
	BufferSize             int           `yaml:"bufferSize"`
	IdentificationInterval time.Duration `yaml:"identificationInterval"`
	CallTimeout            time.Duration `yaml:"callTimeout"`
	StopTimeout            time.Duration `yaml:"stopTimeout"`

	// Logging sets the level of named loggers, e.g. host: debug.
	Logging map[string]logging.Level `yaml:"logging"`

	Membership MembershipConfiguration `yaml:"membership"`
}

// MembershipConfiguration selects where members come from. Exactly one of
// the fields may be set; none means the Membership option must be used.
type MembershipConfiguration struct {
	Hosts     []string           `yaml:"hosts"`
	HostsFile string             `yaml:"hostsFile"`
	DNS       *DNSConfiguration  `yaml:"dns"`
	Etcd      *EtcdConfiguration `yaml:"etcd"`
}

// DNSConfiguration resolves the members from the A records of Hostname.
type DNSConfiguration struct {
	Hostname string        `yaml:"hostname"`
	Port     int           `yaml:"port"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EtcdConfiguration registers the node in etcd.
type EtcdConfiguration struct {
	Endpoints     []string      `yaml:"endpoints"`
	Prefix        string        `yaml:"prefix"`
	TTL           int64         `yaml:"ttl"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	LeaveInterval time.Duration `yaml:"leaveInterval"`
}

var errAmbiguousMembership = errors.New("only one of hosts, hostsFile, dns and etcd can be configured")

// LoadConfiguration reads a YAML configuration file.
func LoadConfiguration(path string) (*Configuration, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfiguration(b)
}

// ParseConfiguration decodes a YAML configuration.
func ParseConfiguration(b []byte) (*Configuration, error) {
	c := &Configuration{}
	if err := yaml.UnmarshalStrict(b, c); err != nil {
		return nil, fmt.Errorf("parsing configuration: %v", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// validate rejects the values the components cannot run with.
func (c *Configuration) validate() error {
	durations := map[string]time.Duration{
		"removalGracePeriod":     c.RemovalGracePeriod,
		"handOverRetryInterval":  c.HandOverRetryInterval,
		"identificationInterval": c.IdentificationInterval,
		"callTimeout":            c.CallTimeout,
		"stopTimeout":            c.StopTimeout,
	}
	if c.Membership.DNS != nil {
		durations["membership.dns.timeout"] = c.Membership.DNS.Timeout
	}
	if e := c.Membership.Etcd; e != nil {
		if e.TTL < 0 {
			return errors.New("membership.etcd.ttl cannot be negative")
		}
		durations["membership.etcd.dialTimeout"] = e.DialTimeout
		durations["membership.etcd.leaveInterval"] = e.LeaveInterval
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}

	if c.MaxHandOverRetries < 0 {
		return errors.New("maxHandOverRetries cannot be negative")
	}
	if c.BufferSize < 0 {
		return errors.New("bufferSize cannot be negative")
	}

	_, err := c.Membership.kind()
	return err
}

func (c *Configuration) roles() []string {
	if len(c.Roles) > 0 {
		return c.Roles
	}
	if c.Role != "" {
		return []string{c.Role}
	}
	return nil
}

func (m *MembershipConfiguration) kind() (string, error) {
	kinds := make([]string, 0, 1)
	if len(m.Hosts) > 0 {
		kinds = append(kinds, "hosts")
	}
	if m.HostsFile != "" {
		kinds = append(kinds, "hostsFile")
	}
	if m.DNS != nil {
		kinds = append(kinds, "dns")
	}
	if m.Etcd != nil {
		kinds = append(kinds, "etcd")
	}

	switch len(kinds) {
	case 0:
		return "", nil
	case 1:
		return kinds[0], nil
	}
	return "", errAmbiguousMembership
}

// source builds the membership source for the node at address. It returns
// nil when nothing is configured.
func (m *MembershipConfiguration) source(address string, roles []string, logger bark.Logger) (discovery.Source, error) {
	kind, err := m.kind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case "hosts":
		return statichosts.NewSource(statichosts.New(m.Hosts...), roles...), nil
	case "hostsFile":
		return statichosts.NewSource(jsonfile.New(m.HostsFile), roles...), nil
	case "dns":
		return statichosts.NewSource(&dns.Provider{
			Hostname: m.DNS.Hostname,
			Port:     m.DNS.Port,
			Timeout:  m.DNS.Timeout,
		}, roles...), nil
	case "etcd":
		dialTimeout := m.Etcd.DialTimeout
		if dialTimeout == 0 {
			dialTimeout = 5 * time.Second
		}
		client, err := etcd.NewClient(m.Etcd.Endpoints, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("connecting to etcd: %v", err)
		}
		return etcd.New(client, address, &etcd.Options{
			Prefix:        m.Etcd.Prefix,
			TTL:           m.Etcd.TTL,
			LeaveInterval: m.Etcd.LeaveInterval,
			Roles:         roles,
			OwnsClient:    true,
			Logger:        logger,
		}), nil
	}
	return nil, nil
}
