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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uber/singleton-go/discovery/statichosts"
	"github.com/uber/singleton-go/logging"
)

const sampleConfig = `
role: worker
removalGracePeriod: 30s
handOverRetryInterval: 500ms
maxHandOverRetries: 10
bufferSize: 200
identificationInterval: 2s
callTimeout: 1s
stopTimeout: 3s
logging:
  host: debug
  proxy: warn
membership:
  hosts:
    - 127.0.0.1:3000
    - 127.0.0.1:3001
`

func TestParseConfiguration(t *testing.T) {
	c, err := ParseConfiguration([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "worker", c.Role)
	assert.Equal(t, []string{"worker"}, c.roles())
	assert.Equal(t, 30*time.Second, c.RemovalGracePeriod)
	assert.Equal(t, 500*time.Millisecond, c.HandOverRetryInterval)
	assert.Equal(t, 10, c.MaxHandOverRetries)
	assert.Equal(t, 200, c.BufferSize)
	assert.Equal(t, 2*time.Second, c.IdentificationInterval)
	assert.Equal(t, time.Second, c.CallTimeout)
	assert.Equal(t, 3*time.Second, c.StopTimeout)
	assert.Equal(t, map[string]logging.Level{"host": logging.Debug, "proxy": logging.Warn}, c.Logging)
	assert.Equal(t, []string{"127.0.0.1:3000", "127.0.0.1:3001"}, c.Membership.Hosts)
}

func TestParseConfigurationRejectsUnknownFields(t *testing.T) {
	_, err := ParseConfiguration([]byte("rol: worker\n"))
	assert.Error(t, err)
}

func TestParseConfigurationRejectsTwoMembershipSources(t *testing.T) {
	_, err := ParseConfiguration([]byte(`
membership:
  hosts: [127.0.0.1:3000]
  dns:
    hostname: singleton.local
    port: 3000
`))
	assert.Equal(t, errAmbiguousMembership, err)
}

func TestParseConfigurationRejectsNegativeValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"buffer size", "bufferSize: -1\n"},
		{"retries", "maxHandOverRetries: -3\n"},
		{"grace period", "removalGracePeriod: -1s\n"},
		{"retry interval", "handOverRetryInterval: -500ms\n"},
		{"identification interval", "identificationInterval: -2s\n"},
		{"call timeout", "callTimeout: -1s\n"},
		{"stop timeout", "stopTimeout: -1s\n"},
		{"dns timeout", "membership:\n  dns:\n    hostname: singleton.local\n    timeout: -1s\n"},
		{"etcd ttl", "membership:\n  etcd:\n    endpoints: [127.0.0.1:2379]\n    ttl: -10\n"},
		{"etcd dial timeout", "membership:\n  etcd:\n    endpoints: [127.0.0.1:2379]\n    dialTimeout: -1s\n"},
	}

	for _, tt := range tests {
		_, err := ParseConfiguration([]byte(tt.yaml))
		assert.Error(t, err, tt.name)
	}
}

func TestLoadConfiguration(t *testing.T) {
	dir, err := ioutil.TempDir("", "singleton")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "singleton.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(sampleConfig), 0644))

	c, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, "worker", c.Role)

	_, err = LoadConfiguration(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestExplicitRoles(t *testing.T) {
	c := &Configuration{Role: "worker", Roles: []string{"worker", "db"}}
	assert.Equal(t, []string{"worker", "db"}, c.roles())

	c = &Configuration{}
	assert.Nil(t, c.roles())
}

func TestMembershipSource(t *testing.T) {
	m := &MembershipConfiguration{}
	source, err := m.source("127.0.0.1:3000", nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, source)

	m = &MembershipConfiguration{Hosts: []string{"127.0.0.1:3000"}}
	source, err = m.source("127.0.0.1:3000", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &statichosts.Source{}, source)

	m = &MembershipConfiguration{HostsFile: "/tmp/hosts.json"}
	source, err = m.source("127.0.0.1:3000", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &statichosts.Source{}, source)

	m = &MembershipConfiguration{DNS: &DNSConfiguration{Hostname: "singleton.local", Port: 3000}}
	source, err = m.source("127.0.0.1:3000", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &statichosts.Source{}, source)

	m = &MembershipConfiguration{Hosts: []string{"127.0.0.1:3000"}, HostsFile: "/tmp/hosts.json"}
	_, err = m.source("127.0.0.1:3000", nil, nil)
	assert.Equal(t, errAmbiguousMembership, err)
}
