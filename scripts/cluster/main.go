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

// Command cluster runs a local cluster of echo nodes as sub-processes and
// lets you crash or gracefully stop them to watch the singleton move.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
)

var (
	binary   = flag.String("binary", "./echo", "path to the echo binary")
	size     = flag.Int("size", 3, "number of nodes in the cluster")
	basePort = flag.Int("base-port", 3000, "port of the first node")
	etcd     = flag.String("etcd", "", "comma separated etcd endpoints, static membership when empty")

	hostPortPattern = regexp.MustCompile(`^(\d+.\d+.\d+.\d+):\d+$`)
)

type cluster struct {
	hostports []string
	running   map[string]*exec.Cmd
}

func newCluster(n int) *cluster {
	c := &cluster{running: make(map[string]*exec.Cmd)}
	for i := 0; i < n; i++ {
		c.hostports = append(c.hostports, fmt.Sprintf("127.0.0.1:%d", *basePort+i))
	}
	return c
}

func (c *cluster) start(hostport string) error {
	if !hostPortPattern.MatchString(hostport) {
		return fmt.Errorf("%s is not a valid hostport", hostport)
	}
	if _, ok := c.running[hostport]; ok {
		return fmt.Errorf("a node already runs on %s", hostport)
	}

	args := []string{"-listen", hostport}
	if *etcd != "" {
		args = append(args, "-etcd", *etcd)
	} else {
		args = append(args, "-hosts", strings.Join(c.hostports, ","))
	}

	cmd := exec.Command(*binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}

	c.running[hostport] = cmd
	go cmd.Wait()
	log.WithField("hostport", hostport).Info("started node")
	return nil
}

// stop sends sig to the node on hostport: SIGTERM hands the singleton over,
// SIGKILL simulates a crash.
func (c *cluster) stop(hostport string, sig syscall.Signal) error {
	cmd, ok := c.running[hostport]
	if !ok {
		return fmt.Errorf("no node runs on %s", hostport)
	}
	if err := cmd.Process.Signal(sig); err != nil {
		return err
	}
	delete(c.running, hostport)
	log.WithFields(log.Fields{
		"hostport": hostport,
		"signal":   sig.String(),
	}).Info("stopped node")
	return nil
}

func (c *cluster) list() []string {
	out := make([]string, 0, len(c.running))
	for hostport := range c.running {
		out = append(out, hostport)
	}
	sort.Strings(out)
	return out
}

func (c *cluster) quit() (errs []error) {
	for hostport := range c.running {
		if err := c.stop(hostport, syscall.SIGTERM); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (c *cluster) resolve(arg string) (string, error) {
	if i, err := strconv.Atoi(arg); err == nil {
		if i < 0 || i >= len(c.hostports) {
			return "", errors.New("no node with that index")
		}
		return c.hostports[i], nil
	}
	return arg, nil
}

func main() {
	flag.Parse()

	c := newCluster(*size)
	for _, hostport := range c.hostports {
		if err := c.start(hostport); err != nil {
			log.WithFields(log.Fields{
				"error":    err,
				"hostport": hostport,
			}).Error("could not start node")
		}
	}

	fmt.Println("commands: start|leave|crash <index or hostport>, list, quit")
	scanner := bufio.NewScanner(os.Stdin)

INPUT:
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var target string
		if len(fields) > 1 {
			var err error
			if target, err = c.resolve(fields[1]); err != nil {
				fmt.Println(err)
				continue
			}
		}

		var err error
		switch fields[0] {
		case "s", "start":
			err = c.start(target)
		case "l", "leave":
			err = c.stop(target, syscall.SIGTERM)
		case "c", "crash":
			err = c.stop(target, syscall.SIGKILL)
		case "ls", "list":
			fmt.Println(strings.Join(c.list(), "\n"))
		case "q", "quit":
			break INPUT
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
		if err != nil {
			fmt.Println(err)
		}
	}

	for _, err := range c.quit() {
		fmt.Println(err)
	}
}
