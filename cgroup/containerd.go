// Copyright 2024 The Keep Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package cgroup

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/containerd/cgroups"
	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/keepctl/keep/internal/log"
)

// ContainerdPolicy implements Policy on top of github.com/containerd/cgroups,
// the same cgroup v1 library the teacher's own sandbox package tracks
// (runsc/sandbox.go's Sandbox.CgroupJSON). When Limits.UseSystemd is set it
// first registers a transient systemd scope via go-systemd's dbus client and
// lets the cgroup hang off that scope's slice, matching the
// --systemd-cgroup flag documented (but not wired end-to-end) in the
// teacher's runsc/config/flags.go.
type ContainerdPolicy struct {
	Limits Limits

	cg map[uint64]cgroups.Cgroup
}

// NewContainerdPolicy returns a cgroup policy with the given limits.
func NewContainerdPolicy(limits Limits) *ContainerdPolicy {
	return &ContainerdPolicy{Limits: limits, cg: make(map[uint64]cgroups.Cgroup)}
}

func (c *ContainerdPolicy) resources() *specs.LinuxResources {
	r := &specs.LinuxResources{
		Memory: &specs.LinuxMemory{Limit: c.Limits.MemoryLimitBytes},
		Pids:   &specs.LinuxPids{},
		CPU: &specs.LinuxCPU{
			Shares: c.Limits.CPUShares,
			Quota:  c.Limits.CPUQuota,
			Period: c.Limits.CPUPeriod,
		},
	}
	if c.Limits.PidsLimit != nil {
		r.Pids.Limit = *c.Limits.PidsLimit
	}
	return r
}

// Apply creates (if absent) the cgroup named by uid, writes the configured
// limits, and migrates pid into it.
func (c *ContainerdPolicy) Apply(uid uint64, pid int) error {
	name := cgroupName(uid)

	var path cgroups.Path
	if c.Limits.UseSystemd {
		unit := name + ".scope"
		if err := startSystemdScope(unit, pid); err != nil {
			return fmt.Errorf("start systemd scope %s: %w", unit, err)
		}
		path = cgroups.Slice("system.slice", unit)
	} else {
		path = cgroups.StaticPath("/keep/" + name)
	}

	cg, err := cgroups.New(cgroups.V1, path, c.resources())
	if err != nil {
		return fmt.Errorf("create cgroup %s: %w", name, err)
	}
	if err := cg.Add(cgroups.Process{Pid: pid}); err != nil {
		return fmt.Errorf("attach pid %d to cgroup %s: %w", pid, name, err)
	}
	c.cg[uid] = cg
	log.Infof("cgroup %s: attached pid %d", name, pid)
	return nil
}

func (c *ContainerdPolicy) load(uid uint64) (cgroups.Cgroup, error) {
	if cg, ok := c.cg[uid]; ok {
		return cg, nil
	}
	name := cgroupName(uid)
	cg, err := cgroups.Load(cgroups.V1, cgroups.StaticPath("/keep/"+name))
	if err != nil {
		return nil, fmt.Errorf("load cgroup %s: %w", name, err)
	}
	c.cg[uid] = cg
	return cg, nil
}

// Freeze toggles the cgroup's freezer state to FROZEN, retrying briefly
// since the kernel can report FREEZING before settling on FROZEN.
func (c *ContainerdPolicy) Freeze(uid uint64) error {
	cg, err := c.load(uid)
	if err != nil {
		return err
	}
	op := func() error { return cg.Freeze() }
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(20*time.Millisecond), 25)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("freeze cgroup %s: %w", cgroupName(uid), err)
	}
	return nil
}

// Thaw toggles the cgroup's freezer state to THAWED.
func (c *ContainerdPolicy) Thaw(uid uint64) error {
	cg, err := c.load(uid)
	if err != nil {
		return err
	}
	if err := cg.Thaw(); err != nil {
		return fmt.Errorf("thaw cgroup %s: %w", cgroupName(uid), err)
	}
	return nil
}

// Delete removes the cgroup. Not-found is swallowed: Delete must be
// idempotent.
func (c *ContainerdPolicy) Delete(uid uint64) error {
	cg, ok := c.cg[uid]
	if !ok {
		var err error
		cg, err = c.load(uid)
		if err != nil {
			// Already gone; Delete is idempotent.
			return nil
		}
	}
	if err := cg.Delete(); err != nil {
		return fmt.Errorf("delete cgroup %s: %w", cgroupName(uid), err)
	}
	delete(c.cg, uid)
	return nil
}

func startSystemdScope(unit string, pid int) error {
	conn, err := systemdDbus.NewWithContext(context.Background())
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	props := []systemdDbus.Property{
		systemdDbus.PropPids(uint32(pid)),
		systemdDbus.PropDescription("keep sandbox " + unit),
	}
	ch := make(chan string)
	if _, err := conn.StartTransientUnitContext(context.Background(), unit, "replace", props, ch); err != nil {
		return err
	}
	<-ch
	return nil
}
