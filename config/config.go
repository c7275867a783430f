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

// Package config defines the sandbox's configuration aggregate and the
// error taxonomy the rest of the module surfaces.
package config

import (
	"math/rand"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/keepctl/keep/cgroup"
	"github.com/keepctl/keep/fs"
	"github.com/keepctl/keep/security"
)

// Config is the immutable-after-construction aggregate that drives one
// container's bring-up. Uid is a process-local 64-bit identifier, not a
// POSIX uid: it names the cgroup and the workspace subdirectory.
type Config struct {
	UID              uint64
	WorkingPath      string
	Hostname         string
	TargetExecutable string

	FS               []fs.Step
	SecurityPolicies []security.Policy
	CGroupLimits     cgroup.Policy

	// InnerUID/InnerGID are the identity adopted by the child, inside its
	// user namespace, immediately before security policies and exec.
	InnerUID uint32
	InnerGID uint32

	// TimeLimit is the wall-clock deadline, counted from the moment the
	// supervisor observes the child's successful report frame.
	TimeLimit time.Duration

	Stdin  string
	Stdout string
	Stderr string
}

// Default returns the reference default configuration: a random uid, the
// default workspace path, hostname "container", target /bin/sh, an empty
// mount list, the default capability and seccomp policies, the default
// cgroup policy, inner uid/gid 0, and a 1 second time limit.
//
// Callers building anything beyond a quick interactive smoke test should
// override TimeLimit explicitly — 1 second is too short for any real
// workload.
func Default() Config {
	return Config{
		UID:              rand.Uint64(),
		WorkingPath:      "/tmp/keep.workspace/",
		Hostname:         "container",
		TargetExecutable: "/bin/sh",
		FS:               nil,
		SecurityPolicies: []security.Policy{
			security.NewCapabilityPolicy(),
			security.NewSeccompPolicy(),
		},
		CGroupLimits: defaultCGroupPolicy(),
		InnerUID:     0,
		InnerGID:     0,
		TimeLimit:    time.Second,
	}
}

func defaultCGroupPolicy() cgroup.Policy {
	return cgroup.NewContainerdPolicy(cgroup.Limits{})
}

// Clone returns a deep copy of c, suitable for handing to a goroutine (the
// deadline watcher) or a re-exec'd child frame that must not observe the
// supervisor mutating c afterward. The Config type has no mutable shared
// state of its own once built, but the stock mount/security/cgroup policies
// held through interfaces are pointers, so a shallow copy wouldn't give the
// same guarantee. deepcopy copies exported fields only: unexported state,
// such as *cgroup.ContainerdPolicy's cached cgroup handles, is left at its
// zero value in the clone.
func (c Config) Clone() Config {
	clone := deepcopy.Copy(c).(Config)
	return clone
}
