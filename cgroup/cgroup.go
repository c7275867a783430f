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

// Package cgroup creates, populates, freezes/thaws, and destroys a cgroup
// keyed by a container's uid, and attaches a given PID to it.
package cgroup

import "fmt"

// Policy is the resource/cgroup policy contract, keyed by container uid.
type Policy interface {
	// Apply creates the cgroup named by uid if absent, writes the
	// configured limits, and migrates pid into it.
	Apply(uid uint64, pid int) error

	// Freeze toggles the cgroup's freezer state to FROZEN.
	Freeze(uid uint64) error

	// Thaw toggles the cgroup's freezer state to THAWED.
	Thaw(uid uint64) error

	// Delete removes the cgroup. Must be idempotent: deleting an absent
	// cgroup is not an error.
	Delete(uid uint64) error
}

// Limits configures the resource caps a Policy applies. Every field is
// optional; a nil/zero value means "don't constrain this resource".
type Limits struct {
	// MemoryLimitBytes caps the cgroup's memory.limit_in_bytes.
	MemoryLimitBytes *int64

	// PidsLimit caps the number of tasks the cgroup may hold.
	PidsLimit *int64

	// CPUShares sets the relative cpu.shares weight.
	CPUShares *uint64

	// CPUQuota and CPUPeriod together cap CPU bandwidth (quota/period).
	CPUQuota  *int64
	CPUPeriod *uint64

	// UseSystemd drives the cgroup through systemd's transient-unit API
	// instead of a raw cgroupfs path, matching the --systemd-cgroup flag
	// convention used throughout the container ecosystem.
	UseSystemd bool
}

func cgroupName(uid uint64) string {
	return fmt.Sprintf("keep-%d", uid)
}
