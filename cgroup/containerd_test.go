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

import "testing"

func int64p(v int64) *int64   { return &v }
func uint64p(v uint64) *uint64 { return &v }

func TestResourcesProjectsLimits(t *testing.T) {
	p := NewContainerdPolicy(Limits{
		MemoryLimitBytes: int64p(1 << 20),
		PidsLimit:        int64p(32),
		CPUShares:        uint64p(512),
		CPUQuota:         int64p(50000),
		CPUPeriod:        uint64p(100000),
	})

	r := p.resources()
	if r.Memory == nil || r.Memory.Limit == nil || *r.Memory.Limit != 1<<20 {
		t.Fatalf("resources().Memory = %+v, want limit 1<<20", r.Memory)
	}
	if r.Pids == nil || r.Pids.Limit != 32 {
		t.Fatalf("resources().Pids = %+v, want limit 32", r.Pids)
	}
	if r.CPU == nil || *r.CPU.Shares != 512 || *r.CPU.Quota != 50000 || *r.CPU.Period != 100000 {
		t.Fatalf("resources().CPU = %+v, want shares=512 quota=50000 period=100000", r.CPU)
	}
}

func TestResourcesZeroPidsLimitWhenUnset(t *testing.T) {
	p := NewContainerdPolicy(Limits{})
	r := p.resources()
	if r.Pids == nil || r.Pids.Limit != 0 {
		t.Fatalf("resources().Pids = %+v, want zero-value Limit when PidsLimit is nil", r.Pids)
	}
}

func TestDeleteIsIdempotentWhenNeverApplied(t *testing.T) {
	p := NewContainerdPolicy(Limits{})
	if err := p.Delete(999999); err != nil {
		t.Fatalf("Delete on a never-applied uid = %v, want nil (idempotent)", err)
	}
}

func TestCgroupNameIsKeyedByUID(t *testing.T) {
	if got, want := cgroupName(42), "keep-42"; got != want {
		t.Fatalf("cgroupName(42) = %q, want %q", got, want)
	}
}
