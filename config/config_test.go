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

package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/keepctl/keep/fs"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Hostname != "container" {
		t.Errorf("Hostname = %q, want %q", c.Hostname, "container")
	}
	if c.TargetExecutable != "/bin/sh" {
		t.Errorf("TargetExecutable = %q, want %q", c.TargetExecutable, "/bin/sh")
	}
	if c.TimeLimit != time.Second {
		t.Errorf("TimeLimit = %v, want %v", c.TimeLimit, time.Second)
	}
	if len(c.SecurityPolicies) != 2 {
		t.Errorf("SecurityPolicies = %v, want 2 default policies", c.SecurityPolicies)
	}
	if c.CGroupLimits == nil {
		t.Error("CGroupLimits = nil, want a default policy")
	}
	if c.InnerUID != 0 || c.InnerGID != 0 {
		t.Errorf("inner uid/gid = %d/%d, want 0/0", c.InnerUID, c.InnerGID)
	}
}

func TestDefaultUIDIsRandomized(t *testing.T) {
	a, b := Default(), Default()
	if a.UID == b.UID {
		t.Errorf("two Default() calls produced the same uid %d; want distinct", a.UID)
	}
}

func TestWireRoundTrip(t *testing.T) {
	c := Default()
	c.FS = []fs.Step{fs.NewTmpFS(), fs.NewProcFS(), fs.NewReadOnlyBindFS("/images/alpine")}
	c.Stdout = "/tmp/out"

	wire, err := c.ToWire()
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}

	var buf bytes.Buffer
	if err := wire.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := ReadWire(&buf)
	if err != nil {
		t.Fatalf("ReadWire: %v", err)
	}
	if got.UID != c.UID || got.Hostname != c.Hostname || got.Stdout != c.Stdout {
		t.Fatalf("round trip = %+v, want uid=%d hostname=%q stdout=%q", got, c.UID, c.Hostname, c.Stdout)
	}

	steps, policies, err := got.Hydrate()
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("Hydrate() steps = %d, want 3", len(steps))
	}
	if len(policies) != 2 {
		t.Fatalf("Hydrate() policies = %d, want 2", len(policies))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := Default()
	clone := c.Clone()
	clone.Hostname = "mutated"
	if c.Hostname == "mutated" {
		t.Fatal("mutating the clone's Hostname mutated the original")
	}
}
